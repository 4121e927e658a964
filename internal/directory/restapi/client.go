// Package restapi is a directory.Provider that talks to an HR system over
// REST.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/clock"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/directory"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/gateway"
)

const defaultTimeout = 10 * time.Second

type Options struct {
	BaseURL string // e.g. "http://localhost:3000/api"
	Token   string
	Timeout time.Duration
	Clock   clock.Clock
}

// Client makes REST calls to the HR directory service.
type Client struct {
	baseURL string
	token   string
	clock   clock.Clock
	client  *http.Client
}

var _ directory.Provider = (*Client)(nil)

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		clock:   opts.Clock,
		client:  &http.Client{Timeout: timeout},
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	return c
}

// EmployeeByTag fetches GET /employees/rfid/{tag}. A 404 means the card is
// unknown.
func (c *Client) EmployeeByTag(ctx context.Context, tag string) (directory.Employee, error) {
	var e directory.Employee
	err := c.get(ctx, "/employees/rfid/"+url.PathEscape(tag), &e)
	if err != nil {
		return directory.Employee{}, err
	}
	return e, nil
}

// Notifications fetches GET /employees/{id}/notifications.
func (c *Client) Notifications(ctx context.Context, employeeID string) ([]directory.Notification, error) {
	out := []directory.Notification{}
	if err := c.get(ctx, "/employees/"+url.PathEscape(employeeID)+"/notifications", &out); err != nil {
		return nil, err
	}
	directory.SortNewestFirst(out)
	return out, nil
}

type workLogRequest struct {
	EmployeeID string               `json:"employeeId"`
	Status     directory.WorkStatus `json:"status"`
	Timestamp  string               `json:"timestamp"`
}

// WriteWorkLog sends POST /worklogs.
func (c *Client) WriteWorkLog(ctx context.Context, employeeID string, status directory.WorkStatus) error {
	return c.post(ctx, "/worklogs", workLogRequest{
		EmployeeID: employeeID,
		Status:     status,
		Timestamp:  gateway.FormatTimestamp(c.clock.Now()),
	})
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("GET %s: %w", path, directory.ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decoding response: %w", path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("POST %s: %d %s", path, resp.StatusCode, string(respBody))
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
