package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/gateway"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/ws"
)

// HTTPClient calls the kiosk admin API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting baseURL (e.g. "http://127.0.0.1:8080").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Simulate posts a raw gateway frame as if the hardware had sent it.
func (c *HTTPClient) Simulate(frame string) (gateway.Event, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/simulate", strings.NewReader(frame))
	if err != nil {
		return gateway.Event{}, err
	}
	req.Header.Set("Content-Type", "text/plain")
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return gateway.Event{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return gateway.Event{}, fmt.Errorf("simulate failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		Event struct {
			Kind  string `json:"kind"`
			Value string `json:"value"`
		} `json:"event"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return gateway.Event{}, err
	}
	ev := gateway.Event{Value: out.Event.Value, Kind: gateway.KindRFID}
	if out.Event.Kind == gateway.KindButton.String() {
		ev.Kind = gateway.KindButton
	}
	return ev, nil
}

// Logout sends POST /api/session/logout.
func (c *HTTPClient) Logout() error {
	return c.post("/api/session/logout", nil, nil)
}

// Gateway fetches /api/gateway.
func (c *HTTPClient) Gateway() (*ws.GatewayPayload, error) {
	var out ws.GatewayPayload
	if err := c.get("/api/gateway", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settings fetches /api/settings.
func (c *HTTPClient) Settings() (*ws.SettingsPayload, error) {
	var out ws.SettingsPayload
	if err := c.get("/api/settings", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: %d %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) post(path string, body interface{}, out interface{}) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST %s: %d %s", path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
