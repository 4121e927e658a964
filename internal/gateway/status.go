package gateway

import "errors"

var (
	// ErrEmptyEndpoint is returned by Configure for blank input. The
	// previous address stays in effect.
	ErrEmptyEndpoint = errors.New("gateway endpoint is empty")

	// ErrInsecureTransport is reported when a kiosk served from a
	// secure origin is pointed at a plain ws:// gateway.
	ErrInsecureTransport = errors.New("insecure ws:// gateway refused from a secure origin, use wss://")

	// ErrUnreachable is reported for any other abnormal close.
	ErrUnreachable = errors.New("gateway host unreachable or refused the connection")
)

// Status is the link's connectivity as shown to operators.
type Status struct {
	Connected bool   `json:"connected"`
	LastError string `json:"lastError,omitempty"`
}
