package gateway

import "strings"

// DefaultURL is where a stock gateway flow listens for kiosk clients.
const DefaultURL = "ws://localhost:1880/ws/rfid"

// EndpointStore persists the configured gateway address so it survives
// restarts.
type EndpointStore interface {
	SaveEndpoint(url string) error
}

// NormalizeEndpoint turns operator input into a WebSocket URL. It
// reports false for blank input, which callers treat as "keep the
// current address". HTTP schemes map onto their WebSocket twins and a
// bare host gets ws://. Applying it twice changes nothing.
func NormalizeEndpoint(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	switch {
	case strings.HasPrefix(s, "http://"):
		s = "ws://" + strings.TrimPrefix(s, "http://")
	case strings.HasPrefix(s, "https://"):
		s = "wss://" + strings.TrimPrefix(s, "https://")
	}

	if !strings.HasPrefix(s, "ws://") && !strings.HasPrefix(s, "wss://") {
		s = "ws://" + s
	}
	return s, true
}

func isInsecure(url string) bool {
	return strings.HasPrefix(url, "ws://")
}
