package ws

import (
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/gateway"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/session"
)

type MessageType string

const (
	MsgView  MessageType = "view"
	MsgError MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// GatewayPayload answers GET /api/gateway.
type GatewayPayload struct {
	URL    string         `json:"url"`
	Status gateway.Status `json:"status"`
}

type GatewayUpdate struct {
	URL string `json:"url"`
}

// SettingsPayload is the operator-editable part of the runtime settings.
type SettingsPayload struct {
	GatewayURL    string `json:"gatewayUrl"`
	LogoutSeconds int    `json:"logoutSeconds"`
	ShowSimulator bool   `json:"showSimulator"`
}

// SettingsUpdate carries the fields to change; nil fields are kept.
type SettingsUpdate struct {
	LogoutSeconds *int  `json:"logoutSeconds,omitempty"`
	ShowSimulator *bool `json:"showSimulator,omitempty"`
}

// SimulateResult echoes the event a simulated frame normalized to.
type SimulateResult struct {
	Event gateway.Event `json:"event"`
}

func viewMessage(v session.View) WSMessage {
	return WSMessage{Type: MsgView, Payload: v}
}
