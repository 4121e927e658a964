// Package gateway talks to the field-automation gateway that owns the
// card reader and the two work buttons. The gateway speaks text frames
// over a WebSocket: inbound frames are JSON envelopes or bare legacy
// tokens, outbound frames are JSON telemetry messages.
package gateway

import (
	"encoding/json"
	"time"
)

// Kind classifies a normalized inbound event.
type Kind int

const (
	KindRFID Kind = iota + 1
	KindButton
)

var kindNames = map[Kind]string{
	KindRFID:   "rfid",
	KindButton: "button",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Reserved button tokens. Any other bare text frame is a card id.
const (
	ButtonGreen = "BTN_GREEN"
	ButtonRed   = "BTN_RED"
)

// Event is the canonical form every inbound frame is reduced to.
type Event struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value"`
}

// TopicAttendance is the topic of work-log telemetry messages.
const TopicAttendance = "attendance"

// Action is the work-log transition reported in telemetry.
type Action string

const (
	ActionStartWork Action = "start_work"
	ActionStopWork  Action = "stop_work"
)

// Message is the envelope of every outbound frame.
type Message struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// AttendancePayload describes one work-log transition for the
// gateway's time-series sink.
type AttendancePayload struct {
	EmployeeID   string `json:"employeeId"`
	EmployeeName string `json:"employeeName"`
	Department   string `json:"department"`
	Action       Action `json:"action"`
	Timestamp    string `json:"timestamp"`
}

// TimestampLayout matches the millisecond ISO-8601 form the gateway's
// flows already parse.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
