package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Normalize reduces one raw inbound frame to an Event. It reports false
// when the frame carries nothing recognizable; such frames are dropped.
//
// A JSON object is inspected first: a button envelope ("type":"button"
// or a "button" field) wins over a card envelope ("rfid", "payload" or
// "id", in that order). Anything that is not a JSON object is treated
// as plain text: one of the reserved button tokens, or else a card id.
func Normalize(frame []byte) (Event, bool) {
	if fields, ok := decodeObject(frame); ok {
		return fromObject(fields)
	}

	text := strings.TrimSpace(string(frame))
	switch text {
	case "":
		return Event{}, false
	case ButtonGreen, ButtonRed:
		return Event{Kind: KindButton, Value: text}, true
	default:
		return Event{Kind: KindRFID, Value: text}, true
	}
}

func decodeObject(frame []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(frame))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return nil, false
	}
	// Trailing garbage means this was never a clean envelope.
	if dec.More() {
		return nil, false
	}
	return fields, true
}

func fromObject(fields map[string]any) (Event, bool) {
	button := scalar(fields["button"])
	if kind, _ := fields["type"].(string); kind == "button" || button != "" {
		value := scalar(fields["value"])
		if value == "" {
			value = button
		}
		if value == "" {
			return Event{}, false
		}
		return Event{Kind: KindButton, Value: value}, true
	}

	for _, key := range []string{"rfid", "payload", "id"} {
		if v := scalar(fields[key]); v != "" {
			return Event{Kind: KindRFID, Value: v}, true
		}
	}
	return Event{}, false
}

// scalar renders string and numeric JSON values as text. Other shapes
// yield "".
func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
