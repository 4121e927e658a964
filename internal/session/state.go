package session

import (
	"encoding/json"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/directory"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/gateway"
)

type Phase int

const (
	Idle Phase = iota
	Authenticating
	Authenticated
	ActionFeedback
	AuthError
)

var phaseNames = map[Phase]string{
	Idle:           "IDLE",
	Authenticating: "AUTHENTICATING",
	Authenticated:  "AUTHENTICATED",
	ActionFeedback: "ACTION_FEEDBACK",
	AuthError:      "AUTH_ERROR",
}

var phaseFromName = map[string]Phase{
	"IDLE":            Idle,
	"AUTHENTICATING":  Authenticating,
	"AUTHENTICATED":   Authenticated,
	"ACTION_FEEDBACK": ActionFeedback,
	"AUTH_ERROR":      AuthError,
}

// transitions lists where each phase may go next.
var transitions = map[Phase][]Phase{
	Idle:           {Authenticating},
	Authenticating: {Authenticated, AuthError, Idle},
	Authenticated:  {ActionFeedback, Idle},
	ActionFeedback: {ActionFeedback, Idle},
	AuthError:      {Idle},
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "UNKNOWN"
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := phaseFromName[s]; ok {
		*p = v
	}
	return nil
}

// CanMoveTo reports whether next is a legal successor of p.
func (p Phase) CanMoveTo(next Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Live reports whether a session exists in this phase.
func (p Phase) Live() bool {
	return p != Idle
}

// acceptsButtons reports whether work buttons are acted on in this phase.
func (p Phase) acceptsButtons() bool {
	return p == Authenticated || p == ActionFeedback
}

type FeedbackKind string

const (
	FeedbackSuccess FeedbackKind = "success"
	FeedbackError   FeedbackKind = "error"
	FeedbackLogout  FeedbackKind = "logout"
)

type Feedback struct {
	Kind    FeedbackKind `json:"kind"`
	Message string       `json:"message"`
}

// ButtonToken is one press of a physical button. Seq grows with every
// press so repeated presses of the same button stay distinct.
type ButtonToken struct {
	Button string `json:"button"`
	Seq    uint64 `json:"seq"`
}

// View is what the kiosk screen shows. Snapshots are copies and safe to
// retain.
type View struct {
	Phase           Phase                    `json:"phase"`
	SessionID       string                   `json:"sessionId,omitempty"`
	Tag             string                   `json:"tag,omitempty"`
	Employee        *directory.Employee      `json:"employee,omitempty"`
	Notifications   []directory.Notification `json:"notifications,omitempty"`
	Briefing        string                   `json:"briefing,omitempty"`
	BriefingPending bool                     `json:"briefingPending,omitempty"`
	Feedback        *Feedback                `json:"feedback,omitempty"`
	Error           string                   `json:"error,omitempty"`
	LogoutAt        *time.Time               `json:"logoutAt,omitempty"`
	Gateway         gateway.Status           `json:"gateway"`
	Version         uint64                   `json:"version"`
}

// Clone returns a deep copy of the View, duplicating pointer and slice
// fields so the copy can be mutated independently of the original.
func (v View) Clone() View {
	if v.Employee != nil {
		e := v.Employee.Clone()
		v.Employee = &e
	}
	if v.Notifications != nil {
		v.Notifications = append([]directory.Notification(nil), v.Notifications...)
	}
	if v.Feedback != nil {
		f := *v.Feedback
		v.Feedback = &f
	}
	if v.LogoutAt != nil {
		t := *v.LogoutAt
		v.LogoutAt = &t
	}
	return v
}
