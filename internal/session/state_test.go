package session

import (
	"encoding/json"
	"testing"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/directory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseTransitions(t *testing.T) {
	tests := []struct {
		from, to Phase
		ok       bool
	}{
		{Idle, Authenticating, true},
		{Idle, Authenticated, false},
		{Authenticating, Authenticated, true},
		{Authenticating, AuthError, true},
		{Authenticating, Idle, true},
		{Authenticated, ActionFeedback, true},
		{Authenticated, Idle, true},
		{Authenticated, AuthError, false},
		{ActionFeedback, ActionFeedback, true},
		{ActionFeedback, Idle, true},
		{ActionFeedback, Authenticated, false},
		{AuthError, Idle, true},
		{AuthError, Authenticated, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanMoveTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestPhaseJSON(t *testing.T) {
	data, err := json.Marshal(ActionFeedback)
	require.NoError(t, err)
	assert.Equal(t, `"ACTION_FEEDBACK"`, string(data))

	var p Phase
	require.NoError(t, json.Unmarshal([]byte(`"AUTH_ERROR"`), &p))
	assert.Equal(t, AuthError, p)
	assert.Equal(t, "UNKNOWN", Phase(42).String())
}

func TestViewCloneIsIndependent(t *testing.T) {
	v := View{
		Employee:      &directory.Employee{ID: "emp-001"},
		Notifications: []directory.Notification{{ID: "not-001"}},
		Feedback:      &Feedback{Kind: FeedbackSuccess},
	}
	c := v.Clone()
	c.Employee.ID = "changed"
	c.Notifications[0].ID = "changed"
	c.Feedback.Kind = FeedbackError

	assert.Equal(t, "emp-001", v.Employee.ID)
	assert.Equal(t, "not-001", v.Notifications[0].ID)
	assert.Equal(t, FeedbackSuccess, v.Feedback.Kind)
}
