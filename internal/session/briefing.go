package session

import (
	"context"
	"fmt"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/directory"
)

// Summarizer writes the short daily briefing shown after login.
type Summarizer interface {
	Brief(ctx context.Context, e directory.Employee, notifications []directory.Notification) (string, error)
}

// FallbackBriefing is shown when no summarizer is configured or it fails.
func FallbackBriefing(e directory.Employee, notifications []directory.Notification) string {
	return fmt.Sprintf("Welcome %s! You have %d new notifications in the system.", e.FirstName, len(notifications))
}
