// Package theme provides the Lip Gloss palette and shared styles for the
// kiosk display.
package theme

import (
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/directory"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/session"
	"github.com/charmbracelet/lipgloss"
)

// Notification colors.
var (
	ColorMedical  = lipgloss.Color("#dc2626")
	ColorUrgent   = lipgloss.Color("#f97316")
	ColorTraining = lipgloss.Color("#3b82f6")
	ColorInfo     = lipgloss.Color("#9ca3af")
)

// Work status colors.
var (
	ColorActive   = lipgloss.Color("#22c55e")
	ColorInactive = lipgloss.Color("#6b7280")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorAccent  = lipgloss.Color("#06b6d4")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// NotificationColor returns the accent for a notification type.
func NotificationColor(t directory.NotificationType) lipgloss.Color {
	switch t {
	case directory.NotificationMedical:
		return ColorMedical
	case directory.NotificationUrgent:
		return ColorUrgent
	case directory.NotificationTraining:
		return ColorTraining
	default:
		return ColorInfo
	}
}

// NotificationGlyph returns a short marker for a notification type.
func NotificationGlyph(t directory.NotificationType) string {
	switch t {
	case directory.NotificationMedical:
		return "✚"
	case directory.NotificationUrgent:
		return "!"
	case directory.NotificationTraining:
		return "◆"
	default:
		return "·"
	}
}

func WorkStatusColor(s directory.WorkStatus) lipgloss.Color {
	if s == directory.WorkActive {
		return ColorActive
	}
	return ColorInactive
}

// FeedbackColor returns the banner color for an action result.
func FeedbackColor(k session.FeedbackKind) lipgloss.Color {
	switch k {
	case session.FeedbackSuccess:
		return ColorHealthy
	case session.FeedbackError:
		return ColorDanger
	default:
		return ColorAccent
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleError = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorDanger)
)
