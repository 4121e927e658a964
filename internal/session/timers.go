package session

import (
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/clock"
)

// timers owns a session's two timer roles. Both end the session through
// fire, which the controller routes back onto its own goroutine.
type timers struct {
	clock clock.Clock
	fire  func(reason string)

	autoLogout *clock.Timer
	hold       *clock.Timer
	deadline   time.Time
}

func newTimers(c clock.Clock, fire func(reason string)) *timers {
	return &timers{clock: c, fire: fire}
}

// armAutoLogout (re)starts the inactivity timer.
func (t *timers) armAutoLogout(d time.Duration) {
	t.autoLogout.Stop()
	t.deadline = t.clock.Now().Add(d)
	t.autoLogout = t.clock.AfterFunc(d, func() { t.fire("inactivity") })
}

// armHold cancels the inactivity timer and starts a hold that ends the
// session after d.
func (t *timers) armHold(d time.Duration, reason string) {
	t.stop()
	t.deadline = t.clock.Now().Add(d)
	t.hold = t.clock.AfterFunc(d, func() { t.fire(reason) })
}

// stop cancels both roles.
func (t *timers) stop() {
	t.autoLogout.Stop()
	t.hold.Stop()
	t.autoLogout, t.hold = nil, nil
	t.deadline = time.Time{}
}

// logoutAt returns when the session will end on its own, or nil.
func (t *timers) logoutAt() *time.Time {
	if t.deadline.IsZero() {
		return nil
	}
	d := t.deadline
	return &d
}
