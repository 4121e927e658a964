// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0
//
// Adapted for the InfoPoint kiosk.

// Package clock lets timer-driven code run against real time in
// production and a manually advanced clock in tests.
//
// Anything that would call time.Now, time.AfterFunc or time.NewTicker
// takes a Clock instead. Production wiring uses Real(); tests use
// Fake(start) and move time forward with Advance.
package clock

import "time"

// Clock abstracts the parts of the time package the kiosk depends on.
type Clock interface {
	Now() time.Time

	// AfterFunc calls f once after d elapses. The returned Timer can
	// cancel the call.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks on C every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop cancels the pending call. It reports false when the timer has
// already fired or was stopped before.
func (t *Timer) Stop() bool {
	if t == nil || t.stop == nil {
		return false
	}
	return t.stop()
}

// Ticker delivers periodic ticks on C. C has capacity 1; ticks are
// dropped when the reader falls behind.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }
