// Package mock drives the kiosk with scripted visits so it can be run
// and demonstrated without a gateway or card reader.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/clock"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/gateway"
	"github.com/rs/zerolog"
)

// Sink receives generated events. The session controller satisfies it.
type Sink interface {
	OnEvent(ev gateway.Event)
}

// Step is one scripted event, fired After the previous one.
type Step struct {
	After time.Duration
	Event gateway.Event
}

func card(after time.Duration, tag string) Step {
	return Step{After: after, Event: gateway.Event{Kind: gateway.KindRFID, Value: tag}}
}

func button(after time.Duration, value string) Step {
	return Step{After: after, Event: gateway.Event{Kind: gateway.KindButton, Value: value}}
}

// DefaultScript walks through a typical shift change for each tag: a
// scan, starting work, a second press, an idle timeout, and finally an
// unknown card.
func DefaultScript(tags []string) []Step {
	var steps []Step
	for _, tag := range tags {
		steps = append(steps,
			card(3*time.Second, tag),
			button(6*time.Second, gateway.ButtonGreen),
			button(5*time.Second, gateway.ButtonRed),
			// Nothing for a while so the inactivity logout kicks in.
			card(25*time.Second, tag),
			button(4*time.Second, gateway.ButtonGreen),
		)
	}
	return append(steps, card(25*time.Second, "RFID-UNKNOWN"))
}

// Generator replays a script in a loop until stopped.
type Generator struct {
	sink   Sink
	script []Step
	clock  clock.Clock
	log    zerolog.Logger

	mu    sync.Mutex
	next  int
	timer *clock.Timer
	done  bool
}

func NewGenerator(sink Sink, script []Step, clk clock.Clock, log zerolog.Logger) *Generator {
	if clk == nil {
		clk = clock.Real()
	}
	return &Generator{
		sink:   sink,
		script: script,
		clock:  clk,
		log:    log.With().Str("component", "mock").Logger(),
	}
}

// Start schedules the first step and returns. The script stops when ctx
// is cancelled.
func (g *Generator) Start(ctx context.Context) {
	if len(g.script) == 0 {
		return
	}
	g.mu.Lock()
	g.scheduleLocked()
	g.mu.Unlock()

	go func() {
		<-ctx.Done()
		g.Stop()
	}()
}

// Stop cancels the pending step.
func (g *Generator) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.done = true
	g.timer.Stop()
	g.timer = nil
}

func (g *Generator) scheduleLocked() {
	if g.done {
		return
	}
	step := g.script[g.next]
	g.timer = g.clock.AfterFunc(step.After, func() { g.fire(step) })
}

func (g *Generator) fire(step Step) {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return
	}
	g.next = (g.next + 1) % len(g.script)
	g.scheduleLocked()
	g.mu.Unlock()

	g.log.Debug().Str("kind", step.Event.Kind.String()).Str("value", step.Event.Value).Msg("mock event")
	g.sink.OnEvent(step.Event)
}
