package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/clock"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/directory"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/gateway"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

var errDatabaseDown = errors.New("database down")

type workLogCall struct {
	EmployeeID string
	Status     directory.WorkStatus
}

type fakeProvider struct {
	mu        sync.Mutex
	seed      directory.Seed
	lookupErr error
	notesErr  error
	writeErr  error
	gate      chan struct{}
	writeGate chan struct{}
	lookups   int
	lookedUp  int
	writes    []workLogCall
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{seed: directory.DefaultSeed()}
}

func (p *fakeProvider) EmployeeByTag(ctx context.Context, tag string) (directory.Employee, error) {
	p.mu.Lock()
	p.lookups++
	gate, err := p.gate, p.lookupErr
	p.mu.Unlock()

	if gate != nil {
		<-gate
	}
	defer func() {
		p.mu.Lock()
		p.lookedUp++
		p.mu.Unlock()
	}()

	if err != nil {
		return directory.Employee{}, err
	}
	for _, e := range p.seed.Employees {
		if e.RFIDTag == tag {
			return e, nil
		}
	}
	return directory.Employee{}, directory.ErrNotFound
}

func (p *fakeProvider) Notifications(ctx context.Context, employeeID string) ([]directory.Notification, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.notesErr != nil {
		return nil, p.notesErr
	}
	var out []directory.Notification
	for _, n := range p.seed.Notifications {
		if n.EmployeeID == employeeID {
			out = append(out, n)
		}
	}
	directory.SortNewestFirst(out)
	return out, nil
}

func (p *fakeProvider) WriteWorkLog(ctx context.Context, employeeID string, status directory.WorkStatus) error {
	p.mu.Lock()
	gate := p.writeGate
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return p.writeErr
	}
	p.writes = append(p.writes, workLogCall{employeeID, status})
	return nil
}

func (p *fakeProvider) setLookupErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookupErr = err
}

func (p *fakeProvider) writeCalls() []workLogCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]workLogCall(nil), p.writes...)
}

func (p *fakeProvider) counts() (started, finished int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookups, p.lookedUp
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []gateway.Message
}

func (p *fakePublisher) Publish(msg any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg.(gateway.Message))
}

func (p *fakePublisher) messages() []gateway.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]gateway.Message(nil), p.sent...)
}

type fakeSummarizer struct {
	text string
	err  error
}

func (s fakeSummarizer) Brief(context.Context, directory.Employee, []directory.Notification) (string, error) {
	return s.text, s.err
}

// gatedSummarizer blocks every briefing until release is closed.
type gatedSummarizer struct {
	release  chan struct{}
	mu       sync.Mutex
	returned int
}

func (s *gatedSummarizer) Brief(ctx context.Context, e directory.Employee, _ []directory.Notification) (string, error) {
	<-s.release
	s.mu.Lock()
	s.returned++
	s.mu.Unlock()
	return "Briefing for " + e.FirstName, nil
}

func (s *gatedSummarizer) done() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.returned
}

type harness struct {
	c     *Controller
	clock *clock.FakeClock
	prov  *fakeProvider
	pub   *fakePublisher
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		clock: clock.Fake(start),
		prov:  newFakeProvider(),
		pub:   &fakePublisher{},
	}
	opts := DefaultOptions()
	opts.Provider = h.prov
	opts.Publisher = h.pub
	opts.Clock = h.clock
	opts.Logger = zerolog.Nop()
	for _, m := range mutate {
		m(&opts)
	}
	h.c = NewController(opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// flush waits until everything queued so far has been processed.
func (h *harness) flush() {
	ch := make(chan struct{})
	h.c.post(func() { close(ch) })
	<-ch
}

func (h *harness) card(tag string) {
	h.c.OnEvent(gateway.Event{Kind: gateway.KindRFID, Value: tag})
}

func (h *harness) button(value string) {
	h.c.OnEvent(gateway.Event{Kind: gateway.KindButton, Value: value})
}

func (h *harness) waitPhase(t *testing.T, want Phase) View {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.c.Snapshot().Phase == want
	}, 2*time.Second, 2*time.Millisecond, "phase never became %s", want)
	return h.c.Snapshot()
}

// login scans tag and waits for the dashboard.
func (h *harness) login(t *testing.T, tag string) View {
	t.Helper()
	h.card(tag)
	return h.waitPhase(t, Authenticated)
}
