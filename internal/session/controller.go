// Package session runs the kiosk's state machine: card login, work
// buttons, feedback and automatic logout.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/clock"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/directory"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/gateway"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultLogoutAfter       = 15 * time.Second
	DefaultActionHold        = 3 * time.Second
	DefaultAuthErrorHold     = 3 * time.Second
	DefaultProviderErrorHold = 3 * time.Second
	DefaultProviderTimeout   = 10 * time.Second
	DefaultBriefingTimeout   = 20 * time.Second
	defaultInboxSize         = 64
)

const (
	msgNotFound      = "employee not found for this card"
	msgProviderError = "data-source connection error"
	msgWorkStarted   = "Work started. Have a productive day!"
	msgWorkStopped   = "Work finished. See you next time!"
	msgWorkLogFailed = "Could not register work time. Please try again."
)

// Publisher sends telemetry to the gateway. Delivery is best effort.
type Publisher interface {
	Publish(msg any)
}

type Options struct {
	Provider   directory.Provider
	Publisher  Publisher
	Summarizer Summarizer // optional; nil always uses FallbackBriefing

	LogoutAfter   time.Duration
	ActionHold    time.Duration
	AuthErrorHold time.Duration
	// ProviderErrorHold ends a session that failed on a data-source error.
	// Zero keeps the error on screen until an explicit logout.
	ProviderErrorHold time.Duration
	ProviderTimeout   time.Duration
	BriefingTimeout   time.Duration

	Clock     clock.Clock
	Logger    zerolog.Logger
	InboxSize int
}

// DefaultOptions returns Options with every duration at its default.
func DefaultOptions() Options {
	return Options{
		LogoutAfter:       DefaultLogoutAfter,
		ActionHold:        DefaultActionHold,
		AuthErrorHold:     DefaultAuthErrorHold,
		ProviderErrorHold: DefaultProviderErrorHold,
		ProviderTimeout:   DefaultProviderTimeout,
		BriefingTimeout:   DefaultBriefingTimeout,
	}
}

// session is the one live login. It is only touched on the controller
// goroutine.
type session struct {
	id            string
	tag           string
	employee      directory.Employee
	notifications []directory.Notification
	briefing      string
	briefPending  bool
	createdAt     time.Time
	timers        *timers
}

// Controller drives the kiosk. Every input is queued onto one goroutine
// (Run), so state changes happen strictly one at a time. Provider and
// summarizer calls run elsewhere and report back through the same queue;
// results for a session that has since ended are discarded.
type Controller struct {
	provider   directory.Provider
	publisher  Publisher
	summarizer Summarizer
	opts       Options
	clock      clock.Clock
	log        zerolog.Logger

	inbox chan func()
	done  chan struct{}
	ctx   context.Context

	// Owned by the Run goroutine.
	phase       Phase
	sess        *session
	feedback    *Feedback
	errMsg      string
	gateway     gateway.Status
	logoutAfter time.Duration
	buttonSeq   uint64
	version     uint64

	mu       sync.RWMutex
	view     View
	watchers map[int]func(View)
	nextID   int
}

func NewController(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	opts.LogoutAfter = orDefault(opts.LogoutAfter, DefaultLogoutAfter)
	opts.ActionHold = orDefault(opts.ActionHold, DefaultActionHold)
	opts.AuthErrorHold = orDefault(opts.AuthErrorHold, DefaultAuthErrorHold)
	opts.ProviderTimeout = orDefault(opts.ProviderTimeout, DefaultProviderTimeout)
	opts.BriefingTimeout = orDefault(opts.BriefingTimeout, DefaultBriefingTimeout)
	if opts.ProviderErrorHold < 0 {
		opts.ProviderErrorHold = 0
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = defaultInboxSize
	}

	return &Controller{
		provider:    opts.Provider,
		publisher:   opts.Publisher,
		summarizer:  opts.Summarizer,
		opts:        opts,
		clock:       opts.Clock,
		log:         opts.Logger.With().Str("component", "session").Logger(),
		inbox:       make(chan func(), opts.InboxSize),
		done:        make(chan struct{}),
		ctx:         context.Background(),
		logoutAfter: opts.LogoutAfter,
		watchers:    make(map[int]func(View)),
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Run processes inputs until ctx is cancelled. Any live session is ended
// without further side effects.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.done)
	c.publishView()
	for {
		select {
		case <-ctx.Done():
			if c.sess != nil {
				c.sess.timers.stop()
			}
			return ctx.Err()
		case fn := <-c.inbox:
			fn()
		}
	}
}

// post queues fn for the Run goroutine. After Run returns it is a no-op.
func (c *Controller) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

// OnEvent queues a normalized gateway event.
func (c *Controller) OnEvent(ev gateway.Event) {
	c.post(func() { c.handleEvent(ev) })
}

// OnTransportStatus records gateway connectivity for the screen.
func (c *Controller) OnTransportStatus(s gateway.Status) {
	c.post(func() {
		c.gateway = s
		c.publishView()
	})
}

// Logout ends the live session, if any.
func (c *Controller) Logout() {
	c.post(func() { c.endSession("explicit") })
}

// SetLogoutAfter changes the inactivity timeout from the next login on.
func (c *Controller) SetLogoutAfter(d time.Duration) {
	if d <= 0 {
		return
	}
	c.post(func() { c.logoutAfter = d })
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view.Clone()
}

// Watch registers fn for every view change. fn runs on the controller
// goroutine and must not block. The returned func removes it.
func (c *Controller) Watch(fn func(View)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

func (c *Controller) handleEvent(ev gateway.Event) {
	switch ev.Kind {
	case gateway.KindRFID:
		c.handleCard(ev.Value)
	case gateway.KindButton:
		c.handleButton(ev.Value)
	}
}

func (c *Controller) handleCard(tag string) {
	if c.sess != nil {
		if c.sess.tag == tag && c.phase != AuthError {
			c.log.Debug().Str("tag", tag).Str("phase", c.phase.String()).Msg("same card while logged in, ignoring")
			return
		}
		c.log.Info().Str("tag", tag).Str("previous", c.sess.tag).Str("phase", c.phase.String()).Msg("card replaces the current session")
		c.endSession("rescan")
	}
	c.startLogin(tag)
}

func (c *Controller) startLogin(tag string) {
	s := &session{
		id:        uuid.NewString(),
		tag:       tag,
		createdAt: c.clock.Now(),
	}
	id := s.id
	s.timers = newTimers(c.clock, func(reason string) {
		c.post(func() { c.expire(id, reason) })
	})
	c.sess = s
	c.feedback = nil
	c.errMsg = ""
	c.setPhase(Authenticating)
	c.log.Info().Str("session", id).Str("tag", tag).Msg("card scanned")

	parent, timeout := c.ctx, c.opts.ProviderTimeout
	go func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		res := c.lookup(ctx, tag)
		c.post(func() { c.loginResult(id, res) })
	}()
}

type loginResult struct {
	employee      directory.Employee
	notifications []directory.Notification
	err           error
}

func (c *Controller) lookup(ctx context.Context, tag string) loginResult {
	e, err := c.provider.EmployeeByTag(ctx, tag)
	if err != nil {
		return loginResult{err: err}
	}
	ns, err := c.provider.Notifications(ctx, e.ID)
	if err != nil {
		return loginResult{err: err}
	}
	return loginResult{employee: e, notifications: ns}
}

func (c *Controller) loginResult(id string, res loginResult) {
	if !c.current(id) || c.phase != Authenticating {
		c.log.Debug().Str("session", id).Msg("discarding stale lookup result")
		return
	}

	switch {
	case errors.Is(res.err, directory.ErrNotFound):
		c.log.Info().Str("tag", c.sess.tag).Msg("unknown card")
		c.errMsg = msgNotFound
		c.sess.timers.armHold(c.opts.AuthErrorHold, "auth_error")
		c.setPhase(AuthError)
		return
	case res.err != nil:
		c.log.Error().Err(res.err).Str("tag", c.sess.tag).Msg("employee lookup failed")
		c.errMsg = msgProviderError
		if c.opts.ProviderErrorHold > 0 {
			c.sess.timers.armHold(c.opts.ProviderErrorHold, "provider_error")
		}
		c.setPhase(AuthError)
		return
	}

	s := c.sess
	s.employee = res.employee.Clone()
	s.notifications = res.notifications
	s.timers.armAutoLogout(c.logoutAfter)
	c.log.Info().
		Str("session", id).
		Str("employee", s.employee.ID).
		Int("notifications", len(s.notifications)).
		Msg("employee logged in")

	if c.summarizer == nil {
		s.briefing = FallbackBriefing(s.employee, s.notifications)
	} else {
		s.briefPending = true
		c.requestBriefing(id, s.employee.Clone(), append([]directory.Notification(nil), s.notifications...))
	}
	c.setPhase(Authenticated)
}

func (c *Controller) requestBriefing(id string, e directory.Employee, ns []directory.Notification) {
	parent, timeout := c.ctx, c.opts.BriefingTimeout
	go func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		text, err := c.summarizer.Brief(ctx, e, ns)
		c.post(func() { c.briefingResult(id, text, err) })
	}()
}

func (c *Controller) briefingResult(id, text string, err error) {
	if !c.current(id) {
		return
	}
	s := c.sess
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err != nil {
			c.log.Warn().Err(err).Msg("briefing failed, using fallback")
		}
		text = FallbackBriefing(s.employee, s.notifications)
	}
	s.briefing = text
	s.briefPending = false
	c.publishView()
}

func (c *Controller) handleButton(value string) {
	var status directory.WorkStatus
	switch value {
	case gateway.ButtonGreen:
		status = directory.WorkActive
	case gateway.ButtonRed:
		status = directory.WorkInactive
	default:
		c.log.Debug().Str("button", value).Msg("unknown button, ignoring")
		return
	}
	if !c.phase.acceptsButtons() {
		c.log.Debug().Str("button", value).Str("phase", c.phase.String()).Msg("button ignored")
		return
	}

	c.buttonSeq++
	token := ButtonToken{Button: value, Seq: c.buttonSeq}
	id, employee := c.sess.id, c.sess.employee.Clone()
	parent, timeout := c.ctx, c.opts.ProviderTimeout
	c.log.Info().Str("button", value).Uint64("seq", token.Seq).Str("employee", employee.ID).Msg("button pressed")

	go func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		err := c.provider.WriteWorkLog(ctx, employee.ID, status)
		c.post(func() { c.workLogResult(id, token, employee, status, err) })
	}()
}

// workLogResult applies a finished work-log write. A write that succeeds
// after its session has ended is still announced to the gateway, but the
// screen is left alone.
func (c *Controller) workLogResult(id string, token ButtonToken, employee directory.Employee, status directory.WorkStatus, err error) {
	if !c.current(id) || !c.phase.acceptsButtons() {
		if err == nil {
			c.log.Info().Uint64("seq", token.Seq).Str("employee", employee.ID).Msg("work log confirmed after session ended")
			c.announce(employee, status, c.clock.Now())
		} else {
			c.log.Debug().Uint64("seq", token.Seq).Msg("discarding stale work log result")
		}
		return
	}
	s := c.sess

	if err != nil {
		c.log.Error().Err(err).Uint64("seq", token.Seq).Str("employee", s.employee.ID).Msg("work log write failed")
		c.feedback = &Feedback{Kind: FeedbackError, Message: msgWorkLogFailed}
		s.timers.armHold(c.opts.ActionHold, "action")
		c.setPhase(ActionFeedback)
		return
	}

	now := c.clock.Now()
	action := c.announce(s.employee, status, now)
	feedback := Feedback{Kind: FeedbackSuccess, Message: msgWorkStarted}
	if status == directory.WorkInactive {
		feedback = Feedback{Kind: FeedbackLogout, Message: msgWorkStopped}
	}

	s.employee.WorkStatus = status
	s.employee.LastWorkAction = &now
	c.feedback = &feedback
	s.timers.armHold(c.opts.ActionHold, "action")
	c.log.Info().Str("employee", s.employee.ID).Str("action", string(action)).Uint64("seq", token.Seq).Msg("work time registered")
	c.setPhase(ActionFeedback)
}

// announce publishes attendance telemetry for a confirmed work-log write.
func (c *Controller) announce(e directory.Employee, status directory.WorkStatus, at time.Time) gateway.Action {
	action := gateway.ActionStartWork
	if status == directory.WorkInactive {
		action = gateway.ActionStopWork
	}
	if c.publisher != nil {
		c.publisher.Publish(gateway.Message{
			Topic: gateway.TopicAttendance,
			Payload: gateway.AttendancePayload{
				EmployeeID:   e.ID,
				EmployeeName: e.FullName(),
				Department:   e.Department,
				Action:       action,
				Timestamp:    gateway.FormatTimestamp(at),
			},
		})
	}
	return action
}

// expire handles a timer firing for session id.
func (c *Controller) expire(id, reason string) {
	if !c.current(id) {
		return
	}
	c.endSession(reason)
}

func (c *Controller) endSession(reason string) {
	if c.sess == nil {
		return
	}
	c.sess.timers.stop()
	c.log.Info().Str("session", c.sess.id).Str("reason", reason).Msg("session ended")
	c.sess = nil
	c.feedback = nil
	c.errMsg = ""
	c.setPhase(Idle)
}

func (c *Controller) current(id string) bool {
	return c.sess != nil && c.sess.id == id
}

func (c *Controller) setPhase(next Phase) {
	if !c.phase.CanMoveTo(next) {
		c.log.Error().Str("from", c.phase.String()).Str("to", next.String()).Msg("illegal phase transition")
		return
	}
	if next != c.phase {
		c.log.Debug().Str("from", c.phase.String()).Str("to", next.String()).Msg("phase")
	}
	c.phase = next
	c.publishView()
}

// publishView rebuilds the shared snapshot and notifies watchers.
func (c *Controller) publishView() {
	c.version++
	v := View{
		Phase:    c.phase,
		Error:    c.errMsg,
		Gateway:  c.gateway,
		Version:  c.version,
		Feedback: c.feedback,
	}
	if s := c.sess; s != nil {
		v.SessionID = s.id
		v.Tag = s.tag
		v.LogoutAt = s.timers.logoutAt()
		if c.phase == Authenticated || c.phase == ActionFeedback {
			e := s.employee
			v.Employee = &e
			v.Notifications = s.notifications
			v.Briefing = s.briefing
			v.BriefingPending = s.briefPending
		}
	}
	v = v.Clone()

	c.mu.Lock()
	c.view = v
	watchers := make([]func(View), 0, len(c.watchers))
	for _, fn := range c.watchers {
		watchers = append(watchers, fn)
	}
	c.mu.Unlock()

	for _, fn := range watchers {
		fn(v.Clone())
	}
}
