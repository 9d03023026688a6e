// Package poll waits for an asynchronous card tap by issuing bounded,
// cancellable read-card checks on a fixed tick interval. Ticks never
// overlap: the next tick is scheduled only after the current one resolves,
// and each tick's backend deadline is strictly shorter than the interval.
package poll

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"locker-kiosk-service/internal/logging"
	"locker-kiosk-service/internal/metrics"
	"locker-kiosk-service/internal/policy"
	"locker-kiosk-service/internal/relay"
)

const (
	// Tick deadlines are a fraction of the interval so at most one backend
	// call is ever outstanding; a slow call cannot cause ticks to stack.
	tickTimeoutFraction = 0.8
	minTickTimeout      = 50 * time.Millisecond
	ackTimeout          = 5 * time.Second
)

// ErrBusy is returned when a session is started while another is polling.
var ErrBusy = errors.New("poll session already active")

// ErrInvalidSession is returned for a non-positive budget or interval.
var ErrInvalidSession = errors.New("maxAttempts and interval must be positive")

// Relayer issues logical operations; satisfied by *relay.Gateway.
type Relayer interface {
	Relay(ctx context.Context, operation string, payload json.RawMessage) relay.Result
}

// Controller runs at most one poll session at a time.
type Controller struct {
	relayer   Relayer
	logger    *slog.Logger
	metrics   *metrics.Recorder
	scheduler Scheduler
	now       func() time.Time

	mu     sync.Mutex
	active *Session
}

// NewController constructs a Controller. A nil scheduler gets the
// timer-backed default.
func NewController(relayer Relayer, logger *slog.Logger, recorder *metrics.Recorder, scheduler Scheduler) *Controller {
	if scheduler == nil {
		scheduler = NewTimerScheduler()
	}
	return &Controller{
		relayer:   relayer,
		logger:    logger,
		metrics:   recorder,
		scheduler: scheduler,
		now:       time.Now,
	}
}

// Start begins a new session and returns it as the cancellation handle. It
// rejects a start while a previous session is still polling; a session that
// timed out or was cancelled must be restarted explicitly this way, never
// automatically. onDetected is invoked exactly once, on the tick goroutine,
// when a card event is consumed.
func (c *Controller) Start(ctx context.Context, maxAttempts int, interval time.Duration, onDetected func(cardID string)) (*Session, error) {
	if maxAttempts < 1 || interval <= 0 {
		return nil, ErrInvalidSession
	}
	if c.relayer == nil {
		return nil, errors.New("no relayer configured")
	}

	c.mu.Lock()
	if c.active != nil && c.active.State() == StatePolling {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	session := &Session{
		state:       StatePolling,
		maxAttempts: maxAttempts,
		interval:    interval,
	}
	c.active = session
	c.mu.Unlock()

	logging.Info(c.logger, "poll session started",
		slog.Int(logging.FieldAttempts, maxAttempts),
		slog.Int64(logging.FieldDurationMS, interval.Milliseconds()),
	)

	c.scheduleNext(ctx, session, onDetected)
	return session, nil
}

// Active returns the most recent session, which may have terminated.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) scheduleNext(ctx context.Context, s *Session, onDetected func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || s.state != StatePolling {
		return
	}
	s.pending = c.scheduler.Schedule(s.interval, func() {
		c.tick(ctx, s, onDetected)
	})
}

func (c *Controller) tick(ctx context.Context, s *Session, onDetected func(string)) {
	if !s.beginTick() {
		return
	}

	tickCtx, cancel := context.WithTimeout(ctx, tickTimeout(s.interval))
	started := c.now()
	res := c.relayer.Relay(tickCtx, policy.OpReadCard, nil)
	cancel()

	c.metrics.RecordPollTick(c.now().Sub(started), res.Detected())

	fire, cardID := s.applyResult(res)
	if fire {
		logging.Info(c.logger, "card detected",
			slog.String(logging.FieldCardID, cardID),
			slog.Int(logging.FieldAttempts, s.Attempts()),
		)
		onDetected(cardID)
		go c.acknowledge(cardID)
		return
	}

	state := s.State()
	switch state {
	case StatePolling:
		c.scheduleNext(ctx, s, onDetected)
	case StateTimedOut:
		c.metrics.RecordPollTimeout()
		logging.Info(c.logger, "poll session timed out",
			slog.Int(logging.FieldAttempts, s.Attempts()),
		)
	}
}

// beginTick consumes one attempt. It refuses ticks for sessions that were
// cancelled or terminated while this tick sat in the scheduler.
func (s *Session) beginTick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || s.state != StatePolling {
		return false
	}
	s.pending = nil
	s.attempts++
	return true
}

// applyResult folds a resolved tick into the session. Cancellation is
// re-checked here: a late-arriving detection for a cancelled session is
// dropped without firing the callback or touching state.
func (s *Session) applyResult(res relay.Result) (fire bool, cardID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled || s.state != StatePolling {
		return false, ""
	}

	if res.Detected() {
		s.state = StateDetected
		s.cardID = res.Card.CardID
		return true, res.Card.CardID
	}

	if res.ErrorCode != "" {
		s.lastCode = res.ErrorCode
	} else if res.Benign() {
		// The backend answered; any earlier transport trouble is stale.
		s.lastCode = ""
	}

	if s.attempts >= s.maxAttempts {
		s.state = StateTimedOut
	}
	return false, ""
}

// acknowledge clears the backend's event queue after a consumed detection.
// Best effort only: the backend gives no redelivery guarantee either way, so
// a failed ack is logged and accepted as a known duplicate-detection risk.
func (c *Controller) acknowledge(cardID string) {
	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()

	res := c.relayer.Relay(ctx, policy.OpClearEventQueue, nil)
	if !res.Success {
		logging.Warn(c.logger, "event ack failed",
			slog.String(logging.FieldCardID, cardID),
			slog.String(logging.FieldErrorCode, string(res.ErrorCode)),
			slog.String(logging.FieldOutcome, res.Message),
		)
	}
}

// tickTimeout keeps each tick's deadline strictly shorter than the interval.
// The floor guards against uselessly small deadlines but never wins when it
// would reach the interval itself.
func tickTimeout(interval time.Duration) time.Duration {
	timeout := time.Duration(float64(interval) * tickTimeoutFraction)
	if timeout < minTickTimeout && minTickTimeout < interval {
		timeout = minTickTimeout
	}
	return timeout
}
