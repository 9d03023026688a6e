// Package kiosk coordinates one walk-up interaction at a time: wait for a
// card tap, then hand the detected card to the drop-off or pick-up
// operation.
package kiosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"locker-kiosk-service/internal/domain"
	"locker-kiosk-service/internal/logging"
	"locker-kiosk-service/internal/policy"
	"locker-kiosk-service/internal/poll"
	"locker-kiosk-service/internal/relay"
)

// ErrFlowBusy is returned when a flow is begun while another is active.
var ErrFlowBusy = errors.New("a kiosk flow is already in progress")

// ErrUnknownFlow is returned for a kind outside drop-off/pick-up.
var ErrUnknownFlow = errors.New("unknown flow kind")

// Defaults bound a flow's card wait when the request leaves them unset.
type Defaults struct {
	MaxAttempts int
	Interval    time.Duration
}

// BeginRequest carries caller choices for one flow.
type BeginRequest struct {
	WashTypeID  int           `json:"wash_type_id,omitempty"`
	MaxAttempts int           `json:"max_attempts,omitempty"`
	Interval    time.Duration `json:"-"`
}

// Status reports flow progress for kiosk feedback.
type Status struct {
	Kind    domain.FlowKind `json:"flow,omitempty"`
	Session *poll.Snapshot  `json:"session,omitempty"`
	Result  *relay.Result   `json:"result,omitempty"`
}

// Manager owns the single active flow. The busy state lives here, on the
// flow object, not in a free-standing global.
type Manager struct {
	controller *poll.Controller
	relayer    poll.Relayer
	logger     *slog.Logger
	defaults   Defaults

	stateMu sync.Mutex
	kind    domain.FlowKind
	session *poll.Session
	result  *relay.Result
	acting  bool
}

// NewManager constructs a Manager.
func NewManager(controller *poll.Controller, relayer poll.Relayer, logger *slog.Logger, defaults Defaults) *Manager {
	return &Manager{
		controller: controller,
		relayer:    relayer,
		logger:     logger,
		defaults:   defaults,
	}
}

// Begin starts a flow: a poll session whose detection triggers the matching
// backend operation. A second Begin while one flow is active is a caller
// error; after a timeout or cancellation the caller must Begin again
// explicitly.
func (m *Manager) Begin(ctx context.Context, kind domain.FlowKind, req BeginRequest) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownFlow, kind)
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = m.defaults.MaxAttempts
	}
	interval := req.Interval
	if interval <= 0 {
		interval = m.defaults.Interval
	}

	// Reserve the kiosk and start the session under one lock so two
	// concurrent Begins cannot interleave; Start only schedules the first
	// tick, it never blocks. Flow state is mutated only once Start has
	// succeeded, so a losing Begin leaves the winner's state untouched.
	m.stateMu.Lock()
	if m.busyLocked() {
		m.stateMu.Unlock()
		return ErrFlowBusy
	}

	session, err := m.controller.Start(ctx, maxAttempts, interval, func(cardID string) {
		m.completeDetection(kind, req, cardID)
	})
	if err != nil {
		m.stateMu.Unlock()
		if errors.Is(err, poll.ErrBusy) {
			return ErrFlowBusy
		}
		return err
	}

	m.kind = kind
	m.result = nil
	m.session = session
	m.stateMu.Unlock()

	logging.Info(m.logger, "flow started",
		slog.String(logging.FieldFlow, string(kind)),
		slog.Int(logging.FieldAttempts, maxAttempts),
	)
	return nil
}

// Cancel stops the active flow's poll session, if any.
func (m *Manager) Cancel() {
	m.stateMu.Lock()
	session := m.session
	m.stateMu.Unlock()
	if session != nil {
		session.Cancel()
	}
}

// Status returns the current flow state for kiosk feedback.
func (m *Manager) Status() Status {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	st := Status{Kind: m.kind, Result: m.result}
	if m.session != nil {
		snap := m.session.Snapshot()
		st.Session = &snap
	}
	return st
}

func (m *Manager) busyLocked() bool {
	if m.acting {
		return true
	}
	return m.session != nil && m.session.State() == poll.StatePolling
}

// completeDetection runs on the poll tick goroutine, exactly once per
// session, with the consumed card.
func (m *Manager) completeDetection(kind domain.FlowKind, req BeginRequest, cardID string) {
	m.stateMu.Lock()
	m.acting = true
	m.stateMu.Unlock()

	operation, payload := flowOperation(kind, req, cardID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	res := m.relayer.Relay(ctx, operation, payload)

	m.stateMu.Lock()
	m.result = &res
	m.acting = false
	m.stateMu.Unlock()

	if res.Success {
		logging.Info(m.logger, "flow completed",
			slog.String(logging.FieldFlow, string(kind)),
			slog.String(logging.FieldCardID, cardID),
		)
		return
	}
	logging.Warn(m.logger, "flow action failed",
		slog.String(logging.FieldFlow, string(kind)),
		slog.String(logging.FieldCardID, cardID),
		slog.String(logging.FieldErrorCode, string(res.ErrorCode)),
		slog.String(logging.FieldOutcome, res.Message),
	)
}

func flowOperation(kind domain.FlowKind, req BeginRequest, cardID string) (string, json.RawMessage) {
	switch kind {
	case domain.FlowDropOff:
		payload, _ := json.Marshal(map[string]any{
			"card_id":      cardID,
			"wash_type_id": req.WashTypeID,
		})
		return policy.OpDropOff, payload
	default:
		payload, _ := json.Marshal(map[string]any{"card_id": cardID})
		return policy.OpPickUp, payload
	}
}
