package poll

import (
	"sync"
	"time"

	"locker-kiosk-service/internal/relay"
)

// State is a poll session's lifecycle position.
type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateDetected  State = "detected"
	StateTimedOut  State = "timed-out"
	StateCancelled State = "cancelled"
	StateError     State = "error"
)

// Terminal reports whether no further ticks can occur from this state.
func (s State) Terminal() bool {
	switch s {
	case StateDetected, StateTimedOut, StateCancelled, StateError:
		return true
	}
	return false
}

// Session is one bounded, cancellable run of card-detection checks. All
// fields are guarded by mu; ticks and Cancel may race, and a tick result is
// only ever applied while the session is still Polling.
type Session struct {
	mu          sync.Mutex
	state       State
	attempts    int
	maxAttempts int
	interval    time.Duration
	cancelled   bool
	pending     Handle
	lastCode    relay.ErrorCode
	cardID      string
}

// Snapshot is a point-in-time copy of session progress for kiosk feedback.
type Snapshot struct {
	State       State   `json:"state"`
	Attempts    int     `json:"attempts"`
	MaxAttempts int     `json:"max_attempts"`
	Progress    float64 `json:"progress"`
	Message     string  `json:"message"`
	CardID      string  `json:"card_id,omitempty"`
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns how many ticks have been issued so far.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Progress is attempts/maxAttempts; monotonically non-decreasing.
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *Session) progressLocked() float64 {
	if s.maxAttempts <= 0 {
		return 0
	}
	return float64(s.attempts) / float64(s.maxAttempts)
}

// Cancel stops the session: the next tick is never scheduled and any tick
// already in flight has its result dropped. Safe to call more than once and
// after the session has already terminated.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelled = true
	if s.state == StatePolling {
		s.state = StateCancelled
	}
	if s.pending != nil {
		s.pending.Cancel()
		s.pending = nil
	}
}

// Snapshot returns a copy of the session's progress and user-facing message.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:       s.state,
		Attempts:    s.attempts,
		MaxAttempts: s.maxAttempts,
		Progress:    s.progressLocked(),
		Message:     s.messageLocked(),
		CardID:      s.cardID,
	}
}

// messageLocked maps the session outcome to kiosk-facing text. Raw error
// codes never reach the user; a backend that answered "nothing queued yet"
// reads differently from one that could not be reached at all.
func (s *Session) messageLocked() string {
	switch s.state {
	case StatePolling:
		return "hold your card to the reader"
	case StateDetected:
		return "card detected"
	case StateCancelled:
		return "cancelled"
	case StateTimedOut:
		if s.lastCode != "" {
			return "connection issue while waiting for a card; please try again"
		}
		return "no card detected; tap your card and try again"
	case StateError:
		return "card reader unavailable; please ask for assistance"
	}
	return "ready"
}
