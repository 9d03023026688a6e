package kiosk

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"locker-kiosk-service/internal/domain"
	"locker-kiosk-service/internal/metrics"
	"locker-kiosk-service/internal/policy"
	"locker-kiosk-service/internal/poll"
	"locker-kiosk-service/internal/relay"
)

// flowScheduler runs scheduled ticks synchronously via Fire.
type flowScheduler struct {
	mu    sync.Mutex
	queue []*flowHandle
}

type flowHandle struct {
	fn        func()
	cancelled bool
}

func (h *flowHandle) Cancel() { h.cancelled = true }

func (s *flowScheduler) Schedule(d time.Duration, fn func()) poll.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &flowHandle{fn: fn}
	s.queue = append(s.queue, h)
	return h
}

func (s *flowScheduler) Fire() bool {
	s.mu.Lock()
	var h *flowHandle
	for len(s.queue) > 0 {
		candidate := s.queue[0]
		s.queue = s.queue[1:]
		if !candidate.cancelled {
			h = candidate
			break
		}
	}
	s.mu.Unlock()
	if h == nil {
		return false
	}
	h.fn()
	return true
}

// flowRelayer scripts read-card results and records flow operations.
type flowRelayer struct {
	mu        sync.Mutex
	readCard  []relay.Result
	reads     int
	flowOps   []string
	payloads  []json.RawMessage
	flowRes   relay.Result
	ackCalled bool
}

func (f *flowRelayer) Relay(ctx context.Context, operation string, payload json.RawMessage) relay.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch operation {
	case policy.OpReadCard:
		idx := f.reads
		f.reads++
		if idx >= len(f.readCard) {
			idx = len(f.readCard) - 1
		}
		return f.readCard[idx]
	case policy.OpClearEventQueue:
		f.ackCalled = true
		return relay.Result{Success: true, Message: "ok"}
	default:
		f.flowOps = append(f.flowOps, operation)
		f.payloads = append(f.payloads, payload)
		return f.flowRes
	}
}

func (f *flowRelayer) snapshot() ([]string, []json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.flowOps...), append([]json.RawMessage(nil), f.payloads...)
}

func newFlowFixture(readCard []relay.Result, flowRes relay.Result) (*Manager, *flowScheduler, *flowRelayer) {
	relayer := &flowRelayer{readCard: readCard, flowRes: flowRes}
	sched := &flowScheduler{}
	controller := poll.NewController(relayer, nil, metrics.NewRecorder(), sched)
	manager := NewManager(controller, relayer, nil, Defaults{MaxAttempts: 3, Interval: time.Second})
	return manager, sched, relayer
}

func noCard() relay.Result {
	return relay.Result{Success: false, Message: "no card recently read"}
}

func cardTap(cardID string) relay.Result {
	return relay.Result{Success: true, Message: "ok", Card: &domain.Card{CardID: cardID}}
}

func TestDropOffDetectionTriggersBackendOperation(t *testing.T) {
	manager, sched, relayer := newFlowFixture(
		[]relay.Result{noCard(), cardTap("584190289877")},
		relay.Result{Success: true, Message: "Locker 3 assigned"},
	)

	err := manager.Begin(context.Background(), domain.FlowDropOff, BeginRequest{WashTypeID: 2})
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	for sched.Fire() {
	}

	ops, payloads := relayer.snapshot()
	if len(ops) != 1 || ops[0] != policy.OpDropOff {
		t.Fatalf("expected one drop-off operation, got %v", ops)
	}

	var sent map[string]any
	if err := json.Unmarshal(payloads[0], &sent); err != nil {
		t.Fatalf("flow payload is not valid JSON: %v", err)
	}
	if sent["card_id"] != "584190289877" {
		t.Fatalf("expected detected card in payload, got %v", sent["card_id"])
	}
	if sent["wash_type_id"] != float64(2) {
		t.Fatalf("expected wash type in payload, got %v", sent["wash_type_id"])
	}

	st := manager.Status()
	if st.Result == nil || !st.Result.Success {
		t.Fatalf("expected a stored success result, got %+v", st.Result)
	}
	if st.Kind != domain.FlowDropOff {
		t.Fatalf("unexpected flow kind %q", st.Kind)
	}
}

func TestPickUpPayloadOmitsWashType(t *testing.T) {
	manager, sched, relayer := newFlowFixture(
		[]relay.Result{cardTap("42")},
		relay.Result{Success: true, Message: "Locker opened"},
	)

	if err := manager.Begin(context.Background(), domain.FlowPickUp, BeginRequest{}); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	for sched.Fire() {
	}

	ops, payloads := relayer.snapshot()
	if len(ops) != 1 || ops[0] != policy.OpPickUp {
		t.Fatalf("expected one pick-up operation, got %v", ops)
	}
	var sent map[string]any
	if err := json.Unmarshal(payloads[0], &sent); err != nil {
		t.Fatalf("flow payload is not valid JSON: %v", err)
	}
	if sent["card_id"] != "42" {
		t.Fatalf("expected card in payload, got %v", sent["card_id"])
	}
	if _, ok := sent["wash_type_id"]; ok {
		t.Fatal("pick-up must not carry a wash type")
	}
}

func TestConcurrentBeginsAgreeOnWinner(t *testing.T) {
	kinds := []domain.FlowKind{domain.FlowDropOff, domain.FlowPickUp}

	for i := 0; i < 200; i++ {
		manager, _, _ := newFlowFixture([]relay.Result{noCard()}, relay.Result{})

		var wg sync.WaitGroup
		errs := make([]error, len(kinds))
		start := make(chan struct{})
		for j, kind := range kinds {
			wg.Add(1)
			go func(j int, kind domain.FlowKind) {
				defer wg.Done()
				<-start
				errs[j] = manager.Begin(context.Background(), kind, BeginRequest{})
			}(j, kind)
		}
		close(start)
		wg.Wait()

		var winner domain.FlowKind
		won := 0
		for j, err := range errs {
			switch err {
			case nil:
				won++
				winner = kinds[j]
			case ErrFlowBusy:
			default:
				t.Fatalf("iteration %d: unexpected error %v", i, err)
			}
		}
		if won != 1 {
			t.Fatalf("iteration %d: expected exactly one Begin to win, got %d", i, won)
		}
		if got := manager.Status().Kind; got != winner {
			t.Fatalf("iteration %d: %q won but status reports %q", i, winner, got)
		}
	}
}

func TestBeginRejectsUnknownKind(t *testing.T) {
	manager, _, _ := newFlowFixture([]relay.Result{noCard()}, relay.Result{})

	if err := manager.Begin(context.Background(), domain.FlowKind("refund"), BeginRequest{}); err == nil {
		t.Fatal("expected an error for an unknown flow kind")
	}
}

func TestSecondBeginWhileWaitingIsBusy(t *testing.T) {
	manager, _, _ := newFlowFixture([]relay.Result{noCard()}, relay.Result{})

	if err := manager.Begin(context.Background(), domain.FlowDropOff, BeginRequest{}); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := manager.Begin(context.Background(), domain.FlowPickUp, BeginRequest{}); err != ErrFlowBusy {
		t.Fatalf("expected ErrFlowBusy, got %v", err)
	}
}

func TestCancelFreesTheKiosk(t *testing.T) {
	manager, sched, _ := newFlowFixture([]relay.Result{noCard()}, relay.Result{})

	if err := manager.Begin(context.Background(), domain.FlowDropOff, BeginRequest{}); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	manager.Cancel()

	st := manager.Status()
	if st.Session == nil || st.Session.State != poll.StateCancelled {
		t.Fatalf("expected a cancelled session, got %+v", st.Session)
	}
	if sched.Fire() {
		t.Fatal("no tick may run after cancellation")
	}

	if err := manager.Begin(context.Background(), domain.FlowPickUp, BeginRequest{}); err != nil {
		t.Fatalf("begin after cancel must be allowed: %v", err)
	}
}

func TestTimedOutFlowAllowsRestart(t *testing.T) {
	manager, sched, relayer := newFlowFixture([]relay.Result{noCard()}, relay.Result{})

	if err := manager.Begin(context.Background(), domain.FlowDropOff, BeginRequest{MaxAttempts: 2}); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	for sched.Fire() {
	}

	st := manager.Status()
	if st.Session == nil || st.Session.State != poll.StateTimedOut {
		t.Fatalf("expected a timed out session, got %+v", st.Session)
	}
	ops, _ := relayer.snapshot()
	if len(ops) != 0 {
		t.Fatalf("no flow operation may fire without a detection, got %v", ops)
	}

	if err := manager.Begin(context.Background(), domain.FlowDropOff, BeginRequest{}); err != nil {
		t.Fatalf("begin after timeout must be allowed: %v", err)
	}
}

func TestFailedFlowActionIsReported(t *testing.T) {
	manager, sched, _ := newFlowFixture(
		[]relay.Result{cardTap("42")},
		relay.Result{Success: false, Status: 404, Message: "No active session found for this card", ErrorCode: relay.CodeUpstreamClient},
	)

	if err := manager.Begin(context.Background(), domain.FlowPickUp, BeginRequest{}); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	for sched.Fire() {
	}

	st := manager.Status()
	if st.Result == nil || st.Result.Success {
		t.Fatalf("expected a stored failure result, got %+v", st.Result)
	}
	if st.Result.Message != "No active session found for this card" {
		t.Fatalf("backend message must pass through, got %q", st.Result.Message)
	}
}

func TestDefaultsFillUnsetBounds(t *testing.T) {
	manager, sched, _ := newFlowFixture([]relay.Result{noCard()}, relay.Result{})

	if err := manager.Begin(context.Background(), domain.FlowDropOff, BeginRequest{}); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	ticks := 0
	for sched.Fire() {
		ticks++
	}
	if ticks != 3 {
		t.Fatalf("expected the default attempt budget of 3, got %d ticks", ticks)
	}
}
