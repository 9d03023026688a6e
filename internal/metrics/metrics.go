package metrics

import (
	"sync"
	"time"
)

type operationStats struct {
	attempts    int
	errors      int
	lastLatency time.Duration
}

type pollStats struct {
	ticks      int
	detections int
	timeouts   int
}

type httpStats struct {
	requests int
}

// Recorder captures lightweight, in-memory metrics about relay dispatches
// and poll sessions. It is intentionally simple so tests can assert against
// it directly; otel instruments hang off it when telemetry is enabled.
type Recorder struct {
	mu    sync.Mutex
	stats map[string]*operationStats
	poll  pollStats
	http  httpStats
	otel  *otelInstruments
}

func NewRecorder() *Recorder {
	return newRecorder(nil)
}

func newRecorder(otel *otelInstruments) *Recorder {
	return &Recorder{
		stats: make(map[string]*operationStats),
		otel:  otel,
	}
}

// RecordRelayAttempt counts one dispatch attempt for an operation and stores
// its latency. outcome is the classified result of the attempt.
func (r *Recorder) RecordRelayAttempt(operation, outcome string, duration time.Duration, failed bool) {
	if r == nil {
		return
	}

	r.mu.Lock()
	stats := r.stats[operation]
	if stats == nil {
		stats = &operationStats{}
		r.stats[operation] = stats
	}
	stats.attempts++
	stats.lastLatency = duration
	if failed {
		stats.errors++
	}
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordRelayAttempt(operation, outcome, duration, failed)
	}
}

// RecordPollTick counts one poll tick and its outcome.
func (r *Recorder) RecordPollTick(duration time.Duration, detected bool) {
	if r == nil {
		return
	}

	r.mu.Lock()
	r.poll.ticks++
	if detected {
		r.poll.detections++
	}
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordPollTick(duration, detected)
	}
}

// RecordPollTimeout counts a session that exhausted its budget undetected.
func (r *Recorder) RecordPollTimeout() {
	if r == nil {
		return
	}

	r.mu.Lock()
	r.poll.timeouts++
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordPollTimeout()
	}
}

// RecordHTTPRequest tracks basic HTTP metrics.
func (r *Recorder) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if r == nil {
		return
	}

	r.mu.Lock()
	r.http.requests++
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordHTTPRequest(method, path, status, duration)
	}
}

// OperationSnapshot is a copy of the current stats for one operation.
type OperationSnapshot struct {
	Attempts    int
	Errors      int
	LastLatency time.Duration
}

func (r *Recorder) Operation(name string) OperationSnapshot {
	if r == nil {
		return OperationSnapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := r.stats[name]
	if stats == nil {
		return OperationSnapshot{}
	}
	return OperationSnapshot{
		Attempts:    stats.attempts,
		Errors:      stats.errors,
		LastLatency: stats.lastLatency,
	}
}

// PollSnapshot is a copy of the aggregate poll counters.
type PollSnapshot struct {
	Ticks      int
	Detections int
	Timeouts   int
}

func (r *Recorder) Poll() PollSnapshot {
	if r == nil {
		return PollSnapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return PollSnapshot{
		Ticks:      r.poll.ticks,
		Detections: r.poll.detections,
		Timeouts:   r.poll.timeouts,
	}
}

// HTTPSnapshot is a copy of the aggregate HTTP counters.
type HTTPSnapshot struct {
	Requests int
}

func (r *Recorder) HTTP() HTTPSnapshot {
	if r == nil {
		return HTTPSnapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return HTTPSnapshot{Requests: r.http.requests}
}
