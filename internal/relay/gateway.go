// Package relay executes logical operations against the hardware-control
// backend under per-operation timeout and retry policies, and normalizes
// every outcome into a uniform result envelope.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"locker-kiosk-service/internal/domain"
	"locker-kiosk-service/internal/logging"
	"locker-kiosk-service/internal/metrics"
	"locker-kiosk-service/internal/policy"
)

const maxBodyBytes = 1 << 20

// Config controls how the gateway reaches the hardware-control backend.
type Config struct {
	Table      *policy.Table
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
}

// Gateway dispatches logical operations against the backend. Attempts within
// one invocation are strictly sequential: a parallel retry could trigger the
// same physical actuation twice.
type Gateway struct {
	table      *policy.Table
	baseURL    string
	apiKey     string
	httpClient httpDoer
	logger     *slog.Logger
	metrics    *metrics.Recorder
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	newID      func() string

	cacheMu   sync.Mutex
	washTypes any
}

// New constructs a Gateway with the provided configuration.
func New(cfg Config) *Gateway {
	table := cfg.Table
	if table == nil {
		table = policy.Default()
	}
	return &Gateway{
		table:      table,
		baseURL:    normalizeBaseURL(cfg.BaseURL),
		apiKey:     cfg.APIKey,
		httpClient: resolveHTTPClient(cfg.HTTPClient),
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		now:        time.Now,
		sleep:      sleepContext,
		newID:      uuid.NewString,
	}
}

// Relay executes one logical operation under its policy and returns a
// definitive result. It never returns a partially filled Result.
func (g *Gateway) Relay(ctx context.Context, operation string, payload json.RawMessage) Result {
	start := g.now()
	correlationID := g.newID()

	pol, ok := g.table.Lookup(operation)
	if !ok {
		return Result{
			Status:        http.StatusNotFound,
			Message:       fmt.Sprintf("unknown operation %q", operation),
			ErrorCode:     CodeUnknownOperation,
			CorrelationID: correlationID,
		}
	}

	body, badReq := prepareBody(pol, payload)
	if badReq != "" {
		return Result{
			Status:        http.StatusBadRequest,
			Message:       badReq,
			ErrorCode:     CodeBadRequest,
			AttemptsUsed:  0,
			CorrelationID: correlationID,
		}
	}

	logger := logging.FromContext(ctx, g.logger)

	var last attemptOutcome
	for attempt := 1; attempt <= pol.MaxAttempts; attempt++ {
		out := g.dispatch(ctx, pol, body, correlationID)
		g.observeAttempt(logger, pol.Name, attempt, out)

		if out.code == "" {
			return g.normalizeSuccess(pol.Name, out, attempt, correlationID, start)
		}
		if out.code == CodeUpstreamClient {
			// 4xx is terminal: the request itself is wrong and retrying it
			// would only delay the person at the kiosk.
			return Result{
				Status:        out.status,
				Message:       terminalMessage(out),
				ErrorCode:     CodeUpstreamClient,
				AttemptsUsed:  attempt,
				ElapsedMS:     g.now().Sub(start).Milliseconds(),
				CorrelationID: correlationID,
			}
		}

		last = out
		if attempt == pol.MaxAttempts {
			break
		}
		// Fixed delay, not exponential: a person is standing in front of
		// the kiosk, so worst-case latency stays bounded.
		if err := g.sleep(ctx, pol.RetryDelay); err != nil {
			return Result{
				Message:       fmt.Sprintf("cancelled while retrying: %s", err),
				ErrorCode:     last.code,
				AttemptsUsed:  attempt,
				ElapsedMS:     g.now().Sub(start).Milliseconds(),
				CorrelationID: correlationID,
			}
		}
	}

	return g.exhausted(logger, pol, last, correlationID, start)
}

// Table exposes the immutable policy table (primarily for the HTTP layer).
func (g *Gateway) Table() *policy.Table {
	return g.table
}

type attemptOutcome struct {
	code     ErrorCode // empty on 2xx
	status   int
	env      domain.Envelope
	raw      any
	isObject bool
	err      error
	duration time.Duration
}

func (g *Gateway) dispatch(ctx context.Context, pol policy.Policy, body []byte, correlationID string) attemptOutcome {
	attemptCtx, cancel := context.WithTimeout(ctx, pol.Timeout)
	defer cancel()

	started := g.now()

	req, err := g.buildRequest(attemptCtx, pol.Method, pol.Path, body, correlationID)
	if err != nil {
		return attemptOutcome{code: CodeConnectFailed, err: err, duration: g.now().Sub(started)}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return attemptOutcome{code: classifyTransportError(err), err: err, duration: g.now().Sub(started)}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	duration := g.now().Sub(started)

	out := attemptOutcome{status: resp.StatusCode, duration: duration}

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		if readErr != nil {
			out.code = CodeConnectFailed
			out.err = readErr
			return out
		}
		out.raw, out.env, out.isObject = decodeBody(raw)
		return out
	case retryableStatus(resp.StatusCode):
		out.code = CodeUpstreamServer
	default:
		out.code = CodeUpstreamClient
	}

	if readErr == nil {
		out.raw, out.env, out.isObject = decodeBody(raw)
	}
	return out
}

func decodeBody(raw []byte) (any, domain.Envelope, bool) {
	if len(raw) == 0 {
		return nil, domain.Envelope{}, false
	}

	env, err := domain.ParseEnvelope(raw)
	if err == nil {
		return objectValue(raw), env, true
	}

	var val any
	if json.Unmarshal(raw, &val) == nil {
		return val, domain.Envelope{}, false
	}
	return nil, domain.Envelope{}, false
}

func objectValue(raw []byte) map[string]any {
	var m map[string]any
	if json.Unmarshal(raw, &m) != nil {
		return nil
	}
	return m
}

func (g *Gateway) exhausted(logger *slog.Logger, pol policy.Policy, last attemptOutcome, correlationID string, start time.Time) Result {
	if pol.Name == policy.OpWashTypes {
		if cached := g.cachedWashTypes(); cached != nil {
			logging.Warn(logger, "serving cached wash types after exhausted retries",
				slog.String(logging.FieldOperation, pol.Name),
				slog.String(logging.FieldErrorCode, string(last.code)),
			)
			return Result{
				Success:       true,
				Message:       "wash types served from cache; backend unreachable",
				Payload:       cached,
				AttemptsUsed:  pol.MaxAttempts,
				ElapsedMS:     g.now().Sub(start).Milliseconds(),
				CorrelationID: correlationID,
			}
		}
	}

	return Result{
		Status:        last.status,
		Message:       fmt.Sprintf("retries exhausted after %d attempts: %s", pol.MaxAttempts, exhaustionCause(last)),
		ErrorCode:     last.code,
		AttemptsUsed:  pol.MaxAttempts,
		ElapsedMS:     g.now().Sub(start).Milliseconds(),
		CorrelationID: correlationID,
	}
}

func exhaustionCause(last attemptOutcome) string {
	if last.err != nil {
		return last.err.Error()
	}
	if last.env.Message != "" {
		return last.env.Message
	}
	if last.status != 0 {
		return fmt.Sprintf("backend returned %d", last.status)
	}
	return string(last.code)
}

func terminalMessage(out attemptOutcome) string {
	if out.env.Message != "" {
		return out.env.Message
	}
	return fmt.Sprintf("backend rejected request with %d", out.status)
}

// prepareBody validates the caller payload before any backend contact. A
// write-style payload must be a JSON object or absent; anything else is a
// local bad-request. GET operations never carry a body.
func prepareBody(pol policy.Policy, payload json.RawMessage) ([]byte, string) {
	if pol.Method != http.MethodPost {
		return nil, ""
	}
	if len(payload) == 0 {
		return nil, ""
	}
	if !json.Valid(payload) {
		return nil, "payload is not valid JSON"
	}
	trimmed := firstByte(payload)
	if trimmed != '{' {
		return nil, "payload must be a JSON object"
	}
	return payload, ""
}

func firstByte(raw json.RawMessage) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

func (g *Gateway) observeAttempt(logger *slog.Logger, operation string, attempt int, out attemptOutcome) {
	outcome := "success"
	failed := false
	if out.code != "" {
		outcome = string(out.code)
		failed = true
	}

	g.metrics.RecordRelayAttempt(operation, outcome, out.duration, failed)

	// Observational only; never feeds back into the dispatch loop.
	logging.Info(logger, "relay attempt",
		slog.String(logging.FieldOperation, operation),
		slog.Int(logging.FieldAttempt, attempt),
		slog.String(logging.FieldOutcome, outcome),
		slog.Int64(logging.FieldDurationMS, out.duration.Milliseconds()),
	)
}

func (g *Gateway) cachedWashTypes() any {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	return g.washTypes
}

func (g *Gateway) storeWashTypes(payload any) {
	if payload == nil {
		return
	}
	g.cacheMu.Lock()
	g.washTypes = payload
	g.cacheMu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
