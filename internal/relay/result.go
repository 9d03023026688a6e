package relay

import (
	"locker-kiosk-service/internal/domain"
)

// ErrorCode classifies why a relay invocation failed. A Result with an empty
// ErrorCode and Success=false is the benign "definitive no" case (for
// example read-card with nothing queued), not an error.
type ErrorCode string

const (
	CodeBadRequest       ErrorCode = "bad-request"
	CodeUnknownOperation ErrorCode = "unknown-operation"
	CodeTimeout          ErrorCode = "timeout"
	CodeConnectFailed    ErrorCode = "connect-failed"
	CodeResolveFailed    ErrorCode = "resolve-failed"
	CodeUpstreamClient   ErrorCode = "upstream-client-error"
	CodeUpstreamServer   ErrorCode = "upstream-server-error"
)

// Result is the uniform outcome envelope returned to callers. It is never
// partially filled: either a definitive success or a definitive failure with
// a classified ErrorCode (or the benign empty-code case above).
type Result struct {
	Success       bool         `json:"success"`
	Status        int          `json:"http_status,omitempty"`
	Message       string       `json:"message"`
	Payload       any          `json:"payload,omitempty"`
	Card          *domain.Card `json:"card,omitempty"`
	AttemptsUsed  int          `json:"attempts_used"`
	ElapsedMS     int64        `json:"elapsed_ms"`
	ErrorCode     ErrorCode    `json:"error_code,omitempty"`
	CorrelationID string       `json:"correlation_id,omitempty"`
}

// Detected reports whether a read-card result carries a consumed card event.
func (r Result) Detected() bool {
	return r.Success && r.Card != nil
}

// Benign reports a definitive non-error "no" from the backend, such as
// read-card with an empty event queue.
func (r Result) Benign() bool {
	return !r.Success && r.ErrorCode == ""
}
