package logging

// Common structured log field keys to keep logs searchable/consistent.
const (
	FieldService       = "service"
	FieldVersion       = "version"
	FieldOperation     = "operation"
	FieldAttempt       = "attempt"
	FieldAttempts      = "attempts"
	FieldOutcome       = "outcome"
	FieldErrorCode     = "error_code"
	FieldCorrelationID = "correlation_id"
	FieldCardID        = "card_id"
	FieldFlow          = "flow"
	FieldState         = "state"
	FieldRequestID     = "request_id"
	FieldPath          = "path"
	FieldMethod        = "method"
	FieldStatusCode    = "status_code"
	FieldDurationMS    = "duration_ms"
)
