package http

import (
	"encoding/json"
	"log/slog"
	nethttp "net/http"

	"locker-kiosk-service/internal/http/middleware"
	"locker-kiosk-service/internal/logging"
)

// envelope is the minimal reply shape: every response carries at least
// success and message.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Extra   any    `json:"data,omitempty"`
}

func writeJSON(w nethttp.ResponseWriter, status int, payload any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to encode response", "err", err)
	}
}

func writeEnvelope(w nethttp.ResponseWriter, status int, success bool, message string, logger *slog.Logger) {
	writeJSON(w, status, envelope{Success: success, Message: message}, logger)
}

func writeError(w nethttp.ResponseWriter, r *nethttp.Request, status int, message string, logger *slog.Logger) {
	reqID := middleware.RequestIDFromContext(r.Context())
	if reqID == "" {
		reqID = r.Header.Get("X-Request-ID")
	}
	body := map[string]any{"success": false, "message": message}
	if reqID != "" {
		body["request_id"] = reqID
	}
	writeJSON(w, status, body, logger)
}

func loggerFromContext(r *nethttp.Request, fallback *slog.Logger) *slog.Logger {
	if r == nil {
		return fallback
	}
	return logging.FromContext(r.Context(), fallback)
}
