// Package http exposes the gateway to the kiosk client: a relay endpoint
// keyed by operation name, flow endpoints driving the polling controller,
// and gateway-local health probes.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	nethttp "net/http"
	"time"

	"locker-kiosk-service/internal/domain"
	"locker-kiosk-service/internal/kiosk"
	"locker-kiosk-service/internal/policy"
	"locker-kiosk-service/internal/poll"
	"locker-kiosk-service/internal/relay"
)

const maxRequestBody = 64 << 10

type nowFunc func() time.Time

// Handler wires HTTP routes to the relay gateway and flow manager.
type Handler struct {
	relayer poll.Relayer
	flows   *kiosk.Manager
	logger  *slog.Logger
	now     nowFunc
}

// NewHandler constructs a Handler with defaults.
func NewHandler(relayer poll.Relayer, flows *kiosk.Manager, logger *slog.Logger) *Handler {
	return &Handler{
		relayer: relayer,
		flows:   flows,
		logger:  logger,
		now:     time.Now,
	}
}

// Relay forwards one logical operation to the backend under its policy.
func (h *Handler) Relay(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodGet && r.Method != nethttp.MethodPost {
		writeError(w, r, nethttp.StatusMethodNotAllowed, "method not allowed", h.logger)
		return
	}

	op := r.URL.Query().Get("op")
	if op == "" {
		writeError(w, r, nethttp.StatusBadRequest, "missing operation parameter", h.logger)
		return
	}

	var payload json.RawMessage
	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			writeError(w, r, nethttp.StatusBadRequest, "unreadable request body", h.logger)
			return
		}
		if len(body) > 0 {
			payload = body
		}
	}

	res := h.relayer.Relay(r.Context(), op, payload)
	writeJSON(w, statusFor(res), res, loggerFromContext(r, h.logger))
}

// BeginFlow starts a drop-off or pick-up flow.
func (h *Handler) BeginFlow(kind domain.FlowKind) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			writeError(w, r, nethttp.StatusMethodNotAllowed, "method not allowed", h.logger)
			return
		}

		var body struct {
			WashTypeID  int `json:"wash_type_id"`
			MaxAttempts int `json:"max_attempts"`
			IntervalMS  int `json:"interval_ms"`
		}
		if r.Body != nil {
			raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
			if err != nil {
				writeError(w, r, nethttp.StatusBadRequest, "unreadable request body", h.logger)
				return
			}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &body); err != nil {
					writeError(w, r, nethttp.StatusBadRequest, "request body must be a JSON object", h.logger)
					return
				}
			}
		}

		req := kiosk.BeginRequest{
			WashTypeID:  body.WashTypeID,
			MaxAttempts: body.MaxAttempts,
			Interval:    time.Duration(body.IntervalMS) * time.Millisecond,
		}

		// The poll session outlives this request.
		err := h.flows.Begin(context.WithoutCancel(r.Context()), kind, req)
		switch {
		case errors.Is(err, kiosk.ErrFlowBusy):
			writeError(w, r, nethttp.StatusConflict, "a flow is already in progress", h.logger)
		case err != nil:
			writeError(w, r, nethttp.StatusBadRequest, err.Error(), h.logger)
		default:
			writeEnvelope(w, nethttp.StatusAccepted, true, "waiting for card", loggerFromContext(r, h.logger))
		}
	}
}

// CurrentFlow reports or cancels the active flow.
func (h *Handler) CurrentFlow(w nethttp.ResponseWriter, r *nethttp.Request) {
	switch r.Method {
	case nethttp.MethodGet:
		st := h.flows.Status()
		message := "no flow in progress"
		if st.Session != nil {
			message = st.Session.Message
		}
		writeJSON(w, nethttp.StatusOK, struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
			kiosk.Status
		}{Success: true, Message: message, Status: st}, loggerFromContext(r, h.logger))
	case nethttp.MethodDelete:
		h.flows.Cancel()
		writeEnvelope(w, nethttp.StatusOK, true, "cancelled", loggerFromContext(r, h.logger))
	default:
		writeError(w, r, nethttp.StatusMethodNotAllowed, "method not allowed", h.logger)
	}
}

// Health reports the gateway's own liveness.
func (h *Handler) Health(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodGet {
		writeError(w, r, nethttp.StatusMethodNotAllowed, "method not allowed", h.logger)
		return
	}
	writeEnvelope(w, nethttp.StatusOK, true, "ok", h.logger)
}

// Ready probes the backend's health operation so orchestration can tell
// "gateway up" from "locker hardware reachable".
func (h *Handler) Ready(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Method != nethttp.MethodGet {
		writeError(w, r, nethttp.StatusMethodNotAllowed, "method not allowed", h.logger)
		return
	}

	res := h.relayer.Relay(r.Context(), policy.OpHealth, nil)
	if res.Success {
		writeEnvelope(w, nethttp.StatusOK, true, "ready", loggerFromContext(r, h.logger))
		return
	}
	writeError(w, r, nethttp.StatusServiceUnavailable, res.Message, h.logger)
}

// statusFor maps a relay result onto an HTTP status. Local rejections keep
// their fixed codes; a benign backend "no" is still a 200; upstream
// 4xx passes through so the kiosk can see what the backend objected to.
func statusFor(res relay.Result) int {
	if res.Success || res.Benign() {
		return nethttp.StatusOK
	}
	switch res.ErrorCode {
	case relay.CodeBadRequest:
		return nethttp.StatusBadRequest
	case relay.CodeUnknownOperation:
		return nethttp.StatusNotFound
	case relay.CodeUpstreamClient:
		if res.Status != 0 {
			return res.Status
		}
		return nethttp.StatusBadGateway
	default:
		return nethttp.StatusBadGateway
	}
}
