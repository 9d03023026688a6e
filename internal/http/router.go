package http

import (
	nethttp "net/http"

	"locker-kiosk-service/internal/domain"
)

// NewRouter registers HTTP routes on a ServeMux.
func NewRouter(handler *Handler) nethttp.Handler {
	mux := nethttp.NewServeMux()
	mux.HandleFunc("/health", handler.Health)
	mux.HandleFunc("/ready", handler.Ready)
	mux.HandleFunc("/api/relay", handler.Relay)
	mux.HandleFunc("/api/flows/drop-off", handler.BeginFlow(domain.FlowDropOff))
	mux.HandleFunc("/api/flows/pick-up", handler.BeginFlow(domain.FlowPickUp))
	mux.HandleFunc("/api/flows/current", handler.CurrentFlow)
	return mux
}
