package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"locker-kiosk-service/internal/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestLoggingMiddlewareEchoesValidRequestID(t *testing.T) {
	h := LoggingMiddleware(nil, nil, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "kiosk-7_abc")
	rr := serve(h, req)

	if got := rr.Header().Get("X-Request-ID"); got != "kiosk-7_abc" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

func TestLoggingMiddlewareReplacesInvalidRequestID(t *testing.T) {
	h := LoggingMiddleware(nil, nil, okHandler())

	for _, bad := range []string{"", "has spaces", strings.Repeat("x", 65), "semi;colon"} {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		if bad != "" {
			req.Header.Set("X-Request-ID", bad)
		}
		rr := serve(h, req)

		got := rr.Header().Get("X-Request-ID")
		if got == bad || got == "" {
			t.Fatalf("expected a generated id for %q, got %q", bad, got)
		}
	}
}

func TestLoggingMiddlewareExposesRequestIDToHandlers(t *testing.T) {
	var seen string
	h := LoggingMiddleware(nil, nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	serve(h, req)

	if seen != "abc123" {
		t.Fatalf("expected handler to see the request id, got %q", seen)
	}
}

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	rec := metrics.NewRecorder()
	h := LoggingMiddleware(nil, rec, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	serve(h, httptest.NewRequest(http.MethodPost, "/api/flows/drop-off", nil))

	snap := rec.HTTP()
	if snap.Requests != 1 {
		t.Fatalf("expected 1 recorded request, got %d", snap.Requests)
	}
}

func TestNormalizePathBoundsMetricLabels(t *testing.T) {
	cases := map[string]string{
		"/api/relay":           "/api/relay",
		"/api/relay?op=status": "/api/relay",
		"/api/flows/drop-off":  "/api/flows/:kind",
		"/api/flows/pick-up":   "/api/flows/:kind",
		"/api/flows/current":   "/api/flows/current",
		"/health":              "/health",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCORSPreflightAnsweredLocally(t *testing.T) {
	backendHit := false
	h := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendHit = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/relay", nil)
	rr := serve(h, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if backendHit {
		t.Fatal("preflight must never reach the next handler")
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected CORS origin header, got %q", got)
	}
}

func TestCORSSkipsNonAPIPaths(t *testing.T) {
	h := CORSMiddleware(okHandler())

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("non-API paths must not carry CORS headers, got %q", got)
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("expected passthrough, got %d", rr.Code)
	}
}
