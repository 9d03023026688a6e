package relay

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"locker-kiosk-service/internal/policy"
	"locker-kiosk-service/internal/testutil"
)

// These tests run the gateway against a scripted HTTP backend over a real
// socket, so transport classification and header handling are exercised for
// real instead of through a stubbed client.

func newBackendGateway(t *testing.T, backend *testutil.Backend) *Gateway {
	t.Helper()
	g := New(Config{
		BaseURL: backend.URL(),
		APIKey:  "kiosk-key",
	})
	g.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return g
}

func TestGatewayAgainstScriptedBackend(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()
	backend.Queue("/status",
		testutil.BackendResponse{Status: http.StatusInternalServerError, Body: `{"success": false, "message": "controller restarting"}`},
		testutil.BackendResponse{Status: http.StatusOK, Body: `{"success": true, "message": "Status retrieved", "total_lockers": 12}`},
	)

	g := newBackendGateway(t, backend)
	res := g.Relay(context.Background(), policy.OpStatus, nil)

	if !res.Success {
		t.Fatalf("expected recovery on retry, got %+v", res)
	}
	if res.AttemptsUsed != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.AttemptsUsed)
	}
	if backend.Calls("/status") != 2 {
		t.Fatalf("expected 2 backend calls, got %d", backend.Calls("/status"))
	}
}

func TestGatewayStopsOnBackend4xx(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()
	backend.Queue("/drop-off",
		testutil.BackendResponse{Status: http.StatusConflict, Body: `{"success": false, "message": "Card already has an active session"}`},
	)

	g := newBackendGateway(t, backend)
	res := g.Relay(context.Background(), policy.OpDropOff, []byte(`{"card_id": "42", "wash_type_id": 1}`))

	if res.Success || res.ErrorCode != CodeUpstreamClient {
		t.Fatalf("expected a terminal client error, got %+v", res)
	}
	if res.Message != "Card already has an active session" {
		t.Fatalf("backend message must pass through, got %q", res.Message)
	}
	if backend.Calls("/drop-off") != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", backend.Calls("/drop-off"))
	}
}

func TestGatewayUnreachableBackendClassifiesConnect(t *testing.T) {
	backend := testutil.NewBackend()
	backend.Close()

	g := newBackendGateway(t, backend)
	res := g.Relay(context.Background(), policy.OpHealth, nil)

	if res.Success {
		t.Fatal("expected failure against a closed backend")
	}
	if res.ErrorCode != CodeConnectFailed {
		t.Fatalf("expected connect-failed, got %q", res.ErrorCode)
	}
	if !strings.Contains(res.Message, "retries exhausted") {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestGatewayMapsOperationToBackendPath(t *testing.T) {
	backend := testutil.NewBackend()
	defer backend.Close()
	backend.Queue("/clear-card-queue",
		testutil.BackendResponse{Status: http.StatusOK, Body: `{"success": true, "message": "Card queue cleared"}`},
	)

	g := newBackendGateway(t, backend)
	res := g.Relay(context.Background(), policy.OpClearEventQueue, nil)

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if backend.Calls("/clear-card-queue") != 1 {
		t.Fatal("expected the clear-event-queue operation to hit /clear-card-queue")
	}
}
