package testutil

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

// BackendResponse scripts one reply from the fake hardware-control backend.
type BackendResponse struct {
	Status int
	Body   string
}

// Backend is a scripted stand-in for the hardware-control API. Responses are
// consumed per path in order; the last one repeats once the script runs out.
type Backend struct {
	mu     sync.Mutex
	script map[string][]BackendResponse
	calls  map[string]int
	srv    *httptest.Server
}

// NewBackend starts a scripted backend server. Callers must Close it.
func NewBackend() *Backend {
	b := &Backend{
		script: make(map[string][]BackendResponse),
		calls:  make(map[string]int),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.handle))
	return b
}

// Queue appends scripted responses for a path.
func (b *Backend) Queue(path string, responses ...BackendResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.script[path] = append(b.script[path], responses...)
}

// URL returns the backend base URL.
func (b *Backend) URL() string {
	return b.srv.URL
}

// Calls reports how many requests a path has received.
func (b *Backend) Calls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

// Close shuts the server down.
func (b *Backend) Close() {
	b.srv.Close()
}

func (b *Backend) handle(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls[r.URL.Path]++
	queue := b.script[r.URL.Path]
	var resp BackendResponse
	switch {
	case len(queue) == 0:
		resp = BackendResponse{Status: http.StatusNotFound, Body: `{"success": false, "message": "unscripted path"}`}
	case len(queue) == 1:
		resp = queue[0]
	default:
		resp = queue[0]
		b.script[r.URL.Path] = queue[1:]
	}
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	_, _ = w.Write([]byte(resp.Body))
}
