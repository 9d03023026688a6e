package relay

import (
	"bytes"
	"context"
	"net/http"
	"strings"
)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func resolveHTTPClient(client *http.Client) httpDoer {
	if client != nil {
		return client
	}
	// Per-attempt deadlines come from the policy via the request context, so
	// the shared client carries no timeout of its own.
	return &http.Client{}
}

func normalizeBaseURL(raw string) string {
	return strings.TrimSuffix(raw, "/")
}

func (g *Gateway) buildRequest(ctx context.Context, method, path string, body []byte, correlationID string) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Correlation-ID", correlationID)
	if g.apiKey != "" {
		req.Header.Set("X-API-Key", g.apiKey)
	}

	return req, nil
}
