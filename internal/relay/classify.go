package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
)

// classifyTransportError maps a failed dispatch to its error code. All
// transport failures are retryable; the reader-side hardware drops
// connections often enough that one failed attempt means little.
func classifyTransportError(err error) ErrorCode {
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CodeResolveFailed
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return CodeConnectFailed
	}

	return CodeConnectFailed
}

// retryableStatus reports whether a backend status is worth another attempt.
// 5xx means the backend hiccuped; 4xx means this request will never succeed.
func retryableStatus(status int) bool {
	return status >= http.StatusInternalServerError
}
