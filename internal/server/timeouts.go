package server

import "time"

const (
	// Write timeout leaves room for the slowest policy (reset-reader, 15s
	// per attempt with bounded retries).
	readTimeout  = 10 * time.Second
	writeTimeout = 60 * time.Second
	idleTimeout  = 60 * time.Second
)

// shutdownTimeout remains a var for tests to override.
var shutdownTimeout = 10 * time.Second
