// Package policy holds the static mapping from logical operation names to
// backend dispatch settings. The table is built once at startup and never
// mutated afterwards; callers treat an unresolved name as a local error.
package policy

import "time"

// Operation names known to the gateway. The set is closed: overrides may
// tune an operation's settings but can never add or remove one.
const (
	OpStatus           = "status"
	OpWashTypes        = "wash-types"
	OpReadCard         = "read-card"
	OpClearEventQueue  = "clear-event-queue"
	OpDropOff          = "drop-off"
	OpPickUp           = "pick-up"
	OpHealth           = "health"
	OpResetReader      = "reset-reader"
	OpDeviceInfo       = "device-info"
	OpUpdateDeviceInfo = "update-device-info"
)

// Policy binds one operation name to its backend path and dispatch limits.
type Policy struct {
	Name        string
	Path        string
	Method      string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
}

// Table is an immutable name→policy mapping.
type Table struct {
	policies map[string]Policy
}

// Lookup resolves an operation name. The second return is false for names
// outside the closed set.
func (t *Table) Lookup(name string) (Policy, bool) {
	p, ok := t.policies[name]
	return p, ok
}

// Names returns the operation names in the table, in no particular order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.policies))
	for name := range t.policies {
		names = append(names, name)
	}
	return names
}

// Default returns the built-in table. Card reads retry fast because RFID
// reads are flaky; actuator operations get long timeouts and are never
// retried eagerly.
func Default() *Table {
	policies := []Policy{
		{Name: OpStatus, Path: "/status", Method: "GET", Timeout: 3 * time.Second, MaxAttempts: 3, RetryDelay: 500 * time.Millisecond},
		{Name: OpWashTypes, Path: "/wash-types", Method: "GET", Timeout: 3 * time.Second, MaxAttempts: 3, RetryDelay: 500 * time.Millisecond},
		{Name: OpReadCard, Path: "/read-card", Method: "GET", Timeout: 2 * time.Second, MaxAttempts: 3, RetryDelay: 200 * time.Millisecond},
		{Name: OpClearEventQueue, Path: "/clear-card-queue", Method: "POST", Timeout: 2 * time.Second, MaxAttempts: 3, RetryDelay: 500 * time.Millisecond},
		{Name: OpDropOff, Path: "/drop-off", Method: "POST", Timeout: 10 * time.Second, MaxAttempts: 3, RetryDelay: 500 * time.Millisecond},
		{Name: OpPickUp, Path: "/pick-up", Method: "POST", Timeout: 10 * time.Second, MaxAttempts: 3, RetryDelay: 500 * time.Millisecond},
		{Name: OpHealth, Path: "/health", Method: "GET", Timeout: 2 * time.Second, MaxAttempts: 3, RetryDelay: 500 * time.Millisecond},
		{Name: OpResetReader, Path: "/reset-rfid-reader", Method: "POST", Timeout: 15 * time.Second, MaxAttempts: 3, RetryDelay: 500 * time.Millisecond},
		{Name: OpDeviceInfo, Path: "/device-info", Method: "GET", Timeout: 3 * time.Second, MaxAttempts: 3, RetryDelay: 500 * time.Millisecond},
		{Name: OpUpdateDeviceInfo, Path: "/update-device-info", Method: "POST", Timeout: 5 * time.Second, MaxAttempts: 3, RetryDelay: 500 * time.Millisecond},
	}

	table := make(map[string]Policy, len(policies))
	for _, p := range policies {
		table[p.Name] = p
	}
	return &Table{policies: table}
}
