package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultTableCoversEveryOperation(t *testing.T) {
	table := Default()

	ops := []string{
		OpStatus, OpWashTypes, OpReadCard, OpClearEventQueue,
		OpDropOff, OpPickUp, OpHealth, OpResetReader,
		OpDeviceInfo, OpUpdateDeviceInfo,
	}
	for _, op := range ops {
		p, ok := table.Lookup(op)
		if !ok {
			t.Fatalf("expected a policy for %q", op)
		}
		if p.Path == "" || p.Method == "" {
			t.Fatalf("policy for %q is missing dispatch settings: %+v", op, p)
		}
		if p.Timeout <= 0 || p.MaxAttempts < 1 || p.RetryDelay < 0 {
			t.Fatalf("policy for %q has invalid limits: %+v", op, p)
		}
	}
	if got := len(table.Names()); got != len(ops) {
		t.Fatalf("expected %d operations, got %d", len(ops), got)
	}
}

func TestDefaultTableSelectedEntries(t *testing.T) {
	table := Default()

	readCard, _ := table.Lookup(OpReadCard)
	if readCard.Method != "GET" || readCard.Path != "/read-card" {
		t.Fatalf("unexpected read-card dispatch: %+v", readCard)
	}
	if readCard.RetryDelay != 200*time.Millisecond {
		t.Fatalf("expected fast read-card retries, got %s", readCard.RetryDelay)
	}

	clear, _ := table.Lookup(OpClearEventQueue)
	if clear.Path != "/clear-card-queue" || clear.Method != "POST" {
		t.Fatalf("unexpected clear-event-queue dispatch: %+v", clear)
	}

	reset, _ := table.Lookup(OpResetReader)
	if reset.Path != "/reset-rfid-reader" || reset.Method != "POST" {
		t.Fatalf("unexpected reset-reader dispatch: %+v", reset)
	}
	if reset.Timeout != 15*time.Second {
		t.Fatalf("expected 15s reset-reader timeout, got %s", reset.Timeout)
	}
}

func TestLookupRejectsUnknownName(t *testing.T) {
	if _, ok := Default().Lookup("reboot"); ok {
		t.Fatal("expected lookup miss for an unknown operation")
	}
}

func TestLoadWithoutPathReturnsDefaults(t *testing.T) {
	table, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want, _ := Default().Lookup(OpStatus)
	got, _ := table.Lookup(OpStatus)
	if got != want {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	path := writePolicyFile(t, `
operations:
  read-card:
    timeout: 500ms
    max_attempts: 5
  drop-off:
    retry_delay: 1s
`)

	table, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	readCard, _ := table.Lookup(OpReadCard)
	if readCard.Timeout != 500*time.Millisecond || readCard.MaxAttempts != 5 {
		t.Fatalf("override not applied: %+v", readCard)
	}
	if readCard.RetryDelay != 200*time.Millisecond {
		t.Fatalf("untouched field must keep its default, got %s", readCard.RetryDelay)
	}

	dropOff, _ := table.Lookup(OpDropOff)
	if dropOff.RetryDelay != time.Second {
		t.Fatalf("override not applied: %+v", dropOff)
	}
	if dropOff.Timeout != 10*time.Second {
		t.Fatalf("untouched field must keep its default, got %s", dropOff.Timeout)
	}
}

func TestLoadRejectsUnknownOperation(t *testing.T) {
	path := writePolicyFile(t, `
operations:
  reboot:
    timeout: 1s
`)

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown operation") {
		t.Fatalf("expected unknown operation error, got %v", err)
	}
}

func TestLoadRejectsInvalidOverride(t *testing.T) {
	path := writePolicyFile(t, `
operations:
  status:
    max_attempts: -1
`)

	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "max_attempts") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing policy file")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writePolicyFile(t, "operations: [not a map")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func writePolicyFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	return path
}
