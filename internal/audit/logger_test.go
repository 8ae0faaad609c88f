package audit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/joss/sysup/internal/fault"
)

func TestLoggerWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithSession("test-session"))

	logger.Info("update-pacman", 1, "attempt started")
	logger.Error("update-pacman", 1, "attempt failed", fault.SyncFailure)
	logger.Audit("update-pacman", 1, "skipped after 1 attempt(s)", fault.SyncFailure)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("wrote %d lines, want 3", len(lines))
	}

	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 0 is not valid JSON: %v", err)
	}
	if first.Operation != "update-pacman" || first.Sequence != 1 {
		t.Errorf("event = %+v", first)
	}
	if first.Level != LevelInfo {
		t.Errorf("level = %s, want %s", first.Level, LevelInfo)
	}
	if first.SessionID != "test-session" {
		t.Errorf("session = %s, want test-session", first.SessionID)
	}
	if first.EventID == "" || first.Timestamp.IsZero() {
		t.Error("event must carry an ID and timestamp")
	}

	var failed Event
	if err := json.Unmarshal([]byte(lines[1]), &failed); err != nil {
		t.Fatal(err)
	}
	if failed.Level != LevelError || failed.FaultKind != fault.SyncFailure {
		t.Errorf("event = %+v, want ERROR with sync-failure", failed)
	}

	// INFO events omit the fault kind entirely.
	if strings.Contains(lines[0], "fault_kind") {
		t.Error("INFO event should omit fault_kind")
	}
}

func TestLoggerUniqueEventIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithSession("test"))

	logger.Info("op", 1, "one")
	logger.Info("op", 2, "two")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var a, b Event
	if err := json.Unmarshal([]byte(lines[0]), &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &b); err != nil {
		t.Fatal(err)
	}
	if a.EventID == b.EventID {
		t.Error("event IDs must be unique")
	}
}

func TestLoggerGeneratedSession(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf))

	if logger.SessionID() == "" {
		t.Error("logger must generate a session ID when none is set")
	}
}
