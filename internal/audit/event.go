// Package audit provides append-only structured event recording for
// operation state transitions.
package audit

import (
	"time"

	"github.com/joss/sysup/internal/fault"
)

// Level is the severity of an audit event.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	LevelAudit Level = "AUDIT"
)

// Event is one structured record of a state transition. Append-only:
// never mutated or deleted after being written.
type Event struct {
	EventID   string     `json:"event_id"`
	Timestamp time.Time  `json:"timestamp"`
	Operation string     `json:"operation"`
	Sequence  int        `json:"sequence"`
	Level     Level      `json:"level"`
	Message   string     `json:"message"`
	FaultKind fault.Kind `json:"fault_kind,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
}
