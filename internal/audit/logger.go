package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joss/sysup/internal/config"
	"github.com/joss/sysup/internal/fault"
)

// Logger writes audit events as JSON lines and optionally persists
// them to a Store. Safe for concurrent use.
type Logger struct {
	mu        sync.Mutex
	sessionID string
	output    io.Writer
	store     *Store
}

// LoggerOption configures the logger.
type LoggerOption func(*Logger)

// WithStore sets the history store for persistence.
func WithStore(store *Store) LoggerOption {
	return func(l *Logger) { l.store = store }
}

// WithSession sets the session ID.
func WithSession(id string) LoggerOption {
	return func(l *Logger) { l.sessionID = id }
}

// WithOutput sets the output sink.
func WithOutput(w io.Writer) LoggerOption {
	return func(l *Logger) { l.output = w }
}

// NewLogger creates a new audit logger.
func NewLogger(opts ...LoggerOption) *Logger {
	l := &Logger{
		sessionID: config.Env().SessionID,
		output:    os.Stderr,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.sessionID == "" {
		l.sessionID = fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}

	return l
}

// Record writes one event for an operation state transition.
func (l *Logger) Record(operation string, sequence int, level Level, message string, kind fault.Kind) {
	event := Event{
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Operation: operation,
		Sequence:  sequence,
		Level:     level,
		Message:   message,
		FaultKind: kind,
		SessionID: l.sessionID,
	}
	l.write(event)
}

// Info records an INFO-level transition.
func (l *Logger) Info(operation string, sequence int, message string) {
	l.Record(operation, sequence, LevelInfo, message, "")
}

// Warn records a WARN-level transition.
func (l *Logger) Warn(operation string, sequence int, message string) {
	l.Record(operation, sequence, LevelWarn, message, "")
}

// Error records an ERROR-level transition.
func (l *Logger) Error(operation string, sequence int, message string, kind fault.Kind) {
	l.Record(operation, sequence, LevelError, message, kind)
}

// Audit records an AUDIT-level transition (terminal outcomes,
// rollbacks, operator decisions).
func (l *Logger) Audit(operation string, sequence int, message string, kind fault.Kind) {
	l.Record(operation, sequence, LevelAudit, message, kind)
}

func (l *Logger) write(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(l.output, "%s\n", data)

	// Persist with a bounded wait so a slow disk cannot stall the loop.
	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.store.Save(ctx, event)
	}
}

// SessionID returns the current session ID.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// Global logger instance
var (
	globalLogger *Logger
	globalOnce   sync.Once
)

// Global returns the global logger instance.
func Global() *Logger {
	globalOnce.Do(func() {
		globalLogger = NewLogger()
	})
	return globalLogger
}

// SetGlobal sets the global logger.
func SetGlobal(l *Logger) {
	globalLogger = l
}
