package logging

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// RecoveryHandler converts panics into logged errors so a crash in
// one operation cannot take down the rest of a batch.
type RecoveryHandler struct {
	Component string
	Logger    *slog.Logger
}

// NewRecoveryHandler creates a recovery handler for a component.
func NewRecoveryHandler(component string, logger *slog.Logger) *RecoveryHandler {
	return &RecoveryHandler{Component: component, Logger: logger}
}

// WrapError executes fn with panic recovery, returning an error on panic.
func (r *RecoveryHandler) WrapError(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			stack := string(debug.Stack())
			r.Logger.Error("panic recovered",
				"component", r.Component,
				"error", fmt.Sprint(rec),
				"stack", stack)
			err = fmt.Errorf("panic in %s: %v", r.Component, rec)
		}
	}()
	return fn()
}
