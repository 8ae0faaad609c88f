package orchestrator

import (
	"fmt"
	"strings"

	"github.com/joss/sysup/internal/fault"
)

// OperationError is returned for the two failed terminal outcomes.
// Skipped is non-fatal to a batch; Aborted halts it.
type OperationError struct {
	Operation    string
	Outcome      Outcome
	Kind         fault.Kind
	Attempts     int
	Remediations []string
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("operation %s %s after %d attempt(s)", e.Operation, e.Outcome, e.Attempts)
	if e.Kind != "" {
		msg += fmt.Sprintf(" (fault: %s)", e.Kind)
	}
	if len(e.Remediations) > 0 {
		msg += "; remediations tried: " + strings.Join(e.Remediations, "; ")
	}
	return msg
}

// IsAbort reports whether the error is a batch-fatal abort.
func (e *OperationError) IsAbort() bool {
	return e.Outcome == Aborted
}
