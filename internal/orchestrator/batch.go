package orchestrator

import (
	"context"
	"errors"
)

// BatchResult collects per-operation results from a sequential run.
type BatchResult struct {
	Results []Result

	// Halted is set when an Aborted outcome stopped the batch early.
	Halted bool
}

// Succeeded counts operations that reached Success.
func (b BatchResult) Succeeded() int { return b.count(Success) }

// SkippedCount counts operations that were skipped.
func (b BatchResult) SkippedCount() int { return b.count(Skipped) }

func (b BatchResult) count(outcome Outcome) int {
	n := 0
	for _, r := range b.Results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// RunAll executes operations strictly in order. Later operations may
// depend on earlier side effects, so there is no concurrency here.
// A Skipped operation lets the batch continue; Aborted halts it and
// the abort error is returned.
func (o *Orchestrator) RunAll(ctx context.Context, ops []Operation) (BatchResult, error) {
	var batch BatchResult

	for _, op := range ops {
		result, err := o.Run(ctx, op)
		batch.Results = append(batch.Results, result)
		if err == nil {
			continue
		}

		var opErr *OperationError
		if errors.As(err, &opErr) && opErr.IsAbort() {
			batch.Halted = true
			return batch, err
		}
		// Skipped: non-fatal, keep going.
	}

	return batch, nil
}
