package saga

import (
	"context"
	"errors"
	"fmt"
)

// Step is one stage of a multi-record creation. Compensate undoes the
// visible effect of a previously executed step when a later step fails.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// ErrFatal marks a partial failure that compensation could not fully hide.
// The system may be inconsistent; the error carries enough context for
// operator remediation and callers must never retry past it blindly.
var ErrFatal = errors.New("saga: fatal partial failure")

// Run executes steps in order. On failure it compensates the already
// executed steps in reverse; if any compensation fails too, the returned
// error wraps ErrFatal.
func Run(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		if err := step.Execute(ctx); err != nil {
			compErr := compensate(ctx, steps[:i])
			if compErr != nil {
				return fmt.Errorf("%w: step %q failed (%v), compensation failed: %v", ErrFatal, step.Name, err, compErr)
			}
			return fmt.Errorf("saga: step %q failed: %w", step.Name, err)
		}
	}
	return nil
}

func compensate(ctx context.Context, executed []Step) error {
	var failed error
	for i := len(executed) - 1; i >= 0; i-- {
		step := executed[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			failed = errors.Join(failed, fmt.Errorf("compensate %q: %w", step.Name, err))
		}
	}
	return failed
}
