// Package pipeline runs dependent operations in order and stops at the first
// failure, naming the step that failed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Step is one named operation. A Step with a nil Run is skipped.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// StepError reports which step stopped a pipeline.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// FailedStep returns the name of the step that stopped the pipeline err came from.
func FailedStep(err error) (string, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step, true
	}
	return "", false
}

// Run executes steps in order. It returns the first failure wrapped in a
// *StepError; later steps do not run. A canceled ctx stops the pipeline before
// the next step.
func Run(ctx context.Context, steps ...Step) error {
	for _, s := range steps {
		if s.Run == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return &StepError{Step: s.Name, Err: err}
		}
		if err := s.Run(ctx); err != nil {
			return &StepError{Step: s.Name, Err: err}
		}
	}
	return nil
}

// When returns step if cond holds and an empty (skipped) step otherwise.
func When(cond bool, step Step) Step {
	if !cond {
		return Step{Name: step.Name}
	}
	return step
}

// Then chains a step that needs the result of first.
func Then[A, B any](ctx context.Context, first func(context.Context) (A, error), name string, next func(context.Context, A) (B, error)) (B, error) {
	a, err := first(ctx)
	if err != nil {
		var zero B
		return zero, err
	}
	b, err := next(ctx, a)
	if err != nil {
		return b, &StepError{Step: name, Err: err}
	}
	return b, nil
}
