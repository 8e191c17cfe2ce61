package engine

import (
	"errors"
	"fmt"

	"github.com/souschef-ai/souschef/pkg/models"
)

var (
	// ErrNotRunning is returned when an operation requires a started engine.
	ErrNotRunning = errors.New("engine is not running")

	// ErrNoInitialSteps is returned by Start when no step has an empty
	// depends_on set — the recipe has no entry point.
	ErrNoInitialSteps = errors.New("recipe has no initial steps")

	// ErrStepNotFound is returned for unknown step ids.
	ErrStepNotFound = errors.New("step not found")

	// ErrStepAlreadyCompleted marks the idempotent confirm of a completed
	// step. Callers treat it as a no-op, not a failure.
	ErrStepAlreadyCompleted = errors.New("step already completed")

	// ErrTimerNotFound is returned when a timer lookup or cancel misses.
	ErrTimerNotFound = errors.New("timer not found")

	// ErrTimerAlreadyRunning is returned on double-start of a timer.
	ErrTimerAlreadyRunning = errors.New("timer already running")

	// ErrTimerDuration is returned when a timer is requested for a step
	// that is not a timer step or carries no duration.
	ErrTimerDuration = errors.New("step has no timer duration")
)

// StepStateError reports a step in the wrong status for an operation.
// BlockedBy lists unmet dependencies when the step is still PENDING.
type StepStateError struct {
	Op        string
	StepID    string
	Status    models.StepStatus
	BlockedBy []string
}

func (e *StepStateError) Error() string {
	if len(e.BlockedBy) > 0 {
		return fmt.Sprintf("%s: step %q is %s, blocked by %v", e.Op, e.StepID, e.Status, e.BlockedBy)
	}
	return fmt.Sprintf("%s: step %q is %s", e.Op, e.StepID, e.Status)
}

// TimerActiveError reports a confirm refused because the step's timer is
// still counting down and force_cancel_timer was not set.
type TimerActiveError struct {
	StepID        string
	RemainingSecs int
}

func (e *TimerActiveError) Error() string {
	return fmt.Sprintf("step %q has an active timer with %ds remaining", e.StepID, e.RemainingSecs)
}
