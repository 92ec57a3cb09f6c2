package mission

import (
	"errors"
	"fmt"
)

// ErrPrecondition is the base error for control operations attempted from a
// status that does not allow them. Callers match it with errors.Is.
var ErrPrecondition = errors.New("mission precondition violation")

// Control operations an external caller can request.
type Op string

const (
	OpStart  Op = "start"
	OpPause  Op = "pause"
	OpResume Op = "resume"
	OpAbort  Op = "abort"
)

// CheckTransition validates that op may be applied to a mission currently in
// status. Completion is not in the table: it is only ever reached through the
// scheduler's end-of-path check, never by an external request.
func CheckTransition(op Op, status Status) error {
	switch op {
	case OpStart:
		if status != StatusPlanned {
			return fmt.Errorf("%w: mission already %s", ErrPrecondition, status)
		}
	case OpPause:
		if status != StatusInProgress {
			return fmt.Errorf("%w: mission not in progress", ErrPrecondition)
		}
	case OpResume:
		if status != StatusPaused {
			return fmt.Errorf("%w: mission not paused", ErrPrecondition)
		}
	case OpAbort:
		if status.Terminal() {
			return fmt.Errorf("%w: mission already %s", ErrPrecondition, status)
		}
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrPrecondition, op)
	}
	return nil
}
