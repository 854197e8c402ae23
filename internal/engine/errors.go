package engine

import (
	"errors"
	"fmt"

	"github.com/causalrig/pavlov/internal/hal"
)

// HardwareError reports an actuator command that failed after the
// acknowledgment grace window and all retries.
//
// A HardwareError is always fatal to the session: the interpreter
// stops, runs the cleanup pass, and the session ends in StateFailed.
type HardwareError struct {
	// Code identifies the failed operation.
	Code HardwareErrorCode

	// Actuator is the line the command targeted.
	Actuator hal.ActuatorKind

	// Attempts is how many times the command was tried.
	Attempts int

	// Err is the last driver error.
	Err error
}

// HardwareErrorCode categorizes hardware failures.
type HardwareErrorCode string

const (
	// ErrCodeAssertFailed means the line could not be raised.
	ErrCodeAssertFailed HardwareErrorCode = "ASSERT_FAILED"

	// ErrCodeDeassertFailed means the line could not be lowered.
	// Reported even during cleanup: a stuck-high valve is the one
	// failure that must never go unrecorded.
	ErrCodeDeassertFailed HardwareErrorCode = "DEASSERT_FAILED"
)

// Error implements the error interface.
func (e *HardwareError) Error() string {
	return fmt.Sprintf("%s: %s after %d attempt(s): %v", e.Code, e.Actuator, e.Attempts, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *HardwareError) Unwrap() error { return e.Err }

// IsHardwareError reports whether err is or wraps a HardwareError.
func IsHardwareError(err error) bool {
	var he *HardwareError
	return errors.As(err, &he)
}

// ErrAborted is returned from Run when an operator abort, not an
// error, ended the session. Callers distinguish it from failures with
// errors.Is.
var ErrAborted = errors.New("session aborted")

// stateError reports an operation attempted in the wrong session state.
func stateError(op string, s State) error {
	return fmt.Errorf("%s: session is %s", op, s)
}
