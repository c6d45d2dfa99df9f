package engine

import (
	"errors"
	"fmt"

	"github.com/certeva/certexam-backend/internal/model"
)

// Sentinel errors for callers that only need errors.Is checks.
var (
	// ErrInvalidTransition wraps every InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrSessionNotActive is returned when an answer is recorded outside
	// the IN_PROGRESS state. Callers must be able to tell "already
	// submitted" (ignorable) apart from "not yet started" (a caller bug),
	// so the wrapping error carries the observed state.
	ErrSessionNotActive = errors.New("session is not active")

	// ErrPauseNotAllowed is returned when Pause is called on an exam
	// configured with allow_pause = false.
	ErrPauseNotAllowed = errors.New("pausing is not allowed for this exam")
)

// InvalidTransitionError reports an operation attempted from a state that
// does not permit it.
type InvalidTransitionError struct {
	From model.AttemptState
	Op   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s from state %s", e.Op, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// NotActiveError reports an answer write attempted outside IN_PROGRESS.
type NotActiveError struct {
	State model.AttemptState
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("session is not active: state is %s", e.State)
}

func (e *NotActiveError) Unwrap() error { return ErrSessionNotActive }
