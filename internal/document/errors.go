package document

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a transition precondition fails.
	// The document is left unchanged and nothing is appended to its log.
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("document not found")
	ErrForbidden         = errors.New("document not visible to caller")
	// ErrCollaboratorUnavailable wraps persistence failures. An optimistic
	// local snapshot that hit this error was not confirmed by the store.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// TransitionError carries the rejected action and the failed guard.
type TransitionError struct {
	Action string
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidTransition, e.Action, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func reject(action string, r GuardResult) error {
	return &TransitionError{Action: action, Reason: r.Reason}
}
