// pkg/core/errors.go
package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is returned when the backing store cannot be reached or a write fails.
	ErrTransport = errors.New("transport error")
	// ErrValidation is returned when a required field is empty.
	ErrValidation = errors.New("validation error")
	// ErrAlreadyVoted is returned when the voter already voted for delete.
	ErrAlreadyVoted = errors.New("already voted for delete")
	// ErrAlreadySent is returned when the climber already marked the route as sent.
	ErrAlreadySent = errors.New("already marked as sent")
	// ErrInvalidState is returned when an operation is not allowed in the current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrQuorumNotReached is returned when a delete is confirmed before the final vote.
	ErrQuorumNotReached = errors.New("delete quorum not reached")
	// ErrNotFound is returned for unknown markers, routes and visits.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a user acts on a visit another user opened.
	ErrForbidden = errors.New("forbidden")
)

// PartialFailure reports a multi-step write where an earlier step was stored and a
// later one failed. For a confirmed delete the vote is recorded but the marker is
// still visible.
type PartialFailure struct {
	Step         string
	VoteRecorded bool
	Err          error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("partial failure at %s (vote recorded: %t): %v", e.Step, e.VoteRecorded, e.Err)
}

// Unwrap exposes the cause and ErrTransport, so errors.Is(err, ErrTransport) holds.
func (e *PartialFailure) Unwrap() []error {
	return []error{e.Err, ErrTransport}
}

// Transport wraps err as a transport failure of op.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// Validation builds a validation error naming the offending field.
func Validation(field string) error {
	return fmt.Errorf("%w: %s is required", ErrValidation, field)
}
