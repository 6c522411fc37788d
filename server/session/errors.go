package session

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when a session code resolves to nothing.
var ErrSessionNotFound = errors.New("session not found")

// ValidationError marks an operation that is malformed before it ever
// touches session state: bad shape, negative fields, or a base revision the
// session cannot transform against.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid operation: %s", e.Reason)
}

// OutOfBoundsError marks an operation whose range, after transform, falls
// outside the current buffer. The session stays untouched.
type OutOfBoundsError struct {
	Pos, Len, BufLen int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("operation [%d,%d) out of bounds for buffer of %d units", e.Pos, e.Pos+e.Len, e.BufLen)
}

// ConflictError marks a join with a user id already present in the session.
type ConflictError struct {
	UserID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("user %s already joined", e.UserID)
}
