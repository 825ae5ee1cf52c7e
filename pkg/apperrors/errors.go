package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the challenge lifecycle. Handlers map these onto
// HTTP status codes; services wrap them with context via fmt.Errorf("%w").
var (
	// ErrNotFound covers both an unknown id and an id owned by another user,
	// so callers cannot probe for other users' records.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition means a state or ownership precondition failed.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrActiveChallengeExists means the user already holds an active challenge.
	ErrActiveChallengeExists = errors.New("user already has an active challenge")
)

// ValidationError reports the first invalid field of a request payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
