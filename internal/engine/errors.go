package engine

import (
	"errors"
	"fmt"
)

var ErrActivityNotFound = errors.New("activity not found")

// ValidationError reports input that fails the activity's configured
// constraints (bad phone, missing field, unknown option). The service layer
// maps it to a 400 with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError reports an action rejected by current state rather than by
// input shape: duplicate vote, exhausted lottery, inactive activity. Kept
// distinct from ValidationError so the UI can explain why.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

func conflictErr(reason string) error {
	return &ConflictError{Reason: reason}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a state conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
