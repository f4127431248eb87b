// Package apperr holds the error values shared across layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")
)

// ValidationError reports input with a missing or malformed shape.
// It matches ErrValidation under errors.Is.
type ValidationError struct {
	Reason string
	Err    error
}

// Validation returns a ValidationError with the given reason.
func Validation(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// WrapValidation returns a ValidationError that keeps err as its cause.
func WrapValidation(reason string, err error) *ValidationError {
	return &ValidationError{Reason: reason, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
