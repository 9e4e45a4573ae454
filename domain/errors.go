package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced board, list, card or comment does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the principal is neither the owner nor a member of the board.
	ErrForbidden = errors.New("access denied")
	// ErrValidation is wrapped by every *ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError describes malformed input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// NotFoundError reports the kind and id of the missing entity.
func NotFoundError(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
