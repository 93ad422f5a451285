package domain

import (
	"errors"
	"fmt"
)

// ErrConcurrencyConflict indicates that the underlying storage rejected a
// write because a newer version of the entity is already persisted.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// NotFoundError is returned when a referenced board, column or task does
// not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ValidationError is returned when a request is missing required fields or
// carries malformed values. It never causes a mutation.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
