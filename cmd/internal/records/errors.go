package records

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist for the requesting user.
	ErrNotFound = errors.New("records: not found")

	// ErrInvalidInput is returned when a write fails validation.
	ErrInvalidInput = errors.New("records: invalid input")
)

// ValidationError names the offending field. It matches ErrInvalidInput.
type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("records: %s: %s", e.Field, e.Msg)
}

func (e ValidationError) Unwrap() error { return ErrInvalidInput }
