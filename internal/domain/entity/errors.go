package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates a row (article, publisher) was not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates a caller-supplied value is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidationFailed indicates a row failed its invariants
	ErrValidationFailed = errors.New("validation failed")
)

// ValidationError reports which field of a row or task failed validation
// (see ValidateArticleID and ValidateURL). It implements the error
// interface.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}
