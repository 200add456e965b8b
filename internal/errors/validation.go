package errors

import (
	stdErrors "errors"
	"fmt"
)

// ValidationError is returned when caller supplied input is rejected before
// any lookup runs. It is the only error class meant to reach end users.
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

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError reports whether err is a ValidationError (even when wrapped).
func IsValidationError(err error) bool {
	var valErr *ValidationError
	return stdErrors.As(err, &valErr)
}
