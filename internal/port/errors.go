package port

import (
	"errors"
	"fmt"
)

// Sentinel errors used across ports. Not-found and permission errors always
// propagate to the interactive caller and are never retried.
var (
	ErrSaleNotFound     = errors.New("sale not found")
	ErrTransferNotFound = errors.New("transfer record not found")
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError signals a violated precondition (payment not settled,
// missing repository link, missing credential, duplicate initiation). It is
// surfaced to the caller and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a precondition violation.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
