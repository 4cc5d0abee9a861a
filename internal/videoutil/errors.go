package videoutil

import (
	"errors"
	"fmt"
)

// ValidationKind classifies a ValidationError
type ValidationKind string

// ValidationKind constants
const (
	KindUnsupportedFormat ValidationKind = "UnsupportedFormat"
	KindFileTooLarge      ValidationKind = "FileTooLarge"
	KindInvalidField      ValidationKind = "InvalidField"
)

// ValidationError is a user-facing input error. It is surfaced inline and is
// never fatal.
type ValidationError struct {
	Kind    ValidationKind
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// InvalidField builds a KindInvalidField error wrapping err
func InvalidField(field string, err error) *ValidationError {
	return &ValidationError{Kind: KindInvalidField, Field: field, Message: err.Error(), Err: err}
}

// AsValidation extracts a ValidationError from err's chain
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
