package errors

import "errors"

// Common application-wide errors.
var (
	ErrNotFound      = errors.New("object not found")
	ErrInvalidInput  = errors.New("invalid input provided")
	ErrDecode        = errors.New("malformed event payload")
	ErrUnavailable   = errors.New("service unavailable")
	ErrConfiguration = errors.New("invalid configuration")
)

// New creates a new error with the given message.
func New(message string) error {
	return errors.New(message)
}

// Wrap adds context to an existing error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.Join(errors.New(message), err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
