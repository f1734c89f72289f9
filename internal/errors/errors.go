package errors

import (
	stderrors "errors"
	"fmt"
)

// PkmsError is the structured error type for pkms.
// It carries a stable code so callers can tell malformed input from
// absent resources and from storage invariant violations.
type PkmsError struct {
	// Code is the unique error code (e.g., "ERR_601_RECORD_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *PkmsError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *PkmsError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with PkmsError sentinels.
func (e *PkmsError) Is(target error) bool {
	if t, ok := target.(*PkmsError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *PkmsError) WithDetail(key, value string) *PkmsError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *PkmsError) WithSuggestion(suggestion string) *PkmsError {
	e.Suggestion = suggestion
	return e
}

// New creates a new PkmsError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *PkmsError {
	return &PkmsError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code string, format string, args ...any) *PkmsError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a PkmsError from an existing error.
// The error's message becomes the PkmsError message.
func Wrap(code string, err error) *PkmsError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinel returns a message-less error usable as an errors.Is target.
func Sentinel(code string) *PkmsError {
	return &PkmsError{Code: code}
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *PkmsError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *PkmsError {
	return New(ErrCodeInvalidInput, message, cause)
}

// NotFoundError creates a record-not-found error.
func NotFoundError(message string) *PkmsError {
	return New(ErrCodeRecordNotFound, message, nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *PkmsError {
	return New(ErrCodeInternal, message, cause)
}

// as finds the outermost PkmsError in err's chain.
func as(err error) (*PkmsError, bool) {
	var pe *PkmsError
	if err == nil || !stderrors.As(err, &pe) {
		return nil, false
	}
	return pe, true
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	pe, ok := as(err)
	return ok && pe.Retryable
}

// IsFatal checks if an error has fatal severity.
// Fatal errors are programmer errors and should abort the current operation.
func IsFatal(err error) bool {
	pe, ok := as(err)
	return ok && pe.Severity == SeverityFatal
}

// IsValidation reports whether err is malformed input.
func IsValidation(err error) bool {
	pe, ok := as(err)
	return ok && pe.Category == CategoryValidation
}

// IsNotFound reports whether err is a well-formed lookup that found nothing.
func IsNotFound(err error) bool {
	pe, ok := as(err)
	return ok && pe.Category == CategoryNotFound
}

// GetCode extracts the error code from a PkmsError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	if pe, ok := as(err); ok {
		return pe.Code
	}
	return ""
}
