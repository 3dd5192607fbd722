package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeExecution  = "EXECUTION_ERROR"
	ErrCodeTimeout    = "TIMEOUT_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeStore      = "STORE_ERROR"
	ErrCodeProvider   = "PROVIDER_ERROR"
)

// EngineError is the structured error type for all engine operations.
type EngineError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// NewError creates a new EngineError.
func NewError(code, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// NewErrorf creates a new EngineError with a formatted message.
func NewErrorf(code, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *EngineError) WithCause(err error) *EngineError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *EngineError) WithDetails(details map[string]any) *EngineError {
	e.Details = details
	return e
}
