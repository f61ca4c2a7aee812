// Package apperrors defines the structured errors shared by the analytics
// pipeline, the predictor, the scheduler and the tool surface.
package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCategory classifies the type of error
type ErrorCategory string

const (
	// ClientError indicates the error was caused by the caller (4xx)
	ClientError ErrorCategory = "CLIENT_ERROR"
	// ServerError indicates the error was caused by this service (5xx)
	ServerError ErrorCategory = "SERVER_ERROR"
	// ExternalError indicates the error was caused by an external dependency
	ExternalError ErrorCategory = "EXTERNAL_ERROR"
)

// ErrorCode represents a structured error code
type ErrorCode string

const (
	// Client errors
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeMissingParameter  ErrorCode = "MISSING_PARAMETER"
	CodeResourceNotFound  ErrorCode = "RESOURCE_NOT_FOUND"
	CodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Server errors
	CodeInternalError    ErrorCode = "INTERNAL_ERROR"
	CodeEmptyTrainingSet ErrorCode = "EMPTY_TRAINING_SET"
	CodeModelUnavailable ErrorCode = "MODEL_UNAVAILABLE"
	CodeTimeout          ErrorCode = "TIMEOUT"

	// External errors
	CodeDispatchFailed ErrorCode = "DISPATCH_FAILED"
	CodeAPIError       ErrorCode = "API_ERROR"
)

// StructuredError represents a detailed error with category, code, and recovery suggestion
type StructuredError struct {
	Code       ErrorCode     `json:"code"`
	Category   ErrorCategory `json:"category"`
	Message    string        `json:"message"`
	Details    interface{}   `json:"details,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`

	cause error
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Category, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Category, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *StructuredError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a StructuredError with the same code.
func (e *StructuredError) Is(target error) bool {
	var t *StructuredError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// ToJSON converts the error to JSON string
func (e *StructuredError) ToJSON() string {
	bytes, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"code":"%s","category":"%s","message":"%s"}`, e.Code, e.Category, e.Message)
	}
	return string(bytes)
}

// New creates a new structured error
func New(code ErrorCode, category ErrorCategory, message string) *StructuredError {
	return &StructuredError{
		Code:     code,
		Category: category,
		Message:  message,
	}
}

// WithDetails adds details to the error
func (e *StructuredError) WithDetails(details interface{}) *StructuredError {
	e.Details = details
	return e
}

// WithSuggestion adds a recovery suggestion to the error
func (e *StructuredError) WithSuggestion(suggestion string) *StructuredError {
	e.Suggestion = suggestion
	return e
}

// WithCause attaches the underlying error.
func (e *StructuredError) WithCause(err error) *StructuredError {
	e.cause = err
	return e
}

// Common error constructors

// NewInvalidInput creates an invalid input error
func NewInvalidInput(message string) *StructuredError {
	return New(CodeInvalidInput, ClientError, message).
		WithSuggestion("Check the input parameters and try again")
}

// NewMissingParameter creates a missing parameter error
func NewMissingParameter(param string) *StructuredError {
	return New(CodeMissingParameter, ClientError, fmt.Sprintf("Required parameter '%s' is missing", param)).
		WithSuggestion(fmt.Sprintf("Provide the '%s' parameter", param))
}

// NewResourceNotFound creates a resource not found error
func NewResourceNotFound(resourceType, id string) *StructuredError {
	return New(CodeResourceNotFound, ClientError, fmt.Sprintf("%s '%s' not found", resourceType, id)).
		WithSuggestion("Verify the name and try again")
}

// NewRateLimitExceeded creates a rate limit exceeded error
func NewRateLimitExceeded() *StructuredError {
	return New(CodeRateLimitExceeded, ClientError, "Rate limit exceeded").
		WithSuggestion("Wait a moment and try again")
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *StructuredError {
	return New(CodeInternalError, ServerError, message).
		WithSuggestion("Try again later or check the server logs")
}

// NewEmptyTrainingSet is returned when a fit is attempted with no examples.
func NewEmptyTrainingSet() *StructuredError {
	return New(CodeEmptyTrainingSet, ServerError, "Training set has 0 instances, aborting training").
		WithSuggestion("Add log files containing sessionId markers to the log directory")
}

// NewModelUnavailable is returned when no fitted model can be loaded.
func NewModelUnavailable(path string) *StructuredError {
	return New(CodeModelUnavailable, ServerError, fmt.Sprintf("Model artifact not available at %s", path)).
		WithSuggestion("Run an alert check to train the model")
}

// NewTimeout creates a timeout error
func NewTimeout(operation string) *StructuredError {
	return New(CodeTimeout, ServerError, fmt.Sprintf("Operation '%s' timed out", operation)).
		WithSuggestion("Try again or adjust timeout settings")
}

// NewDispatchFailed wraps a failure to deliver an alert.
func NewDispatchFailed(channel string, err error) *StructuredError {
	return New(CodeDispatchFailed, ExternalError, fmt.Sprintf("Failed to deliver alert via %s", channel)).
		WithCause(err).
		WithSuggestion("Check the notification channel configuration")
}

// NewAPIError creates an external API error
func NewAPIError(service string, statusCode int, message string) *StructuredError {
	return New(CodeAPIError, ExternalError, fmt.Sprintf("%s API error (HTTP %d): %s", service, statusCode, message)).
		WithDetails(map[string]interface{}{
			"service":     service,
			"status_code": statusCode,
		}).
		WithSuggestion("Check the receiving service status")
}

// FromHTTPStatus creates an appropriate error from an HTTP status code
// returned by a notification endpoint.
func FromHTTPStatus(statusCode int, responseBody string) *StructuredError {
	switch {
	case statusCode == 400:
		return NewInvalidInput(responseBody)
	case statusCode == 404:
		return New(CodeResourceNotFound, ClientError, "Endpoint not found")
	case statusCode == 429:
		return NewRateLimitExceeded()
	case statusCode >= 500 && statusCode < 600:
		return NewAPIError("Webhook", statusCode, responseBody)
	default:
		return New(CodeAPIError, ExternalError, fmt.Sprintf("Unexpected HTTP status %d: %s", statusCode, responseBody))
	}
}

// CodeOf returns the code of the first StructuredError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// IsNotFound reports whether err is a RESOURCE_NOT_FOUND error.
func IsNotFound(err error) bool {
	return HasCode(err, CodeResourceNotFound)
}
