package errors

import (
	"errors"
	"fmt"
	"time"
)

// Category is the closed error taxonomy used by the error registry.
type Category string

const (
	CategoryAuth       Category = "auth"
	CategoryValidation Category = "validation"
	CategoryRateLimit  Category = "rate_limit"
	CategoryConnection Category = "connection"
	CategoryData       Category = "data"
	CategoryUnknown    Category = "unknown"
)

// AppError represents an application error
type AppError struct {
	Category  Category
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(category Category, message string, cause error) *AppError {
	return &AppError{
		Category:  category,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return New(CategoryValidation, message, cause)
}

// NewAuthError creates a new auth error
func NewAuthError(message string, cause error) *AppError {
	return New(CategoryAuth, message, cause)
}

// NewConnectionError creates a new connection error
func NewConnectionError(message string, cause error) *AppError {
	return New(CategoryConnection, message, cause)
}

// NewDataError creates a new data error
func NewDataError(message string, cause error) *AppError {
	return New(CategoryData, message, cause)
}

// NewNotFoundError creates a data-category error for a missing resource.
func NewNotFoundError(resource, id string) *AppError {
	return New(CategoryData, fmt.Sprintf("%s not found: %s", resource, id), nil)
}

func is(err error, c Category) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category == c
	}
	return false
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool { return is(err, CategoryValidation) }

// IsAuth checks if the error is an auth error
func IsAuth(err error) bool { return is(err, CategoryAuth) }

// IsRateLimit checks if the error is a rate limit error
func IsRateLimit(err error) bool { return is(err, CategoryRateLimit) }

// IsConnection checks if the error is a connection error
func IsConnection(err error) bool { return is(err, CategoryConnection) }

// IsNotFound checks if the error is a data error for a missing resource
func IsNotFound(err error) bool { return is(err, CategoryData) }

// RemoteError represents a non-2xx response from the remote ledger API.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote ledger returned %d: %s", e.StatusCode, e.Body)
}

// NewRemoteError creates a new RemoteError
func NewRemoteError(statusCode int, body string) *RemoteError {
	return &RemoteError{StatusCode: statusCode, Body: body}
}

// CircuitOpenError is returned when a breaker rejects a call while OPEN.
// It is a typed rejection, never a hang.
type CircuitOpenError struct {
	Surface string
	RetryAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s, retry after %s", e.Surface, e.RetryAt.Format(time.RFC3339))
}

// IsCircuitOpen checks if the error is a circuit-open rejection
func IsCircuitOpen(err error) bool {
	var coErr *CircuitOpenError
	return errors.As(err, &coErr)
}
