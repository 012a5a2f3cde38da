package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeNoCorpus         = "NO_CORPUS"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeNotFound         = "NOT_FOUND"
	CodeRateLimit        = "RATE_LIMIT_EXCEEDED"
	CodeTimeout          = "REQUEST_TIMEOUT"
	CodeInternalServer   = "INTERNAL_SERVER_ERROR"
)

// ErrNotFound is returned by stores when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// InvalidInputError represents a rejected request field
type InvalidInputError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input for field '%s': %s", e.Field, e.Message)
}

// NewInvalidInputError creates a new InvalidInputError
func NewInvalidInputError(field, message string, value interface{}) *InvalidInputError {
	return &InvalidInputError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NoCorpusError is returned when the disease corpus is empty or cannot be
// loaded, so no diagnosis can be computed.
type NoCorpusError struct {
	Reason string
	Err    error
}

func (e *NoCorpusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no corpus: %s: %v", e.Reason, e.Err)
	}
	return "no corpus: " + e.Reason
}

func (e *NoCorpusError) Unwrap() error { return e.Err }

// StoreUnavailableError signals a transient persistence failure.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// AsStoreUnavailable wraps err as a StoreUnavailableError. Nil, ErrNotFound,
// context cancellation and already wrapped errors are returned unchanged.
func AsStoreUnavailable(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || IsCanceled(err) {
		return err
	}
	var sue *StoreUnavailableError
	if errors.As(err, &sue) {
		return err
	}
	return &StoreUnavailableError{Op: op, Err: err}
}

// InvariantViolation reports an internal consistency failure. Its detail is
// logged but never returned to clients.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Detail
}

// IsCanceled reports whether err stems from a cancelled or expired context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
