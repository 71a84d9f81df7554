package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents internal error codes for management operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument   ErrorCode = 1000
	ErrCodeNodeNotFound      ErrorCode = 1001
	ErrCodeConflict          ErrorCode = 1002
	ErrCodeGuardViolation    ErrorCode = 1003
	ErrCodeResourceExhausted ErrorCode = 1004
	ErrCodeOperationInFlight ErrorCode = 1005

	// Server errors (5xx equivalent)
	ErrCodeInternal         ErrorCode = 2000
	ErrCodeUnavailable      ErrorCode = 2001
	ErrCodeFilesystem       ErrorCode = 2002
	ErrCodeReconcileTimeout ErrorCode = 2003
	ErrCodeRegistryFailed   ErrorCode = 2004
	ErrCodeSupervisorFailed ErrorCode = 2005
)

// ManagerError represents a structured error with code and context
type ManagerError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *ManagerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *ManagerError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps internal error codes to HTTP status codes
func (e *ManagerError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeOK:
		return http.StatusOK
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeNodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict, ErrCodeGuardViolation, ErrCodeOperationInFlight:
		return http.StatusConflict
	case ErrCodeResourceExhausted:
		return http.StatusUnprocessableEntity
	case ErrCodeReconcileTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeUnavailable, ErrCodeRegistryFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new ManagerError
func New(code ErrorCode, message string, cause error) *ManagerError {
	return &ManagerError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *ManagerError) WithDetail(key string, value interface{}) *ManagerError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *ManagerError {
	return New(ErrCodeInvalidArgument, message, cause)
}

func NodeNotFound(name string) *ManagerError {
	return New(ErrCodeNodeNotFound, fmt.Sprintf("node not found: %s", name), nil).
		WithDetail("node", name)
}

func Conflict(name string, count int) *ManagerError {
	return New(ErrCodeConflict, fmt.Sprintf("configuration for node '%s' conflicts with the registry (%d conflicts)", name, count), nil).
		WithDetail("node", name).
		WithDetail("conflicts", count)
}

// GuardViolation rejects a mutation against a node whose observed state
// blocks it. The blocking state is named so the caller can self-correct.
func GuardViolation(name, state string) *ManagerError {
	return New(ErrCodeGuardViolation, fmt.Sprintf("node '%s' is %s; stop it before modifying its configuration or files", name, state), nil).
		WithDetail("node", name).
		WithDetail("state", state)
}

func Filesystem(op, path string, cause error) *ManagerError {
	return New(ErrCodeFilesystem, fmt.Sprintf("filesystem %s failed for %s", op, path), cause).
		WithDetail("op", op).
		WithDetail("path", path)
}

func ReconcileTimeout(name string, attempts int) *ManagerError {
	return New(ErrCodeReconcileTimeout, fmt.Sprintf("node '%s' did not converge after %d probe attempts", name, attempts), nil).
		WithDetail("node", name).
		WithDetail("attempts", attempts)
}

func ResourceExhausted(resource string, window int) *ManagerError {
	return New(ErrCodeResourceExhausted, fmt.Sprintf("no free %s found within a search window of %d", resource, window), nil).
		WithDetail("resource", resource).
		WithDetail("window", window)
}

func OperationInFlight(name, op string) *ManagerError {
	return New(ErrCodeOperationInFlight, fmt.Sprintf("a %s operation is already in flight for node '%s'", op, name), nil).
		WithDetail("node", name).
		WithDetail("op", op)
}

func RegistryFailed(message string, cause error) *ManagerError {
	return New(ErrCodeRegistryFailed, message, cause)
}

func SupervisorFailed(message string, cause error) *ManagerError {
	return New(ErrCodeSupervisorFailed, message, cause)
}

func InternalError(message string, cause error) *ManagerError {
	return New(ErrCodeInternal, message, cause)
}

// IsManagerError checks if an error is a ManagerError
func IsManagerError(err error) bool {
	var me *ManagerError
	return errors.As(err, &me)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var me *ManagerError
	if errors.As(err, &me) {
		return me.Code
	}
	return ErrCodeInternal
}

// HTTPStatusFor maps any error to an HTTP status code
func HTTPStatusFor(err error) int {
	var me *ManagerError
	if errors.As(err, &me) {
		return me.HTTPStatus()
	}
	return http.StatusInternalServerError
}
