// Package services implements the workflow, trigger, execution and webhook operations
// shared by the API and the workers.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/flowrun/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrValidation = errors.New("validation failed")

	// Lookup Errors (404 Not Found).
	ErrNotFound = errors.New("not found")

	// Business Logic Conflicts (409 Conflict).
	ErrConflict = errors.New("conflict")
)

// Codes returned with validation and conflict errors.
const (
	CodeInvalidWorkflow     = "INVALID_WORKFLOW"
	CodeCycle               = "WORKFLOW_CYCLE"
	CodeUnknownNodeType     = "UNKNOWN_NODE_TYPE"
	CodeInvalidNodeConfig   = "INVALID_NODE_CONFIG"
	CodeNoStartNode         = "NO_START_NODE"
	CodeInvalidTrigger      = "INVALID_TRIGGER"
	CodeInvalidCron         = "INVALID_CRON"
	CodeWorkflowInactive    = "WORKFLOW_INACTIVE"
	CodeExecutionNotRunning = "EXECUTION_NOT_RUNNING"
	CodeWorkflowNotFound    = "WORKFLOW_NOT_FOUND"
	CodeTriggerNotFound     = "TRIGGER_NOT_FOUND"
	CodeExecutionNotFound   = "EXECUTION_NOT_FOUND"
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || persistence.IsNotFound(err)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string) *ServiceError {
	return &ServiceError{Op: op, Code: code, Message: message, Err: ErrValidation}
}

// NewNotFoundError creates a not found error with context.
func NewNotFoundError(op, code string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: code, Err: errors.Join(ErrNotFound, err)}
}

// NewConflictError creates a conflict error with context.
func NewConflictError(op, code, message string) *ServiceError {
	return &ServiceError{Op: op, Code: code, Message: message, Err: ErrConflict}
}

// notFound maps persistence lookups to not found service errors and passes
// everything else through wrapped.
func notFound(op, code string, err error) error {
	if persistence.IsNotFound(err) {
		return NewNotFoundError(op, code, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
