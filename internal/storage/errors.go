package storage

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input: a bad identifier, an empty
// required field, a pattern that will not compile, an enum out of range.
type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	msg := "validation error"
	if e.Field != "" {
		msg += " on " + e.Field
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// NewValidationError builds a ValidationError for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// DuplicateResourceError reports a uniqueness violation
type DuplicateResourceError struct {
	Resource string
	Key      string
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("duplicate %s: %s already exists", e.Resource, e.Key)
}

// NewDuplicateError builds a DuplicateResourceError
func NewDuplicateError(resource, key string) *DuplicateResourceError {
	return &DuplicateResourceError{Resource: resource, Key: key}
}

// ResourceNotFoundError reports a referenced entity that does not exist
type ResourceNotFoundError struct {
	Resource string
	ID       string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NewNotFoundError builds a ResourceNotFoundError
func NewNotFoundError(resource, id string) *ResourceNotFoundError {
	return &ResourceNotFoundError{Resource: resource, ID: id}
}

// ConnectionError reports transport unavailability, including a breaker in
// the open state. Safe to retry after backoff.
type ConnectionError struct {
	Operation string
	Cause     error
}

func (e *ConnectionError) Error() string {
	msg := "connection error"
	if e.Operation != "" {
		msg += " during " + e.Operation
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// TransactionError reports an aborted multi-collection atomic scope
type TransactionError struct {
	Operation string
	Cause     error
}

func (e *TransactionError) Error() string {
	msg := "transaction aborted"
	if e.Operation != "" {
		msg += " during " + e.Operation
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransactionError) Unwrap() error { return e.Cause }

// ErrAlertSuppressed is the sentinel returned when an alert create matches
// an active suppression window. The create is dropped, not queued.
var ErrAlertSuppressed = errors.New("alert suppressed")

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsDuplicate reports whether err is a DuplicateResourceError
func IsDuplicate(err error) bool {
	var target *DuplicateResourceError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a ResourceNotFoundError
func IsNotFound(err error) bool {
	var target *ResourceNotFoundError
	return errors.As(err, &target)
}

// IsConnection reports whether err is a ConnectionError
func IsConnection(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}
