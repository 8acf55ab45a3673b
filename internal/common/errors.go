package common

import (
	"fmt"
	"strings"
)

// ConfigErrorKind distinguishes the configuration failure classes.
type ConfigErrorKind string

const (
	ConfigErrorLoad       ConfigErrorKind = "load"
	ConfigErrorValidation ConfigErrorKind = "validation"
	ConfigErrorUpdate     ConfigErrorKind = "update"
)

// ConfigurationError reports a configuration load, validation, or update
// failure. Validation errors carry the full list of field failures.
type ConfigurationError struct {
	Kind     ConfigErrorKind
	Message  string
	Failures []string
	Cause    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration %s error: %s", e.Kind, e.Message)
	if len(e.Failures) > 0 {
		msg += ": " + strings.Join(e.Failures, "; ")
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// NewConfigLoadError wraps a file read/parse failure.
func NewConfigLoadError(message string, cause error) *ConfigurationError {
	return &ConfigurationError{Kind: ConfigErrorLoad, Message: message, Cause: cause}
}

// NewConfigValidationError carries every field failure found in one pass.
func NewConfigValidationError(failures []string) *ConfigurationError {
	return &ConfigurationError{Kind: ConfigErrorValidation, Message: "invalid configuration", Failures: failures}
}

// NewConfigUpdateError reports a rejected runtime update.
func NewConfigUpdateError(message string) *ConfigurationError {
	return &ConfigurationError{Kind: ConfigErrorUpdate, Message: message}
}
