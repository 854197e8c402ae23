package task

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a malformed or invalid task document.
//
// It is always raised before any hardware action: a tree that fails
// validation never reaches the interpreter. Path identifies the
// offending node, e.g. "task_content/Timeline[1]/Choice".
type ConfigurationError struct {
	Path    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid task: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("invalid task: %s", e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is a ConfigurationError.
// Uses errors.As to handle wrapped errors.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// configErrorf builds a ConfigurationError at path.
func configErrorf(path, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Path: path, Message: fmt.Sprintf(format, args...)}
}
