// Package errors defines the structured error taxonomy for the cache.
// Persistent-tier failures are classified so callers and logs can tell a
// quota problem from corrupt data or a plain storage fault.
package errors

import (
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeQuota represents capacity-exceeded failures of a backing store
	ErrTypeQuota ErrorType = "quota"
	// ErrTypeCorruption represents unparseable persisted state
	ErrTypeCorruption ErrorType = "corruption"
	// ErrTypeSerialization represents values that cannot be serialized
	ErrTypeSerialization ErrorType = "serialization"
	// ErrTypeStorage represents other backing store failures
	ErrTypeStorage ErrorType = "storage"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// QuotaError creates a new quota-exceeded error
func QuotaError(store string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeQuota,
		Message: fmt.Sprintf("%s store out of capacity", store),
		Cause:   cause,
	}
}

// CorruptionError creates a new corruption error
func CorruptionError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeCorruption,
		Message: msg,
		Cause:   cause,
	}
}

// SerializationError creates a new serialization error
func SerializationError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeSerialization,
		Message: msg,
		Cause:   cause,
	}
}

// StorageError creates a new storage error
func StorageError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeStorage,
		Message: msg,
		Cause:   cause,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	return appErr.Type == errType
}
