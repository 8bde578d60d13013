package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeSourceUnavailable ErrorType = "SOURCE_UNAVAILABLE"
	ErrTypeParsing           ErrorType = "PARSING"
	ErrTypeMissingColumn     ErrorType = "MISSING_COLUMN"
	ErrTypeStorage           ErrorType = "STORAGE"
	ErrTypeValidation        ErrorType = "VALIDATION"
	ErrTypeNotFound          ErrorType = "NOT_FOUND"
	ErrTypeConfig            ErrorType = "CONFIG"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
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

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewSourceUnavailableError reports a workbook that could not be found or fetched.
func NewSourceUnavailableError(source string, cause error) *AppError {
	return NewAppError(ErrTypeSourceUnavailable, fmt.Sprintf("source %s unavailable", source), cause).
		WithContext("source", source)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewMissingColumnError describes a column a computation needed but did not find.
// The pipeline logs these and carries on.
func NewMissingColumnError(table, column string) *AppError {
	return NewAppError(ErrTypeMissingColumn, fmt.Sprintf("%s has no %s column", table, column), nil).
		WithContext("table", table).
		WithContext("column", column)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// IsType reports whether err wraps an AppError of the given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}
