package models

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeOracle     ErrorType = "oracle"
	ErrorTypeStore      ErrorType = "store"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError is the error shape every service in this repo returns.
// Code is stable and machine-readable, Message is safe to show to a user.
type AppError struct {
	Type     ErrorType              `json:"type"`
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Cause    error                  `json:"-"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on Type and Code so copies produced by WithCause or WithMetadata
// still compare equal to their sentinel under errors.Is.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Type == other.Type && e.Code == other.Code
}

// WithCause returns a copy carrying the underlying error. Shared sentinel
// errors stay untouched.
func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	clone := *e
	clone.Metadata = make(map[string]interface{}, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		clone.Metadata[k] = v
	}
	clone.Metadata[key] = value
	return &clone
}

func NewOracleError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeOracle, Code: code, Message: message}
}

func NewStoreError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeStore, Code: code, Message: message}
}

func NewValidationError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeValidation, Code: code, Message: message}
}

func NewInternalError(code, message string) *AppError {
	return &AppError{Type: ErrorTypeInternal, Code: code, Message: message}
}

var (
	ErrProductNotFound = NewStoreError("PRODUCT_NOT_FOUND", "Product not found")
	ErrRunNotFound     = NewStoreError("RUN_NOT_FOUND", "Workflow run not found")
)

func IsOracleError(err error) bool {
	return hasErrorType(err, ErrorTypeOracle)
}

func IsStoreError(err error) bool {
	return hasErrorType(err, ErrorTypeStore)
}

func IsValidationError(err error) bool {
	return hasErrorType(err, ErrorTypeValidation)
}

func hasErrorType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// UserFacingMessage extracts the message suitable for a customer-visible
// status line, falling back to the raw error text.
func UserFacingMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
