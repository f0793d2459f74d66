package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents payload shape errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeSchema represents schema lookup and declaration errors
	ErrorTypeSchema ErrorType = "schema"
	// ErrorTypeNotFound represents missing records
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeStore represents persistence layer errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeClone represents graph cloning errors
	ErrorTypeClone ErrorType = "clone"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Base returns the embedded BaseError so typed errors can be matched by category.
func (e *BaseError) Base() *BaseError {
	return e
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Validation Errors

// ErrValidation is returned when a payload value does not have the expected shape
type ErrValidation struct {
	*BaseError
	Target   string
	Expected string
	Actual   string
}

func NewValidation(target, expected string, actual any) *ErrValidation {
	actualType := fmt.Sprintf("%T", actual)
	if actual == nil {
		actualType = "null"
	}
	return &ErrValidation{
		BaseError: NewBaseError(ErrorTypeValidation,
			fmt.Sprintf("unable to update %s: expected %s but got %s", target, expected, actualType), nil),
		Target:   target,
		Expected: expected,
		Actual:   actualType,
	}
}

// Schema Errors

// ErrFieldNotFound is returned when a type declares no field with the given name
type ErrFieldNotFound struct {
	*BaseError
	TypeName  string
	FieldName string
}

func NewFieldNotFound(typeName, fieldName string) *ErrFieldNotFound {
	return &ErrFieldNotFound{
		BaseError: NewBaseError(ErrorTypeSchema, fmt.Sprintf("%s has no field named %q", typeName, fieldName), nil),
		TypeName:  typeName,
		FieldName: fieldName,
	}
}

// ErrTypeNotFound is returned when a type is not declared in the schema
type ErrTypeNotFound struct {
	*BaseError
	TypeName string
}

func NewTypeNotFound(typeName string) *ErrTypeNotFound {
	return &ErrTypeNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("type not found: %s", typeName), nil),
		TypeName:  typeName,
	}
}

// ErrUnsupportedRelation is returned when a field cannot take part in an operation
type ErrUnsupportedRelation struct {
	*BaseError
	TypeName  string
	FieldName string
	Kind      string
}

func NewUnsupportedRelation(typeName, fieldName, kind string) *ErrUnsupportedRelation {
	return &ErrUnsupportedRelation{
		BaseError: NewBaseError(ErrorTypeSchema, fmt.Sprintf("unsupported %s relation %s.%s", kind, typeName, fieldName), nil),
		TypeName:  typeName,
		FieldName: fieldName,
		Kind:      kind,
	}
}

// ErrInvalidSchema is returned when a schema declaration is inconsistent
type ErrInvalidSchema struct {
	*BaseError
	TypeName string
	Reason   string
}

func NewInvalidSchema(typeName, reason string) *ErrInvalidSchema {
	return &ErrInvalidSchema{
		BaseError: NewBaseError(ErrorTypeSchema, fmt.Sprintf("invalid schema for %s: %s", typeName, reason), nil),
		TypeName:  typeName,
		Reason:    reason,
	}
}

// Store Errors

// ErrRecordNotFound is returned when a record does not exist in the store
type ErrRecordNotFound struct {
	*BaseError
	TypeName string
	ID       string
}

func NewRecordNotFound(typeName, id string) *ErrRecordNotFound {
	return &ErrRecordNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("%s matching id %q does not exist", typeName, id), nil),
		TypeName:  typeName,
		ID:        id,
	}
}

// ErrStoreQueryFailed is returned when a store operation fails
type ErrStoreQueryFailed struct {
	*BaseError
	Operation string
}

func NewStoreQueryFailed(operation string, err error) *ErrStoreQueryFailed {
	return &ErrStoreQueryFailed{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("store operation failed: %s", operation), err),
		Operation: operation,
	}
}

// Clone Errors

// ErrCycleDetected is returned when cloning revisits a record on the current path
type ErrCycleDetected struct {
	*BaseError
	TypeName string
	ID       string
}

func NewCycleDetected(typeName, id string) *ErrCycleDetected {
	return &ErrCycleDetected{
		BaseError: NewBaseError(ErrorTypeClone, fmt.Sprintf("relation cycle through %s %q", typeName, id), nil),
		TypeName:  typeName,
		ID:        id,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

type baser interface {
	Base() *BaseError
}

// IsErrorType checks if an error, or any error it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if b, ok := err.(baser); ok && b.Base().Type == errType {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsNotFound reports whether err describes a missing record or type
func IsNotFound(err error) bool {
	return IsErrorType(err, ErrorTypeNotFound)
}

// IsValidation reports whether err describes a malformed payload
func IsValidation(err error) bool {
	return IsErrorType(err, ErrorTypeValidation)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if IsErrorType(err, ErrorTypeContext) || IsValidation(err) || IsNotFound(err) {
		return false
	}
	// Store errors may come from a dropped connection or lock timeout
	return IsErrorType(err, ErrorTypeStore)
}
