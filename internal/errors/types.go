package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeRoute      ErrorType = "route"
	ErrorTypeRepository ErrorType = "repository"
	ErrorTypeInternal   ErrorType = "internal"
)

// ReactiveError is a structured error type with context.
type ReactiveError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Store       string
	Path        string
	Recoverable bool
}

// Error implements the error interface.
func (e *ReactiveError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Store != "" {
		parts = append(parts, "store:"+e.Store)
	}

	if e.Path != "" {
		parts = append(parts, "path:"+e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ReactiveError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *ReactiveError) Is(target error) bool {
	var t *ReactiveError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *ReactiveError) WithContext(key string, value interface{}) *ReactiveError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithStore adds the name of the store the error relates to.
func (e *ReactiveError) WithStore(store string) *ReactiveError {
	e.Store = store

	return e
}

// WithPath adds the observable path the error relates to.
func (e *ReactiveError) WithPath(path string) *ReactiveError {
	e.Path = path

	return e
}

// Error creation functions

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *ReactiveError {
	return &ReactiveError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *ReactiveError {
	return &ReactiveError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *ReactiveError {
	return &ReactiveError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewNetworkError creates a network error. Network errors are retryable.
func NewNetworkError(code, message string, cause error) *ReactiveError {
	return &ReactiveError{
		Type:        ErrorTypeNetwork,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewRouteError creates a routing error.
func NewRouteError(code, message string) *ReactiveError {
	return &ReactiveError{
		Type:        ErrorTypeRoute,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewRepositoryError creates a repository error.
func NewRepositoryError(code, message string, cause error) *ReactiveError {
	return &ReactiveError{
		Type:        ErrorTypeRepository,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *ReactiveError {
	return &ReactiveError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Error recovery and handling utilities

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var re *ReactiveError
	if errors.As(err, &re) {
		return re.Recoverable
	}

	return false
}

// IsNotFound reports whether err denotes a missing store, path, route or record.
func IsNotFound(err error) bool {
	var re *ReactiveError
	if !errors.As(err, &re) {
		return false
	}

	switch re.Code {
	case ErrCodeStoreNotFound, ErrCodePathNotFound, ErrCodeRouteNotFound, ErrCodeRecordNotFound:
		return true
	}

	return false
}

// HasType checks whether err is a ReactiveError of the given type.
func HasType(err error, t ErrorType) bool {
	var re *ReactiveError
	if errors.As(err, &re) {
		return re.Type == t
	}

	return false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle processes an error with appropriate logging.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var re *ReactiveError
	if !errors.As(err, &re) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	fields := []interface{}{"type", re.Type, "code", re.Code}
	if re.Store != "" {
		fields = append(fields, "store", re.Store)
	}
	if re.Path != "" {
		fields = append(fields, "path", re.Path)
	}

	if !IsRecoverable(err) {
		h.logger.Error(ctx, err, "Error occurred", fields...)
		return
	}
	switch re.Type {
	case ErrorTypeNetwork, ErrorTypeRepository:
		h.logger.Warn(ctx, err, "Repository error occurred", fields...)
	default:
		h.logger.Warn(ctx, err, "Request error occurred", fields...)
	}
}

// Common error codes.
const (
	ErrCodeInvalidPath      = "ERR_INVALID_PATH"
	ErrCodePathNotFound     = "ERR_PATH_NOT_FOUND"
	ErrCodeCyclicValue      = "ERR_CYCLIC_VALUE"
	ErrCodeStoreNotFound    = "ERR_STORE_NOT_FOUND"
	ErrCodeStoreExists      = "ERR_STORE_EXISTS"
	ErrCodeRouteInvalid     = "ERR_ROUTE_INVALID"
	ErrCodeRouteNotFound    = "ERR_ROUTE_NOT_FOUND"
	ErrCodeRecordNotFound   = "ERR_RECORD_NOT_FOUND"
	ErrCodeRequestFailed    = "ERR_REQUEST_FAILED"
	ErrCodeDecodeFailed     = "ERR_DECODE_FAILED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound     = "ERR_FILE_NOT_FOUND"
	ErrCodeInternalError    = "ERR_INTERNAL"
	ErrCodeValidationFailed = "ERR_VALIDATION_FAILED"
)

// ValidationError interface for field-specific validation errors.
type ValidationError interface {
	error
	Field() string
	Value() interface{}
	Suggestions() []string
}

// FieldValidationError implements ValidationError for specific field errors.
type FieldValidationError struct {
	FieldName    string
	FieldValue   interface{}
	ErrorMessage string
	HelpText     []string
}

// Error implements the error interface.
func (fve *FieldValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", fve.FieldName, fve.ErrorMessage)
}

// Field returns the field name that failed validation.
func (fve *FieldValidationError) Field() string {
	return fve.FieldName
}

// Value returns the invalid value.
func (fve *FieldValidationError) Value() interface{} {
	return fve.FieldValue
}

// Suggestions returns helpful suggestions for fixing the error.
func (fve *FieldValidationError) Suggestions() []string {
	return fve.HelpText
}

// NewFieldValidationError creates a new field validation error.
func NewFieldValidationError(
	field string,
	value interface{},
	message string,
	suggestions ...string,
) *FieldValidationError {
	return &FieldValidationError{
		FieldName:    field,
		FieldValue:   value,
		ErrorMessage: message,
		HelpText:     suggestions,
	}
}

// ValidationErrorCollection represents a collection of validation errors.
type ValidationErrorCollection struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (vec *ValidationErrorCollection) Error() string {
	if len(vec.Errors) == 0 {
		return "no validation errors"
	}
	if len(vec.Errors) == 1 {
		return vec.Errors[0].Error()
	}

	return fmt.Sprintf("validation failed with %d errors", len(vec.Errors))
}

// Add adds a validation error to the collection.
func (vec *ValidationErrorCollection) Add(err ValidationError) {
	vec.Errors = append(vec.Errors, err)
}

// AddField adds a field validation error to the collection.
func (vec *ValidationErrorCollection) AddField(
	field string,
	value interface{},
	message string,
	suggestions ...string,
) {
	vec.Add(NewFieldValidationError(field, value, message, suggestions...))
}

// HasErrors returns true if there are any validation errors.
func (vec *ValidationErrorCollection) HasErrors() bool {
	return len(vec.Errors) > 0
}

// ToReactiveError converts the validation collection to a ReactiveError.
func (vec *ValidationErrorCollection) ToReactiveError() *ReactiveError {
	if !vec.HasErrors() {
		return nil
	}

	var messages []string
	context := make(map[string]interface{})

	for _, err := range vec.Errors {
		messages = append(messages, err.Error())
		context[err.Field()] = map[string]interface{}{
			"value":       err.Value(),
			"suggestions": err.Suggestions(),
		}
	}

	return &ReactiveError{
		Type:        ErrorTypeConfig,
		Code:        ErrCodeValidationFailed,
		Message:     strings.Join(messages, "; "),
		Context:     context,
		Recoverable: false,
	}
}

// Helper functions for common errors

// ErrInvalidPath creates a path validation error.
func ErrInvalidPath(path string) *ReactiveError {
	return NewValidationError(ErrCodeInvalidPath, "invalid path: "+path).WithPath(path)
}

// ErrPathNotFound creates an error for a path that does not resolve.
func ErrPathNotFound(path string) *ReactiveError {
	return NewValidationError(ErrCodePathNotFound, "path not found: "+path).WithPath(path)
}

// ErrCyclicValue creates an error for a value graph that cannot be serialized.
func ErrCyclicValue(path string) *ReactiveError {
	return NewValidationError(ErrCodeCyclicValue, "cyclic value").WithPath(path)
}

// ErrStoreNotFound creates a store not found error.
func ErrStoreNotFound(name string) *ReactiveError {
	return NewValidationError(ErrCodeStoreNotFound, "store not found: "+name).WithStore(name)
}

// ErrStoreExists creates a duplicate store error.
func ErrStoreExists(name string) *ReactiveError {
	return NewValidationError(ErrCodeStoreExists, "store already registered: "+name).WithStore(name)
}

// ErrRouteNotFound creates an error for a URL that matches no route.
func ErrRouteNotFound(url string) *ReactiveError {
	return NewRouteError(ErrCodeRouteNotFound, "no route matches: "+url)
}

// ErrRecordNotFound creates a repository record not found error.
func ErrRecordNotFound(id string) *ReactiveError {
	return NewRepositoryError(ErrCodeRecordNotFound, "record not found: "+id, nil).
		WithContext("id", id)
}
