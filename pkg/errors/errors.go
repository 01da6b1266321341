package errors

import (
	"errors"
	"fmt"
	"io"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Common application errors
var (
	// Configuration and shape errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrShapeMismatch        = errors.New("shape mismatch")
	ErrInvalidLabel         = errors.New("label out of range")

	// Numerical errors
	ErrNumericalDegeneracy = errors.New("numerical degeneracy")

	// Data errors
	ErrDataNotFound     = errors.New("data not found")
	ErrMalformedData    = errors.New("malformed data")
	ErrEmptyPartition   = errors.New("empty partition")
	ErrUnknownSource    = errors.New("unknown data source")
	ErrInsufficientData = errors.New("insufficient data")

	// Storage errors
	ErrStorageConnectionFailed = errors.New("storage connection failed")
	ErrStorageWriteFailed      = errors.New("storage write failed")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeShape         ErrorType = "shape"
	ErrorTypeNumerical     ErrorType = "numerical"
	ErrorTypeData          ErrorType = "data"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s - %s", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Format prints the cause chain with its stack trace for %+v
func (e *AppError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') && e.Cause != nil {
			fmt.Fprintf(s, "%s: %s", e.Code, e.Message)
			if e.Details != "" {
				fmt.Fprintf(s, " - %s", e.Details)
			}
			fmt.Fprintf(s, ": %+v", e.Cause)
			return
		}
		io.WriteString(s, e.Error())
	case 's':
		io.WriteString(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return sentinelFor(e.Code) == target
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with application context. The cause
// records the stack of the caller.
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   pkgerrors.WithStack(err),
	}
}

// Annotate prefixes the message of an AppError with context, keeping its type
// and code. Other errors are wrapped as internal errors.
func Annotate(err error, context string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		annotated := *appErr
		annotated.Message = context + ": " + appErr.Message
		return &annotated
	}
	return WrapError(err, ErrorTypeInternal, CodeInternal, context)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, code, message)
}

// NewShapeError creates a shape mismatch error. Shape errors are configuration
// errors detected when data meets parameters.
func NewShapeError(code, message string) *AppError {
	return NewAppError(ErrorTypeShape, code, message)
}

// NewNumericalError creates a numerical degeneracy error
func NewNumericalError(code, message string) *AppError {
	return NewAppError(ErrorTypeNumerical, code, message)
}

// NewDataError creates a data loading error
func NewDataError(code, message string) *AppError {
	return NewAppError(ErrorTypeData, code, message)
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// IsType reports whether any AppError in err's chain has the given type.
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// sentinelFor maps codes onto the package sentinels so callers can use
// errors.Is(err, ErrShapeMismatch) without knowing the exact code.
func sentinelFor(code string) error {
	switch code {
	case CodeInvalidConfig, CodeOutOfRange, CodeMissingField:
		return ErrInvalidConfiguration
	case CodeShapeMismatch, CodeDimensionMismatch:
		return ErrShapeMismatch
	case CodeInvalidLabel:
		return ErrInvalidLabel
	case CodeNumericalDegeneracy:
		return ErrNumericalDegeneracy
	case CodeDataNotFound:
		return ErrDataNotFound
	case CodeMalformedData:
		return ErrMalformedData
	case CodeEmptyPartition:
		return ErrEmptyPartition
	case CodeUnknownSource:
		return ErrUnknownSource
	case CodeInsufficientData:
		return ErrInsufficientData
	case CodeConnectionFailed:
		return ErrStorageConnectionFailed
	case CodeWriteFailed:
		return ErrStorageWriteFailed
	default:
		return nil
	}
}

// ValidationErrorDetail represents detailed validation error information
type ValidationErrorDetail struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
}

// ValidationErrors collects every configuration problem found in one pass
type ValidationErrors struct {
	Message string                  `json:"message"`
	Errors  []ValidationErrorDetail `json:"errors"`
}

// Error implements the error interface for ValidationErrors
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return ve.Message
	}
	parts := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return fmt.Sprintf("%s: %s", ve.Message, strings.Join(parts, "; "))
}

// Is lets errors.Is(err, ErrInvalidConfiguration) match a ValidationErrors
func (ve *ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field, code, message string, value interface{}) {
	ve.Errors = append(ve.Errors, ValidationErrorDetail{
		Field:   field,
		Value:   value,
		Message: message,
		Code:    code,
	})
}

// HasErrors checks if there are any validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ErrorOrNil returns ve when it holds errors and nil otherwise
func (ve *ValidationErrors) ErrorOrNil() error {
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// NewValidationErrors creates a new ValidationErrors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Message: "invalid configuration",
		Errors:  make([]ValidationErrorDetail, 0),
	}
}

// Error codes for different error scenarios
const (
	// Configuration error codes
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeMissingField  = "MISSING_FIELD"
	CodeOutOfRange    = "OUT_OF_RANGE"

	// Shape error codes
	CodeShapeMismatch     = "SHAPE_MISMATCH"
	CodeDimensionMismatch = "DIMENSION_MISMATCH"
	CodeInvalidLabel      = "INVALID_LABEL"

	// Numerical error codes
	CodeNumericalDegeneracy = "NUMERICAL_DEGENERACY"

	// Data error codes
	CodeDataNotFound     = "DATA_NOT_FOUND"
	CodeMalformedData    = "MALFORMED_DATA"
	CodeEmptyPartition   = "EMPTY_PARTITION"
	CodeUnknownSource    = "UNKNOWN_SOURCE"
	CodeInsufficientData = "INSUFFICIENT_DATA"

	// Storage error codes
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeWriteFailed      = "WRITE_FAILED"

	// Internal error codes
	CodeInternal = "INTERNAL"
)
