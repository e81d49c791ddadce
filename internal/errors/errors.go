// Package errors provides unified error handling for pocket-kb.
//
// SYSTEM ARCHITECTURE ROLE:
// Every layer that can fail in a way the user needs to act on returns an
// AppError, so the CLI can format and log failures consistently.
//
// ERROR TAXONOMY:
// - Validation (per record, recoverable): missing field, empty tag set, unknown entry type
// - Structural (fatal to an index build): duplicate ids, see DuplicateIDError
// - Storage: unreadable or corrupt collection sources
// - Drift: a consistency gate found differences between two collections
//
// Query-time absence is never an error: the index reports it with typed empty
// results. Malformed placeholders are never an error either; stray brackets
// degrade to literal text.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField      ErrorCode = "MISSING_FIELD"
	ErrCodeInvalidFormat     ErrorCode = "INVALID_FORMAT"
	ErrCodeInvalidExpression ErrorCode = "INVALID_EXPRESSION"

	// Structural errors
	ErrCodeDuplicateID ErrorCode = "DUPLICATE_ID"

	// Service errors
	ErrCodeIndexNotBuilt ErrorCode = "INDEX_NOT_BUILT"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"

	// Resource errors
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Storage errors
	ErrCodeStorageFailure ErrorCode = "STORAGE_FAILURE"
	ErrCodeFileNotFound   ErrorCode = "FILE_NOT_FOUND"
	ErrCodeFileCorrupted  ErrorCode = "FILE_CORRUPTED"

	// Consistency errors
	ErrCodeDriftDetected ErrorCode = "DRIFT_DETECTED"

	// Command errors
	ErrCodeCommandFailed ErrorCode = "COMMAND_FAILED"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityInfo     ErrorSeverity = "info"
	SeverityWarning  ErrorSeverity = "warning"
	SeverityError    ErrorSeverity = "error"
	SeverityCritical ErrorSeverity = "critical"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	CategoryValidation  ErrorCategory = "validation"
	CategoryStructural  ErrorCategory = "structural"
	CategoryService     ErrorCategory = "service"
	CategoryStorage     ErrorCategory = "storage"
	CategoryConsistency ErrorCategory = "consistency"
	CategoryCommand     ErrorCategory = "command"
	CategorySystem      ErrorCategory = "system"
)

// AppError represents a standardized application error
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Severity  ErrorSeverity          `json:"severity"`
	Category  ErrorCategory          `json:"category"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
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

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string) *AppError {
	category, severity := categorizeError(code)
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  severity,
		Category:  category,
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with application error context
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := NewAppError(code, message)
	appErr.Cause = err
	return appErr
}

// categorizeError determines the category and severity based on error code
func categorizeError(code ErrorCode) (ErrorCategory, ErrorSeverity) {
	switch code {
	case ErrCodeValidation, ErrCodeInvalidInput, ErrCodeMissingField, ErrCodeInvalidFormat, ErrCodeInvalidExpression:
		return CategoryValidation, SeverityWarning

	case ErrCodeDuplicateID:
		return CategoryStructural, SeverityCritical

	case ErrCodeIndexNotBuilt:
		return CategoryService, SeverityError
	case ErrCodeInternalError:
		return CategoryService, SeverityCritical
	case ErrCodeNotFound:
		return CategoryService, SeverityInfo

	case ErrCodeStorageFailure, ErrCodeFileCorrupted:
		return CategoryStorage, SeverityError
	case ErrCodeFileNotFound:
		return CategoryStorage, SeverityInfo

	case ErrCodeDriftDetected:
		return CategoryConsistency, SeverityError

	case ErrCodeCommandFailed:
		return CategoryCommand, SeverityError

	default:
		return CategorySystem, SeverityError
	}
}

// IsAppError checks if an error is, or wraps, an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError extracts an AppError from an error chain, or converts it to one
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	var dupErr *DuplicateIDError
	if stderrors.As(err, &dupErr) {
		return dupErr.ToAppError()
	}
	return Wrap(err, ErrCodeInternalError, "Internal error occurred")
}

// HasCode reports whether err carries an AppError with the given code
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return GetAppError(err).Code == code
}

// DuplicateIDError is the structural failure of an index build. It lists
// every id that occurs more than once, sorted, so all of them can be fixed in
// one pass.
type DuplicateIDError struct {
	IDs []string
}

// NewDuplicateIDError builds the error from a list of duplicated ids
func NewDuplicateIDError(ids []string) *DuplicateIDError {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	return &DuplicateIDError{IDs: sorted}
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate record ids: %s", strings.Join(e.IDs, ", "))
}

// ToAppError converts the structural error for CLI reporting
func (e *DuplicateIDError) ToAppError() *AppError {
	appErr := Wrap(e, ErrCodeDuplicateID, fmt.Sprintf("%d duplicated record id(s)", len(e.IDs)))
	appErr.WithDetails(strings.Join(e.IDs, ", "))
	appErr.WithContext("duplicate_ids", e.IDs)
	return appErr
}

// Common error constructors for frequently used errors

func ValidationError(message string) *AppError {
	return NewAppError(ErrCodeValidation, message)
}

func InvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message)
}

func NotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func StorageError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeStorageFailure, fmt.Sprintf("Storage operation failed: %s", operation))
}

func CorruptedFileError(path string, err error) *AppError {
	return Wrap(err, ErrCodeFileCorrupted, fmt.Sprintf("Cannot parse %s", path))
}

func DriftError(message string) *AppError {
	return NewAppError(ErrCodeDriftDetected, message)
}
