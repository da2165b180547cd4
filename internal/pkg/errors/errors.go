package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code for each error type
type ErrorCode string

const (
	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeBadRequest   ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeConflict     ErrorCode = "CONFLICT"

	// Column configuration errors
	ErrCodeInvalidConfig  ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingLibrary ErrorCode = "MISSING_LIBRARY"
	ErrCodeInvalidMapping ErrorCode = "INVALID_MAPPING"

	// Discovery / classification errors
	ErrCodeDiscoveryFailed     ErrorCode = "DISCOVERY_FAILED"
	ErrCodeClassificationBatch ErrorCode = "CLASSIFICATION_BATCH_FAILED"
	ErrCodeLLMRequestFailed    ErrorCode = "LLM_REQUEST_FAILED"
	ErrCodeLLMInvalidResponse  ErrorCode = "LLM_INVALID_RESPONSE"

	// Task lifecycle errors
	ErrCodeTaskNotFound ErrorCode = "TASK_NOT_FOUND"
	ErrCodeTaskConflict ErrorCode = "TASK_CONFLICT"

	// File errors
	ErrCodeFileNotFound  ErrorCode = "FILE_NOT_FOUND"
	ErrCodeColumnMissing ErrorCode = "COLUMN_MISSING"
	ErrCodeTooFewRecords ErrorCode = "TOO_FEW_RECORDS"

	// Database errors
	ErrCodeDatabaseError  ErrorCode = "DATABASE_ERROR"
	ErrCodeRecordNotFound ErrorCode = "RECORD_NOT_FOUND"

	// Cache
	ErrCodeCacheMiss ErrorCode = "CACHE_MISS"
)

// AppError represents a structured application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional context to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with AppError context
func Wrap(err error, code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Common error constructors

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message, http.StatusInternalServerError)
}

func InternalWrap(err error, message string) *AppError {
	return Wrap(err, ErrCodeInternal, message, http.StatusInternalServerError)
}

func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message, http.StatusNotFound)
}

func BadRequest(message string) *AppError {
	return New(ErrCodeBadRequest, message, http.StatusBadRequest)
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message, http.StatusConflict)
}

// Column configuration errors

func InvalidConfig(column, message string) *AppError {
	return New(ErrCodeInvalidConfig, message, http.StatusBadRequest).
		WithDetails("column", column)
}

func MissingLibrary(column string, libraryID uint) *AppError {
	return New(ErrCodeMissingLibrary,
		fmt.Sprintf("code library %d not found", libraryID),
		http.StatusBadRequest).
		WithDetails("column", column)
}

func InvalidMapping(column string, err error) *AppError {
	return Wrap(err, ErrCodeInvalidMapping,
		"mapping_dict must be a flat string-to-string object",
		http.StatusBadRequest).
		WithDetails("column", column)
}

// Discovery / classification errors

func DiscoveryFailed(err error, engine string) *AppError {
	return Wrap(err, ErrCodeDiscoveryFailed,
		fmt.Sprintf("code discovery failed (engine %s)", engine),
		http.StatusInternalServerError)
}

func LLMRequestFailed(err error) *AppError {
	return Wrap(err, ErrCodeLLMRequestFailed, "LLM request failed", http.StatusInternalServerError)
}

func LLMInvalidResponse(message string) *AppError {
	return New(ErrCodeLLMInvalidResponse, message, http.StatusInternalServerError)
}

// Task lifecycle errors

func TaskNotFound(taskID string) *AppError {
	return New(ErrCodeTaskNotFound, "task not found", http.StatusNotFound).
		WithDetails("task_id", taskID)
}

// TaskConflict is returned when a start, rerun or delete collides with an
// active worker for the same task.
func TaskConflict(taskID, message string) *AppError {
	return New(ErrCodeTaskConflict, message, http.StatusConflict).
		WithDetails("task_id", taskID)
}

// File errors

func FileNotFound(fileID string) *AppError {
	return New(ErrCodeFileNotFound, "file not found", http.StatusNotFound).
		WithDetails("file_id", fileID)
}

func ColumnMissing(column string) *AppError {
	return New(ErrCodeColumnMissing,
		fmt.Sprintf("column %q not present in file", column),
		http.StatusBadRequest)
}

func TooFewRecords(got, min int) *AppError {
	return New(ErrCodeTooFewRecords,
		fmt.Sprintf("need at least %d records, got %d", min, got),
		http.StatusBadRequest)
}

// Database errors

func DatabaseError(err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, "database operation failed", http.StatusInternalServerError)
}

func RecordNotFound(resource string) *AppError {
	return New(ErrCodeRecordNotFound,
		fmt.Sprintf("%s not found", resource),
		http.StatusNotFound)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}
