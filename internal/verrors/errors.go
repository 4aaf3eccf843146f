package verrors

import (
	"fmt"

	"github.com/google/uuid"
)

// VectorizerError is the structured error type used throughout vectorizer.
// It carries enough context for logging, retry decisions and the
// request_id propagated back to callers on every surfaced error.
type VectorizerError struct {
	// Code is the unique error code (e.g., "ERR_201_COLLECTION_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the failure-mode category.
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the caller.
	Suggestion string

	// RequestID identifies the request that produced this error.
	RequestID string
}

// Error implements the error interface.
func (e *VectorizerError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *VectorizerError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code, enabling
// errors.Is() to work with VectorizerError.
func (e *VectorizerError) Is(target error) bool {
	if t, ok := target.(*VectorizerError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error. Returns the error for
// method chaining.
func (e *VectorizerError) WithDetail(key, value string) *VectorizerError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the caller.
func (e *VectorizerError) WithSuggestion(suggestion string) *VectorizerError {
	e.Suggestion = suggestion
	return e
}

// WithRequestID stamps the error with the request ID of the call that
// produced it.
func (e *VectorizerError) WithRequestID(id string) *VectorizerError {
	e.RequestID = id
	return e
}

// New creates a new VectorizerError with the given code and message.
// Category, severity and retryable flag are derived from the code. A
// request ID is generated if none is supplied later via WithRequestID.
func New(code string, message string, cause error) *VectorizerError {
	return &VectorizerError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
		RequestID: uuid.NewString(),
	}
}

// Wrap creates a VectorizerError from an existing error, using the
// wrapped error's message as the VectorizerError message.
func Wrap(code string, err error) *VectorizerError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// NotFound creates a NotFound-category error.
func NotFound(message string, cause error) *VectorizerError {
	return New(ErrCodeCollectionNotFound, message, cause)
}

// ValidationError creates a Validation-category error.
func ValidationError(message string, cause error) *VectorizerError {
	return New(ErrCodeInvalidInput, message, cause)
}

// ConflictError creates a Conflict-category error.
func ConflictError(message string, cause error) *VectorizerError {
	return New(ErrCodeDuplicateID, message, cause)
}

// QuotaError creates a Quota-category error.
func QuotaError(message string, cause error) *VectorizerError {
	return New(ErrCodeCollectionFull, message, cause)
}

// TransientError creates a Transient-category error. Transient errors are
// retryable by default.
func TransientError(message string, cause error) *VectorizerError {
	return New(ErrCodeIOTimeout, message, cause)
}

// AllReplicasDownError creates the Transient-category error the router
// returns when every replica is unhealthy and fallback-to-master is
// disabled.
func AllReplicasDownError(message string, cause error) *VectorizerError {
	return New(ErrCodeAllReplicasDown, message, cause)
}

// EmbeddingError creates an Embedding-category error.
func EmbeddingError(message string, cause error) *VectorizerError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// CorruptedError creates a Corrupted-category error. Corrupted errors are
// always fatal to the affected component.
func CorruptedError(message string, cause error) *VectorizerError {
	return New(ErrCodeArchiveCorrupt, message, cause)
}

// CancelledError creates a Cancelled-category error.
func CancelledError(message string, cause error) *VectorizerError {
	return New(ErrCodeCancelled, message, cause)
}

// InternalError creates a Fatal-category internal error.
func InternalError(message string, cause error) *VectorizerError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err is a VectorizerError with the Retryable
// flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ve, ok := err.(*VectorizerError); ok {
		return ve.Retryable
	}
	return false
}

// IsFatal reports whether err is a VectorizerError with fatal severity.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ve, ok := err.(*VectorizerError); ok {
		return ve.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a VectorizerError, or "" if err is
// not one.
func GetCode(err error) string {
	if ve, ok := err.(*VectorizerError); ok {
		return ve.Code
	}
	return ""
}

// GetCategory extracts the category from a VectorizerError, or "" if err
// is not one.
func GetCategory(err error) Category {
	if ve, ok := err.(*VectorizerError); ok {
		return ve.Category
	}
	return ""
}

// GetRequestID extracts the request ID from a VectorizerError, or "" if
// err is not one.
func GetRequestID(err error) string {
	if ve, ok := err.(*VectorizerError); ok {
		return ve.RequestID
	}
	return ""
}
