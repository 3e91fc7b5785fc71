package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/onnwee/blogcache/internal/cache"
	"github.com/onnwee/blogcache/internal/logger"
)

// ErrorCode represents a structured error code
type ErrorCode string

// Error code constants organized by category
const (
	// CACHE_ - Cache operation errors
	ErrCacheEntryTooLarge ErrorCode = "CACHE_ENTRY_TOO_LARGE"
	ErrCacheReservedKey   ErrorCode = "CACHE_RESERVED_KEY"
	ErrCacheMiss          ErrorCode = "CACHE_MISS"

	// SYSTEM_ - System and server errors
	ErrSystemInternal    ErrorCode = "SYSTEM_INTERNAL"
	ErrSystemUnavailable ErrorCode = "SYSTEM_UNAVAILABLE"

	// VALIDATION_ - Request validation errors
	ErrValidationInvalidJSON  ErrorCode = "VALIDATION_INVALID_JSON"
	ErrValidationInvalidValue ErrorCode = "VALIDATION_INVALID_VALUE"

	// RATE_LIMIT_ - Rate limiting errors
	ErrRateLimitGlobal ErrorCode = "RATE_LIMIT_GLOBAL"
)

// Error represents a structured API error
type Error struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	status    int                    // HTTP status code (not serialized)
}

// ErrorResponse is the top-level error response wrapper
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// New creates a new API error
func New(code ErrorCode, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		status:  status,
	}
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to the error
func (e *Error) WithRequestID(requestID string) *Error {
	e.RequestID = requestID
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Status returns the HTTP status code
func (e *Error) Status() int {
	return e.status
}

// WriteError writes a structured error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	json.NewEncoder(w).Encode(ErrorResponse{Error: err})
}

// CacheEntryTooLarge reports a value bigger than the whole cache.
// A negative size means the size is unknown and is left out of the details.
func CacheEntryTooLarge(size, limit int64) *Error {
	details := map[string]interface{}{"limit_bytes": limit}
	if size >= 0 {
		details["size_bytes"] = size
	}
	return New(ErrCacheEntryTooLarge, "Entry exceeds the cache size limit", http.StatusRequestEntityTooLarge).
		WithDetails(details)
}

// CacheReservedKey reports a key used for internal bookkeeping.
func CacheReservedKey(key string) *Error {
	return New(ErrCacheReservedKey, "Key is reserved", http.StatusBadRequest).
		WithDetails(map[string]interface{}{"key": key})
}

// CacheMiss reports a key that is absent or expired.
func CacheMiss(key string) *Error {
	return New(ErrCacheMiss, "Key not cached", http.StatusNotFound).
		WithDetails(map[string]interface{}{"key": key})
}

// SystemInternal creates an internal server error
func SystemInternal(message string) *Error {
	if message == "" {
		message = "Internal server error"
	}
	return New(ErrSystemInternal, message, http.StatusInternalServerError)
}

// SystemUnavailable creates a service unavailable error
func SystemUnavailable(message string) *Error {
	if message == "" {
		message = "Service unavailable"
	}
	return New(ErrSystemUnavailable, message, http.StatusServiceUnavailable)
}

// ValidationInvalidJSON creates an invalid JSON error
func ValidationInvalidJSON() *Error {
	return New(ErrValidationInvalidJSON, "Invalid JSON request body", http.StatusBadRequest)
}

// ValidationInvalidValue creates an invalid value error
func ValidationInvalidValue(field string, message string) *Error {
	if message == "" {
		message = "Invalid value for field: " + field
	}
	return New(ErrValidationInvalidValue, message, http.StatusBadRequest).
		WithDetails(map[string]interface{}{"field": field})
}

// RateLimitGlobal creates a global rate limit error
func RateLimitGlobal() *Error {
	return New(ErrRateLimitGlobal, "Rate limit exceeded - too many requests", http.StatusTooManyRequests)
}

// FromCache maps an error returned by a cache write to an API error. size and limit
// fill in the details of CACHE_ENTRY_TOO_LARGE. Unrecognised errors become SYSTEM_INTERNAL.
func FromCache(err error, key string, size, limit int64) *Error {
	switch {
	case errors.Is(err, cache.ErrEntryTooLarge):
		return CacheEntryTooLarge(size, limit)
	case errors.Is(err, cache.ErrReservedKey):
		return CacheReservedKey(key)
	default:
		return SystemInternal("")
	}
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// WriteErrorWithContext writes a structured error response with request ID from context
func WriteErrorWithContext(w http.ResponseWriter, r *http.Request, err *Error) {
	if reqID := GetRequestID(r.Context()); reqID != "" {
		err = err.WithRequestID(reqID)
	}
	WriteError(w, err)
}
