package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/pinpincloud/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents malformed or out of range input
	CategoryValidation ErrorCategory = "validation"
	// CategoryAuthorization represents missing identity or capability
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents state conflicts such as an already redeemed key
	CategoryConflict ErrorCategory = "conflict"
	// CategoryQuota represents storage plan limits
	CategoryQuota ErrorCategory = "quota"
	// CategoryTransport represents blob store transfer failures
	CategoryTransport ErrorCategory = "transport"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryMaintenance represents requests refused during maintenance
	CategoryMaintenance ErrorCategory = "maintenance"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// HasCode reports whether err is a categorized error carrying code
func HasCode(err error, code string) bool {
	var catErr *CategorizedError
	return stderrors.As(err, &catErr) && catErr.Code == code
}

// Validation errors

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewFileTooLargeError rejects uploads over the per-file cap
func NewFileTooLargeError(size, limit int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusRequestEntityTooLarge,
		Code:       "FILE_TOO_LARGE",
		Message:    fmt.Sprintf("File size must be less than %dMB", limit/(1024*1024)),
		Details: map[string]interface{}{
			"size":  size,
			"limit": limit,
		},
	}
}

// NewSharePasswordTooShortError rejects password shares with a weak password
func NewSharePasswordTooShortError(minLength int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "SHARE_PASSWORD_TOO_SHORT",
		Message:    fmt.Sprintf("Password must be at least %d characters long", minLength),
		Details: map[string]interface{}{
			"minLength": minLength,
		},
	}
}

// Authorization errors

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
	}
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       "FORBIDDEN",
		Message:    message,
	}
}

// NewSelfRoleChangeError rejects a principal editing their own role
func NewSelfRoleChangeError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       "SELF_ROLE_CHANGE",
		Message:    "Cannot change your own role",
	}
}

// NewSelfDeleteError rejects a principal deleting their own account
func NewSelfDeleteError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       "SELF_DELETE",
		Message:    "Cannot delete your own account",
	}
}

// NewSharePasswordRequiredError is returned when a password share is opened without one
func NewSharePasswordRequiredError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       "SHARE_PASSWORD_REQUIRED",
		Message:    "This file is password protected",
	}
}

// NewSharePasswordInvalidError is returned for a wrong share password
func NewSharePasswordInvalidError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       "SHARE_PASSWORD_INVALID",
		Message:    "Incorrect password",
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "CONFLICT",
		Message:    message,
	}
}

// Premium key errors

// NewKeyInvalidError is returned for a key that does not exist
func NewKeyInvalidError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "KEY_INVALID",
		Message:    "Invalid activation key",
	}
}

// NewKeyAlreadyUsedError is returned when the key has been redeemed before
func NewKeyAlreadyUsedError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "KEY_ALREADY_USED",
		Message:    "This key has already been used",
	}
}

// NewKeyExpiredError is returned for a key past its expiry
func NewKeyExpiredError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusGone,
		Code:       "KEY_EXPIRED",
		Message:    "This key has expired",
	}
}

// NewKeyInactiveError is returned for a key a founder has disabled
func NewKeyInactiveError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusForbidden,
		Code:       "KEY_INACTIVE",
		Message:    "This key is no longer active",
	}
}

// NewQuotaExceededError is returned when an upload would overflow the plan
func NewQuotaExceededError(used, size, limit int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryQuota,
		StatusCode: http.StatusForbidden,
		Code:       "QUOTA_EXCEEDED",
		Message:    "Storage limit reached. Upgrade your plan to upload more files.",
		Details: map[string]interface{}{
			"storageUsed":  used,
			"fileSize":     size,
			"storageLimit": limit,
		},
	}
}

// Transport errors carry the messages shown to the user after a failed download

const (
	MessageDownloadAccessDenied = "Access denied. Please try logging in again."
	MessageDownloadNotFound     = "File not found in storage. It may have been deleted."
	MessageDownloadTimeout      = "Download timed out due to slow connection. Please check your internet and try again."
	MessageDownloadNetwork      = "Network error. Please check your connection and try again."
)

// NewDownloadAccessDeniedError classifies a permission failure
func NewDownloadAccessDeniedError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransport,
		StatusCode: http.StatusForbidden,
		Code:       "DOWNLOAD_ACCESS_DENIED",
		Message:    MessageDownloadAccessDenied,
		Cause:      cause,
	}
}

// NewDownloadNotFoundError classifies a missing blob
func NewDownloadNotFoundError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransport,
		StatusCode: http.StatusNotFound,
		Code:       "DOWNLOAD_NOT_FOUND",
		Message:    MessageDownloadNotFound,
		Cause:      cause,
	}
}

// NewDownloadTimeoutError classifies an exhausted transfer
func NewDownloadTimeoutError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransport,
		StatusCode: http.StatusGatewayTimeout,
		Code:       "DOWNLOAD_TIMEOUT",
		Message:    MessageDownloadTimeout,
		Cause:      cause,
	}
}

// NewDownloadNetworkError classifies a connectivity failure
func NewDownloadNetworkError(cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryTransport,
		StatusCode: http.StatusBadGateway,
		Code:       "DOWNLOAD_NETWORK",
		Message:    MessageDownloadNetwork,
		Cause:      cause,
	}
}

// NewStorageError classifies any other blob store failure
func NewStorageError(cause error) *CategorizedError {
	detail := "unknown error"
	if cause != nil {
		detail = cause.Error()
	}
	return &CategorizedError{
		Category:   CategoryTransport,
		StatusCode: http.StatusBadGateway,
		Code:       "STORAGE_ERROR",
		Message:    "Storage error: " + detail,
		Cause:      cause,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// NewMaintenanceError refuses a request while maintenance is active
func NewMaintenanceError(message string, mode types.MaintenanceMode) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryMaintenance,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "MAINTENANCE",
		Message:    message,
		Details: map[string]interface{}{
			"mode": mode,
		},
	}
}

// System Errors (5xx)

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewServiceUnavailableError creates a service unavailable error
func NewServiceUnavailableError(service string) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusServiceUnavailable,
		Code:       "SERVICE_UNAVAILABLE",
		Message:    fmt.Sprintf("service unavailable: %s", service),
		Details: map[string]interface{}{
			"service": service,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return categorizeServiceError(svcErr)
	}

	return NewInternalError("unexpected error", err)
}

// categorizeServiceError categorizes a ServiceError
func categorizeServiceError(err *types.ServiceError) *CategorizedError {
	category, status := CategorySystem, http.StatusInternalServerError
	switch err.Code {
	case "INVALID_PARAMETER", "INVALID_REQUEST", "INVALID_JSON":
		category, status = CategoryValidation, http.StatusBadRequest
	case "NOT_FOUND", "USER_NOT_FOUND", "FILE_NOT_FOUND", "KEY_NOT_FOUND":
		category, status = CategoryNotFound, http.StatusNotFound
	case "UNAUTHORIZED":
		category, status = CategoryAuthorization, http.StatusUnauthorized
	case "FORBIDDEN":
		category, status = CategoryAuthorization, http.StatusForbidden
	case "CONFLICT":
		category, status = CategoryConflict, http.StatusConflict
	}
	return &CategorizedError{
		Category:   category,
		StatusCode: status,
		Code:       err.Code,
		Message:    err.Message,
		Details:    err.Details,
	}
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error is retryable
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryDatabase, CategoryCache:
		return true
	case CategoryTransport:
		return catErr.Code == "DOWNLOAD_NETWORK" || catErr.Code == "DOWNLOAD_TIMEOUT"
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}

// IsSystemError determines if an error is a system error (5xx)
func IsSystemError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 500
}
