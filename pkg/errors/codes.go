package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeMessageQueue       ErrorCode = "COMMON_015"
)

// Aliases
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeUnauthorized = ErrCodeUnauthorized
	CodeForbidden    = ErrCodeForbidden
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Deadline Module Error Codes
const (
	ErrCodeDeadlineNotFound     ErrorCode = "DDL_001"
	ErrCodeDeadlineInvalid      ErrorCode = "DDL_002"
	ErrCodeDeadlineCompleted    ErrorCode = "DDL_003"
	ErrCodeDeadlineAccessDenied ErrorCode = "DDL_004"
)

// Alert / Notification Module Error Codes
const (
	ErrCodeAlertDeliveryFailed     ErrorCode = "ALR_001"
	ErrCodeAlertChannelUnsupported ErrorCode = "ALR_002"
	ErrCodeDispatchLocked          ErrorCode = "ALR_003"
	ErrCodeNotificationNotFound    ErrorCode = "NTF_001"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeMessageQueue:       http.StatusInternalServerError,

	ErrCodeDeadlineNotFound:     http.StatusNotFound,
	ErrCodeDeadlineInvalid:      http.StatusBadRequest,
	ErrCodeDeadlineCompleted:    http.StatusConflict,
	ErrCodeDeadlineAccessDenied: http.StatusForbidden,

	ErrCodeAlertDeliveryFailed:     http.StatusBadGateway,
	ErrCodeAlertChannelUnsupported: http.StatusBadRequest,
	ErrCodeDispatchLocked:          http.StatusConflict,
	ErrCodeNotificationNotFound:    http.StatusNotFound,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeMessageQueue:       "message queue error",

	ErrCodeDeadlineNotFound:     "deadline not found",
	ErrCodeDeadlineInvalid:      "invalid deadline",
	ErrCodeDeadlineCompleted:    "deadline already completed",
	ErrCodeDeadlineAccessDenied: "access to deadline denied",

	ErrCodeAlertDeliveryFailed:     "failed to deliver alert",
	ErrCodeAlertChannelUnsupported: "unsupported alert channel",
	ErrCodeDispatchLocked:          "alert dispatch already running",
	ErrCodeNotificationNotFound:    "notification not found",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
