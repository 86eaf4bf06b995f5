package errors

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "COMMON_001", ErrCodeInternal.String())
	assert.Equal(t, "DDL_001", ErrCodeDeadlineNotFound.String())
}

func TestHTTPStatusForCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeInternal, 500},
		{ErrCodeBadRequest, 400},
		{ErrCodeNotFound, 404},
		{ErrCodeConflict, 409},
		{ErrCodeValidation, 422},
		{ErrCodeDeadlineNotFound, 404},
		{ErrCodeDeadlineCompleted, 409},
		{ErrCodeDeadlineAccessDenied, 403},
		{ErrCodeAlertDeliveryFailed, 502},
		{ErrCodeDispatchLocked, 409},
		{ErrorCode("NOPE"), 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, HTTPStatusForCode(tt.code), string(tt.code))
	}
}

func TestDefaultMessageForCode(t *testing.T) {
	assert.Equal(t, "internal server error", DefaultMessageForCode(ErrCodeInternal))
	assert.Equal(t, "deadline not found", DefaultMessageForCode(ErrCodeDeadlineNotFound))
	assert.Equal(t, "unknown error", DefaultMessageForCode(ErrorCode("NOPE")))
}

func TestIsClientServerError(t *testing.T) {
	assert.True(t, IsClientError(ErrCodeBadRequest))
	assert.True(t, IsClientError(ErrCodeDeadlineInvalid))
	assert.False(t, IsClientError(ErrCodeInternal))
	assert.True(t, IsServerError(ErrCodeInternal))
	assert.True(t, IsServerError(ErrCodeAlertDeliveryFailed))
	assert.False(t, IsServerError(ErrCodeBadRequest))
}

func TestModuleForCode(t *testing.T) {
	assert.Equal(t, "COMMON", ModuleForCode(ErrCodeInternal))
	assert.Equal(t, "DDL", ModuleForCode(ErrCodeDeadlineNotFound))
	assert.Equal(t, "ALR", ModuleForCode(ErrCodeAlertDeliveryFailed))
	assert.Equal(t, "NTF", ModuleForCode(ErrCodeNotificationNotFound))
	assert.Equal(t, "UNKNOWN", ModuleForCode(ErrorCode("")))
}

func TestErrorCodeMappings_Completeness(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z]+_\d{3}$`)
	for code := range ErrorCodeHTTPStatus {
		assert.Regexp(t, re, string(code))
		_, ok := ErrorCodeMessage[code]
		assert.True(t, ok, "missing message for %s", code)
	}
	assert.Len(t, ErrorCodeMessage, len(ErrorCodeHTTPStatus))
}
