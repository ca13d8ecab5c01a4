package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without cause",
			err:      New(CodeNotConnected, "session not connected"),
			expected: "[NOT_CONNECTED] session not connected",
		},
		{
			name:     "with cause",
			err:      Wrap(errors.New("connection refused"), CodeConnectionError, "failed to dial"),
			expected: "[CONNECTION_ERROR] failed to dial: connection refused",
		},
		{
			name:     "formatted message",
			err:      Newf(CodeInvalidParam, "invalid port: %d", 99999),
			expected: "[INVALID_PARAM] invalid port: 99999",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err1 := New(CodeInvalidState, "handshake required")
	err2 := New(CodeInvalidState, "udp not opened")
	err3 := New(CodeTimeout, "timed out")

	// 相同错误码应该匹配
	if !errors.Is(err1, err2) {
		t.Error("errors with same code should match")
	}

	// 不同错误码不应该匹配
	if errors.Is(err1, err3) {
		t.Error("errors with different code should not match")
	}

	// 使用哨兵错误
	if !errors.Is(err1, ErrInvalidState) {
		t.Error("should match sentinel error with same code")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("original error")
	wrapped := Wrap(cause, CodeInternal, "wrapped")

	if errors.Unwrap(wrapped) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestGetCode(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", New(CodeRemoteCall, "remote failed"))

	if got := GetCode(wrapped); got != CodeRemoteCall {
		t.Errorf("GetCode() = %v, want %v", got, CodeRemoteCall)
	}
	if got := GetCode(errors.New("plain")); got != CodeInternal {
		t.Errorf("GetCode() = %v, want %v", got, CodeInternal)
	}
	if !IsCode(wrapped, CodeRemoteCall) {
		t.Error("IsCode should see through fmt wrapping")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(CodeTimeout, "timeout")) {
		t.Error("timeout should be retryable")
	}
	if IsRetryable(New(CodeInvalidState, "bad state")) {
		t.Error("invalid state should not be retryable")
	}
}
