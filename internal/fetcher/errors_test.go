package fetcher

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		wantType  ErrorType
		retryable bool
	}{
		{429, ErrorTypeRateLimit, true},
		{500, ErrorTypeServer, true},
		{503, ErrorTypeServer, true},
		{401, ErrorTypeClient, true},
		{404, ErrorTypeClient, true},
		{204, ErrorTypeUnknown, true},
		{302, ErrorTypeUnknown, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := ClassifyHTTPError(tt.status)
			if err.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", err.Type, tt.wantType)
			}
			if err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", err.Retryable, tt.retryable)
			}
			if err.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", err.StatusCode, tt.status)
			}
		})
	}
}

func TestClassifyTransportError(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	boom := errors.New("connection refused")

	tests := []struct {
		name      string
		ctx       context.Context
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"network", context.Background(), boom, ErrorTypeNetwork, true},
		{"deadline", context.Background(), fmt.Errorf("get: %w", context.DeadlineExceeded), ErrorTypeTimeout, true},
		{"canceled error", context.Background(), context.Canceled, ErrorTypeCancelled, false},
		{"cancelled context", cancelled, boom, ErrorTypeCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyTransportError(tt.ctx, tt.err)
			if err.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", err.Type, tt.wantType)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestFetchError_Error(t *testing.T) {
	if got := NewRateLimitError(429).Error(); got != "rate_limit error (status 429): rate limit exceeded" {
		t.Errorf("Error() = %q", got)
	}
	if got := NewMissingHeaderError("set-cookie").Error(); got != "missing_header error: response has no set-cookie header" {
		t.Errorf("Error() = %q", got)
	}
}

func TestFetchError_Unwrap(t *testing.T) {
	err := fmt.Errorf("cookie: %w", NewCancelledError(context.Canceled))
	if !errors.Is(err, context.Canceled) {
		t.Error("errors.Is(err, context.Canceled) = false, want true")
	}
	if TypeOf(err) != ErrorTypeCancelled {
		t.Errorf("TypeOf = %s, want cancelled", TypeOf(err))
	}
}

func TestIsRetryable_PlainError(t *testing.T) {
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors must not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil must not be retryable")
	}
	if TypeOf(errors.New("plain")) != ErrorTypeUnknown {
		t.Error("TypeOf(plain) should be unknown")
	}
}
