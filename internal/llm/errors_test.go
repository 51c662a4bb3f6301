package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_Error(t *testing.T) {
	t.Parallel()

	withType := &APIError{Provider: "openai", StatusCode: 429, Message: "rate limit exceeded", Type: "rate_limit_error"}
	assert.Equal(t, "openai: API error (status 429, type rate_limit_error): rate limit exceeded", withType.Error())

	plain := &APIError{Provider: "openai", StatusCode: 500, Message: "internal server error", Code: "server_fault"}
	assert.Equal(t, "openai: API error (status 500): internal server error", plain.Error())
}

func TestAPIError_IsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		statusCode int
		want       bool
	}{
		{statusCode: 0, want: true},
		{statusCode: 429, want: true},
		{statusCode: 500, want: true},
		{statusCode: 503, want: true},
		{statusCode: 400, want: false},
		{statusCode: 401, want: false},
		{statusCode: 404, want: false},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("status %d", tc.statusCode), func(t *testing.T) {
			t.Parallel()
			err := &APIError{Provider: "openai", StatusCode: tc.statusCode}
			assert.Equal(t, tc.want, err.IsTransient())
		})
	}
}

func TestIsTransientError(t *testing.T) {
	t.Parallel()

	assert.False(t, isTransientError(nil))
	assert.True(t, isTransientError(fmt.Errorf("wrapped: %w", &APIError{StatusCode: 502})))
	assert.False(t, isTransientError(&APIError{StatusCode: 400}))
	assert.True(t, isTransientError(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.False(t, isTransientError(errors.New("bad json")))
}

func TestErrorType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "rate_limit_error", errorType(&APIError{StatusCode: 429, Type: "rate_limit_error"}))
	assert.Equal(t, "http_502", errorType(&APIError{StatusCode: 502}))
	assert.Equal(t, "context", errorType(context.Canceled))
	assert.Equal(t, "other", errorType(errors.New("boom")))
}
