package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// APIError represents an error returned by an OpenAI-compatible API.
type APIError struct {
	// Provider is the name of the API provider (e.g., "openai").
	Provider string
	// StatusCode is the HTTP status code returned by the API.
	StatusCode int
	// Message is the error message from the API.
	Message string
	// Type is the error type classification from the API.
	Type string
	// Code is the provider-specific error code (if available).
	Code string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s: API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsTransient returns true if the error may succeed on retry: rate limiting
// (429), server errors (5xx) and network errors (StatusCode 0, no response).
func (e *APIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// errorType returns a short label for metrics.
func errorType(err error) string {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Type != "" {
			return apiErr.Type
		}
		return fmt.Sprintf("http_%d", apiErr.StatusCode)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context"
	default:
		return "other"
	}
}

// isTransientError reports whether err is worth retrying. Cancellation of
// the caller's context is checked separately by the retry loop.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsTransient()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
