package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates that the request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that an external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrCancelled indicates that an operation was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrNoIdentifier indicates that a record has neither a title nor any identifier.
	ErrNoIdentifier = errors.New("no identifier")

	// ErrInvalidTransition indicates a pipeline stage transition that the state machine forbids.
	ErrInvalidTransition = errors.New("invalid stage transition")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether the status code is worth retrying.
// StatusCode 0 means no HTTP response was received.
func (e *ExternalAPIError) IsTransient() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// TransientSourceError is returned when a source stays unreachable (network
// failure, timeout, 429, 5xx) after the retry budget is spent. The collector
// skips the source for the current batch.
type TransientSourceError struct {
	Source   SourceType
	Attempts int
	Cause    error
}

// Error implements the error interface.
func (e *TransientSourceError) Error() string {
	return fmt.Sprintf("source %s unavailable after %d attempts: %v", e.Source, e.Attempts, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *TransientSourceError) Unwrap() error {
	return e.Cause
}

// MalformedRecordError marks a candidate record that lacks the fields needed
// to identify it. The record is dropped; the batch continues.
type MalformedRecordError struct {
	Source SourceType
	Reason string
}

// Error implements the error interface.
func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s record: %s", e.Source, e.Reason)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *MalformedRecordError) Unwrap() error {
	return ErrNoIdentifier
}

// DuplicateConflictError is raised when the store's uniqueness constraint
// rejects a paper that another accepted paper already claimed.
type DuplicateConflictError struct {
	IdentityKey string
	DOI         string
	Constraint  string
}

// Error implements the error interface.
func (e *DuplicateConflictError) Error() string {
	return fmt.Sprintf("duplicate paper %s (doi %q) rejected by constraint %s", e.IdentityKey, e.DOI, e.Constraint)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *DuplicateConflictError) Unwrap() error {
	return ErrAlreadyExists
}

// AssessmentUnavailableError marks a paper the scoring collaborator could not
// judge. Such papers are undecidable, never rejected.
type AssessmentUnavailableError struct {
	PaperID string
	Cause   error
}

// Error implements the error interface.
func (e *AssessmentUnavailableError) Error() string {
	return fmt.Sprintf("assessment unavailable for paper %s: %v", e.PaperID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *AssessmentUnavailableError) Unwrap() error {
	return e.Cause
}

// EnrichmentStep names the full-text step that failed.
type EnrichmentStep string

const (
	EnrichmentStepDownload EnrichmentStep = "download"
	EnrichmentStepStore    EnrichmentStep = "store"
	EnrichmentStepExtract  EnrichmentStep = "extract"
	EnrichmentStepEmbed    EnrichmentStep = "embed"
)

// EnrichmentFailure records a best-effort enrichment step that failed. The
// paper is still persisted, just without the enrichment.
type EnrichmentFailure struct {
	PaperID string
	Step    EnrichmentStep
	Cause   error
}

// Error implements the error interface.
func (e *EnrichmentFailure) Error() string {
	return fmt.Sprintf("enrichment %s failed for paper %s: %v", e.Step, e.PaperID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *EnrichmentFailure) Unwrap() error {
	return e.Cause
}

// CheckpointCorruption marks an unreadable or version-mismatched checkpoint.
// Callers treat it as an absent checkpoint and recompute the stage.
type CheckpointCorruption struct {
	Domain string
	Stage  Stage
	Reason string
}

// Error implements the error interface.
func (e *CheckpointCorruption) Error() string {
	return fmt.Sprintf("checkpoint %s/%s corrupt: %s", e.Domain, e.Stage, e.Reason)
}

// FatalStoreError reports that the persistence layer is unreachable. It is the
// only failure that aborts a domain run.
type FatalStoreError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *FatalStoreError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *FatalStoreError) Unwrap() error {
	return e.Cause
}

// RateLimitError provides details about a rate limit response.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Source: source, RetryAfter: retryAfter}
}

// IsTransient reports whether err is worth retrying: rate limiting, service
// unavailability, or an external API error with a retriable status.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServiceUnavailable) {
		return true
	}
	var apiErr *ExternalAPIError
	if errors.As(err, &apiErr) {
		return apiErr.IsTransient()
	}
	return false
}

// IsFatalStore reports whether err carries a FatalStoreError.
func IsFatalStore(err error) bool {
	var fatal *FatalStoreError
	return errors.As(err, &fatal)
}
