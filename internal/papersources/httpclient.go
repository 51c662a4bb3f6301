package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/helixir/training-evidence-curator/internal/domain"
)

// maxResponseBytes caps how much of a response body is read into memory.
const maxResponseBytes = 10 << 20

// DefaultUserAgent is sent when HTTPClientConfig.UserAgent is empty.
const DefaultUserAgent = "TrainingEvidenceCurator/1.0"

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Source attributes failures to a collector.
	Source domain.SourceType

	// Timeout is the per-attempt request timeout.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// RetryDelay is the initial backoff delay. It doubles on each retry.
	RetryDelay time.Duration

	// MaxRetryDelay caps a single backoff delay, including Retry-After.
	MaxRetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g., "x-api-key").
	APIKeyHeader string
}

func (c *HTTPClientConfig) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.MaxRetryDelay == 0 {
		c.MaxRetryDelay = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
}

// HTTPClient wraps http.Client with rate limiting and retries.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates an HTTP client that waits on limiter before every
// attempt. A nil limiter gets a permissive default of 10 requests per second.
func NewHTTPClient(cfg HTTPClientConfig, limiter *RateLimiter) *HTTPClient {
	cfg.applyDefaults()
	if limiter == nil {
		limiter = NewRateLimiter(10, 10)
	}
	return &HTTPClient{
		client:      &http.Client{Timeout: cfg.Timeout},
		rateLimiter: limiter,
		config:      cfg,
	}
}

// retryAfterBackOff lets a server's Retry-After header override the next
// exponential delay once.
type retryAfterBackOff struct {
	backoff.BackOff
	override time.Duration
	ceiling  time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.override > 0 {
		next = b.override
		b.override = 0
	}
	if next > b.ceiling {
		next = b.ceiling
	}
	return next
}

// Do executes an HTTP request with rate limiting and retries.
// Network errors, 408, 429 and 5xx responses are retried with exponential
// backoff up to MaxRetries; a Retry-After header replaces the next delay.
// When retries run out the error is a *domain.TransientSourceError. Other
// responses, including non-2xx ones, are returned to the caller.
//
// Requests with a body must set GetBody to be retried.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.config.RetryDelay
	exp.MaxInterval = c.config.MaxRetryDelay
	exp.MaxElapsedTime = 0
	policy := &retryAfterBackOff{
		BackOff: backoff.WithMaxRetries(exp, uint64(c.config.MaxRetries)),
		ceiling: c.config.MaxRetryDelay,
	}

	var (
		resp     *http.Response
		attempts int
	)
	operation := func() error {
		attempts++
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		if attempts > 1 {
			if err := resetRequestBody(req); err != nil {
				return backoff.Permanent(fmt.Errorf("cannot retry request: %w", err))
			}
		}

		r, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("request failed: %w", err)
		}

		if shouldRetry(r.StatusCode) {
			policy.override = retryAfter(r)
			body, _ := io.ReadAll(io.LimitReader(r.Body, 4<<10))
			r.Body.Close()
			return domain.NewExternalAPIError(string(c.config.Source), r.StatusCode, string(body), nil)
		}

		resp = r
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	if attempts <= c.config.MaxRetries {
		// Permanent failure before the budget was spent.
		return nil, err
	}
	return nil, &domain.TransientSourceError{Source: c.config.Source, Attempts: attempts, Cause: err}
}

// Get issues a GET request and returns the body of a 200 response. Any other
// status becomes a *domain.ExternalAPIError carrying the response body.
func (c *HTTPClient) Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewExternalAPIError(string(c.config.Source), resp.StatusCode, string(body), nil)
	}
	return body, nil
}

// shouldRetry returns true if the status code indicates we should retry.
func shouldRetry(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}

// retryAfter parses a Retry-After header given either in seconds or as an
// HTTP date. Zero means the header was absent or unusable.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if seconds, err := strconv.ParseInt(v, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return 0
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// resetRequestBody resets the request body for retry if possible.
func resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}
