// Package llm provides clients for OpenAI-compatible chat completion and
// embedding endpoints, used for paper quality assessment and vector
// embeddings.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/helixir/training-evidence-curator/internal/observability"
)

// Default values for the OpenAI-compatible clients.
const (
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultChatModel        = "gpt-4o-mini"
	defaultEmbeddingModel   = "text-embedding-3-small"
	defaultMaxTokens        = 2048
	defaultOpenAIRetryDelay = 2 * time.Second
	defaultTimeout          = 60 * time.Second

	providerName = "openai"
)

// Limiter gates outbound requests. *papersources.RateLimiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// ClientConfig holds the connection settings shared by the chat and
// embedding clients.
type ClientConfig struct {
	// APIKey is sent as a bearer token.
	APIKey string
	// BaseURL is the API base URL (empty means the OpenAI default).
	BaseURL string
	// Model is the model identifier.
	Model string
	// Timeout bounds a single request.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt for
	// transient failures.
	MaxRetries int
	// RetryDelay is the initial backoff delay.
	RetryDelay time.Duration
}

// chatRequest represents the Chat Completions API request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// chatMessage represents a single message in the chat conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// responseFormat specifies the output format for the API response.
type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse represents the Chat Completions API response body.
type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// chatChoice represents a single completion choice.
type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// chatUsage contains token usage information.
type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// openAIErrorResponse represents an error response from the API.
type openAIErrorResponse struct {
	Error openAIErrorDetail `json:"error"`
}

// openAIErrorDetail contains error details from the API. Some compatible
// servers send a numeric code, so it is decoded loosely.
type openAIErrorDetail struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code"`
}

// Completion is the text of one chat completion plus its usage.
type Completion struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// transport performs authenticated JSON POSTs with rate limiting and
// exponential backoff on transient failures.
type transport struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	maxRetries int
	retryDelay time.Duration
	limiter    Limiter
}

func newTransport(cfg ClientConfig, limiter Limiter) transport {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultOpenAIRetryDelay
	}
	return transport{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		limiter:    limiter,
	}
}

// post sends body to path and decodes a 200 response into out. Transient
// errors (network, 429, 5xx) are retried up to maxRetries times.
func (t *transport) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("openai: failed to marshal request: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.retryDelay
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(t.maxRetries)), ctx)

	attempt := 0
	op := func() error {
		attempt++
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		err := t.doPost(ctx, path, payload, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !isTransientError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err = backoff.Retry(op, policy)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("openai: context cancelled during retry wait: %w", ctxErr)
	}
	if attempt > t.maxRetries && isTransientError(err) {
		return fmt.Errorf("openai: exhausted %d retries: %w", t.maxRetries, err)
	}
	return err
}

func (t *transport) doPost(ctx context.Context, path string, payload []byte, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("openai: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("openai: failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseOpenAIAPIError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("openai: failed to unmarshal response: %w", err)
	}
	return nil
}

// ChatClient calls the Chat Completions endpoint in JSON mode.
type ChatClient struct {
	transport   transport
	model       string
	temperature float64
	maxTokens   int
	metrics     *observability.Metrics
}

// NewChatClient creates a chat completion client. limiter may be nil.
func NewChatClient(cfg ClientConfig, temperature float64, limiter Limiter, metrics *observability.Metrics) *ChatClient {
	model := cfg.Model
	if model == "" {
		model = defaultChatModel
	}
	return &ChatClient{
		transport:   newTransport(cfg, limiter),
		model:       model,
		temperature: temperature,
		maxTokens:   defaultMaxTokens,
		metrics:     metrics,
	}
}

// CompleteJSON sends a system and user prompt and returns the model's reply,
// constrained to a JSON object.
func (c *ChatClient) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	start := time.Now()
	var resp chatResponse
	if err := c.transport.post(ctx, "/chat/completions", req, &resp); err != nil {
		c.metrics.RecordLLMRequestFailed("chat", c.model, errorType(err))
		return nil, err
	}
	if len(resp.Choices) == 0 {
		c.metrics.RecordLLMRequestFailed("chat", c.model, "empty_choices")
		return nil, errors.New("openai: empty choices in response")
	}

	c.metrics.RecordLLMRequest("chat", c.model, time.Since(start).Seconds(),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return &Completion{
		Content:      resp.Choices[0].Message.Content,
		Model:        model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Model returns the model identifier being used.
func (c *ChatClient) Model() string {
	return c.model
}

// parseOpenAIAPIError parses an API error from the response status code and body.
func parseOpenAIAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   providerName,
		StatusCode: statusCode,
		Message:    string(body),
	}

	var errResp openAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
		apiErr.Code = strings.Trim(string(errResp.Error.Code), `"`)
		if apiErr.Code == "null" {
			apiErr.Code = ""
		}
	}

	return apiErr
}
