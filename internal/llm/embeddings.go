package llm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/helixir/training-evidence-curator/internal/observability"
)

// embeddingRequest is the /embeddings request body.
type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type embeddingResponse struct {
	Model string          `json:"model"`
	Data  []embeddingData `json:"data"`
	Usage chatUsage       `json:"usage"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// EmbeddingClient calls an OpenAI-compatible /embeddings endpoint.
type EmbeddingClient struct {
	transport  transport
	model      string
	dimensions int
	metrics    *observability.Metrics
}

// NewEmbeddingClient creates an embedding client that requests vectors of
// the given dimension. limiter may be nil.
func NewEmbeddingClient(cfg ClientConfig, dimensions int, limiter Limiter, metrics *observability.Metrics) *EmbeddingClient {
	model := cfg.Model
	if model == "" {
		model = defaultEmbeddingModel
	}
	return &EmbeddingClient{
		transport:  newTransport(cfg, limiter),
		model:      model,
		dimensions: dimensions,
		metrics:    metrics,
	}
}

// Embed returns one vector per input text, in input order.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := embeddingRequest{
		Model:          c.model,
		Input:          texts,
		Dimensions:     c.dimensions,
		EncodingFormat: "float",
	}

	start := time.Now()
	var resp embeddingResponse
	if err := c.transport.post(ctx, "/embeddings", req, &resp); err != nil {
		c.metrics.RecordLLMRequestFailed("embed", c.model, errorType(err))
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		c.metrics.RecordLLMRequestFailed("embed", c.model, "count_mismatch")
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	c.metrics.RecordLLMRequest("embed", c.model, time.Since(start).Seconds(), resp.Usage.PromptTokens, 0)

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Model returns the embedding model identifier.
func (c *EmbeddingClient) Model() string {
	return c.model
}

// Dimensions returns the requested vector dimension.
func (c *EmbeddingClient) Dimensions() int {
	return c.dimensions
}
