// Package embedding produces fixed-dimension vectors for accepted papers.
package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/observability"
)

// Defaults for the generator.
const (
	DefaultDimension     = 768
	DefaultBatchSize     = 32
	DefaultFullTextChars = 2000
)

// Model turns texts into vectors, one per input in order.
// *llm.EmbeddingClient implements it.
type Model interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config controls batching and input text.
type Config struct {
	Dimension       int
	BatchSize       int
	IncludeFullText bool
	FullTextChars   int
}

// Stats counts the outcome of one Generate call.
type Stats struct {
	Embedded int
	Failed   int
	Cached   int
}

// Generator embeds papers with a single shared model. Identical texts are
// embedded once per generator, so repeated input yields identical vectors.
type Generator struct {
	model   Model
	cfg     Config
	logger  zerolog.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	cache map[[sha256.Size]byte][]float32
}

// NewGenerator creates a generator. Zero config values use the defaults.
func NewGenerator(model Model, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Generator {
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FullTextChars <= 0 {
		cfg.FullTextChars = DefaultFullTextChars
	}
	return &Generator{
		model:   model,
		cfg:     cfg,
		logger:  logger.With().Str("component", "embedding_generator").Logger(),
		metrics: metrics,
		cache:   make(map[[sha256.Size]byte][]float32),
	}
}

// Dimension returns the vector length the generator produces.
func (g *Generator) Dimension() int {
	return g.cfg.Dimension
}

// Text builds the embedding input: title and abstract joined by a space, or
// the title alone when there is no abstract.
func Text(title, abstract string) string {
	title = strings.TrimSpace(title)
	abstract = strings.TrimSpace(abstract)
	if abstract == "" {
		return title
	}
	if title == "" {
		return abstract
	}
	return title + " " + abstract
}

func (g *Generator) paperText(p *domain.CanonicalPaper) string {
	text := Text(p.Title, p.Abstract)
	if g.cfg.IncludeFullText && p.FullText != "" {
		full := []rune(strings.TrimSpace(p.FullText))
		if len(full) > g.cfg.FullTextChars {
			full = full[:g.cfg.FullTextChars]
		}
		text = strings.TrimSpace(text + " " + string(full))
	}
	return text
}

// Generate sets Embedding on each paper. A batch the model fails to embed
// leaves those papers without a vector and is counted as failed; only ctx's
// error is returned.
func (g *Generator) Generate(ctx context.Context, papers []*domain.CanonicalPaper) (Stats, error) {
	var stats Stats

	type pending struct {
		key    [sha256.Size]byte
		text   string
		papers []*domain.CanonicalPaper
	}
	var queue []*pending
	byKey := make(map[[sha256.Size]byte]*pending)

	for _, p := range papers {
		text := g.paperText(p)
		if text == "" {
			p.Embedding = make([]float32, g.cfg.Dimension)
			p.Lifecycle = domain.LifecycleEmbedded
			stats.Embedded++
			continue
		}
		key := sha256.Sum256([]byte(text))
		if vec, ok := g.cached(key); ok {
			p.Embedding = vec
			p.Lifecycle = domain.LifecycleEmbedded
			stats.Embedded++
			stats.Cached++
			continue
		}
		if pend, ok := byKey[key]; ok {
			pend.papers = append(pend.papers, p)
			continue
		}
		pend := &pending{key: key, text: text, papers: []*domain.CanonicalPaper{p}}
		byKey[key] = pend
		queue = append(queue, pend)
	}

	for start := 0; start < len(queue); start += g.cfg.BatchSize {
		end := min(start+g.cfg.BatchSize, len(queue))
		batch := queue[start:end]

		texts := make([]string, len(batch))
		for i, pend := range batch {
			texts[i] = pend.text
		}

		vectors, err := g.embed(ctx, texts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			for _, pend := range batch {
				for _, p := range pend.papers {
					p.AddEnrichmentError(&domain.EnrichmentFailure{PaperID: p.ID.String(), Step: domain.EnrichmentStepEmbed, Cause: err})
					stats.Failed++
				}
			}
			g.logger.Warn().Err(err).Int("batch_size", len(batch)).Msg("embedding batch failed")
			continue
		}

		for i, pend := range batch {
			g.store(pend.key, vectors[i])
			for _, p := range pend.papers {
				p.Embedding = vectors[i]
				p.Lifecycle = domain.LifecycleEmbedded
				stats.Embedded++
			}
		}
	}

	g.metrics.RecordEmbeddings(stats.Embedded, stats.Failed)
	g.logger.Info().
		Int("papers", len(papers)).
		Int("embedded", stats.Embedded).
		Int("cached", stats.Cached).
		Int("failed", stats.Failed).
		Msg("embedding complete")
	return stats, nil
}

// EmbedQuery embeds a free-text query for similarity search.
func (g *Generator) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return make([]float32, g.cfg.Dimension), nil
	}
	vectors, err := g.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *Generator) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := g.model.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding: model returned %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != g.cfg.Dimension {
			return nil, fmt.Errorf("embedding: vector %d has dimension %d, want %d", i, len(v), g.cfg.Dimension)
		}
	}
	return vectors, nil
}

func (g *Generator) cached(key [sha256.Size]byte) ([]float32, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.cache[key]
	return v, ok
}

func (g *Generator) store(key [sha256.Size]byte, v []float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache[key] = v
}
