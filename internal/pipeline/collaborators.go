package pipeline

import (
	"context"

	"github.com/helixir/training-evidence-curator/internal/catalog"
	"github.com/helixir/training-evidence-curator/internal/dedup"
	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/embedding"
	"github.com/helixir/training-evidence-curator/internal/papersources"
	"github.com/helixir/training-evidence-curator/internal/pdf"
	"github.com/helixir/training-evidence-curator/internal/quality"
	"github.com/helixir/training-evidence-curator/internal/repository"
)

// Collector gathers candidate records for one domain.
type Collector interface {
	Collect(ctx context.Context, req papersources.CollectRequest) (*papersources.CollectResult, error)
}

// Deduplicator clusters candidate records. *dedup.Engine implements it.
type Deduplicator interface {
	Deduplicate(domainName string, records []domain.CandidateRecord) ([]dedup.Cluster, dedup.Stats)
}

// QualityFilter scores and partitions papers. *quality.Filter implements it.
type QualityFilter interface {
	Apply(ctx context.Context, d catalog.Domain, papers []*domain.CanonicalPaper) (*quality.FilterResult, error)
}

// Enricher attaches full text. *pdf.Processor implements it.
type Enricher interface {
	ProcessAll(ctx context.Context, papers []*domain.CanonicalPaper) (pdf.ProcessStats, error)
}

// Embedder attaches vectors. *embedding.Generator implements it.
type Embedder interface {
	Generate(ctx context.Context, papers []*domain.CanonicalPaper) (embedding.Stats, error)
}

// Store persists a domain's results. *repository.Store implements it.
type Store interface {
	Ping(ctx context.Context) error
	Persist(ctx context.Context, req repository.PersistRequest) (repository.PersistResult, error)
}

// Checkpoints stores stage output. *checkpoint.Store implements it.
type Checkpoints interface {
	Save(ctx context.Context, domainName string, stage domain.Stage, v any) error
	Load(ctx context.Context, domainName string, stage domain.Stage, v any) error
	DeleteDomain(ctx context.Context, domainName string) (int, error)
}

// VectorMirror copies committed embeddings elsewhere. *qdrant.Mirror
// implements it.
type VectorMirror interface {
	MirrorPapers(ctx context.Context, papers []*domain.CanonicalPaper) (int, error)
}

// SourceCollector adapts the collector registry to Collector.
type SourceCollector struct {
	collectors []papersources.Collector
	opts       papersources.CollectOptions
}

// NewSourceCollector collects from the given collectors, which must already be
// in source priority order (papersources.Registry.Enabled returns them so).
func NewSourceCollector(collectors []papersources.Collector, opts papersources.CollectOptions) *SourceCollector {
	return &SourceCollector{collectors: collectors, opts: opts}
}

// Collect implements Collector.
func (s *SourceCollector) Collect(ctx context.Context, req papersources.CollectRequest) (*papersources.CollectResult, error) {
	return papersources.Collect(ctx, s.collectors, req, s.opts)
}
