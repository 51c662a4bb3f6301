package quality

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/training-evidence-curator/internal/catalog"
	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/observability"
)

// Outcome labels used for metrics and logs.
const (
	OutcomeAccepted    = "accepted"
	OutcomeRejected    = "rejected"
	OutcomeUndecidable = "undecidable"
)

// FilterConfig holds the acceptance gates and batching settings.
type FilterConfig struct {
	MinRelevance float64
	MinQuality   int
	BatchSize    int
	Concurrency  int
}

// DefaultFilterConfig returns the standard gates: relevance >= 0.6 and
// quality >= 6, five papers per request, two requests in flight.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinRelevance: 0.6,
		MinQuality:   6,
		BatchSize:    DefaultBatchSize,
		Concurrency:  2,
	}
}

// FilterResult partitions the input papers. Order within each slice follows
// the input order.
type FilterResult struct {
	Accepted    []*domain.CanonicalPaper
	Rejected    []*domain.CanonicalPaper
	Undecidable []*domain.CanonicalPaper
	// Errors holds one AssessmentUnavailableError per undecidable paper.
	Errors []error
}

// Filter applies the quality gates to assessor output.
type Filter struct {
	assessor Assessor
	cfg      FilterConfig
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewFilter creates a filter. Zero values in cfg fall back to the defaults
// for batch size and concurrency; the gates are taken as given.
func NewFilter(assessor Assessor, cfg FilterConfig, logger zerolog.Logger, metrics *observability.Metrics) *Filter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Filter{
		assessor: assessor,
		cfg:      cfg,
		logger:   logger.With().Str("component", "quality_filter").Logger(),
		metrics:  metrics,
	}
}

// Accepts reports whether an assessment passes both gates.
func (f *Filter) Accepts(a domain.Assessment) bool {
	return a.RelevanceScore >= f.cfg.MinRelevance && a.QualityScore >= f.cfg.MinQuality
}

// Apply assesses papers in batches through a bounded pool and partitions
// them. The only error returned is ctx's.
func (f *Filter) Apply(ctx context.Context, d catalog.Domain, papers []*domain.CanonicalPaper) (*FilterResult, error) {
	var chunks [][]*domain.CanonicalPaper
	for start := 0; start < len(papers); start += f.cfg.BatchSize {
		end := start + f.cfg.BatchSize
		if end > len(papers) {
			end = len(papers)
		}
		chunks = append(chunks, papers[start:end])
	}

	slots := make([][]Result, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			results, err := f.assessor.Assess(gctx, d, chunk)
			if err != nil {
				return err
			}
			slots[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	out := &FilterResult{}
	for _, results := range slots {
		for _, r := range results {
			f.classify(d.Name, r, out)
		}
	}

	f.logger.Info().
		Str("domain", d.Name).
		Int("assessed", len(papers)).
		Int("accepted", len(out.Accepted)).
		Int("rejected", len(out.Rejected)).
		Int("undecidable", len(out.Undecidable)).
		Msg("quality filter complete")
	return out, nil
}

func (f *Filter) classify(domainName string, r Result, out *FilterResult) {
	p := r.Paper
	if r.Assessment == nil {
		err := r.Err
		if err == nil {
			err = &domain.AssessmentUnavailableError{PaperID: p.ID.String(), Cause: errors.New("no assessment")}
		}
		p.Lifecycle = domain.LifecycleUndecidable
		out.Undecidable = append(out.Undecidable, p)
		out.Errors = append(out.Errors, err)
		f.metrics.RecordAssessment(domainName, OutcomeUndecidable)
		f.logger.Debug().Err(err).Str("paper_id", p.ID.String()).Msg("paper undecidable")
		return
	}

	p.ApplyAssessment(*r.Assessment)
	if f.Accepts(*r.Assessment) {
		p.Lifecycle = domain.LifecycleAccepted
		out.Accepted = append(out.Accepted, p)
		f.metrics.RecordAssessment(domainName, OutcomeAccepted)
		return
	}
	p.Lifecycle = domain.LifecycleRejected
	out.Rejected = append(out.Rejected, p)
	f.metrics.RecordAssessment(domainName, OutcomeRejected)
}
