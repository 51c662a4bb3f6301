package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/training-evidence-curator/internal/catalog"
	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/papersources"
	"github.com/helixir/training-evidence-curator/internal/repository"
)

func (o *Orchestrator) execute(ctx context.Context, logger zerolog.Logger, d catalog.Domain, stage domain.Stage, b *Batch) error {
	switch stage {
	case domain.StageCollecting:
		return o.collect(ctx, logger, d, b)
	case domain.StageDeduplicating:
		return o.deduplicate(logger, b)
	case domain.StageFiltering:
		return o.filter(ctx, logger, d, b)
	case domain.StageEnriching:
		return o.enrich(ctx, logger, b)
	case domain.StageEmbedding:
		return o.embed(ctx, logger, b)
	case domain.StagePersisting:
		return o.persist(ctx, logger, b)
	default:
		return fmt.Errorf("%w: no work for stage %s", domain.ErrInvalidTransition, stage)
	}
}

func (o *Orchestrator) collect(ctx context.Context, logger zerolog.Logger, d catalog.Domain, b *Batch) error {
	res, err := o.deps.Collector.Collect(ctx, papersources.CollectRequest{
		Domain:   d.Name,
		Queries:  d.Queries,
		Target:   o.cfg.TargetPapers,
		YearFrom: o.cfg.YearFrom,
		YearTo:   o.cfg.YearTo,
	})
	if err != nil {
		return err
	}
	b.applyCollect(res)

	for _, src := range res.FailedSources {
		logger.Warn().Str("source", string(src)).Msg("source failed for every query")
	}
	logger.Info().
		Int("records", b.Counts.Collected).
		Int("dropped", b.Counts.Dropped).
		Int("failed_queries", len(res.Failures)).
		Msg("collection complete")
	return nil
}

func (o *Orchestrator) deduplicate(logger zerolog.Logger, b *Batch) error {
	clusters, stats := o.deps.Deduplicator.Deduplicate(b.Domain, b.Records)
	b.applyDedup(clusters, stats)
	logger.Info().
		Int("input", stats.Input).
		Int("clusters", stats.Clusters).
		Int("duplicates", stats.Duplicates).
		Msg("deduplication complete")
	return nil
}

func (o *Orchestrator) filter(ctx context.Context, logger zerolog.Logger, d catalog.Domain, b *Batch) error {
	res, err := o.deps.Filter.Apply(ctx, d, b.Papers)
	if err != nil {
		return err
	}
	b.applyVerdicts(res.Accepted, res.Rejected, res.Undecidable)
	b.Papers = res.Accepted
	b.Undecidable = res.Undecidable
	b.Counts.Undecidable = len(res.Undecidable)

	logger.Info().
		Int("accepted", len(res.Accepted)).
		Int("rejected", len(res.Rejected)).
		Int("undecidable", len(res.Undecidable)).
		Msg("quality filter complete")
	return nil
}

// retryUndecidable re-assesses papers that had no verdict. Papers that now
// get one move out of the undecidable counters.
func (o *Orchestrator) retryUndecidable(ctx context.Context, logger zerolog.Logger, d catalog.Domain, b *Batch) error {
	res, err := o.deps.Filter.Apply(ctx, d, b.Undecidable)
	if err != nil {
		return err
	}
	for _, p := range append(append([]*domain.CanonicalPaper(nil), res.Accepted...), res.Rejected...) {
		b.addStats(p.Source, domain.StatsDelta{Undecidable: -1})
	}
	b.applyVerdicts(res.Accepted, res.Rejected, nil)
	b.Papers = append(b.Papers, res.Accepted...)
	b.Undecidable = res.Undecidable
	b.Counts.Undecidable = len(res.Undecidable)

	logger.Info().
		Int("resolved", len(res.Accepted)+len(res.Rejected)).
		Int("accepted", len(res.Accepted)).
		Int("still_undecidable", len(res.Undecidable)).
		Msg("retried undecidable papers")
	return nil
}

func (o *Orchestrator) enrich(ctx context.Context, logger zerolog.Logger, b *Batch) error {
	stats, err := o.deps.Enricher.ProcessAll(ctx, b.Papers)
	if err != nil {
		return err
	}
	b.Counts.Enriched = stats.Enriched
	b.Counts.EnrichmentFailures = stats.Failures
	b.applyDownloads()

	logger.Info().
		Int("enriched", stats.Enriched).
		Int("failures", stats.Failures).
		Int("without_pdf", stats.Skipped).
		Msg("full-text enrichment complete")
	return nil
}

func (o *Orchestrator) embed(ctx context.Context, logger zerolog.Logger, b *Batch) error {
	stats, err := o.deps.Embedder.Generate(ctx, b.Papers)
	if err != nil {
		return err
	}
	b.Counts.Embedded = stats.Embedded
	b.Counts.EmbeddingFailures = stats.Failed

	logger.Info().
		Int("embedded", stats.Embedded).
		Int("failed", stats.Failed).
		Int("cached", stats.Cached).
		Msg("embedding complete")
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, logger zerolog.Logger, b *Batch) error {
	res, err := o.deps.Store.Persist(ctx, repository.PersistRequest{
		RunID:    b.RunID,
		Domain:   b.Domain,
		Papers:   b.Papers,
		Searches: b.Searches,
		Stats:    b.Stats,
		Date:     o.now(),
	})
	if err != nil {
		return err
	}
	b.AlreadyCommitted = res.AlreadyCommitted
	b.Counts.Persisted = res.Persisted()
	b.Counts.Conflicts = len(res.Conflicts)
	b.Counts.Skipped = res.Skipped

	if res.AlreadyCommitted {
		logger.Info().Msg("run was already committed for this domain")
		return nil
	}
	logger.Info().
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("conflicts", len(res.Conflicts)).
		Int("skipped", res.Skipped).
		Msg("persisted")
	return nil
}
