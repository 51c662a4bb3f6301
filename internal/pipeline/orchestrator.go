// Package pipeline drives each research domain through the curation stages:
// collecting, deduplicating, filtering, enriching, embedding and persisting.
// Every completed stage is checkpointed so an interrupted run resumes where it
// stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/training-evidence-curator/internal/catalog"
	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/events"
	"github.com/helixir/training-evidence-curator/internal/observability"
)

// DefaultDomainConcurrency is used when Config.DomainConcurrency is not set.
const DefaultDomainConcurrency = 2

// Config controls a pipeline run.
type Config struct {
	// TargetPapers is the desired number of collected records per domain.
	TargetPapers int
	YearFrom     int
	YearTo       int

	// DomainConcurrency bounds how many domains run at once.
	DomainConcurrency int

	// RetryUndecidable re-assesses papers left undecidable by a previous
	// attempt when a run resumes after the filtering stage.
	RetryUndecidable bool
}

// Deps are the orchestrator's collaborators. Mirror and Publisher are
// optional.
type Deps struct {
	Collector    Collector
	Deduplicator Deduplicator
	Filter       QualityFilter
	Enricher     Enricher
	Embedder     Embedder
	Store        Store
	Checkpoints  Checkpoints
	Mirror       VectorMirror
	Publisher    events.Publisher
	Logger       zerolog.Logger
	Metrics      *observability.Metrics
}

// Orchestrator runs domains through the stage state machine.
type Orchestrator struct {
	cfg     Config
	deps    Deps
	logger  zerolog.Logger
	metrics *observability.Metrics
	emitter *events.Emitter

	now      func() time.Time
	newRunID func() string
}

// New validates deps and creates an orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Collector == nil:
		return nil, errors.New("pipeline: collector is required")
	case deps.Deduplicator == nil:
		return nil, errors.New("pipeline: deduplicator is required")
	case deps.Filter == nil:
		return nil, errors.New("pipeline: quality filter is required")
	case deps.Enricher == nil:
		return nil, errors.New("pipeline: enricher is required")
	case deps.Embedder == nil:
		return nil, errors.New("pipeline: embedder is required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Checkpoints == nil:
		return nil, errors.New("pipeline: checkpoint store is required")
	}
	if cfg.DomainConcurrency <= 0 {
		cfg.DomainConcurrency = DefaultDomainConcurrency
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}

	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger.With().Str("component", "orchestrator").Logger(),
		metrics:  deps.Metrics,
		emitter:  events.NewEmitter(""),
		now:      time.Now,
		newRunID: func() string { return uuid.NewString() },
	}, nil
}

// Run processes domains concurrently. A failing domain never cancels the
// others; cancelling ctx stops all of them and leaves their checkpoints in
// place. The returned error is ctx's.
func (o *Orchestrator) Run(ctx context.Context, domains []catalog.Domain) (*Report, error) {
	report := &Report{StartedAt: o.now(), Domains: make([]Summary, len(domains))}
	runID := o.newRunID()
	ctx = observability.WithRunID(ctx, runID)

	o.logger.Info().
		Str("run_id", runID).
		Int("domains", len(domains)).
		Int("concurrency", o.cfg.DomainConcurrency).
		Msg("pipeline run starting")

	var g errgroup.Group
	g.SetLimit(o.cfg.DomainConcurrency)
	for i, d := range domains {
		g.Go(func() error {
			report.Domains[i] = o.RunDomain(ctx, d, runID)
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = o.now().Sub(report.StartedAt)
	totals := report.Totals()
	o.logger.Info().
		Str("run_id", runID).
		Int("collected", totals.Collected).
		Int("accepted", totals.Accepted).
		Int("persisted", totals.Persisted).
		Bool("failed", report.Failed()).
		Dur("duration", report.Duration).
		Msg("pipeline run finished")

	return report, ctx.Err()
}

// RunDomain drives one domain from Idle to Done or Failed. runID is used
// unless a checkpoint from an earlier attempt supplies one.
func (o *Orchestrator) RunDomain(ctx context.Context, d catalog.Domain, runID string) Summary {
	started := o.now()
	ctx = observability.WithDomain(ctx, d.Name)
	logger := observability.WithRunContext(observability.WithDomainContext(o.logger, d.Name), runID)
	sum := Summary{Domain: d.Name, RunID: runID}

	if err := o.deps.Store.Ping(ctx); err != nil {
		return o.finish(ctx, logger, sum, nil, domain.StageIdle, err, started)
	}

	batch := newBatch(runID, d.Name)
	stage := domain.StageIdle
	resuming := true

	for _, next := range domain.WorkStages {
		if err := domain.ValidateTransition(stage, next); err != nil {
			return o.finish(ctx, logger, sum, batch, stage, err, started)
		}
		stage = next
		stageLogger := observability.WithStageContext(logger, string(stage))

		if resuming {
			if restored, ok := o.restore(ctx, stageLogger, d.Name, stage); ok {
				batch = restored
				sum.ResumedFrom = stage
				o.metrics.RecordStageResumed(string(stage))
				stageLogger.Info().Str("run_id", batch.RunID).Msg("stage restored from checkpoint")
				continue
			}
			resuming = false
		}

		if stage == domain.StageEnriching && sum.ResumedFrom == domain.StageFiltering &&
			o.cfg.RetryUndecidable && len(batch.Undecidable) > 0 {
			if err := o.retryUndecidable(ctx, stageLogger, d, batch); err != nil {
				return o.finish(ctx, logger, sum, batch, stage, err, started)
			}
		}

		stageStart := o.now()
		if err := o.execute(ctx, stageLogger, d, stage, batch); err != nil {
			return o.finish(ctx, logger, sum, batch, stage, fmt.Errorf("%s: %w", stage, err), started)
		}
		o.metrics.RecordStage(string(stage), o.now().Sub(stageStart).Seconds())

		if err := o.deps.Checkpoints.Save(ctx, d.Name, stage, batch); err != nil {
			if ctx.Err() != nil {
				return o.finish(ctx, logger, sum, batch, stage, ctx.Err(), started)
			}
			stageLogger.Warn().Err(err).Msg("failed to save checkpoint; stage will rerun on resume")
		}
	}

	if n, err := o.deps.Checkpoints.DeleteDomain(ctx, d.Name); err != nil {
		logger.Warn().Err(err).Msg("failed to clear checkpoints")
	} else {
		logger.Debug().Int("checkpoints", n).Msg("checkpoints cleared")
	}

	if o.deps.Mirror != nil && !batch.AlreadyCommitted {
		n, err := o.deps.Mirror.MirrorPapers(ctx, batch.Papers)
		if err != nil {
			logger.Warn().Err(err).Msg("vector mirror failed; papers remain committed")
		}
		sum.Mirrored = n
	}

	return o.finish(ctx, logger, sum, batch, domain.StageDone, nil, started)
}

// restore loads a stage checkpoint. Missing and corrupt checkpoints both
// report false; corrupt ones have already been discarded by the store.
func (o *Orchestrator) restore(ctx context.Context, logger zerolog.Logger, domainName string, stage domain.Stage) (*Batch, bool) {
	var b Batch
	err := o.deps.Checkpoints.Load(ctx, domainName, stage, &b)
	if err == nil {
		return &b, true
	}
	var corrupt *domain.CheckpointCorruption
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case errors.As(err, &corrupt):
		logger.Warn().Str("reason", corrupt.Reason).Msg("discarded corrupt checkpoint; recomputing stage")
	default:
		logger.Warn().Err(err).Msg("failed to load checkpoint; recomputing stage")
	}
	return nil, false
}

func (o *Orchestrator) finish(ctx context.Context, logger zerolog.Logger, sum Summary, batch *Batch, stage domain.Stage, err error, started time.Time) Summary {
	if batch != nil {
		sum.RunID = batch.RunID
		sum.Counts = batch.Counts
		sum.FailedSources = batch.FailedSources
		sum.AlreadyCommitted = batch.AlreadyCommitted
	}
	sum.Stage = stage
	sum.Duration = o.now().Sub(started)
	if err != nil {
		sum.Stage = domain.StageFailed
		sum.Err = err
		logger.Error().Err(err).Str("stage", string(stage)).Msg("domain run failed")
	} else {
		logger.Info().
			Int("collected", sum.Collected).
			Int("clusters", sum.Clusters).
			Int("accepted", sum.Accepted).
			Int("persisted", sum.Persisted).
			Dur("duration", sum.Duration).
			Msg("domain run complete")
	}
	o.metrics.RecordDomainRun(string(sum.Stage))

	if ctx.Err() == nil {
		o.publish(ctx, logger, sum)
	}
	return sum
}

func (o *Orchestrator) publish(ctx context.Context, logger zerolog.Logger, sum Summary) {
	event, err := o.emitter.EmitDomainRunCompleted(sum.Event())
	if err != nil {
		logger.Warn().Err(err).Msg("failed to build run event")
		return
	}
	if err := o.deps.Publisher.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Msg("failed to publish run event")
	}
}
