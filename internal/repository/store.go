package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/helixir/training-evidence-curator/internal/database"
	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/observability"
)

// Upsert outcomes reported to metrics.
const (
	UpsertInserted = "inserted"
	UpsertUpdated  = "updated"
	UpsertConflict = "conflict"
	UpsertInvalid  = "invalid"
)

// StoreDB is what Store needs from the pool. *database.DB and pgxmock pools
// satisfy it.
type StoreDB interface {
	database.Beginner
	Ping(ctx context.Context) error
}

// PersistRequest is everything one domain run writes.
type PersistRequest struct {
	RunID    string
	Domain   string
	Papers   []*domain.CanonicalPaper
	Searches []domain.SearchInvocation
	// Stats holds the run's per-source counters. Persisted is filled in by
	// the store from the papers it actually wrote.
	Stats map[domain.SourceType]domain.StatsDelta
	// Date is the collection date; zero means today.
	Date time.Time
}

// PersistResult summarizes a Persist call.
type PersistResult struct {
	Inserted int
	Updated  int
	// Conflicts lists papers skipped because another row already held
	// their DOI.
	Conflicts []*domain.DuplicateConflictError
	// Skipped counts papers the schema rejected, such as out-of-range scores.
	Skipped int
	// AlreadyCommitted is set when this (run, domain) was persisted before;
	// nothing was written.
	AlreadyCommitted bool
}

// Persisted returns the number of papers written.
func (r PersistResult) Persisted() int {
	return r.Inserted + r.Updated
}

// Store writes a domain's results atomically.
type Store struct {
	db      StoreDB
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewStore creates a store over db.
func NewStore(db StoreDB, logger zerolog.Logger, metrics *observability.Metrics) *Store {
	return &Store{
		db:      db,
		logger:  logger.With().Str("component", "store").Logger(),
		metrics: metrics,
		now:     time.Now,
	}
}

// Papers returns a paper repository over the pool for read queries.
func (s *Store) Papers() *PgPaperRepository {
	return NewPgPaperRepository(s.db)
}

// Stats returns a stats repository over the pool for read queries.
func (s *Store) Stats() *PgStatsRepository {
	return NewPgStatsRepository(s.db)
}

// Ping reports an unreachable database as *domain.FatalStoreError.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return &domain.FatalStoreError{Op: "ping", Cause: err}
	}
	return nil
}

// Persist writes papers, search history and stats for one domain in a single
// transaction. The (run, domain) pair is claimed first, so replaying a
// committed run writes nothing. Each paper is upserted under its own
// savepoint; a DOI conflict skips that paper and keeps the rest.
func (s *Store) Persist(ctx context.Context, req PersistRequest) (PersistResult, error) {
	var result PersistResult
	if req.RunID == "" || req.Domain == "" {
		return result, domain.NewValidationError("run", "run id and domain are required")
	}
	logger := observability.WithRunContext(observability.WithDomainContext(s.logger, req.Domain), req.RunID)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return result, &domain.FatalStoreError{Op: "begin", Cause: err}
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				logger.Warn().Err(rbErr).Msg("rollback failed")
			}
		}
	}()

	if err := database.LockDomainTx(ctx, tx, req.Domain); err != nil {
		return result, &domain.FatalStoreError{Op: "lock", Cause: err}
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO pipeline_runs (run_id, domain, papers) VALUES ($1, $2, $3)
		ON CONFLICT (run_id, domain) DO NOTHING`, req.RunID, req.Domain, len(req.Papers))
	if err != nil {
		return result, &domain.FatalStoreError{Op: "claim run", Cause: err}
	}
	if tag.RowsAffected() == 0 {
		logger.Info().Msg("run already committed for domain, nothing written")
		result.AlreadyCommitted = true
		return result, nil
	}

	persistedBySource := make(map[domain.SourceType]int)
	for _, paper := range req.Papers {
		if paper.Domain == "" {
			paper.Domain = req.Domain
		}
		res, err := s.upsertInSavepoint(ctx, tx, paper)
		var conflict *domain.DuplicateConflictError
		switch {
		case err == nil:
			if res.Inserted {
				result.Inserted++
				s.metrics.RecordUpsert(UpsertInserted)
			} else {
				result.Updated++
				s.metrics.RecordUpsert(UpsertUpdated)
			}
			paper.Lifecycle = domain.LifecyclePersisted
			persistedBySource[paper.Source]++
		case errors.As(err, &conflict):
			result.Conflicts = append(result.Conflicts, conflict)
			s.metrics.RecordUpsert(UpsertConflict)
			logger.Warn().Str("identity_key", conflict.IdentityKey).Str("doi", conflict.DOI).
				Msg("skipped duplicate paper rejected by store")
		case errors.Is(err, domain.ErrInvalidInput):
			result.Skipped++
			s.metrics.RecordUpsert(UpsertInvalid)
			logger.Warn().Err(err).Str("paper_id", paper.ID.String()).Msg("skipped invalid paper")
		default:
			return PersistResult{}, &domain.FatalStoreError{Op: "upsert paper", Cause: err}
		}
	}

	searches := NewPgSearchRepository(tx)
	for _, inv := range req.Searches {
		if inv.Domain == "" {
			inv.Domain = req.Domain
		}
		if err := searches.RecordSearch(ctx, inv); err != nil {
			return PersistResult{}, &domain.FatalStoreError{Op: "record search", Cause: err}
		}
	}

	date := req.Date
	if date.IsZero() {
		date = s.now()
	}
	stats := NewPgStatsRepository(tx)
	for _, source := range statsSources(req.Stats, persistedBySource) {
		delta := req.Stats[source]
		delta.Persisted = persistedBySource[source]
		if err := stats.AccumulateStats(ctx, req.Domain, source, date, delta); err != nil {
			return PersistResult{}, &domain.FatalStoreError{Op: "accumulate stats", Cause: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return PersistResult{}, &domain.FatalStoreError{Op: "commit", Cause: err}
	}
	committed = true

	logger.Info().
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("conflicts", len(result.Conflicts)).
		Int("skipped", result.Skipped).
		Int("searches", len(req.Searches)).
		Msg("domain results persisted")
	return result, nil
}

func (s *Store) upsertInSavepoint(ctx context.Context, tx pgx.Tx, paper *domain.CanonicalPaper) (UpsertResult, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to create savepoint: %w", err)
	}
	res, err := NewPgPaperRepository(sp).Upsert(ctx, paper)
	if err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return UpsertResult{}, fmt.Errorf("failed to roll back savepoint: %w (after %v)", rbErr, err)
		}
		return UpsertResult{}, err
	}
	if err := sp.Commit(ctx); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to release savepoint: %w", err)
	}
	return res, nil
}

// statsSources returns every source with counters or persisted papers in
// priority order, so writes happen in a stable order.
func statsSources(stats map[domain.SourceType]domain.StatsDelta, persisted map[domain.SourceType]int) []domain.SourceType {
	seen := make(map[domain.SourceType]bool)
	var out []domain.SourceType
	for src := range stats {
		if !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}
	for src := range persisted {
		if !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank() != out[j].Rank() {
			return out[i].Rank() < out[j].Rank()
		}
		return out[i] < out[j]
	})
	return out
}
