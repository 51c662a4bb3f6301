package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/helixir/training-evidence-curator/internal/domain"
)

var _ SearchRepository = (*PgSearchRepository)(nil)

// PgSearchRepository appends to search_history.
type PgSearchRepository struct {
	db DBTX
}

// NewPgSearchRepository creates a new search history repository.
func NewPgSearchRepository(db DBTX) *PgSearchRepository {
	return &PgSearchRepository{db: db}
}

// RecordSearch appends one search invocation.
func (r *PgSearchRepository) RecordSearch(ctx context.Context, inv domain.SearchInvocation) error {
	if inv.Domain == "" {
		return domain.NewValidationError("domain", "domain is required")
	}
	executedAt := inv.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now()
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO search_history (domain, query, source, result_count, duration_ms, failed, error, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.Domain,
		inv.Query,
		string(inv.Source),
		inv.ResultCount,
		inv.Duration.Milliseconds(),
		inv.Failed,
		nullIfEmpty(inv.Error),
		executedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record search: %w", err)
	}
	return nil
}
