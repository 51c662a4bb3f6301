package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/helixir/training-evidence-curator/internal/domain"
)

var _ StatsRepository = (*PgStatsRepository)(nil)

// PgStatsRepository maintains collection_stats.
type PgStatsRepository struct {
	db DBTX
}

// NewPgStatsRepository creates a new collection stats repository.
func NewPgStatsRepository(db DBTX) *PgStatsRepository {
	return &PgStatsRepository{db: db}
}

// AccumulateStats adds delta to the row for (domain, source, date). A zero
// delta writes nothing.
func (r *PgStatsRepository) AccumulateStats(ctx context.Context, domainName string, source domain.SourceType, date time.Time, delta domain.StatsDelta) error {
	if domainName == "" {
		return domain.NewValidationError("domain", "domain is required")
	}
	if delta.IsZero() {
		return nil
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO collection_stats (
			domain, source, collection_date, collected, duplicates, accepted, rejected,
			undecidable, persisted, downloads_succeeded, downloads_failed, quality_sum, quality_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (domain, source, collection_date) DO UPDATE SET
			collected = collection_stats.collected + EXCLUDED.collected,
			duplicates = collection_stats.duplicates + EXCLUDED.duplicates,
			accepted = collection_stats.accepted + EXCLUDED.accepted,
			rejected = collection_stats.rejected + EXCLUDED.rejected,
			undecidable = collection_stats.undecidable + EXCLUDED.undecidable,
			persisted = collection_stats.persisted + EXCLUDED.persisted,
			downloads_succeeded = collection_stats.downloads_succeeded + EXCLUDED.downloads_succeeded,
			downloads_failed = collection_stats.downloads_failed + EXCLUDED.downloads_failed,
			quality_sum = collection_stats.quality_sum + EXCLUDED.quality_sum,
			quality_count = collection_stats.quality_count + EXCLUDED.quality_count,
			updated_at = NOW()`,
		domainName,
		string(source),
		truncateDay(date),
		delta.Collected,
		delta.Duplicates,
		delta.Accepted,
		delta.Rejected,
		delta.Undecidable,
		delta.Persisted,
		delta.DownloadsSucceeded,
		delta.DownloadsFailed,
		delta.QualitySum,
		delta.QualityCount,
	)
	if err != nil {
		return fmt.Errorf("failed to accumulate stats for %s/%s: %w", domainName, source, err)
	}
	return nil
}

// List returns stats rows, newest date first.
func (r *PgStatsRepository) List(ctx context.Context, domainName string) ([]domain.DomainCollectionStats, error) {
	rows, err := r.db.Query(ctx, `
		SELECT domain, source, collection_date, collected, duplicates, accepted, rejected,
			undecidable, persisted, downloads_succeeded, downloads_failed, quality_sum, quality_count, updated_at
		FROM collection_stats
		WHERE ($1 = '' OR domain = $1)
		ORDER BY collection_date DESC, domain, source`, domainName)
	if err != nil {
		return nil, fmt.Errorf("failed to list stats: %w", err)
	}
	defer rows.Close()

	var out []domain.DomainCollectionStats
	for rows.Next() {
		var s domain.DomainCollectionStats
		var source string
		if err := rows.Scan(
			&s.Domain, &source, &s.CollectionDate, &s.Collected, &s.Duplicates, &s.Accepted, &s.Rejected,
			&s.Undecidable, &s.Persisted, &s.DownloadsSucceeded, &s.DownloadsFailed, &s.QualitySum, &s.QualityCount,
			&s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		s.Source = domain.SourceType(source)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats: %w", err)
	}
	return out, nil
}

// truncateDay returns midnight UTC of t's UTC date.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
