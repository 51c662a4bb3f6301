package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/training-evidence-curator/internal/domain"
)

func TestPgStatsRepository_AccumulateStats(t *testing.T) {
	ctx := context.Background()

	t.Run("adds to existing row", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		day := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
		mock.ExpectExec("ON CONFLICT \\(domain, source, collection_date\\) DO UPDATE SET\\s+collected = collection_stats.collected \\+ EXCLUDED.collected").
			WithArgs("tapering", "arxiv", day, 3, 0, 1, 2, 0, 1, 1, 0, 7, 1).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = NewPgStatsRepository(mock).AccumulateStats(ctx, "tapering", domain.SourceTypeArXiv,
			time.Date(2026, 1, 2, 23, 59, 0, 0, time.UTC),
			domain.StatsDelta{Collected: 3, Accepted: 1, Rejected: 2, Persisted: 1, DownloadsSucceeded: 1, QualitySum: 7, QualityCount: 1})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero delta is a no-op", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		err = NewPgStatsRepository(mock).AccumulateStats(ctx, "tapering", domain.SourceTypeArXiv, time.Now(), domain.StatsDelta{})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("requires domain", func(t *testing.T) {
		err := NewPgStatsRepository(nil).AccumulateStats(ctx, "", domain.SourceTypeArXiv, time.Now(), domain.StatsDelta{Collected: 1})
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})
}

func TestPgStatsRepository_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	day := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	updated := day.Add(time.Hour)
	rows := pgxmock.NewRows([]string{
		"domain", "source", "collection_date", "collected", "duplicates", "accepted", "rejected",
		"undecidable", "persisted", "downloads_succeeded", "downloads_failed", "quality_sum", "quality_count", "updated_at",
	}).AddRow("tapering", "pubmed", day, 10, 2, 4, 3, 1, 4, 3, 1, 30, 4, updated)

	mock.ExpectQuery("FROM collection_stats").WithArgs("tapering").WillReturnRows(rows)

	stats, err := NewPgStatsRepository(mock).List(context.Background(), "tapering")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, domain.SourceTypePubMed, stats[0].Source)
	assert.Equal(t, 10, stats[0].Collected)
	assert.InDelta(t, 7.5, stats[0].AvgQualityScore(), 1e-9)
	assert.Equal(t, updated, stats[0].UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgSearchRepository_RecordSearch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	msg := "HTTP 503"
	mock.ExpectExec("INSERT INTO search_history").
		WithArgs("tapering", "taper volume", "openalex", 0, int64(250), true, &msg, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewPgSearchRepository(mock).RecordSearch(context.Background(), domain.SearchInvocation{
		Domain:     "tapering",
		Query:      "taper volume",
		Source:     domain.SourceTypeOpenAlex,
		Duration:   250 * time.Millisecond,
		ExecutedAt: at,
		Failed:     true,
		Error:      msg,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	err = NewPgSearchRepository(mock).RecordSearch(context.Background(), domain.SearchInvocation{})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
