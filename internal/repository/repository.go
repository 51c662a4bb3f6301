// Package repository provides data access for curated papers, search history
// and collection statistics.
//
// # Repositories
//
//   - PaperRepository: idempotent paper upserts keyed by identity key, plus
//     full-text and vector queries for the read API
//   - SearchRepository: append-only search history
//   - StatsRepository: additive per domain, source and day rollups
//
// Store composes the three into the single transaction that persists one
// domain's run.
//
// # Transactions
//
// Every repository is constructed over a DBTX, which both the pool and a
// pgx.Tx satisfy:
//
//	err := database.WithTransaction(ctx, db, logger, func(tx pgx.Tx) error {
//	    _, err := repository.NewPgPaperRepository(tx).Upsert(ctx, paper)
//	    return err
//	})
//
// # Errors
//
//   - domain.ErrNotFound: the paper does not exist
//   - *domain.DuplicateConflictError: a second paper claimed an existing DOI
//   - *domain.FatalStoreError: the database could not be reached
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/training-evidence-curator/internal/database"
	"github.com/helixir/training-evidence-curator/internal/domain"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// Query limits for the read methods.
const (
	defaultLimit = 20
	maxLimit     = 200
)

// clampLimit normalizes a caller-supplied limit into [1, maxLimit].
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// UpsertResult reports the stored id of an upserted paper and whether the
// row was newly inserted.
type UpsertResult struct {
	ID       uuid.UUID
	Inserted bool
}

// ScoredPaper is a query hit with its rank (text search) or cosine
// similarity (vector search).
type ScoredPaper struct {
	Paper *domain.CanonicalPaper `json:"paper"`
	Score float64                `json:"score"`
}

// PaperRepository persists and queries canonical papers.
type PaperRepository interface {
	// Upsert inserts the paper or updates the row holding the same identity
	// key. It never creates a second row for one identity key.
	Upsert(ctx context.Context, paper *domain.CanonicalPaper) (UpsertResult, error)

	// GetByID returns domain.ErrNotFound when no such paper exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CanonicalPaper, error)

	// SearchText ranks papers against a web-search style query. An empty
	// domain searches every domain.
	SearchText(ctx context.Context, query, domain string, limit int) ([]ScoredPaper, error)

	// Similar returns the papers nearest to vector by cosine distance.
	Similar(ctx context.Context, vector []float32, domain string, limit int) ([]ScoredPaper, error)

	// SimilarTo returns the papers nearest to the stored embedding of id,
	// excluding id itself.
	SimilarTo(ctx context.Context, id uuid.UUID, limit int) ([]ScoredPaper, error)
}

// SearchRepository records search invocations.
type SearchRepository interface {
	RecordSearch(ctx context.Context, inv domain.SearchInvocation) error
}

// StatsRepository maintains collection statistics.
type StatsRepository interface {
	// AccumulateStats adds delta to the (domain, source, date) row,
	// creating it when absent.
	AccumulateStats(ctx context.Context, domainName string, source domain.SourceType, date time.Time, delta domain.StatsDelta) error

	// List returns the rows for domainName, newest first. An empty domain
	// lists every domain.
	List(ctx context.Context, domainName string) ([]domain.DomainCollectionStats, error)
}
