package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/helixir/training-evidence-curator/internal/domain"
)

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"

	// pgDataExceptionClass covers values the server refuses to store, such
	// as a vector of the wrong dimension.
	pgDataExceptionClass = "22"
)

// Compile-time interface verification.
var _ PaperRepository = (*PgPaperRepository)(nil)

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db DBTX
}

// NewPgPaperRepository creates a new PostgreSQL paper repository.
func NewPgPaperRepository(db DBTX) *PgPaperRepository {
	return &PgPaperRepository{db: db}
}

const upsertPaperQuery = `
	INSERT INTO papers (
		id, identity_key, title, authors, journal, year, doi, pmid,
		external_ids, abstract, full_text, sections, domain, source, source_id,
		is_preprint, citation_count, url, pdf_url, pdf_path,
		quality_score, relevance_score, methodology, assessment, embedding,
		merged_from, enrichment_errors
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27
	)
	ON CONFLICT (identity_key) DO UPDATE SET
		title = EXCLUDED.title,
		authors = CASE WHEN cardinality(EXCLUDED.authors) > 0 THEN EXCLUDED.authors ELSE papers.authors END,
		journal = COALESCE(EXCLUDED.journal, papers.journal),
		year = COALESCE(EXCLUDED.year, papers.year),
		doi = COALESCE(EXCLUDED.doi, papers.doi),
		pmid = COALESCE(EXCLUDED.pmid, papers.pmid),
		external_ids = papers.external_ids || EXCLUDED.external_ids,
		abstract = COALESCE(EXCLUDED.abstract, papers.abstract),
		full_text = COALESCE(EXCLUDED.full_text, papers.full_text),
		sections = CASE WHEN EXCLUDED.sections = '{}'::jsonb THEN papers.sections ELSE EXCLUDED.sections END,
		is_preprint = EXCLUDED.is_preprint,
		citation_count = GREATEST(EXCLUDED.citation_count, papers.citation_count),
		url = COALESCE(EXCLUDED.url, papers.url),
		pdf_url = COALESCE(EXCLUDED.pdf_url, papers.pdf_url),
		pdf_path = COALESCE(EXCLUDED.pdf_path, papers.pdf_path),
		quality_score = COALESCE(EXCLUDED.quality_score, papers.quality_score),
		relevance_score = COALESCE(EXCLUDED.relevance_score, papers.relevance_score),
		methodology = COALESCE(EXCLUDED.methodology, papers.methodology),
		assessment = COALESCE(EXCLUDED.assessment, papers.assessment),
		embedding = COALESCE(EXCLUDED.embedding, papers.embedding),
		merged_from = ARRAY(SELECT DISTINCT ref FROM unnest(papers.merged_from || EXCLUDED.merged_from) AS ref ORDER BY ref),
		enrichment_errors = EXCLUDED.enrichment_errors,
		updated_at = NOW()
	RETURNING id, (xmax = 0) AS inserted`

// Upsert inserts the paper or merges it into the row with the same identity
// key. The original domain of an existing row is kept.
func (r *PgPaperRepository) Upsert(ctx context.Context, paper *domain.CanonicalPaper) (UpsertResult, error) {
	if paper == nil {
		return UpsertResult{}, domain.NewValidationError("paper", "paper cannot be nil")
	}
	if strings.TrimSpace(paper.Title) == "" {
		return UpsertResult{}, domain.NewValidationError("title", "title is required")
	}
	if paper.Domain == "" {
		return UpsertResult{}, domain.NewValidationError("domain", "domain is required")
	}
	if err := checkVector(paper.Embedding); err != nil {
		return UpsertResult{}, err
	}

	identityKey := paper.IdentityKey()
	if paper.ID == uuid.Nil {
		paper.AssignID()
	}

	externalIDs, err := json.Marshal(paper.ExternalIDsAsStrings())
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to marshal external ids: %w", err)
	}
	sections := paper.Sections
	if sections == nil {
		sections = map[string]string{}
	}
	sectionsJSON, err := json.Marshal(sections)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to marshal sections: %w", err)
	}
	var assessmentJSON []byte
	if paper.Assessment != nil {
		if assessmentJSON, err = json.Marshal(paper.Assessment); err != nil {
			return UpsertResult{}, fmt.Errorf("failed to marshal assessment: %w", err)
		}
	}

	var result UpsertResult
	err = r.db.QueryRow(ctx, upsertPaperQuery,
		paper.ID,
		identityKey,
		paper.Title,
		nonNil(paper.Authors),
		nullIfEmpty(paper.Journal),
		nullIfZero(paper.Year),
		nullIfEmpty(domain.NormalizeDOI(paper.DOI)),
		nullIfEmpty(paper.PMID),
		externalIDs,
		nullIfEmpty(paper.Abstract),
		nullIfEmpty(paper.FullText),
		sectionsJSON,
		paper.Domain,
		string(paper.Source),
		nullIfEmpty(paper.SourceID),
		paper.IsPreprint,
		paper.CitationCount,
		nullIfEmpty(paper.URL),
		nullIfEmpty(paper.PDFURL),
		nullIfEmpty(paper.PDFPath),
		paper.QualityScore,
		paper.RelevanceScore,
		nullIfEmpty(string(paper.Methodology)),
		assessmentJSON,
		vectorParam(paper.Embedding),
		nonNil(paper.MergedFrom),
		nonNil(paper.EnrichmentErrors),
	).Scan(&result.ID, &result.Inserted)
	if err != nil {
		return UpsertResult{}, mapWriteError(err, paper, identityKey)
	}

	paper.ID = result.ID
	return result, nil
}

// mapWriteError translates constraint violations into domain errors.
func mapWriteError(err error, paper *domain.CanonicalPaper, identityKey string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &domain.DuplicateConflictError{
				IdentityKey: identityKey,
				DOI:         domain.NormalizeDOI(paper.DOI),
				Constraint:  pgErr.ConstraintName,
			}
		case pgCheckViolation:
			return fmt.Errorf("%w: paper %s violates %s", domain.ErrInvalidInput, identityKey, pgErr.ConstraintName)
		}
		if strings.HasPrefix(pgErr.Code, pgDataExceptionClass) {
			return fmt.Errorf("%w: paper %s rejected: %s", domain.ErrInvalidInput, identityKey, pgErr.Message)
		}
	}
	return fmt.Errorf("failed to upsert paper %s: %w", identityKey, err)
}

// checkVector rejects embeddings pgvector cannot store.
func checkVector(v []float32) error {
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return domain.NewValidationError("embedding", fmt.Sprintf("element %d is %v", i, f))
		}
	}
	return nil
}

// vectorParam binds v as a pgvector value, or NULL when there is no embedding.
func vectorParam(v []float32) *pgvector.Vector {
	if v == nil {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}

// GetByID retrieves a paper by its id.
func (r *PgPaperRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CanonicalPaper, error) {
	query := `SELECT ` + paperColumns("") + ` FROM papers WHERE id = $1`

	paper, err := scanPaper(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", id.String())
		}
		return nil, fmt.Errorf("failed to get paper: %w", err)
	}
	return paper, nil
}

// SearchText ranks papers by ts_rank against a websearch_to_tsquery query.
func (r *PgPaperRepository) SearchText(ctx context.Context, query, domainName string, limit int) ([]ScoredPaper, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewValidationError("q", "query is required")
	}

	sql := `
		SELECT ` + paperColumns("p.") + `, ts_rank(p.search_vector, q) AS score
		FROM papers p, websearch_to_tsquery('english', $1) q
		WHERE p.search_vector @@ q AND ($2 = '' OR p.domain = $2)
		ORDER BY score DESC, p.id
		LIMIT $3`

	rows, err := r.db.Query(ctx, sql, query, domainName, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search papers: %w", err)
	}
	return collectScored(rows)
}

// Similar orders embedded papers by cosine distance to vector.
func (r *PgPaperRepository) Similar(ctx context.Context, vector []float32, domainName string, limit int) ([]ScoredPaper, error) {
	if len(vector) == 0 {
		return nil, domain.NewValidationError("vector", "vector is required")
	}
	if err := checkVector(vector); err != nil {
		return nil, err
	}

	sql := `
		SELECT ` + paperColumns("p.") + `, 1 - (p.embedding <=> $1::vector) AS score
		FROM papers p
		WHERE p.embedding IS NOT NULL AND ($2 = '' OR p.domain = $2)
		ORDER BY p.embedding <=> $1::vector
		LIMIT $3`

	rows, err := r.db.Query(ctx, sql, pgvector.NewVector(vector), domainName, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query similar papers: %w", err)
	}
	return collectScored(rows)
}

// SimilarTo orders embedded papers by cosine distance to the paper id.
func (r *PgPaperRepository) SimilarTo(ctx context.Context, id uuid.UUID, limit int) ([]ScoredPaper, error) {
	sql := `
		SELECT ` + paperColumns("p.") + `, 1 - (p.embedding <=> t.embedding) AS score
		FROM papers p, (SELECT embedding FROM papers WHERE id = $1) t
		WHERE p.id <> $1 AND p.embedding IS NOT NULL AND t.embedding IS NOT NULL
		ORDER BY p.embedding <=> t.embedding
		LIMIT $2`

	rows, err := r.db.Query(ctx, sql, id, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query similar papers: %w", err)
	}
	return collectScored(rows)
}

func collectScored(rows pgx.Rows) ([]ScoredPaper, error) {
	defer rows.Close()

	var results []ScoredPaper
	for rows.Next() {
		var dest paperScanDest
		var score float64
		if err := rows.Scan(append(dest.destinations(), &score)...); err != nil {
			return nil, fmt.Errorf("failed to scan paper: %w", err)
		}
		paper, err := dest.finalize()
		if err != nil {
			return nil, err
		}
		results = append(results, ScoredPaper{Paper: paper, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating papers: %w", err)
	}
	return results, nil
}

// paperColumnNames is the read column order shared by every paper query.
var paperColumnNames = []string{
	"id", "identity_key", "title", "authors", "COALESCE(journal, '')", "COALESCE(year, 0)",
	"COALESCE(doi, '')", "COALESCE(pmid, '')", "external_ids", "COALESCE(abstract, '')",
	"COALESCE(full_text, '')", "sections", "domain", "source", "COALESCE(source_id, '')",
	"is_preprint", "citation_count", "COALESCE(url, '')", "COALESCE(pdf_url, '')",
	"COALESCE(pdf_path, '')", "quality_score", "relevance_score", "COALESCE(methodology, '')",
	"assessment", "embedding", "merged_from", "enrichment_errors",
}

// paperColumns renders paperColumnNames with every column qualified by prefix.
func paperColumns(prefix string) string {
	if prefix == "" {
		return strings.Join(paperColumnNames, ", ")
	}
	cols := make([]string, len(paperColumnNames))
	for i, c := range paperColumnNames {
		if rest, ok := strings.CutPrefix(c, "COALESCE("); ok {
			cols[i] = "COALESCE(" + prefix + rest
		} else {
			cols[i] = prefix + c
		}
	}
	return strings.Join(cols, ", ")
}

// paperScanDest holds the destination pointers for scanning a paper row.
type paperScanDest struct {
	paper          domain.CanonicalPaper
	identityKey    string
	source         string
	methodology    string
	externalIDs    []byte
	sections       []byte
	assessmentJSON []byte
	embedding      *pgvector.Vector
}

func (d *paperScanDest) destinations() []any {
	p := &d.paper
	return []any{
		&p.ID, &d.identityKey, &p.Title, &p.Authors, &p.Journal, &p.Year,
		&p.DOI, &p.PMID, &d.externalIDs, &p.Abstract,
		&p.FullText, &d.sections, &p.Domain, &d.source, &p.SourceID,
		&p.IsPreprint, &p.CitationCount, &p.URL, &p.PDFURL,
		&p.PDFPath, &p.QualityScore, &p.RelevanceScore, &d.methodology,
		&d.assessmentJSON, &d.embedding, &p.MergedFrom, &p.EnrichmentErrors,
	}
}

// finalize decodes the JSON columns and unwraps the embedding.
func (d *paperScanDest) finalize() (*domain.CanonicalPaper, error) {
	p := &d.paper
	p.Source = domain.SourceType(d.source)
	p.Methodology = domain.Methodology(d.methodology)
	p.Lifecycle = domain.LifecyclePersisted

	if len(d.externalIDs) > 0 {
		var ids map[string]string
		if err := json.Unmarshal(d.externalIDs, &ids); err != nil {
			return nil, fmt.Errorf("failed to unmarshal external ids: %w", err)
		}
		if len(ids) > 0 {
			p.ExternalIDs = make(map[domain.SourceType]string, len(ids))
			for k, v := range ids {
				p.ExternalIDs[domain.SourceType(k)] = v
			}
		}
	}
	if len(d.sections) > 0 {
		if err := json.Unmarshal(d.sections, &p.Sections); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sections: %w", err)
		}
		if len(p.Sections) == 0 {
			p.Sections = nil
		}
	}
	if len(d.assessmentJSON) > 0 {
		var a domain.Assessment
		if err := json.Unmarshal(d.assessmentJSON, &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal assessment: %w", err)
		}
		p.Assessment = &a
	}
	if d.embedding != nil {
		p.Embedding = d.embedding.Slice()
	}
	return p, nil
}

func scanPaper(row pgx.Row) (*domain.CanonicalPaper, error) {
	var dest paperScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

func nullIfEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func nullIfZero(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
