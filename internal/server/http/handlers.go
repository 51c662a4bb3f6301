package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixir/training-evidence-curator/internal/config"
	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/repository"
)

const defaultResultLimit = 20

type searchParams struct {
	Query  string `query:"q" validate:"required,max=500"`
	Domain string `query:"domain" validate:"omitempty,max=100"`
	Limit  int    `query:"limit" validate:"gte=0,lte=200"`
}

type similarParams struct {
	Limit int `query:"limit" validate:"gte=0,lte=200"`
}

type statsParams struct {
	Domain string `query:"domain" validate:"omitempty,max=100"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("query"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// searchPapers handles GET /api/v1/papers/search.
func (s *Server) searchPapers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	params := searchParams{
		Query:  strings.TrimSpace(q.Get("q")),
		Domain: strings.TrimSpace(q.Get("domain")),
		Limit:  limit,
	}
	if !s.validParams(w, params) {
		return
	}
	if params.Limit == 0 {
		params.Limit = defaultResultLimit
	}

	hits, err := s.papers.SearchText(r.Context(), params.Query, params.Domain, params.Limit)
	if err != nil {
		s.logger.Error().Err(err).Str("domain", params.Domain).Msg("paper search failed")
		writeDomainError(w, err)
		return
	}

	results := toScoredResponses(hits)
	writeJSON(w, http.StatusOK, searchResponse{
		Query:   params.Query,
		Domain:  params.Domain,
		Results: results,
		Count:   len(results),
	})
}

// getPaper handles GET /api/v1/papers/{paperID}.
func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}

	paper, err := s.papers.GetByID(r.Context(), id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error().Err(err).Str("paper_id", id.String()).Msg("failed to get paper")
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPaperResponse(paper))
}

// similarPapers handles GET /api/v1/papers/{paperID}/similar. The paper must
// exist; a paper without an embedding has no neighbours.
func (s *Server) similarPapers(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	params := similarParams{Limit: limit}
	if !s.validParams(w, params) {
		return
	}
	if params.Limit == 0 {
		params.Limit = defaultResultLimit
	}

	ctx := r.Context()
	paper, err := s.papers.GetByID(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var (
		hits    []repository.ScoredPaper
		backend = config.VectorBackendPostgres
	)
	switch {
	case len(paper.Embedding) == 0:
	case s.vectors != nil:
		backend = config.VectorBackendQdrant
		hits, err = s.similarFromVectors(ctx, paper, params.Limit)
	default:
		hits, err = s.papers.SimilarTo(ctx, id, params.Limit)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("paper_id", id.String()).Str("backend", backend).Msg("similarity query failed")
		writeDomainError(w, err)
		return
	}

	results := toScoredResponses(hits)
	writeJSON(w, http.StatusOK, similarResponse{
		PaperID: id.String(),
		Backend: backend,
		Results: results,
		Count:   len(results),
	})
}

// similarFromVectors queries the vector store and hydrates hits from the
// database. Hits whose row no longer exists are skipped.
func (s *Server) similarFromVectors(ctx context.Context, paper *domain.CanonicalPaper, limit int) ([]repository.ScoredPaper, error) {
	found, err := s.vectors.Search(ctx, paper.Embedding, paper.Domain, uint64(limit)+1)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %v", domain.ErrServiceUnavailable, err)
	}

	hits := make([]repository.ScoredPaper, 0, len(found))
	for _, f := range found {
		if f.PaperID == paper.ID {
			continue
		}
		p, err := s.papers.GetByID(ctx, f.PaperID)
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Debug().Str("paper_id", f.PaperID.String()).Msg("vector hit has no stored paper")
			continue
		}
		if err != nil {
			return nil, err
		}
		hits = append(hits, repository.ScoredPaper{Paper: p, Score: float64(f.Score)})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// listStats handles GET /api/v1/stats.
func (s *Server) listStats(w http.ResponseWriter, r *http.Request) {
	params := statsParams{Domain: strings.TrimSpace(r.URL.Query().Get("domain"))}
	if !s.validParams(w, params) {
		return
	}

	rows, err := s.stats.List(r.Context(), params.Domain)
	if err != nil {
		s.logger.Error().Err(err).Str("domain", params.Domain).Msg("failed to list stats")
		writeDomainError(w, err)
		return
	}

	out := toStatsRows(rows)
	writeJSON(w, http.StatusOK, statsResponse{
		Domain: params.Domain,
		Stats:  out,
		Count:  len(out),
	})
}

// validParams validates v and writes a 400 naming the first offending
// parameter.
func (s *Server) validParams(w http.ResponseWriter, v any) bool {
	err := s.validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid query parameters")
		return false
	}
	writeError(w, http.StatusBadRequest, validationMessage(verrs[0]))
	return false
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// writeDomainError maps domain errors to HTTP status codes and writes a JSON
// error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Field+": "+ve.Message)
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case domain.IsFatalStore(err):
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// The parse error details are not included to avoid echoing the input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// parseLimit reads the optional limit parameter. Range checks are left to
// the validator.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return 0, false
	}
	return limit, true
}
