// Package quality scores deduplicated papers for relevance and
// methodological quality and partitions them into accepted, rejected and
// undecidable sets.
package quality

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/training-evidence-curator/internal/catalog"
	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/llm"
)

// DefaultBatchSize is the number of papers sent in one assessment request.
const DefaultBatchSize = 5

// Result is the assessor's outcome for one paper. Exactly one of Assessment
// and Err is set; Err is an *domain.AssessmentUnavailableError.
type Result struct {
	Paper      *domain.CanonicalPaper
	Assessment *domain.Assessment
	Err        error
}

// Assessor scores papers against a domain's criteria. Implementations return
// one Result per paper in input order and only fail as a whole when ctx ends.
type Assessor interface {
	Assess(ctx context.Context, d catalog.Domain, papers []*domain.CanonicalPaper) ([]Result, error)
}

// Completer is the chat capability the LLM assessor needs. *llm.ChatClient
// implements it.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (*llm.Completion, error)
}

// LLMAssessor asks a chat model to score papers in batches.
type LLMAssessor struct {
	completer Completer
	batchSize int
	logger    zerolog.Logger
	now       func() time.Time
}

// NewLLMAssessor creates an assessor. batchSize <= 0 uses DefaultBatchSize.
func NewLLMAssessor(completer Completer, batchSize int, logger zerolog.Logger) *LLMAssessor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &LLMAssessor{
		completer: completer,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "quality_assessor").Logger(),
		now:       time.Now,
	}
}

// Assess scores papers batch by batch. Papers a batch reply leaves out, or
// whose batch fails, are retried on their own once; a second miss marks the
// paper unavailable.
func (a *LLMAssessor) Assess(ctx context.Context, d catalog.Domain, papers []*domain.CanonicalPaper) ([]Result, error) {
	results := make([]Result, len(papers))
	for i, p := range papers {
		results[i].Paper = p
	}

	for start := 0; start < len(papers); start += a.batchSize {
		end := start + a.batchSize
		if end > len(papers) {
			end = len(papers)
		}
		batch := papers[start:end]

		got, batchErr := a.assessBatch(ctx, d, batch)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if batchErr != nil {
			a.logger.Warn().Err(batchErr).
				Str("domain", d.Name).
				Int("batch_size", len(batch)).
				Msg("assessment batch failed, retrying papers individually")
		}

		for i, p := range batch {
			if assessment, ok := got[i]; ok {
				results[start+i].Assessment = &assessment
				continue
			}
			if len(batch) == 1 && batchErr != nil {
				results[start+i].Err = unavailable(p, batchErr)
				continue
			}
			single, err := a.assessBatch(ctx, d, []*domain.CanonicalPaper{p})
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if assessment, ok := single[0]; ok {
				results[start+i].Assessment = &assessment
				continue
			}
			if err == nil {
				err = errors.New("paper missing from assessment response")
			}
			results[start+i].Err = unavailable(p, err)
		}
	}
	return results, nil
}

func (a *LLMAssessor) assessBatch(ctx context.Context, d catalog.Domain, batch []*domain.CanonicalPaper) (map[int]domain.Assessment, error) {
	system, user := BuildPrompts(d, batch)
	completion, err := a.completer.CompleteJSON(ctx, system, user)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseResponse(completion.Content, len(batch))
	if err != nil {
		return nil, err
	}
	assessedAt := a.now().UTC()
	for i, as := range parsed {
		as.Model = completion.Model
		as.AssessedAt = assessedAt
		parsed[i] = as
	}
	return parsed, nil
}

func unavailable(p *domain.CanonicalPaper, cause error) error {
	return &domain.AssessmentUnavailableError{
		PaperID: p.ID.String(),
		Cause:   fmt.Errorf("assessment failed: %w", cause),
	}
}
