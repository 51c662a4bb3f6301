package papersources

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/observability"
)

// DefaultCollectConcurrency bounds in-flight searches when no limit is configured.
const DefaultCollectConcurrency = 4

// CollectRequest describes the collection for one research domain.
type CollectRequest struct {
	Domain  string
	Queries []string

	// Target is the desired number of records per domain. It is split evenly
	// across queries; preprint servers get half a share.
	Target int

	YearFrom int
	YearTo   int
}

// QueryFailure records a (source, query) pair whose search failed.
type QueryFailure struct {
	Source domain.SourceType `json:"source"`
	Query  string            `json:"query"`
	Error  string            `json:"error"`
}

// CollectResult is the merged output of one domain's collection.
type CollectResult struct {
	// Records are ordered by source priority, then query order, then the
	// order the source returned them.
	Records []domain.CandidateRecord `json:"records"`

	// Searches has one entry per (source, query) pair, in the same order.
	Searches []domain.SearchInvocation `json:"searches"`

	Failures []QueryFailure `json:"failures,omitempty"`

	// FailedSources lists sources for which every query failed.
	FailedSources []domain.SourceType `json:"failed_sources,omitempty"`

	// Dropped counts records discarded for lacking any identifier.
	Dropped int `json:"dropped"`
}

// CollectOptions carries the collaborators of Collect.
type CollectOptions struct {
	Concurrency int
	Logger      zerolog.Logger
	Metrics     *observability.Metrics
}

type collectSlot struct {
	records []domain.CandidateRecord
	search  domain.SearchInvocation
	dropped int
	err     error
}

// PerQueryLimit returns the per-query result cap for a source.
func PerQueryLimit(source domain.SourceType, target, queries int) int {
	if queries < 1 {
		queries = 1
	}
	limit := target / queries
	if source.IsPreprintServer() {
		limit /= 2
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// Collect runs every query against every collector through a bounded worker
// pool. Each result lands in a slot indexed by (collector, query), so the
// merged stream does not depend on completion order. A failing source
// contributes nothing for that query and never fails the batch; the only
// error returned is the context's.
func Collect(ctx context.Context, collectors []Collector, req CollectRequest, opts CollectOptions) (*CollectResult, error) {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = DefaultCollectConcurrency
	}

	slots := make([][]collectSlot, len(collectors))
	for i := range slots {
		slots[i] = make([]collectSlot, len(req.Queries))
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for si, c := range collectors {
		for qi, q := range req.Queries {
			g.Go(func() error {
				slots[si][qi] = runSearch(ctx, c, req, q, opts)
				return nil
			})
		}
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &CollectResult{}
	for si, c := range collectors {
		failed := 0
		for qi := range req.Queries {
			slot := slots[si][qi]
			result.Records = append(result.Records, slot.records...)
			result.Searches = append(result.Searches, slot.search)
			result.Dropped += slot.dropped
			if slot.err != nil {
				failed++
				result.Failures = append(result.Failures, QueryFailure{
					Source: c.SourceType(),
					Query:  req.Queries[qi],
					Error:  slot.err.Error(),
				})
			}
		}
		if len(req.Queries) > 0 && failed == len(req.Queries) {
			result.FailedSources = append(result.FailedSources, c.SourceType())
		}
	}
	return result, nil
}

func runSearch(ctx context.Context, c Collector, req CollectRequest, query string, opts CollectOptions) collectSlot {
	source := c.SourceType()
	logger := observability.WithSourceContext(opts.Logger, string(source), query)

	params := SearchParams{
		Query:      query,
		Domain:     req.Domain,
		MaxResults: PerQueryLimit(source, req.Target, len(req.Queries)),
		YearFrom:   req.YearFrom,
		YearTo:     req.YearTo,
	}

	slot := collectSlot{search: domain.SearchInvocation{
		Domain:     req.Domain,
		Query:      query,
		Source:     source,
		ExecutedAt: time.Now().UTC(),
	}}

	opts.Metrics.RecordSearchStarted(string(source))
	start := time.Now()
	res, err := c.Search(ctx, params)
	slot.search.Duration = time.Since(start)

	if err != nil {
		slot.err = err
		slot.search.Failed = true
		slot.search.Error = err.Error()
		opts.Metrics.RecordSearchFailed(string(source), slot.search.Duration.Seconds())
		if ctx.Err() == nil {
			logger.Warn().Err(err).Msg("source search failed; skipping source for this query")
		}
		return slot
	}

	records := make([]domain.CandidateRecord, 0, len(res.Records))
	for _, r := range res.Records {
		if err := r.Validate(); err != nil {
			slot.dropped++
			logger.Debug().Err(err).Msg("dropping malformed record")
			continue
		}
		if r.Source == "" {
			r.Source = source
		}
		if r.Query == "" {
			r.Query = query
		}
		records = append(records, r)
	}

	slot.records = records
	slot.search.ResultCount = len(records)
	opts.Metrics.RecordSearchCompleted(string(source), len(records), slot.search.Duration.Seconds())
	opts.Metrics.RecordRecordsDropped(string(source), slot.dropped)
	logger.Debug().Int("records", len(records)).Dur("duration", slot.search.Duration).Msg("source search completed")
	return slot
}
