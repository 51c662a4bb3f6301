package pipeline

import (
	"time"

	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/events"
)

// Summary reports how one domain run ended.
type Summary struct {
	Domain string
	RunID  string
	// Stage is StageDone or StageFailed.
	Stage domain.Stage
	// ResumedFrom is the last stage restored from a checkpoint, or empty.
	ResumedFrom domain.Stage
	Counts
	FailedSources    []domain.SourceType
	AlreadyCommitted bool
	Mirrored         int
	Err              error
	Duration         time.Duration
}

// Failed reports whether the domain ended in StageFailed.
func (s Summary) Failed() bool {
	return s.Stage == domain.StageFailed
}

// Event converts the summary to its run event payload.
func (s Summary) Event() events.DomainRunCompleted {
	e := events.DomainRunCompleted{
		RunID:              s.RunID,
		Domain:             s.Domain,
		Stage:              string(s.Stage),
		Collected:          s.Collected,
		Clusters:           s.Clusters,
		Duplicates:         s.Duplicates,
		Accepted:           s.Accepted,
		Rejected:           s.Rejected,
		Undecidable:        s.Undecidable,
		Enriched:           s.Enriched,
		EnrichmentFailures: s.EnrichmentFailures,
		Embedded:           s.Embedded,
		Persisted:          s.Persisted,
		Conflicts:          s.Conflicts,
		DurationMs:         s.Duration.Milliseconds(),
	}
	for _, src := range s.FailedSources {
		e.FailedSources = append(e.FailedSources, string(src))
	}
	if s.Err != nil {
		e.Error = s.Err.Error()
	}
	return e
}

// Report is the outcome of a Run across domains, in the order requested.
type Report struct {
	StartedAt time.Time
	Duration  time.Duration
	Domains   []Summary
}

// Failed reports whether any domain failed.
func (r *Report) Failed() bool {
	for _, s := range r.Domains {
		if s.Failed() {
			return true
		}
	}
	return false
}

// Totals sums the counters of every domain.
func (r *Report) Totals() Counts {
	var t Counts
	for _, s := range r.Domains {
		c := s.Counts
		t.Collected += c.Collected
		t.Dropped += c.Dropped
		t.Clusters += c.Clusters
		t.Duplicates += c.Duplicates
		t.Accepted += c.Accepted
		t.Rejected += c.Rejected
		t.Undecidable += c.Undecidable
		t.Enriched += c.Enriched
		t.EnrichmentFailures += c.EnrichmentFailures
		t.Embedded += c.Embedded
		t.EmbeddingFailures += c.EmbeddingFailures
		t.Persisted += c.Persisted
		t.Conflicts += c.Conflicts
		t.Skipped += c.Skipped
	}
	return t
}
