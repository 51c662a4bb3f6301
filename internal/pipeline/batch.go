package pipeline

import (
	"github.com/helixir/training-evidence-curator/internal/dedup"
	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/papersources"
)

// Counts are the running totals of one domain run.
type Counts struct {
	Collected          int `json:"collected"`
	Dropped            int `json:"dropped"`
	Clusters           int `json:"clusters"`
	Duplicates         int `json:"duplicates"`
	Accepted           int `json:"accepted"`
	Rejected           int `json:"rejected"`
	Undecidable        int `json:"undecidable"`
	Enriched           int `json:"enriched"`
	EnrichmentFailures int `json:"enrichment_failures"`
	Embedded           int `json:"embedded"`
	EmbeddingFailures  int `json:"embedding_failures"`
	Persisted          int `json:"persisted"`
	Conflicts          int `json:"conflicts"`
	Skipped            int `json:"skipped"`
}

// Batch is the state carried between stages and stored as each stage's
// checkpoint. Changing its shape requires bumping checkpoint.SchemaVersion.
type Batch struct {
	RunID  string `json:"run_id"`
	Domain string `json:"domain"`

	// Records is the merged collector output; cleared once deduplicated.
	Records  []domain.CandidateRecord    `json:"records,omitempty"`
	Searches []domain.SearchInvocation   `json:"searches,omitempty"`
	Failures []papersources.QueryFailure `json:"failures,omitempty"`

	FailedSources []domain.SourceType `json:"failed_sources,omitempty"`

	// Papers holds every cluster after deduplication and only the accepted
	// papers after filtering.
	Papers      []*domain.CanonicalPaper `json:"papers,omitempty"`
	Undecidable []*domain.CanonicalPaper `json:"undecidable,omitempty"`

	// Stats accumulates per-source counters written during persisting.
	Stats map[domain.SourceType]domain.StatsDelta `json:"stats,omitempty"`

	AlreadyCommitted bool   `json:"already_committed,omitempty"`
	Counts           Counts `json:"counts"`
}

func newBatch(runID, domainName string) *Batch {
	return &Batch{
		RunID:  runID,
		Domain: domainName,
		Stats:  make(map[domain.SourceType]domain.StatsDelta),
	}
}

func (b *Batch) addStats(source domain.SourceType, delta domain.StatsDelta) {
	if b.Stats == nil {
		b.Stats = make(map[domain.SourceType]domain.StatsDelta)
	}
	b.Stats[source] = b.Stats[source].Add(delta)
}

// applyCollect records collector output and per-source collected counts.
func (b *Batch) applyCollect(res *papersources.CollectResult) {
	b.Records = res.Records
	b.Searches = res.Searches
	b.Failures = res.Failures
	b.FailedSources = res.FailedSources
	b.Counts.Collected = len(res.Records)
	b.Counts.Dropped = res.Dropped
	for _, r := range res.Records {
		b.addStats(r.Source, domain.StatsDelta{Collected: 1})
	}
}

// applyDedup replaces the records with the clustered papers. Each
// non-representative member counts as a duplicate against its own source.
func (b *Batch) applyDedup(clusters []dedup.Cluster, stats dedup.Stats) {
	papers := make([]*domain.CanonicalPaper, 0, len(clusters))
	for _, c := range clusters {
		c.Paper.Domain = b.Domain
		papers = append(papers, c.Paper)
		repSeen := false
		for _, idx := range c.Members {
			rec := b.Records[idx]
			if !repSeen && rec.Source == c.Paper.Source && rec.SourceID == c.Paper.SourceID {
				repSeen = true
				continue
			}
			b.addStats(rec.Source, domain.StatsDelta{Duplicates: 1})
		}
	}
	b.Papers = papers
	b.Records = nil
	b.Counts.Clusters = stats.Clusters
	b.Counts.Duplicates = stats.Duplicates
}

// applyVerdicts counts filter outcomes per source of the representative.
func (b *Batch) applyVerdicts(accepted, rejected, undecidable []*domain.CanonicalPaper) {
	for _, p := range accepted {
		b.addStats(p.Source, scoredDelta(p, domain.StatsDelta{Accepted: 1}))
	}
	for _, p := range rejected {
		b.addStats(p.Source, scoredDelta(p, domain.StatsDelta{Rejected: 1}))
	}
	for _, p := range undecidable {
		b.addStats(p.Source, domain.StatsDelta{Undecidable: 1})
	}
	b.Counts.Accepted += len(accepted)
	b.Counts.Rejected += len(rejected)
}

func scoredDelta(p *domain.CanonicalPaper, d domain.StatsDelta) domain.StatsDelta {
	if p.QualityScore != nil {
		d.QualitySum = *p.QualityScore
		d.QualityCount = 1
	}
	return d
}

// applyDownloads counts download outcomes for papers that had a PDF URL.
func (b *Batch) applyDownloads() {
	for _, p := range b.Papers {
		if !p.HasPDF() {
			continue
		}
		if p.Lifecycle == domain.LifecycleTextEnriched {
			b.addStats(p.Source, domain.StatsDelta{DownloadsSucceeded: 1})
		} else {
			b.addStats(p.Source, domain.StatsDelta{DownloadsFailed: 1})
		}
	}
}
