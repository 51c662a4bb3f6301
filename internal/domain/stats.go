package domain

import "time"

// SearchInvocation records one query executed against one source.
// It is append-only and written when the domain's results are persisted.
type SearchInvocation struct {
	Domain      string        `json:"domain"`
	Query       string        `json:"query"`
	Source      SourceType    `json:"source"`
	ResultCount int           `json:"result_count"`
	Duration    time.Duration `json:"duration"`
	ExecutedAt  time.Time     `json:"executed_at"`
	Failed      bool          `json:"failed,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// StatsDelta is an additive increment to a DomainCollectionStats row.
type StatsDelta struct {
	Collected          int `json:"collected"`
	Duplicates         int `json:"duplicates"`
	Accepted           int `json:"accepted"`
	Rejected           int `json:"rejected"`
	Undecidable        int `json:"undecidable"`
	Persisted          int `json:"persisted"`
	DownloadsSucceeded int `json:"downloads_succeeded"`
	DownloadsFailed    int `json:"downloads_failed"`
	QualitySum         int `json:"quality_sum"`
	QualityCount       int `json:"quality_count"`
}

// Add returns the field-wise sum of d and other.
func (d StatsDelta) Add(other StatsDelta) StatsDelta {
	return StatsDelta{
		Collected:          d.Collected + other.Collected,
		Duplicates:         d.Duplicates + other.Duplicates,
		Accepted:           d.Accepted + other.Accepted,
		Rejected:           d.Rejected + other.Rejected,
		Undecidable:        d.Undecidable + other.Undecidable,
		Persisted:          d.Persisted + other.Persisted,
		DownloadsSucceeded: d.DownloadsSucceeded + other.DownloadsSucceeded,
		DownloadsFailed:    d.DownloadsFailed + other.DownloadsFailed,
		QualitySum:         d.QualitySum + other.QualitySum,
		QualityCount:       d.QualityCount + other.QualityCount,
	}
}

// IsZero reports whether the delta carries no counts.
func (d StatsDelta) IsZero() bool {
	return d == StatsDelta{}
}

// DomainCollectionStats is the per domain+source rollup for one collection date.
type DomainCollectionStats struct {
	Domain         string     `json:"domain"`
	Source         SourceType `json:"source"`
	CollectionDate time.Time  `json:"collection_date"`
	StatsDelta
	UpdatedAt time.Time `json:"updated_at"`
}

// AvgQualityScore returns the mean quality score of scored papers, or 0 when none were scored.
func (s *DomainCollectionStats) AvgQualityScore() float64 {
	if s.QualityCount == 0 {
		return 0
	}
	return float64(s.QualitySum) / float64(s.QualityCount)
}
