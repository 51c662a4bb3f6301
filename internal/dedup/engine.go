// Package dedup merges candidate records from every collector into
// canonical papers. Records are clustered with a union-find over four
// matching rules (DOI, PMID, title similarity, title similarity with a
// shared author) and each cluster is folded into one representative.
package dedup

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/observability"
)

const (
	// DefaultTitleThreshold merges records on title similarity alone.
	DefaultTitleThreshold = 0.90

	// DefaultTitleAuthorThreshold merges records on title similarity when
	// they also share an author surname.
	DefaultTitleAuthorThreshold = 0.80

	// DefaultTokenSetCoverage is the minimum shared-token share before the
	// token-set ratio may score a pair.
	DefaultTokenSetCoverage = 0.6
)

// Config holds the matching thresholds.
type Config struct {
	TitleThreshold       float64
	TitleAuthorThreshold float64

	// TokenSetCoverage gates the token-set ratio: the titles must share at
	// least this fraction of the larger distinct token set. Without it a
	// short title scores 1.0 against any longer title containing its words,
	// e.g. "Resistance training" against "Resistance training in older
	// women with knee osteoarthritis".
	TokenSetCoverage float64

	// RespectDistinctDOI keeps records with different non-empty DOIs apart
	// even when their titles match.
	RespectDistinctDOI bool
}

// DefaultConfig returns the default matching thresholds.
func DefaultConfig() Config {
	return Config{
		TitleThreshold:       DefaultTitleThreshold,
		TitleAuthorThreshold: DefaultTitleAuthorThreshold,
		TokenSetCoverage:     DefaultTokenSetCoverage,
		RespectDistinctDOI:   true,
	}
}

// Cluster is one group of records judged to describe the same paper.
type Cluster struct {
	// Paper is the merged canonical paper.
	Paper *domain.CanonicalPaper

	// Members are the indices of the clustered records in the input, ascending.
	Members []int
}

// Stats summarizes one deduplication pass.
type Stats struct {
	Input      int `json:"input"`
	Clusters   int `json:"clusters"`
	Duplicates int `json:"duplicates"`
}

// Merge concatenates collector outputs in the order given. Collect already
// orders its output by source priority, then query, then rank.
func Merge(results ...[]domain.CandidateRecord) []domain.CandidateRecord {
	n := 0
	for _, r := range results {
		n += len(r)
	}
	out := make([]domain.CandidateRecord, 0, n)
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// Engine clusters and merges candidate records. It holds no state between
// calls and is safe for concurrent use.
type Engine struct {
	cfg     Config
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewEngine creates a deduplication engine. Zero thresholds take the defaults.
func NewEngine(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Engine {
	if cfg.TitleThreshold <= 0 {
		cfg.TitleThreshold = DefaultTitleThreshold
	}
	if cfg.TitleAuthorThreshold <= 0 {
		cfg.TitleAuthorThreshold = DefaultTitleAuthorThreshold
	}
	if cfg.TokenSetCoverage <= 0 {
		cfg.TokenSetCoverage = DefaultTokenSetCoverage
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger.With().Str("component", "dedup").Logger(),
		metrics: metrics,
	}
}

// prepared caches the normalized forms of a record used by the matching rules.
type prepared struct {
	doi      string
	pmid     string
	title    string
	surnames map[string]struct{}
}

// Deduplicate clusters records for domainName. The result is a pure function
// of the input order: clusters are ordered by their first member and the
// lowest index always becomes the union-find root.
func (e *Engine) Deduplicate(domainName string, records []domain.CandidateRecord) ([]Cluster, Stats) {
	n := len(records)
	stats := Stats{Input: n}
	if n == 0 {
		return nil, stats
	}

	prep := make([]prepared, n)
	for i := range records {
		prep[i] = prepared{
			doi:      domain.NormalizeDOI(records[i].DOI),
			pmid:     strings.TrimSpace(records[i].PMID),
			title:    domain.NormalizeTitle(records[i].Title),
			surnames: surnameSet(records[i].Authors),
		}
	}

	uf := newUnionFind(n)
	for i := range prep {
		uf.doi[i] = prep[i].doi
	}

	// Rules 1 and 2: identifier equality.
	byDOI := make(map[string]int)
	byPMID := make(map[string]int)
	for i := range prep {
		if d := prep[i].doi; d != "" {
			if first, ok := byDOI[d]; ok {
				uf.union(first, i)
			} else {
				byDOI[d] = i
			}
		}
		if p := prep[i].pmid; p != "" {
			if first, ok := byPMID[p]; ok {
				uf.union(first, i)
			} else {
				byPMID[p] = i
			}
		}
	}

	// Rules 3 and 4: title similarity, optionally backed by a shared author.
	for i := 0; i < n; i++ {
		if prep[i].title == "" {
			continue
		}
		for j := i + 1; j < n; j++ {
			if prep[j].title == "" {
				continue
			}
			ri, rj := uf.find(i), uf.find(j)
			if ri == rj {
				continue
			}
			if e.cfg.RespectDistinctDOI && uf.doi[ri] != "" && uf.doi[rj] != "" && uf.doi[ri] != uf.doi[rj] {
				continue
			}
			sim := normalizedSimilarity(prep[i].title, prep[j].title, e.cfg.TokenSetCoverage)
			if sim >= e.cfg.TitleThreshold ||
				(sim >= e.cfg.TitleAuthorThreshold && sharesSurname(prep[i].surnames, prep[j].surnames)) {
				uf.union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	var roots []int
	for i := 0; i < n; i++ {
		r := uf.find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], i)
	}

	clusters := make([]Cluster, 0, len(roots))
	for _, r := range roots {
		members := groups[r]
		clusters = append(clusters, Cluster{
			Paper:   mergeCluster(domainName, records, members),
			Members: members,
		})
	}

	stats.Clusters = len(clusters)
	stats.Duplicates = n - len(clusters)

	e.metrics.RecordDedup(stats.Clusters, stats.Duplicates)
	e.logger.Info().
		Str("domain", domainName).
		Int("input", stats.Input).
		Int("clusters", stats.Clusters).
		Int("duplicates", stats.Duplicates).
		Msg("deduplicated candidate records")

	return clusters, stats
}

// selectRepresentative picks the member from the most preferred source,
// then the most recent year, then the earliest encountered.
func selectRepresentative(records []domain.CandidateRecord, members []int) int {
	best := members[0]
	for _, idx := range members[1:] {
		cand, cur := &records[idx], &records[best]
		switch {
		case cand.Source.Rank() < cur.Source.Rank():
			best = idx
		case cand.Source.Rank() == cur.Source.Rank() && cand.Year > cur.Year:
			best = idx
		}
	}
	return best
}

// mergeCluster folds the members into one canonical paper built on the
// representative and filled from the other members where it is lacking.
func mergeCluster(domainName string, records []domain.CandidateRecord, members []int) *domain.CanonicalPaper {
	rep := &records[selectRepresentative(records, members)]

	paper := &domain.CanonicalPaper{
		Title:         strings.TrimSpace(rep.Title),
		Authors:       append([]string(nil), rep.Authors...),
		Journal:       rep.Journal,
		Year:          rep.Year,
		DOI:           domain.NormalizeDOI(rep.DOI),
		PMID:          strings.TrimSpace(rep.PMID),
		ExternalIDs:   make(map[domain.SourceType]string),
		Abstract:      rep.Abstract,
		Domain:        domainName,
		Source:        rep.Source,
		SourceID:      rep.SourceID,
		IsPreprint:    true,
		CitationCount: rep.CitationCount,
		PDFURL:        rep.PDFURL,
		URL:           rep.URL,
		Metadata:      make(map[string]any, len(rep.Metadata)),
		Lifecycle:     domain.LifecycleDeduplicated,
	}
	for k, v := range rep.Metadata {
		paper.Metadata[k] = v
	}

	queries := make([]string, 0, 1)
	seenQuery := make(map[string]bool)

	// The representative's identifiers go in first so they win conflicts.
	order := append([]int{}, members...)
	for i, idx := range order {
		if &records[idx] == rep {
			order[0], order[i] = order[i], order[0]
			break
		}
	}

	for _, idx := range order {
		rec := &records[idx]
		paper.MergedFrom = append(paper.MergedFrom, rec.Ref())

		if rec.SourceID != "" {
			if _, ok := paper.ExternalIDs[rec.Source]; !ok {
				paper.ExternalIDs[rec.Source] = rec.SourceID
			}
		}
		for src, id := range rec.ExternalIDs {
			if _, ok := paper.ExternalIDs[src]; !ok && id != "" {
				paper.ExternalIDs[src] = id
			}
		}

		if !rec.IsPreprint {
			paper.IsPreprint = false
		}
		if paper.Title == "" {
			paper.Title = strings.TrimSpace(rec.Title)
		}
		if len(paper.Authors) == 0 && len(rec.Authors) > 0 {
			paper.Authors = append([]string(nil), rec.Authors...)
		}
		if paper.DOI == "" {
			paper.DOI = domain.NormalizeDOI(rec.DOI)
		}
		if paper.PMID == "" {
			paper.PMID = strings.TrimSpace(rec.PMID)
		}
		if paper.Journal == "" {
			paper.Journal = rec.Journal
		}
		if paper.Year == 0 {
			paper.Year = rec.Year
		}
		if paper.PDFURL == "" {
			paper.PDFURL = rec.PDFURL
		}
		if paper.URL == "" {
			paper.URL = rec.URL
		}
		if len(rec.Abstract) > len(paper.Abstract) {
			paper.Abstract = rec.Abstract
		}
		if rec.CitationCount > paper.CitationCount {
			paper.CitationCount = rec.CitationCount
		}
		if rec.Query != "" && !seenQuery[rec.Query] {
			seenQuery[rec.Query] = true
			queries = append(queries, rec.Query)
		}
	}

	if paper.PMID != "" {
		if _, ok := paper.ExternalIDs[domain.SourceTypePubMed]; !ok {
			paper.ExternalIDs[domain.SourceTypePubMed] = paper.PMID
		}
	}
	if len(queries) > 0 {
		paper.Metadata["queries"] = queries
	}

	paper.AssignID()
	return paper
}

// unionFind is a disjoint-set forest where the lower index is always the root.
type unionFind struct {
	parent []int

	// doi is the DOI carried by each root's set, empty when none.
	doi []string
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), doi: make([]string, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.doi[ra] == "" {
		u.doi[ra] = u.doi[rb]
	}
}
