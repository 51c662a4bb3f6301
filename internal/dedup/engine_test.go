package dedup

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/training-evidence-curator/internal/domain"
)

func newTestEngine() *Engine {
	return NewEngine(DefaultConfig(), zerolog.Nop(), nil)
}

func TestMerge(t *testing.T) {
	a := []domain.CandidateRecord{{Title: "a1"}, {Title: "a2"}}
	b := []domain.CandidateRecord{{Title: "b1"}}

	merged := Merge(a, nil, b)
	require.Len(t, merged, 3)
	assert.Equal(t, "a1", merged[0].Title)
	assert.Equal(t, "b1", merged[2].Title)
	assert.Empty(t, Merge())
}

func TestEngine_Deduplicate(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		clusters, stats := newTestEngine().Deduplicate("deload_timing", nil)
		assert.Empty(t, clusters)
		assert.Equal(t, Stats{}, stats)
	})

	t.Run("doi match across formats", func(t *testing.T) {
		records := []domain.CandidateRecord{
			{Source: domain.SourceTypeArXiv, SourceID: "2301.1", Title: "Deloading in strength sports", DOI: "https://doi.org/10.1000/ABC", IsPreprint: true},
			{Source: domain.SourceTypePubMed, SourceID: "111", PMID: "111", Title: "Deloading practices in strength sports: a survey", DOI: "doi:10.1000/abc", Journal: "Sports Med", Year: 2023},
		}
		clusters, stats := newTestEngine().Deduplicate("deload_timing", records)
		require.Len(t, clusters, 1)
		assert.Equal(t, Stats{Input: 2, Clusters: 1, Duplicates: 1}, stats)

		p := clusters[0].Paper
		assert.Equal(t, []int{0, 1}, clusters[0].Members)
		assert.Equal(t, domain.SourceTypePubMed, p.Source)
		assert.Equal(t, "10.1000/abc", p.DOI)
		assert.Equal(t, "111", p.PMID)
		assert.False(t, p.IsPreprint)
		assert.Equal(t, "2301.1", p.ExternalIDs[domain.SourceTypeArXiv])
		assert.Equal(t, "111", p.ExternalIDs[domain.SourceTypePubMed])
		assert.Equal(t, []string{"pubmed:111", "arxiv:2301.1"}, p.MergedFrom)
		assert.Equal(t, "deload_timing", p.Domain)
		assert.Equal(t, domain.LifecycleDeduplicated, p.Lifecycle)
	})

	t.Run("pmid match", func(t *testing.T) {
		records := []domain.CandidateRecord{
			{Source: domain.SourceTypeSemanticScholar, SourceID: "s2", Title: "Alpha", PMID: "999"},
			{Source: domain.SourceTypePubMed, SourceID: "999", Title: "Completely different wording", PMID: "999"},
		}
		clusters, _ := newTestEngine().Deduplicate("d", records)
		require.Len(t, clusters, 1)
	})

	t.Run("title only match", func(t *testing.T) {
		records := []domain.CandidateRecord{
			{Source: domain.SourceTypeSemanticScholar, SourceID: "s2", Title: "Velocity based training in elite athletes", Abstract: "short"},
			{Source: domain.SourceTypeDOAJ, SourceID: "dj", Title: "Velocity-based training in elite athletes.", Abstract: "a considerably longer abstract", CitationCount: 9},
		}
		clusters, _ := newTestEngine().Deduplicate("d", records)
		require.Len(t, clusters, 1)
		p := clusters[0].Paper
		assert.Equal(t, domain.SourceTypeSemanticScholar, p.Source)
		assert.Equal(t, "a considerably longer abstract", p.Abstract)
		assert.Equal(t, 9, p.CitationCount)
	})

	t.Run("title plus shared author", func(t *testing.T) {
		records := []domain.CandidateRecord{
			{Source: domain.SourceTypePubMed, SourceID: "1", Title: "Autoregulated loading with RPE in novice lifters", Authors: []string{"Eric Helms"}},
			{Source: domain.SourceTypeOpenAlex, SourceID: "W1", Title: "Autoregulated loading using RPE for novice lifters", Authors: []string{"Helms, E."}},
			{Source: domain.SourceTypeDOAJ, SourceID: "x", Title: "Autoregulated loading using RPE for novice lifters", Authors: []string{"Someone Else"}},
		}
		sim := TitleSimilarity(records[0].Title, records[1].Title)
		require.GreaterOrEqual(t, sim, DefaultTitleAuthorThreshold)
		require.Less(t, sim, DefaultTitleThreshold)

		clusters, _ := newTestEngine().Deduplicate("d", records)
		// record 2 matches record 1 exactly on title, and record 1 matches record 0 via author.
		require.Len(t, clusters, 1)
		assert.Equal(t, []int{0, 1, 2}, clusters[0].Members)
	})

	t.Run("distinct dois stay apart", func(t *testing.T) {
		records := []domain.CandidateRecord{
			{Source: domain.SourceTypePubMed, SourceID: "1", Title: "Periodization of resistance training", DOI: "10.1/a"},
			{Source: domain.SourceTypePubMed, SourceID: "2", Title: "Periodization of resistance training", DOI: "10.1/b"},
			{Source: domain.SourceTypeArXiv, SourceID: "3", Title: "Periodization of resistance training"},
		}
		clusters, stats := newTestEngine().Deduplicate("d", records)
		require.Len(t, clusters, 2)
		assert.Equal(t, []int{0, 2}, clusters[0].Members)
		assert.Equal(t, []int{1}, clusters[1].Members)
		assert.Equal(t, 1, stats.Duplicates)

		cfg := DefaultConfig()
		cfg.RespectDistinctDOI = false
		clusters, _ = NewEngine(cfg, zerolog.Nop(), nil).Deduplicate("d", records)
		assert.Len(t, clusters, 1)
	})

	t.Run("representative prefers recent year within a source", func(t *testing.T) {
		records := []domain.CandidateRecord{
			{Source: domain.SourceTypeOpenAlex, SourceID: "W1", Title: "Exercise selection for hypertrophy", Year: 2019},
			{Source: domain.SourceTypeOpenAlex, SourceID: "W2", Title: "Exercise selection for hypertrophy", Year: 2021},
		}
		clusters, _ := newTestEngine().Deduplicate("d", records)
		require.Len(t, clusters, 1)
		assert.Equal(t, "W2", clusters[0].Paper.SourceID)
	})

	t.Run("deterministic ids and order", func(t *testing.T) {
		records := []domain.CandidateRecord{
			{Source: domain.SourceTypePubMed, SourceID: "1", Title: "Tapering before competition"},
			{Source: domain.SourceTypeArXiv, SourceID: "2", Title: "Muscle damage markers after eccentric work"},
			{Source: domain.SourceTypeDOAJ, SourceID: "3", Title: "Tapering before competition"},
		}
		first, _ := newTestEngine().Deduplicate("d", records)
		second, _ := newTestEngine().Deduplicate("d", records)
		require.Len(t, first, 2)
		require.Len(t, second, 2)
		for i := range first {
			assert.Equal(t, first[i].Paper.ID, second[i].Paper.ID)
			assert.Equal(t, first[i].Members, second[i].Members)
		}
		assert.Equal(t, []int{0, 2}, first[0].Members)
	})
}

func TestEngine_Deduplicate_MergesAcrossRules(t *testing.T) {
	authors := []string{"Mike Israetel", "James Hoffmann"}

	tests := []struct {
		name        string
		records     []domain.CandidateRecord
		wantMembers []int
		wantDOI     string
		wantIDs     map[domain.SourceType]string
	}{
		{
			name: "case-differing dois and a misspelled doi-less title",
			records: []domain.CandidateRecord{
				{Source: domain.SourceTypePubMed, SourceID: "pm1", Title: "Load Progression Study", DOI: "10.1/x", Authors: authors},
				{Source: domain.SourceTypeSemanticScholar, SourceID: "s2a", Title: "Load progression study", DOI: "10.1/X", Authors: authors},
				{Source: domain.SourceTypeArXiv, SourceID: "2401.7", Title: "Load Progresion Study", Authors: authors, IsPreprint: true},
			},
			wantMembers: []int{0, 1, 2},
			wantDOI:     "10.1/x",
			wantIDs: map[domain.SourceType]string{
				domain.SourceTypePubMed:          "pm1",
				domain.SourceTypeSemanticScholar: "s2a",
				domain.SourceTypeArXiv:           "2401.7",
			},
		},
		{
			name: "doi-less records found through the title only",
			records: []domain.CandidateRecord{
				{Source: domain.SourceTypeArXiv, SourceID: "2401.8", Title: "Load Progresion Study", Authors: authors, IsPreprint: true},
				{Source: domain.SourceTypeOpenAlex, SourceID: "W9", Title: "Load progression study."},
			},
			wantMembers: []int{0, 1},
			wantIDs: map[domain.SourceType]string{
				domain.SourceTypeArXiv:    "2401.8",
				domain.SourceTypeOpenAlex: "W9",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clusters, stats := newTestEngine().Deduplicate("progressive_overload", tt.records)
			require.Len(t, clusters, 1)
			assert.Equal(t, 1, stats.Clusters)
			assert.Equal(t, len(tt.records)-1, stats.Duplicates)
			assert.Equal(t, tt.wantMembers, clusters[0].Members)

			p := clusters[0].Paper
			assert.Equal(t, tt.wantDOI, p.DOI)
			assert.Equal(t, tt.wantIDs, p.ExternalIDs)
			assert.Len(t, p.MergedFrom, len(tt.records))
		})
	}
}

func TestEngine_Deduplicate_SharedDOIIsOrderIndependent(t *testing.T) {
	base := []domain.CandidateRecord{
		{Source: domain.SourceTypePubMed, SourceID: "pm1", Title: "Training to failure and hypertrophy", DOI: "10.1/x"},
		{Source: domain.SourceTypeSemanticScholar, SourceID: "s2a", Title: "Proximity to failure: a meta-analysis", DOI: "https://doi.org/10.1/X"},
		{Source: domain.SourceTypeOpenAlex, SourceID: "W1", Title: "Effects of set end points on muscle growth", DOI: "doi:10.1/x."},
		// Same title as the first record but a different DOI.
		{Source: domain.SourceTypeDOAJ, SourceID: "dj1", Title: "Training to failure and hypertrophy", DOI: "10.1/y"},
	}
	wantIDs := map[domain.SourceType]string{
		domain.SourceTypePubMed:          "pm1",
		domain.SourceTypeSemanticScholar: "s2a",
		domain.SourceTypeOpenAlex:        "W1",
	}

	for _, order := range permutations(len(base)) {
		records := make([]domain.CandidateRecord, len(order))
		for i, idx := range order {
			records[i] = base[idx]
		}

		clusters, _ := newTestEngine().Deduplicate("failure_training", records)
		require.Len(t, clusters, 2, "order %v", order)

		var shared []*domain.CanonicalPaper
		for _, c := range clusters {
			if c.Paper.DOI == "10.1/x" {
				shared = append(shared, c.Paper)
				assert.Len(t, c.Members, 3, "order %v", order)
			}
		}
		require.Len(t, shared, 1, "order %v", order)
		assert.Equal(t, wantIDs, shared[0].ExternalIDs, "order %v", order)
		assert.Equal(t, "pm1", shared[0].SourceID, "order %v", order)
	}
}

func TestEngine_Deduplicate_GenericTitleStaysApart(t *testing.T) {
	records := []domain.CandidateRecord{
		{Source: domain.SourceTypePubMed, SourceID: "1", Title: "Resistance training", Authors: []string{"Brad Schoenfeld"}},
		{Source: domain.SourceTypeOpenAlex, SourceID: "W2", Title: "Resistance training in older women with knee osteoarthritis", Authors: []string{"Schoenfeld, B."}},
	}
	clusters, stats := newTestEngine().Deduplicate("d", records)
	require.Len(t, clusters, 2)
	assert.Equal(t, 0, stats.Duplicates)

	// Dropping the coverage requirement restores the token-set match.
	cfg := DefaultConfig()
	cfg.TokenSetCoverage = 0.01
	clusters, _ = NewEngine(cfg, zerolog.Nop(), nil).Deduplicate("d", records)
	assert.Len(t, clusters, 1)
}

// permutations returns every ordering of 0..n-1.
func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for pos := 0; pos <= len(p); pos++ {
			next := make([]int, 0, n)
			next = append(next, p[:pos]...)
			next = append(next, n-1)
			next = append(next, p[pos:]...)
			out = append(out, next)
		}
	}
	return out
}

func TestSelectRepresentative(t *testing.T) {
	records := []domain.CandidateRecord{
		{Source: domain.SourceTypeArXiv, Year: 2024},
		{Source: domain.SourceTypeSemanticScholar, Year: 2020},
		{Source: domain.SourceTypeSemanticScholar, Year: 2020},
	}
	assert.Equal(t, 1, selectRepresentative(records, []int{0, 1, 2}))
}
