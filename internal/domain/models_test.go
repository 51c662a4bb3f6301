package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "bare doi", input: "10.1/x", expected: "10.1/x"},
		{name: "upper case", input: "10.1/X", expected: "10.1/x"},
		{name: "doi prefix", input: "doi:10.1519/JSC.0000", expected: "10.1519/jsc.0000"},
		{name: "doi prefix with space", input: "DOI: 10.1519/JSC.0000", expected: "10.1519/jsc.0000"},
		{name: "https resolver", input: "https://doi.org/10.1186/S40798-021-00307-W", expected: "10.1186/s40798-021-00307-w"},
		{name: "dx resolver", input: "http://dx.doi.org/10.1007/s40279-019-01170-7", expected: "10.1007/s40279-019-01170-7"},
		{name: "surrounding whitespace", input: "  10.1/x  ", expected: "10.1/x"},
		{name: "trailing period", input: "10.1/x.", expected: "10.1/x"},
		{name: "empty", input: "", expected: ""},
		{name: "only whitespace", input: "   ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeDOI(tt.input))
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "lowercase", input: "Load Progression Study", expected: "load progression study"},
		{name: "punctuation becomes space", input: "Block vs. Linear: A Meta-Analysis", expected: "block vs linear a meta analysis"},
		{name: "collapse whitespace", input: "  deload \t timing\n", expected: "deload timing"},
		{name: "unicode letters preserved", input: "Müller's Training", expected: "müller s training"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTitle(tt.input))
		})
	}
}

func TestCandidateRecord_Validate(t *testing.T) {
	t.Run("title only is valid", func(t *testing.T) {
		r := CandidateRecord{Source: SourceTypePubMed, Title: "Periodization for athletes"}
		assert.NoError(t, r.Validate())
	})

	t.Run("doi only is valid", func(t *testing.T) {
		r := CandidateRecord{Source: SourceTypeDOAJ, DOI: "10.1/x"}
		assert.NoError(t, r.Validate())
	})

	t.Run("external id only is valid", func(t *testing.T) {
		r := CandidateRecord{Source: SourceTypeArXiv, ExternalIDs: map[SourceType]string{SourceTypeArXiv: "2101.00001"}}
		assert.NoError(t, r.Validate())
	})

	t.Run("no title and no identifier is malformed", func(t *testing.T) {
		r := CandidateRecord{Source: SourceTypeSemanticScholar, Title: "   ", DOI: "doi:"}
		err := r.Validate()
		require.Error(t, err)

		var malformed *MalformedRecordError
		require.True(t, errors.As(err, &malformed))
		assert.Equal(t, SourceTypeSemanticScholar, malformed.Source)
		assert.ErrorIs(t, err, ErrNoIdentifier)
	})
}

func TestCanonicalPaper_IdentityKey(t *testing.T) {
	t.Run("doi wins", func(t *testing.T) {
		p := CanonicalPaper{DOI: "https://doi.org/10.1/X", Source: SourceTypePubMed, SourceID: "123", Title: "T"}
		assert.Equal(t, "doi:10.1/x", p.IdentityKey())
	})

	t.Run("source id when no doi", func(t *testing.T) {
		p := CanonicalPaper{Source: SourceTypePubMed, SourceID: "123", Title: "T"}
		assert.Equal(t, "pubmed:123", p.IdentityKey())
	})

	t.Run("normalized title fallback", func(t *testing.T) {
		p := CanonicalPaper{Title: "Load Progression: Study"}
		assert.Equal(t, "title:load progression study", p.IdentityKey())
	})
}

func TestCanonicalPaper_AssignID(t *testing.T) {
	a := CanonicalPaper{DOI: "10.1/x"}
	b := CanonicalPaper{DOI: "DOI:10.1/X"}
	c := CanonicalPaper{DOI: "10.1/y"}

	a.AssignID()
	b.AssignID()
	c.AssignID()

	assert.Equal(t, a.ID, b.ID, "same identity key must yield the same id")
	assert.NotEqual(t, a.ID, c.ID)
}

func TestCanonicalPaper_ApplyAssessment(t *testing.T) {
	p := CanonicalPaper{}
	p.ApplyAssessment(Assessment{RelevanceScore: 0.7, QualityScore: 7, Methodology: MethodologyCohort})

	require.NotNil(t, p.RelevanceScore)
	require.NotNil(t, p.QualityScore)
	assert.Equal(t, 0.7, *p.RelevanceScore)
	assert.Equal(t, 7, *p.QualityScore)
	assert.Equal(t, MethodologyCohort, p.Methodology)
	assert.Equal(t, LifecycleScored, p.Lifecycle)
}

func TestParseMethodology(t *testing.T) {
	tests := []struct {
		input    string
		expected Methodology
	}{
		{"randomized_controlled_trial", MethodologyRCT},
		{"RCT", MethodologyRCT},
		{"Randomised controlled trial", MethodologyRCT},
		{"meta-analysis", MethodologyMetaAnalysis},
		{"Systematic review and meta-analysis", MethodologyMetaAnalysis},
		{"systematic review", MethodologySystematicReview},
		{"review", MethodologyNarrativeReview},
		{"case-study", MethodologyCaseStudy},
		{"longitudinal study", MethodologyCohort},
		{"experimental", MethodologyExperimental},
		{"observational", MethodologyObservational},
		{"", MethodologyUnknown},
		{"something else", MethodologyUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.input), func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseMethodology(tt.input))
		})
	}
}

func TestSourceType_Rank(t *testing.T) {
	assert.Less(t, SourceTypePubMed.Rank(), SourceTypeSemanticScholar.Rank())
	assert.Less(t, SourceTypeSemanticScholar.Rank(), SourceTypeArXiv.Rank())
	assert.Equal(t, len(SourcePriority), SourceType("unknown").Rank())
	assert.True(t, SourceTypeArXiv.IsPreprintServer())
	assert.False(t, SourceTypePubMed.IsPreprintServer())
}

func TestParseSourceType(t *testing.T) {
	st, err := ParseSourceType(" PubMed ")
	require.NoError(t, err)
	assert.Equal(t, SourceTypePubMed, st)

	_, err = ParseSourceType("scopus")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStage_Transitions(t *testing.T) {
	t.Run("forward chain reaches done", func(t *testing.T) {
		s := StageIdle
		var visited []Stage
		for !s.IsTerminal() {
			next := s.Next()
			require.True(t, CanTransition(s, next), "%s -> %s", s, next)
			visited = append(visited, next)
			s = next
		}
		assert.Equal(t, []Stage{
			StageCollecting, StageDeduplicating, StageFiltering,
			StageEnriching, StageEmbedding, StagePersisting, StageDone,
		}, visited)
	})

	t.Run("failed reachable from every work stage", func(t *testing.T) {
		for _, s := range append([]Stage{StageIdle}, WorkStages...) {
			assert.True(t, CanTransition(s, StageFailed), "%s -> failed", s)
		}
	})

	t.Run("skipping a stage is rejected", func(t *testing.T) {
		err := ValidateTransition(StageCollecting, StageFiltering)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("terminal stages cannot transition", func(t *testing.T) {
		assert.False(t, CanTransition(StageDone, StageFailed))
		assert.False(t, CanTransition(StageFailed, StageCollecting))
		assert.Equal(t, StageDone, StageDone.Next())
	})
}

func TestStatsDelta(t *testing.T) {
	a := StatsDelta{Collected: 3, Accepted: 1, QualitySum: 7, QualityCount: 1}
	b := StatsDelta{Collected: 2, Rejected: 1, QualitySum: 5, QualityCount: 1}

	sum := a.Add(b)
	assert.Equal(t, 5, sum.Collected)
	assert.Equal(t, 1, sum.Accepted)
	assert.Equal(t, 1, sum.Rejected)
	assert.False(t, sum.IsZero())
	assert.True(t, StatsDelta{}.IsZero())

	stats := DomainCollectionStats{StatsDelta: sum}
	assert.InDelta(t, 6.0, stats.AvgQualityScore(), 1e-9)
	assert.Zero(t, (&DomainCollectionStats{}).AvgQualityScore())
}
