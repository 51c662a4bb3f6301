// Package domain provides the domain models shared by every stage of the curation pipeline.
package domain

import (
	"fmt"
	"strings"
)

// SourceType identifies the external API that produced a record.
// These values must match the values stored in search_history.source and collection_stats.source.
type SourceType string

const (
	SourceTypePubMed          SourceType = "pubmed"
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
	SourceTypeDOAJ            SourceType = "doaj"
	SourceTypeOpenAlex        SourceType = "openalex"
	SourceTypeArXiv           SourceType = "arxiv"
)

// SourcePriority is the fixed preference order used for collection order and
// representative selection: curated peer-reviewed metadata first, preprint servers last.
var SourcePriority = []SourceType{
	SourceTypePubMed,
	SourceTypeSemanticScholar,
	SourceTypeDOAJ,
	SourceTypeOpenAlex,
	SourceTypeArXiv,
}

// Rank returns the position of the source in SourcePriority. Unknown sources rank last.
func (s SourceType) Rank() int {
	for i, src := range SourcePriority {
		if src == s {
			return i
		}
	}
	return len(SourcePriority)
}

// IsPreprintServer reports whether the source only carries preprints.
func (s SourceType) IsPreprintServer() bool {
	return s == SourceTypeArXiv
}

// ParseSourceType converts a string to a known SourceType.
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range SourcePriority {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown source %q", ErrInvalidInput, s)
}

// Lifecycle is the enrichment level a CanonicalPaper has reached.
type Lifecycle string

const (
	LifecycleCollected    Lifecycle = "collected"
	LifecycleDeduplicated Lifecycle = "deduplicated"
	LifecycleScored       Lifecycle = "scored"
	LifecycleAccepted     Lifecycle = "accepted"
	LifecycleRejected     Lifecycle = "rejected"
	LifecycleUndecidable  Lifecycle = "undecidable"
	LifecycleTextEnriched Lifecycle = "text_enriched"
	LifecycleEmbedded     Lifecycle = "embedded"
	LifecyclePersisted    Lifecycle = "persisted"
)

// Methodology classifies the study design reported by the quality assessor.
type Methodology string

const (
	MethodologyRCT              Methodology = "randomized_controlled_trial"
	MethodologyControlledTrial  Methodology = "controlled_trial"
	MethodologyCohort           Methodology = "cohort"
	MethodologyCrossSectional   Methodology = "cross_sectional"
	MethodologyCaseControl      Methodology = "case_control"
	MethodologyCaseStudy        Methodology = "case_study"
	MethodologySystematicReview Methodology = "systematic_review"
	MethodologyMetaAnalysis     Methodology = "meta_analysis"
	MethodologyNarrativeReview  Methodology = "narrative_review"
	MethodologyExperimental     Methodology = "experimental"
	MethodologyObservational    Methodology = "observational"
	MethodologyUnknown          Methodology = "unknown"
)

// methodologyAliases maps free-form assessor output onto the enum.
// Order matters: more specific phrases are checked first.
var methodologyAliases = []struct {
	needle string
	value  Methodology
}{
	{"meta-analysis", MethodologyMetaAnalysis},
	{"meta analysis", MethodologyMetaAnalysis},
	{"metaanalysis", MethodologyMetaAnalysis},
	{"systematic", MethodologySystematicReview},
	{"randomized", MethodologyRCT},
	{"randomised", MethodologyRCT},
	{"rct", MethodologyRCT},
	{"controlled trial", MethodologyControlledTrial},
	{"controlled_trial", MethodologyControlledTrial},
	{"intervention", MethodologyControlledTrial},
	{"cohort", MethodologyCohort},
	{"longitudinal", MethodologyCohort},
	{"cross-sectional", MethodologyCrossSectional},
	{"cross sectional", MethodologyCrossSectional},
	{"cross_sectional", MethodologyCrossSectional},
	{"case-control", MethodologyCaseControl},
	{"case control", MethodologyCaseControl},
	{"case_control", MethodologyCaseControl},
	{"case study", MethodologyCaseStudy},
	{"case-study", MethodologyCaseStudy},
	{"case_study", MethodologyCaseStudy},
	{"case report", MethodologyCaseStudy},
	{"review", MethodologyNarrativeReview},
	{"experimental", MethodologyExperimental},
	{"comparative", MethodologyExperimental},
	{"observational", MethodologyObservational},
}

// ParseMethodology maps assessor output such as "RCT" or "meta-analysis" onto
// the Methodology enum, returning MethodologyUnknown when nothing matches.
func ParseMethodology(s string) Methodology {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return MethodologyUnknown
	}
	if m := Methodology(v); m.Valid() {
		return m
	}
	for _, alias := range methodologyAliases {
		if strings.Contains(v, alias.needle) {
			return alias.value
		}
	}
	return MethodologyUnknown
}

// Valid reports whether m is one of the enumerated values.
func (m Methodology) Valid() bool {
	switch m {
	case MethodologyRCT, MethodologyControlledTrial, MethodologyCohort,
		MethodologyCrossSectional, MethodologyCaseControl, MethodologyCaseStudy,
		MethodologySystematicReview, MethodologyMetaAnalysis, MethodologyNarrativeReview,
		MethodologyExperimental, MethodologyObservational, MethodologyUnknown:
		return true
	default:
		return false
	}
}
