package quality

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/helixir/training-evidence-curator/internal/catalog"
	"github.com/helixir/training-evidence-curator/internal/domain"
)

const (
	maxAbstractChars  = 1000
	maxReasoningChars = 500
	maxDetailChars    = 300
	maxKeyFindings    = 5
)

// BuildPrompts renders the system and user prompts for one batch. Papers are
// numbered from 0 in the order given; the model echoes the index back.
func BuildPrompts(d catalog.Domain, papers []*domain.CanonicalPaper) (string, string) {
	var sys strings.Builder
	fmt.Fprintf(&sys, "You evaluate sports science research papers for the domain %s.\n", strings.ToUpper(d.Name))
	if d.Description != "" {
		fmt.Fprintf(&sys, "Domain scope: %s\n", d.Description)
	}
	sys.WriteString("\nDOMAIN CRITERIA:\n")
	fmt.Fprintf(&sys, "- Key concepts: %s\n", joinOrNA(d.Criteria.Keywords))
	fmt.Fprintf(&sys, "- Preferred study types: %s\n", joinOrNA(d.Criteria.StudyTypes))
	fmt.Fprintf(&sys, "- Target populations: %s\n", joinOrNA(d.Criteria.Populations))
	sys.WriteString(`
SCORING GUIDELINES:
- relevance_score (0-1): how well the paper addresses the domain topics.
- quality_score (1-10): methodological quality: study design, sample size, controls, statistics.
- methodology: one of randomized_controlled_trial, controlled_trial, cohort, cross_sectional,
  case_control, case_study, systematic_review, meta_analysis, narrative_review, experimental,
  observational, unknown.

Respond with a single JSON object of the form:
{"assessments": [{"index": <int>, "relevance_score": <float>, "quality_score": <int>,
  "methodology": "<string>", "reasoning": "<brief explanation>", "key_findings": ["<finding>"],
  "population_relevance": "<high/medium/low>", "practical_applications": "<brief>",
  "limitations": "<brief>"}]}
Include exactly one entry per paper.`)

	var user strings.Builder
	fmt.Fprintf(&user, "Assess the following %d paper(s).\n", len(papers))
	for i, p := range papers {
		fmt.Fprintf(&user, "\nPAPER %d\n", i)
		fmt.Fprintf(&user, "Title: %s\n", p.Title)
		fmt.Fprintf(&user, "Authors: %s\n", joinOrNA(p.Authors))
		fmt.Fprintf(&user, "Journal: %s\n", orNA(p.Journal))
		if p.Year > 0 {
			fmt.Fprintf(&user, "Year: %d\n", p.Year)
		} else {
			user.WriteString("Year: N/A\n")
		}
		fmt.Fprintf(&user, "Abstract: %s\n", orNA(truncate(p.Abstract, maxAbstractChars)))
	}
	return sys.String(), user.String()
}

// rawAssessment mirrors one entry of the model's reply. Scores are decoded
// as floats because models occasionally emit 7.0 for an integer field.
type rawAssessment struct {
	Index                 *int     `json:"index"`
	RelevanceScore        *float64 `json:"relevance_score"`
	QualityScore          *float64 `json:"quality_score"`
	Methodology           string   `json:"methodology"`
	MethodologyAssessment string   `json:"methodology_assessment"`
	Reasoning             string   `json:"reasoning"`
	KeyFindings           []string `json:"key_findings"`
	PopulationRelevance   string   `json:"population_relevance"`
	PracticalApplications string   `json:"practical_applications"`
	Limitations           string   `json:"limitations"`
}

type rawResponse struct {
	Assessments []rawAssessment `json:"assessments"`
}

// ParseResponse decodes a batch reply into assessments keyed by paper index.
// Entries without an index in [0, n) or without both scores are skipped, so
// the caller sees those papers as missing.
func ParseResponse(content string, n int) (map[int]domain.Assessment, error) {
	content = stripCodeFence(content)

	var resp rawResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse assessment JSON: %w", err)
	}

	// A single-paper batch may come back as a bare assessment object.
	if len(resp.Assessments) == 0 && n == 1 {
		var single rawAssessment
		if err := json.Unmarshal([]byte(content), &single); err == nil && single.RelevanceScore != nil {
			zero := 0
			single.Index = &zero
			resp.Assessments = []rawAssessment{single}
		}
	}

	out := make(map[int]domain.Assessment, len(resp.Assessments))
	for _, raw := range resp.Assessments {
		if raw.Index == nil || *raw.Index < 0 || *raw.Index >= n {
			continue
		}
		if raw.RelevanceScore == nil || raw.QualityScore == nil {
			continue
		}
		if _, dup := out[*raw.Index]; dup {
			continue
		}
		out[*raw.Index] = raw.toAssessment()
	}
	return out, nil
}

func (r rawAssessment) toAssessment() domain.Assessment {
	methodology := r.Methodology
	if methodology == "" {
		methodology = r.MethodologyAssessment
	}
	findings := r.KeyFindings
	if len(findings) > maxKeyFindings {
		findings = findings[:maxKeyFindings]
	}
	return domain.Assessment{
		RelevanceScore:        ClampRelevance(*r.RelevanceScore),
		QualityScore:          ClampQuality(*r.QualityScore),
		Methodology:           domain.ParseMethodology(methodology),
		Reasoning:             truncate(r.Reasoning, maxReasoningChars),
		KeyFindings:           findings,
		PopulationRelevance:   r.PopulationRelevance,
		PracticalApplications: truncate(r.PracticalApplications, maxDetailChars),
		Limitations:           truncate(r.Limitations, maxDetailChars),
	}
}

// ClampRelevance limits a relevance score to [0, 1].
func ClampRelevance(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// ClampQuality rounds a quality score and limits it to [1, 10].
func ClampQuality(v float64) int {
	if math.IsNaN(v) {
		return 1
	}
	q := int(math.Round(v))
	if q < 1 {
		return 1
	}
	if q > 10 {
		return 10
	}
	return q
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func joinOrNA(items []string) string {
	if len(items) == 0 {
		return "N/A"
	}
	return strings.Join(items, ", ")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
