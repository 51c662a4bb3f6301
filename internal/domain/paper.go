package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// paperNamespace seeds the name-based UUIDs derived from identity keys, so the
// same logical paper gets the same id on every run.
var paperNamespace = uuid.MustParse("6f1d8a52-3c0e-5b7a-9d4e-2a1b0c9e8f70")

// CandidateRecord is the raw output of one collector for one external identity.
// It is ephemeral: produced per query and consumed by the deduplication engine.
type CandidateRecord struct {
	Source        SourceType            `json:"source"`
	SourceID      string                `json:"source_id,omitempty"`
	Title         string                `json:"title"`
	Authors       []string              `json:"authors,omitempty"`
	Year          int                   `json:"year,omitempty"`
	Journal       string                `json:"journal,omitempty"`
	DOI           string                `json:"doi,omitempty"`
	PMID          string                `json:"pmid,omitempty"`
	ExternalIDs   map[SourceType]string `json:"external_ids,omitempty"`
	Abstract      string                `json:"abstract,omitempty"`
	PDFURL        string                `json:"pdf_url,omitempty"`
	URL           string                `json:"url,omitempty"`
	CitationCount int                   `json:"citation_count,omitempty"`
	IsPreprint    bool                  `json:"is_preprint,omitempty"`
	Query         string                `json:"query,omitempty"`
	Metadata      map[string]any        `json:"metadata,omitempty"`
}

// Ref returns the "source:source_id" reference used to trace cluster membership.
func (r *CandidateRecord) Ref() string {
	if r.SourceID == "" {
		return string(r.Source) + ":" + NormalizeTitle(r.Title)
	}
	return string(r.Source) + ":" + r.SourceID
}

// Validate checks that the record can be identified. A record needs a title
// or at least one external identifier.
func (r *CandidateRecord) Validate() error {
	if strings.TrimSpace(r.Title) != "" {
		return nil
	}
	if NormalizeDOI(r.DOI) != "" || strings.TrimSpace(r.PMID) != "" || strings.TrimSpace(r.SourceID) != "" {
		return nil
	}
	for _, id := range r.ExternalIDs {
		if strings.TrimSpace(id) != "" {
			return nil
		}
	}
	return &MalformedRecordError{Source: r.Source, Reason: "record has neither a title nor an external identifier"}
}

// Assessment holds the quality assessor's verdict for a paper.
type Assessment struct {
	RelevanceScore        float64     `json:"relevance_score"`
	QualityScore          int         `json:"quality_score"`
	Methodology           Methodology `json:"methodology"`
	Reasoning             string      `json:"reasoning,omitempty"`
	KeyFindings           []string    `json:"key_findings,omitempty"`
	PopulationRelevance   string      `json:"population_relevance,omitempty"`
	PracticalApplications string      `json:"practical_applications,omitempty"`
	Limitations           string      `json:"limitations,omitempty"`
	Model                 string      `json:"model,omitempty"`
	AssessedAt            time.Time   `json:"assessed_at"`
}

// CanonicalPaper is the deduplicated, enriched unit of record.
type CanonicalPaper struct {
	ID            uuid.UUID             `json:"id"`
	Title         string                `json:"title"`
	Authors       []string              `json:"authors,omitempty"`
	Journal       string                `json:"journal,omitempty"`
	Year          int                   `json:"year,omitempty"`
	DOI           string                `json:"doi,omitempty"`
	PMID          string                `json:"pmid,omitempty"`
	ExternalIDs   map[SourceType]string `json:"external_ids,omitempty"`
	Abstract      string                `json:"abstract,omitempty"`
	FullText      string                `json:"full_text,omitempty"`
	Sections      map[string]string     `json:"sections,omitempty"`
	Domain        string                `json:"domain"`
	Source        SourceType            `json:"source"`
	SourceID      string                `json:"source_id,omitempty"`
	IsPreprint    bool                  `json:"is_preprint,omitempty"`
	CitationCount int                   `json:"citation_count,omitempty"`
	PDFURL        string                `json:"pdf_url,omitempty"`
	PDFPath       string                `json:"pdf_path,omitempty"`
	URL           string                `json:"url,omitempty"`

	QualityScore   *int        `json:"quality_score,omitempty"`
	RelevanceScore *float64    `json:"relevance_score,omitempty"`
	Methodology    Methodology `json:"methodology,omitempty"`
	Assessment     *Assessment `json:"assessment,omitempty"`

	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// MergedFrom lists the Ref of every candidate record folded into this paper.
	MergedFrom []string `json:"merged_from,omitempty"`

	// EnrichmentErrors records best-effort failures (download, extract, embed).
	EnrichmentErrors []string `json:"enrichment_errors,omitempty"`

	Lifecycle Lifecycle `json:"lifecycle"`
}

// IdentityKey returns the persistence key: the normalized DOI when present,
// else the representative's source id, else the normalized title.
func (p *CanonicalPaper) IdentityKey() string {
	if doi := NormalizeDOI(p.DOI); doi != "" {
		return "doi:" + doi
	}
	if p.SourceID != "" {
		return string(p.Source) + ":" + p.SourceID
	}
	return "title:" + NormalizeTitle(p.Title)
}

// AssignID derives the paper's stable surrogate id from its identity key.
func (p *CanonicalPaper) AssignID() {
	p.ID = uuid.NewSHA1(paperNamespace, []byte(p.IdentityKey()))
}

// ApplyAssessment copies the assessor's scores onto the paper.
func (p *CanonicalPaper) ApplyAssessment(a Assessment) {
	relevance := a.RelevanceScore
	quality := a.QualityScore
	p.RelevanceScore = &relevance
	p.QualityScore = &quality
	p.Methodology = a.Methodology
	p.Assessment = &a
	p.Lifecycle = LifecycleScored
}

// HasPDF reports whether the paper carries a PDF location.
func (p *CanonicalPaper) HasPDF() bool {
	return strings.TrimSpace(p.PDFURL) != ""
}

// AddEnrichmentError records a best-effort enrichment failure.
func (p *CanonicalPaper) AddEnrichmentError(err error) {
	if err == nil {
		return
	}
	p.EnrichmentErrors = append(p.EnrichmentErrors, err.Error())
}

// ExternalIDsAsStrings converts the id map to string keys for JSON storage.
func (p *CanonicalPaper) ExternalIDsAsStrings() map[string]string {
	out := make(map[string]string, len(p.ExternalIDs))
	for k, v := range p.ExternalIDs {
		out[string(k)] = v
	}
	return out
}
