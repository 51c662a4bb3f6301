package httpserver

import (
	"time"

	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/repository"
)

// paperResponse is the JSON representation of a curated paper. Full text and
// the embedding are summarized as flags rather than returned.
type paperResponse struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	Authors        []string           `json:"authors"`
	Journal        string             `json:"journal,omitempty"`
	Year           int                `json:"year,omitempty"`
	DOI            string             `json:"doi,omitempty"`
	PMID           string             `json:"pmid,omitempty"`
	Abstract       string             `json:"abstract,omitempty"`
	Domain         string             `json:"domain"`
	Source         string             `json:"source"`
	SourceID       string             `json:"source_id,omitempty"`
	IsPreprint     bool               `json:"is_preprint"`
	CitationCount  int                `json:"citation_count"`
	URL            string             `json:"url,omitempty"`
	PDFURL         string             `json:"pdf_url,omitempty"`
	QualityScore   *int               `json:"quality_score,omitempty"`
	RelevanceScore *float64           `json:"relevance_score,omitempty"`
	Methodology    string             `json:"methodology,omitempty"`
	Assessment     *domain.Assessment `json:"assessment,omitempty"`
	HasFullText    bool               `json:"has_full_text"`
	HasEmbedding   bool               `json:"has_embedding"`
	MergedFrom     []string           `json:"merged_from,omitempty"`
}

type scoredPaperResponse struct {
	Paper paperResponse `json:"paper"`
	Score float64       `json:"score"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	Domain  string                `json:"domain,omitempty"`
	Results []scoredPaperResponse `json:"results"`
	Count   int                   `json:"count"`
}

type similarResponse struct {
	PaperID string                `json:"paper_id"`
	Backend string                `json:"backend"`
	Results []scoredPaperResponse `json:"results"`
	Count   int                   `json:"count"`
}

type statsRowResponse struct {
	Domain             string    `json:"domain"`
	Source             string    `json:"source"`
	CollectionDate     string    `json:"collection_date"`
	Collected          int       `json:"collected"`
	Duplicates         int       `json:"duplicates"`
	Accepted           int       `json:"accepted"`
	Rejected           int       `json:"rejected"`
	Undecidable        int       `json:"undecidable"`
	Persisted          int       `json:"persisted"`
	DownloadsSucceeded int       `json:"downloads_succeeded"`
	DownloadsFailed    int       `json:"downloads_failed"`
	AvgQualityScore    float64   `json:"avg_quality_score"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type statsResponse struct {
	Domain string             `json:"domain,omitempty"`
	Stats  []statsRowResponse `json:"stats"`
	Count  int                `json:"count"`
}

func toPaperResponse(p *domain.CanonicalPaper) paperResponse {
	authors := p.Authors
	if authors == nil {
		authors = []string{}
	}
	return paperResponse{
		ID:             p.ID.String(),
		Title:          p.Title,
		Authors:        authors,
		Journal:        p.Journal,
		Year:           p.Year,
		DOI:            p.DOI,
		PMID:           p.PMID,
		Abstract:       p.Abstract,
		Domain:         p.Domain,
		Source:         string(p.Source),
		SourceID:       p.SourceID,
		IsPreprint:     p.IsPreprint,
		CitationCount:  p.CitationCount,
		URL:            p.URL,
		PDFURL:         p.PDFURL,
		QualityScore:   p.QualityScore,
		RelevanceScore: p.RelevanceScore,
		Methodology:    string(p.Methodology),
		Assessment:     p.Assessment,
		HasFullText:    p.FullText != "",
		HasEmbedding:   len(p.Embedding) > 0,
		MergedFrom:     p.MergedFrom,
	}
}

func toScoredResponses(hits []repository.ScoredPaper) []scoredPaperResponse {
	out := make([]scoredPaperResponse, 0, len(hits))
	for _, h := range hits {
		if h.Paper == nil {
			continue
		}
		out = append(out, scoredPaperResponse{Paper: toPaperResponse(h.Paper), Score: h.Score})
	}
	return out
}

func toStatsRows(rows []domain.DomainCollectionStats) []statsRowResponse {
	out := make([]statsRowResponse, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		out = append(out, statsRowResponse{
			Domain:             row.Domain,
			Source:             string(row.Source),
			CollectionDate:     row.CollectionDate.Format(time.DateOnly),
			Collected:          row.Collected,
			Duplicates:         row.Duplicates,
			Accepted:           row.Accepted,
			Rejected:           row.Rejected,
			Undecidable:        row.Undecidable,
			Persisted:          row.Persisted,
			DownloadsSucceeded: row.DownloadsSucceeded,
			DownloadsFailed:    row.DownloadsFailed,
			AvgQualityScore:    row.AvgQualityScore(),
			UpdatedAt:          row.UpdatedAt,
		})
	}
	return out
}
