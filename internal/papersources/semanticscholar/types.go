// Package semanticscholar provides a collector for the Semantic Scholar
// Graph API paper search.
//
// API Documentation: https://api.semanticscholar.org/api-docs/
package semanticscholar

// searchResponse is the body of GET /paper/search.
type searchResponse struct {
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Next   int           `json:"next"`
	Data   []paperResult `json:"data"`
}

// paperResult is one paper in a search response.
type paperResult struct {
	PaperID          string         `json:"paperId"`
	Title            string         `json:"title"`
	Abstract         string         `json:"abstract"`
	Year             int            `json:"year"`
	Venue            string         `json:"venue"`
	Journal          *journal       `json:"journal,omitempty"`
	Authors          []author       `json:"authors"`
	CitationCount    int            `json:"citationCount"`
	OpenAccessPDF    *openAccessPDF `json:"openAccessPdf,omitempty"`
	ExternalIDs      *externalIDs   `json:"externalIds,omitempty"`
	PublicationTypes []string       `json:"publicationTypes"`
	URL              string         `json:"url"`
}

// externalIDs holds the identifiers Semantic Scholar links to a paper.
// CorpusId is numeric in the API and is not needed.
type externalIDs struct {
	DOI           string `json:"DOI,omitempty"`
	ArXiv         string `json:"ArXiv,omitempty"`
	PubMed        string `json:"PubMed,omitempty"`
	PubMedCentral string `json:"PubMedCentral,omitempty"`
}

type journal struct {
	Name string `json:"name,omitempty"`
}

type author struct {
	AuthorID string `json:"authorId,omitempty"`
	Name     string `json:"name"`
}

type openAccessPDF struct {
	URL    string `json:"url,omitempty"`
	Status string `json:"status,omitempty"`
}
