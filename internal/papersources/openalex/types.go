// Package openalex provides a collector for the OpenAlex works API.
//
// OpenAlex is a free, open catalog of scholarly works. Requests carrying a
// mailto address are served from the polite pool.
//
// API Documentation: https://docs.openalex.org/
package openalex

// searchResponse is the body of GET /works.
type searchResponse struct {
	Meta    meta   `json:"meta"`
	Results []work `json:"results"`
}

type meta struct {
	Count   int `json:"count"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// work is one OpenAlex work.
type work struct {
	ID              string       `json:"id"`
	DOI             string       `json:"doi"`
	Title           string       `json:"title"`
	DisplayName     string       `json:"display_name"`
	PublicationYear int          `json:"publication_year"`
	Type            string       `json:"type"`
	CitedByCount    int          `json:"cited_by_count"`
	Authorships     []authorship `json:"authorships"`
	PrimaryLocation *location    `json:"primary_location"`
	BestOALocation  *location    `json:"best_oa_location"`
	IDs             ids          `json:"ids"`
	OpenAccess      *openAccess  `json:"open_access"`

	// AbstractInvertedIndex maps each word to its positions in the abstract.
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

type openAccess struct {
	IsOA     bool   `json:"is_oa"`
	OAStatus string `json:"oa_status"`
}

type authorship struct {
	AuthorPosition string     `json:"author_position"`
	Author         authorInfo `json:"author"`
}

type authorInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type location struct {
	Source         *venue `json:"source"`
	PDFURL         string `json:"pdf_url"`
	LandingPageURL string `json:"landing_page_url"`
	Version        string `json:"version"`
}

type venue struct {
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

type ids struct {
	OpenAlex string `json:"openalex"`
	DOI      string `json:"doi"`
	PMID     string `json:"pmid"`
	PMCID    string `json:"pmcid"`
}
