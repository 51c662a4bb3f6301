// Package doaj provides a collector for the Directory of Open Access
// Journals article search API.
//
// API Documentation: https://doaj.org/api/docs
package doaj

// searchResponse is the body of GET /search/articles/{query}.
type searchResponse struct {
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
	Results  []article `json:"results"`
}

type article struct {
	ID          string  `json:"id"`
	CreatedDate string  `json:"created_date"`
	LastUpdated string  `json:"last_updated"`
	BibJSON     bibJSON `json:"bibjson"`
}

// bibJSON is DOAJ's bibliographic record. Year and month are strings.
type bibJSON struct {
	Title      string       `json:"title"`
	Abstract   string       `json:"abstract"`
	Year       string       `json:"year"`
	Journal    journal      `json:"journal"`
	Authors    []author     `json:"author"`
	Identifier []identifier `json:"identifier"`
	Links      []link       `json:"link"`
	Keywords   []string     `json:"keywords"`
}

type journal struct {
	Title     string   `json:"title"`
	Publisher string   `json:"publisher"`
	Language  []string `json:"language"`
}

type author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation"`
}

type identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type link struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}
