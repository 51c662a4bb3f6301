package doaj

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/papersources"
)

const (
	// DefaultBaseURL is the DOAJ API base URL.
	DefaultBaseURL = "https://doaj.org/api"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 20

	// MaxPageSize is the largest pageSize DOAJ serves.
	MaxPageSize = 100

	sourceName = "DOAJ"
)

// Config holds configuration for the DOAJ client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	MaxResults int
	Enabled    bool
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client collects open access articles from DOAJ.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.Collector = (*Client)(nil)

// New creates a DOAJ client that waits on limiter before every request.
func New(cfg Config, limiter *papersources.RateLimiter) *Client {
	cfg.applyDefaults()
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     domain.SourceTypeDOAJ,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}, limiter)
	return NewWithHTTPClient(cfg, httpClient)
}

// NewWithHTTPClient creates a DOAJ client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Search queries DOAJ articles whose title or abstract matches the query.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	if !c.config.Enabled {
		return nil, errors.New("doaj source is disabled")
	}

	start := time.Now()

	pageSize := params.MaxResults
	if pageSize <= 0 {
		pageSize = c.config.MaxResults
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	q := url.Values{}
	q.Set("page", "1")
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("sort", "score:desc")

	searchURL := strings.TrimRight(c.config.BaseURL, "/") + "/search/articles/" +
		url.PathEscape(BuildQuery(params)) + "?" + q.Encode()

	body, err := c.httpClient.Get(ctx, searchURL, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, fmt.Errorf("article search failed: %w", err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	records := make([]domain.CandidateRecord, 0, len(resp.Results))
	for i := range resp.Results {
		rec := articleToRecord(&resp.Results[i], params.Query)
		if !params.InYearWindow(rec.Year) {
			continue
		}
		records = append(records, rec)
	}

	return &papersources.SearchResult{
		Records:        records,
		TotalResults:   resp.Total,
		Source:         domain.SourceTypeDOAJ,
		SearchDuration: time.Since(start),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeDOAJ
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// BuildQuery renders the Elasticsearch query string DOAJ expects: a phrase
// match on title or abstract, narrowed to the year window when one is set.
func BuildQuery(params papersources.SearchParams) string {
	phrase := strings.ReplaceAll(strings.TrimSpace(params.Query), `"`, "")
	query := fmt.Sprintf(`(bibjson.title:"%s" OR bibjson.abstract:"%s")`, phrase, phrase)
	if params.YearFrom == 0 && params.YearTo == 0 {
		return query
	}
	from, to := "*", "*"
	if params.YearFrom > 0 {
		from = strconv.Itoa(params.YearFrom)
	}
	if params.YearTo > 0 {
		to = strconv.Itoa(params.YearTo)
	}
	return fmt.Sprintf("%s AND bibjson.year:[%s TO %s]", query, from, to)
}

func articleToRecord(a *article, query string) domain.CandidateRecord {
	bib := a.BibJSON

	rec := domain.CandidateRecord{
		Source:      domain.SourceTypeDOAJ,
		SourceID:    a.ID,
		Title:       papersources.CleanText(bib.Title),
		Abstract:    papersources.CleanText(bib.Abstract),
		Journal:     strings.TrimSpace(bib.Journal.Title),
		Query:       query,
		ExternalIDs: map[domain.SourceType]string{},
		Metadata:    map[string]any{},
	}
	if a.ID != "" {
		rec.ExternalIDs[domain.SourceTypeDOAJ] = a.ID
		rec.URL = "https://doaj.org/article/" + a.ID
	}
	if year, err := strconv.Atoi(strings.TrimSpace(bib.Year)); err == nil {
		rec.Year = year
	}

	for _, au := range bib.Authors {
		if name := strings.TrimSpace(au.Name); name != "" {
			rec.Authors = append(rec.Authors, name)
		}
	}

	for _, id := range bib.Identifier {
		if strings.EqualFold(id.Type, "doi") && id.ID != "" {
			rec.DOI = strings.TrimSpace(id.ID)
			break
		}
	}

	rec.PDFURL = fulltextLink(bib.Links)

	if len(bib.Keywords) > 0 {
		rec.Metadata["keywords"] = bib.Keywords
	}
	if bib.Journal.Publisher != "" {
		rec.Metadata["publisher"] = bib.Journal.Publisher
	}
	if a.CreatedDate != "" {
		rec.Metadata["created_date"] = a.CreatedDate
	}
	return rec
}

// fulltextLink prefers a fulltext link typed as PDF, then any fulltext link.
func fulltextLink(links []link) string {
	for _, l := range links {
		if strings.EqualFold(l.Type, "fulltext") && strings.Contains(strings.ToLower(l.ContentType), "pdf") {
			return l.URL
		}
	}
	for _, l := range links {
		if strings.EqualFold(l.Type, "fulltext") {
			return l.URL
		}
	}
	return ""
}
