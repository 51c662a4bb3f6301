package semanticscholar

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
	// DefaultBaseURL is the base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 20

	// MaxResultsLimit is the largest page /paper/search returns.
	MaxResultsLimit = 100

	// paperFields is the list of fields to request from the API.
	paperFields = "paperId,title,abstract,year,venue,journal,authors,citationCount,openAccessPdf,externalIds,publicationTypes,url"

	sourceName = "Semantic Scholar"
)

// Config holds the configuration for the Semantic Scholar client.
type Config struct {
	BaseURL string

	// APIKey is sent as x-api-key. Unauthenticated access shares a global pool.
	APIKey string

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

// Client collects candidate records from Semantic Scholar.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.Collector = (*Client)(nil)

// New creates a Semantic Scholar client that waits on limiter before every request.
func New(cfg Config, limiter *papersources.RateLimiter) *Client {
	cfg.applyDefaults()
	httpCfg := papersources.HTTPClientConfig{
		Source:       domain.SourceTypeSemanticScholar,
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
		APIKey:       cfg.APIKey,
		APIKeyHeader: "x-api-key",
	}
	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(httpCfg, limiter))
}

// NewWithHTTPClient creates a client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Search queries /paper/search for papers matching params.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	if !c.config.Enabled {
		return nil, errors.New("semantic scholar source is disabled")
	}

	start := time.Now()

	limit := params.MaxResults
	if limit <= 0 {
		limit = c.config.MaxResults
	}
	if limit > MaxResultsLimit {
		limit = MaxResultsLimit
	}

	q := url.Values{}
	q.Set("query", params.Query)
	q.Set("fields", paperFields)
	q.Set("limit", strconv.Itoa(limit))
	if yr := params.YearRange(); yr != "" {
		q.Set("year", yr)
	}

	body, err := c.httpClient.Get(ctx, c.config.BaseURL+"/paper/search?"+q.Encode(), http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, fmt.Errorf("paper search failed: %w", err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	records := make([]domain.CandidateRecord, 0, len(resp.Data))
	for _, p := range resp.Data {
		records = append(records, toRecord(p, params.Query))
	}

	return &papersources.SearchResult{
		Records:        records,
		TotalResults:   resp.Total,
		Source:         domain.SourceTypeSemanticScholar,
		SearchDuration: time.Since(start),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeSemanticScholar
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

func toRecord(p paperResult, query string) domain.CandidateRecord {
	rec := domain.CandidateRecord{
		Source:        domain.SourceTypeSemanticScholar,
		SourceID:      p.PaperID,
		Title:         strings.TrimSpace(p.Title),
		Year:          p.Year,
		Abstract:      strings.TrimSpace(p.Abstract),
		CitationCount: p.CitationCount,
		URL:           p.URL,
		Query:         query,
		ExternalIDs:   map[domain.SourceType]string{},
		Metadata:      map[string]any{},
	}
	if p.PaperID != "" {
		rec.ExternalIDs[domain.SourceTypeSemanticScholar] = p.PaperID
	}

	if p.Journal != nil && p.Journal.Name != "" {
		rec.Journal = p.Journal.Name
	} else {
		rec.Journal = p.Venue
	}

	for _, a := range p.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			rec.Authors = append(rec.Authors, name)
		}
	}

	if p.ExternalIDs != nil {
		rec.DOI = p.ExternalIDs.DOI
		rec.PMID = p.ExternalIDs.PubMed
		if p.ExternalIDs.PubMed != "" {
			rec.ExternalIDs[domain.SourceTypePubMed] = p.ExternalIDs.PubMed
		}
		if p.ExternalIDs.ArXiv != "" {
			rec.ExternalIDs[domain.SourceTypeArXiv] = p.ExternalIDs.ArXiv
		}
		if p.ExternalIDs.PubMedCentral != "" {
			rec.Metadata["pmcid"] = "PMC" + strings.TrimPrefix(p.ExternalIDs.PubMedCentral, "PMC")
		}
	}

	if p.OpenAccessPDF != nil && p.OpenAccessPDF.URL != "" {
		rec.PDFURL = p.OpenAccessPDF.URL
		rec.Metadata["open_access_status"] = p.OpenAccessPDF.Status
	}

	for _, t := range p.PublicationTypes {
		if strings.EqualFold(t, "Preprint") {
			rec.IsPreprint = true
		}
	}
	// A paper only known by its arXiv id has no peer-reviewed version.
	if rec.DOI == "" && rec.ExternalIDs[domain.SourceTypeArXiv] != "" && rec.Journal == "" {
		rec.IsPreprint = true
	}
	if len(p.PublicationTypes) > 0 {
		rec.Metadata["publication_types"] = p.PublicationTypes
	}
	return rec
}
