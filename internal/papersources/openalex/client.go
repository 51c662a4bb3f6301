package openalex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per request.
	DefaultMaxResults = 25

	// MaxPerPage is the largest per_page OpenAlex accepts.
	MaxPerPage = 200

	openAlexIDPrefix = "https://openalex.org/"
	sourceName       = "OpenAlex"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	BaseURL string

	// Email is sent as mailto to join the polite pool.
	Email string

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

// Client collects works from OpenAlex.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.Collector = (*Client)(nil)

// New creates an OpenAlex client that waits on limiter before every request.
func New(cfg Config, limiter *papersources.RateLimiter) *Client {
	cfg.applyDefaults()
	userAgent := papersources.DefaultUserAgent
	if cfg.Email != "" {
		userAgent += " (mailto:" + cfg.Email + ")"
	}
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     domain.SourceTypeOpenAlex,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		UserAgent:  userAgent,
	}, limiter)
	return NewWithHTTPClient(cfg, httpClient)
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Search queries /works for papers matching params.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	if !c.config.Enabled {
		return nil, errors.New("openalex source is disabled")
	}

	start := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, err
	}

	body, err := c.httpClient.Get(ctx, searchURL, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, fmt.Errorf("works search failed: %w", err)
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	records := make([]domain.CandidateRecord, 0, len(resp.Results))
	for i := range resp.Results {
		records = append(records, workToRecord(&resp.Results[i], params.Query))
	}

	return &papersources.SearchResult{
		Records:        records,
		TotalResults:   resp.Meta.Count,
		Source:         domain.SourceTypeOpenAlex,
		SearchDuration: time.Since(start),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeOpenAlex
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

func (c *Client) buildSearchURL(params papersources.SearchParams) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/works"

	query := url.Values{}
	query.Set("search", params.Query)

	var filters []string
	if params.YearFrom > 0 {
		filters = append(filters, fmt.Sprintf("from_publication_date:%04d-01-01", params.YearFrom))
	}
	if params.YearTo > 0 {
		filters = append(filters, fmt.Sprintf("to_publication_date:%04d-12-31", params.YearTo))
	}
	if len(filters) > 0 {
		query.Set("filter", strings.Join(filters, ","))
	}

	perPage := params.MaxResults
	if perPage <= 0 {
		perPage = c.config.MaxResults
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	query.Set("per_page", strconv.Itoa(perPage))

	if c.config.Email != "" {
		query.Set("mailto", c.config.Email)
	}

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

func workToRecord(w *work, query string) domain.CandidateRecord {
	openAlexID := normalizeOpenAlexID(w.ID)

	title := w.Title
	if title == "" {
		title = w.DisplayName
	}

	rec := domain.CandidateRecord{
		Source:        domain.SourceTypeOpenAlex,
		SourceID:      openAlexID,
		Title:         papersources.CleanText(title),
		Year:          w.PublicationYear,
		Abstract:      reconstructAbstract(w.AbstractInvertedIndex),
		CitationCount: w.CitedByCount,
		IsPreprint:    w.Type == "preprint",
		Query:         query,
		ExternalIDs:   map[domain.SourceType]string{},
		Metadata:      map[string]any{"type": w.Type},
	}
	if openAlexID != "" {
		rec.ExternalIDs[domain.SourceTypeOpenAlex] = openAlexID
	}

	rec.DOI = domain.NormalizeDOI(w.DOI)
	if rec.DOI == "" {
		rec.DOI = domain.NormalizeDOI(w.IDs.DOI)
	}
	if pmid := normalizePMID(w.IDs.PMID); pmid != "" {
		rec.PMID = pmid
		rec.ExternalIDs[domain.SourceTypePubMed] = pmid
	}
	if w.IDs.PMCID != "" {
		rec.Metadata["pmcid"] = w.IDs.PMCID
	}

	for _, a := range w.Authorships {
		if name := strings.TrimSpace(a.Author.DisplayName); name != "" {
			rec.Authors = append(rec.Authors, name)
		}
	}

	if loc := w.PrimaryLocation; loc != nil {
		if loc.Source != nil {
			rec.Journal = loc.Source.DisplayName
		}
		rec.URL = loc.LandingPageURL
	}
	if loc := w.BestOALocation; loc != nil && loc.PDFURL != "" {
		rec.PDFURL = loc.PDFURL
	} else if loc := w.PrimaryLocation; loc != nil && loc.PDFURL != "" {
		rec.PDFURL = loc.PDFURL
	}
	if w.OpenAccess != nil && w.OpenAccess.OAStatus != "" {
		rec.Metadata["open_access_status"] = w.OpenAccess.OAStatus
	}

	return rec
}

// normalizeOpenAlexID extracts the short W-id from a full OpenAlex URL.
func normalizeOpenAlexID(id string) string {
	return strings.TrimSpace(strings.TrimPrefix(id, openAlexIDPrefix))
}

// normalizePMID strips the pubmed URL prefix from PubMed IDs.
func normalizePMID(pmid string) string {
	pmid = strings.TrimPrefix(strings.TrimSpace(pmid), "https://pubmed.ncbi.nlm.nih.gov/")
	return strings.TrimSuffix(pmid, "/")
}

// reconstructAbstract rebuilds the abstract text from OpenAlex's inverted index.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	const maxAbstractWords = 100_000
	totalPairs := 0
	for _, positions := range invertedIndex {
		totalPairs += len(positions)
	}
	if totalPairs > maxAbstractWords {
		return ""
	}

	pairs := make([]posWord, 0, totalPairs)
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].pos == pairs[j].pos {
			return pairs[i].word < pairs[j].word
		}
		return pairs[i].pos < pairs[j].pos
	})

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}
