// Package arxiv provides a collector for the arXiv Atom query API.
//
// API Documentation: https://info.arxiv.org/help/api/user-manual.html
package arxiv

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/papersources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per request.
	DefaultMaxResults = 10

	sourceName = "arXiv"
)

// arxivIDRegex extracts the arXiv ID from the entry id URL.
// Matches "http://arxiv.org/abs/2301.12345v1" and "http://arxiv.org/abs/hep-th/9901001v1".
var arxivIDRegex = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config holds configuration for the arXiv client.
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

// Client collects preprint records from arXiv.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.Collector = (*Client)(nil)

// New creates an arXiv client that waits on limiter before every request.
func New(cfg Config, limiter *papersources.RateLimiter) *Client {
	cfg.applyDefaults()
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     domain.SourceTypeArXiv,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}, limiter)
	return NewWithHTTPClient(cfg, httpClient)
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Search queries arXiv for preprints matching params.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	if !c.config.Enabled {
		return nil, errors.New("arxiv source is disabled")
	}

	start := time.Now()

	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, err
	}

	body, err := c.httpClient.Get(ctx, searchURL, http.Header{"Accept": {"application/atom+xml"}})
	if err != nil {
		return nil, fmt.Errorf("arxiv query failed: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Atom feed: %w", err)
	}

	records := make([]domain.CandidateRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		rec, ok := itemToRecord(item, params.Query)
		if !ok {
			continue
		}
		// submittedDate filtering is coarse; enforce the year window exactly.
		if !params.InYearWindow(rec.Year) {
			continue
		}
		records = append(records, rec)
	}

	total := len(records)
	if v := extensionValue(feed.Extensions, "opensearch", "totalResults"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			total = n
		}
	}

	return &papersources.SearchResult{
		Records:        records,
		TotalResults:   total,
		Source:         domain.SourceTypeArXiv,
		SearchDuration: time.Since(start),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeArXiv
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
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"

	searchQuery := "all:" + params.Query
	if params.YearFrom > 0 || params.YearTo > 0 {
		searchQuery += " AND " + buildDateFilter(params.YearFrom, params.YearTo)
	}

	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}

	query := url.Values{}
	query.Set("search_query", searchQuery)
	query.Set("max_results", strconv.Itoa(maxResults))
	query.Set("sortBy", "relevance")
	query.Set("sortOrder", "descending")

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

func buildDateFilter(yearFrom, yearTo int) string {
	fromStr, toStr := "*", "*"
	if yearFrom > 0 {
		fromStr = fmt.Sprintf("%04d01010000", yearFrom)
	}
	if yearTo > 0 {
		toStr = fmt.Sprintf("%04d12312359", yearTo)
	}
	return fmt.Sprintf("submittedDate:[%s TO %s]", fromStr, toStr)
}

func itemToRecord(item *gofeed.Item, query string) (domain.CandidateRecord, bool) {
	if item == nil {
		return domain.CandidateRecord{}, false
	}
	arxivID := extractArXivID(item.GUID)
	if arxivID == "" {
		arxivID = extractArXivID(item.Link)
	}
	if arxivID == "" {
		return domain.CandidateRecord{}, false
	}

	rec := domain.CandidateRecord{
		Source:      domain.SourceTypeArXiv,
		SourceID:    arxivID,
		Title:       papersources.CleanText(item.Title),
		Abstract:    papersources.CleanText(item.Description),
		URL:         "https://arxiv.org/abs/" + arxivID,
		IsPreprint:  true,
		Query:       query,
		ExternalIDs: map[domain.SourceType]string{domain.SourceTypeArXiv: arxivID},
		Metadata:    map[string]any{"arxiv_id": arxivID},
	}

	if item.PublishedParsed != nil {
		rec.Year = item.PublishedParsed.Year()
	}

	for _, a := range item.Authors {
		if a == nil {
			continue
		}
		if name := strings.TrimSpace(a.Name); name != "" {
			rec.Authors = append(rec.Authors, name)
		}
	}

	rec.DOI = extensionValue(item.Extensions, "arxiv", "doi")
	if ref := extensionValue(item.Extensions, "arxiv", "journal_ref"); ref != "" {
		rec.Journal = ref
		rec.Metadata["journal_ref"] = ref
	}
	if comment := extensionValue(item.Extensions, "arxiv", "comment"); comment != "" {
		rec.Metadata["comment"] = comment
	}
	if len(item.Categories) > 0 {
		rec.Metadata["categories"] = item.Categories
	}

	for _, link := range item.Links {
		if strings.Contains(link, "/pdf/") {
			rec.PDFURL = link
			break
		}
	}
	if rec.PDFURL == "" {
		rec.PDFURL = "https://arxiv.org/pdf/" + arxivID
	}

	return rec, true
}

// extractArXivID extracts the version-less arXiv ID from an abs URL.
func extractArXivID(rawURL string) string {
	matches := arxivIDRegex.FindStringSubmatch(strings.TrimSpace(rawURL))
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

func extensionValue(exts ext.Extensions, namespace, name string) string {
	if exts == nil {
		return ""
	}
	values := exts[namespace][name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}
