package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
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
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search.
	DefaultMaxResults = 20

	// MaxResultsLimit is the largest retmax esearch accepts.
	MaxResultsLimit = 10000

	// DefaultTool identifies the application to NCBI.
	DefaultTool = "training-evidence-curator"

	sourceName = "PubMed"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	BaseURL string

	// APIKey raises NCBI's limit from 3 to 10 requests per second.
	APIKey string

	// Email and Tool are sent with every request per NCBI usage policy.
	Email string
	Tool  string

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// MaxResults is used when a search does not set its own limit.
	MaxResults int

	Enabled bool
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
	if c.Tool == "" {
		c.Tool = DefaultTool
	}
}

// Client collects candidate records from PubMed.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.Collector = (*Client)(nil)

// New creates a PubMed client that waits on limiter before every request.
func New(cfg Config, limiter *papersources.RateLimiter) *Client {
	cfg.applyDefaults()

	userAgent := "TrainingEvidenceCurator/1.0"
	if cfg.Email != "" {
		userAgent += " (mailto:" + cfg.Email + ")"
	}

	httpCfg := papersources.HTTPClientConfig{
		Source:     domain.SourceTypePubMed,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		UserAgent:  userAgent,
	}
	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(httpCfg, limiter))
}

// NewWithHTTPClient creates a PubMed client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// Search runs esearch for matching PMIDs, then efetch for their records.
func (c *Client) Search(ctx context.Context, params papersources.SearchParams) (*papersources.SearchResult, error) {
	if !c.config.Enabled {
		return nil, errors.New("pubmed source is disabled")
	}

	start := time.Now()

	ids, total, err := c.esearch(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("esearch failed: %w", err)
	}

	result := &papersources.SearchResult{
		TotalResults: total,
		Source:       domain.SourceTypePubMed,
	}
	if len(ids) == 0 {
		result.SearchDuration = time.Since(start)
		return result, nil
	}

	set, err := c.efetch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("efetch failed: %w", err)
	}

	result.Records = make([]domain.CandidateRecord, 0, len(set.Articles))
	for _, a := range set.Articles {
		result.Records = append(result.Records, toRecord(a, params.Query))
	}
	result.SearchDuration = time.Since(start)
	return result, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypePubMed
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

func (c *Client) baseQuery() url.Values {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("tool", c.config.Tool)
	if c.config.Email != "" {
		q.Set("email", c.config.Email)
	}
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	return q
}

// esearch returns the PMIDs matching the query and the total hit count.
func (c *Client) esearch(ctx context.Context, params papersources.SearchParams) ([]string, int, error) {
	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	if maxResults > MaxResultsLimit {
		maxResults = MaxResultsLimit
	}

	q := c.baseQuery()
	q.Set("term", params.Query)
	q.Set("retmode", "json")
	q.Set("retmax", strconv.Itoa(maxResults))
	q.Set("sort", "relevance")
	if params.YearFrom > 0 || params.YearTo > 0 {
		q.Set("datetype", "pdat")
		from, to := params.YearFrom, params.YearTo
		if from <= 0 {
			from = 1800
		}
		if to <= 0 {
			to = 3000
		}
		q.Set("mindate", strconv.Itoa(from))
		q.Set("maxdate", strconv.Itoa(to))
	}

	body, err := c.httpClient.Get(ctx, c.config.BaseURL+"/esearch.fcgi?"+q.Encode(), http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, 0, err
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	// A phrase that matches nothing is an empty result, not an error.
	if resp.Result.ErrorList != nil && len(resp.Result.ErrorList.PhraseNotFound) > 0 && len(resp.Result.IDList) == 0 {
		return nil, 0, nil
	}

	total, _ := strconv.Atoi(resp.Result.Count)
	return resp.Result.IDList, total, nil
}

// efetch retrieves article records for the given PMIDs.
func (c *Client) efetch(ctx context.Context, pmids []string) (*articleSet, error) {
	q := c.baseQuery()
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")

	body, err := c.httpClient.Get(ctx, c.config.BaseURL+"/efetch.fcgi?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var set articleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("failed to parse XML response: %w", err)
	}
	return &set, nil
}

// toRecord converts a PubMed article to a candidate record.
func toRecord(a pubmedArticle, query string) domain.CandidateRecord {
	pmid := strings.TrimSpace(a.Citation.PMID)
	art := a.Citation.Article

	rec := domain.CandidateRecord{
		Source:   domain.SourceTypePubMed,
		SourceID: pmid,
		PMID:     pmid,
		Title:    papersources.CleanText(art.Title.Value),
		Authors:  extractAuthors(art.AuthorList),
		Year:     extractYear(art),
		Journal:  strings.TrimSpace(art.Journal.Title),
		DOI:      extractDOI(art, a.Data),
		Abstract: extractAbstract(art.Abstract),
		Query:    query,
		ExternalIDs: map[domain.SourceType]string{
			domain.SourceTypePubMed: pmid,
		},
		Metadata: map[string]any{},
	}
	if rec.Journal == "" {
		rec.Journal = art.Journal.ISOAbbreviation
	}
	if pmid != "" {
		rec.URL = "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/"
	}
	for _, id := range a.Data.ArticleIDs {
		if id.Type == "pmc" && id.Value != "" {
			pmc := strings.TrimSpace(id.Value)
			rec.Metadata["pmcid"] = pmc
			rec.PDFURL = "https://www.ncbi.nlm.nih.gov/pmc/articles/" + pmc + "/pdf/"
		}
	}
	for _, pt := range art.PubTypes {
		if strings.EqualFold(strings.TrimSpace(pt), "Preprint") {
			rec.IsPreprint = true
		}
	}
	if len(art.PubTypes) > 0 {
		rec.Metadata["publication_types"] = art.PubTypes
	}
	return rec
}

// extractDOI checks ELocationID first, then the PubmedData id list.
func extractDOI(art article, data pubmedData) string {
	for _, e := range art.ELocationIDs {
		if e.Type == "doi" && (e.Valid == "" || e.Valid == "Y") {
			return strings.TrimSpace(e.Value)
		}
	}
	for _, id := range data.ArticleIDs {
		if id.Type == "doi" {
			return strings.TrimSpace(id.Value)
		}
	}
	return ""
}

// extractYear prefers the journal issue date and falls back to the
// electronic publication date.
func extractYear(art article) int {
	if y, err := strconv.Atoi(strings.TrimSpace(art.Journal.PubDate.Year)); err == nil {
		return y
	}
	// MedlineDate looks like "2020 Jan-Feb" or "2019-2020".
	if md := strings.Fields(art.Journal.PubDate.MedlineDate); len(md) > 0 {
		if y, err := strconv.Atoi(strings.SplitN(md[0], "-", 2)[0]); err == nil {
			return y
		}
	}
	for _, d := range art.ArticleDates {
		if y, err := strconv.Atoi(strings.TrimSpace(d.Year)); err == nil {
			return y
		}
	}
	return 0
}

// extractAbstract joins structured abstract sections as "LABEL: text".
func extractAbstract(abs *abstract) string {
	if abs == nil {
		return ""
	}
	parts := make([]string, 0, len(abs.Texts))
	for _, t := range abs.Texts {
		text := papersources.CleanText(t.Value)
		if text == "" {
			continue
		}
		if t.Label != "" && len(abs.Texts) > 1 {
			text = t.Label + ": " + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// extractAuthors returns "ForeName LastName" display names, skipping
// entries NCBI marks invalid.
func extractAuthors(list *authorList) []string {
	if list == nil {
		return nil
	}
	authors := make([]string, 0, len(list.Authors))
	for _, a := range list.Authors {
		if a.ValidYN == "N" {
			continue
		}
		name := strings.TrimSpace(a.CollectiveName)
		if name == "" {
			fore := a.ForeName
			if fore == "" {
				fore = a.Initials
			}
			name = strings.TrimSpace(strings.TrimSpace(fore) + " " + strings.TrimSpace(a.LastName))
		}
		if name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}
