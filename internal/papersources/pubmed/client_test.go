package pubmed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/papersources"
)

const esearchResponseJSON = `{
  "header": {"type": "esearch", "version": "0.3"},
  "esearchresult": {"count": "2", "retmax": "2", "retstart": "0", "idlist": ["12345678", "87654321"]}
}`

const esearchEmptyJSON = `{"esearchresult": {"count": "0", "idlist": []}}`

const esearchPhraseNotFoundJSON = `{"esearchresult": {"count": "0", "idlist": [], "errorlist": {"phrasesnotfound": ["xyzzy"]}}}`

const efetchResponseXML = `<?xml version="1.0" encoding="UTF-8" ?>
<PubmedArticleSet>
	<PubmedArticle>
		<MedlineCitation Status="MEDLINE" Owner="NLM">
			<PMID Version="1">12345678</PMID>
			<Article PubModel="Print-Electronic">
				<Journal>
					<JournalIssue CitedMedium="Internet">
						<PubDate><Year>2023</Year><Month>Mar</Month></PubDate>
					</JournalIssue>
					<Title>Journal of Strength and Conditioning Research</Title>
					<ISOAbbreviation>J Strength Cond Res</ISOAbbreviation>
				</Journal>
				<ArticleTitle>Block Periodization in <i>Trained</i> Lifters</ArticleTitle>
				<ELocationID EIdType="doi" ValidYN="Y">10.1519/JSC.0000000000004000</ELocationID>
				<Abstract>
					<AbstractText Label="BACKGROUND">Periodization organizes training.</AbstractText>
					<AbstractText Label="RESULTS">Block models improved strength.</AbstractText>
				</Abstract>
				<AuthorList CompleteYN="Y">
					<Author ValidYN="Y"><LastName>Issurin</LastName><ForeName>Vladimir B</ForeName></Author>
					<Author ValidYN="N"><LastName>Ghost</LastName><ForeName>Invalid</ForeName></Author>
					<Author ValidYN="Y"><CollectiveName>Strength Research Group</CollectiveName></Author>
				</AuthorList>
				<PublicationTypeList>
					<PublicationType UI="D016428">Journal Article</PublicationType>
					<PublicationType UI="D016449">Randomized Controlled Trial</PublicationType>
				</PublicationTypeList>
			</Article>
		</MedlineCitation>
		<PubmedData>
			<ArticleIdList>
				<ArticleId IdType="pubmed">12345678</ArticleId>
				<ArticleId IdType="pmc">PMC9999999</ArticleId>
			</ArticleIdList>
		</PubmedData>
	</PubmedArticle>
	<PubmedArticle>
		<MedlineCitation>
			<PMID>87654321</PMID>
			<Article>
				<Journal>
					<JournalIssue><PubDate><MedlineDate>2019 Nov-Dec</MedlineDate></PubDate></JournalIssue>
					<ISOAbbreviation>Sports Med</ISOAbbreviation>
				</Journal>
				<ArticleTitle>Deload Weeks</ArticleTitle>
				<Abstract><AbstractText>Single paragraph abstract.</AbstractText></Abstract>
				<PublicationTypeList><PublicationType>Preprint</PublicationType></PublicationTypeList>
			</Article>
		</MedlineCitation>
		<PubmedData>
			<ArticleIdList><ArticleId IdType="doi">10.1007/s40279-019-01170-7</ArticleId></ArticleIdList>
		</PubmedData>
	</PubmedArticle>
</PubmedArticleSet>`

func newTestClient(serverURL string) *Client {
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:     domain.SourceTypePubMed,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}, papersources.NewRateLimiter(1000, 100))
	return NewWithHTTPClient(Config{BaseURL: serverURL, Enabled: true, Email: "dev@example.org"}, httpClient)
}

func TestClient_Search(t *testing.T) {
	t.Run("esearch then efetch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "pubmed", q.Get("db"))
			assert.Equal(t, "training-evidence-curator", q.Get("tool"))
			assert.Equal(t, "dev@example.org", q.Get("email"))

			switch {
			case strings.HasSuffix(r.URL.Path, "/esearch.fcgi"):
				assert.Equal(t, "block periodization", q.Get("term"))
				assert.Equal(t, "json", q.Get("retmode"))
				assert.Equal(t, "16", q.Get("retmax"))
				assert.Equal(t, "2015", q.Get("mindate"))
				assert.Equal(t, "3000", q.Get("maxdate"))
				_, _ = w.Write([]byte(esearchResponseJSON))
			case strings.HasSuffix(r.URL.Path, "/efetch.fcgi"):
				assert.Equal(t, "12345678,87654321", q.Get("id"))
				_, _ = w.Write([]byte(efetchResponseXML))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))
		defer server.Close()

		client := newTestClient(server.URL)
		res, err := client.Search(context.Background(), papersources.SearchParams{
			Query: "block periodization", MaxResults: 16, YearFrom: 2015,
		})
		require.NoError(t, err)
		require.Len(t, res.Records, 2)
		assert.Equal(t, 2, res.TotalResults)
		assert.Equal(t, domain.SourceTypePubMed, res.Source)

		first := res.Records[0]
		assert.Equal(t, "12345678", first.SourceID)
		assert.Equal(t, "12345678", first.PMID)
		assert.Equal(t, "Block Periodization in Trained Lifters", first.Title)
		assert.Equal(t, "10.1519/JSC.0000000000004000", first.DOI)
		assert.Equal(t, 2023, first.Year)
		assert.Equal(t, "Journal of Strength and Conditioning Research", first.Journal)
		assert.Equal(t, []string{"Vladimir B Issurin", "Strength Research Group"}, first.Authors)
		assert.Equal(t, "BACKGROUND: Periodization organizes training. RESULTS: Block models improved strength.", first.Abstract)
		assert.Equal(t, "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC9999999/pdf/", first.PDFURL)
		assert.Equal(t, "block periodization", first.Query)
		assert.False(t, first.IsPreprint)

		second := res.Records[1]
		assert.Equal(t, 2019, second.Year)
		assert.Equal(t, "Sports Med", second.Journal)
		assert.Equal(t, "10.1007/s40279-019-01170-7", second.DOI)
		assert.Equal(t, "Single paragraph abstract.", second.Abstract)
		assert.True(t, second.IsPreprint)
	})

	t.Run("empty id list skips efetch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, strings.HasSuffix(r.URL.Path, "/esearch.fcgi"), "unexpected call to %s", r.URL.Path)
			_, _ = w.Write([]byte(esearchEmptyJSON))
		}))
		defer server.Close()

		res, err := newTestClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "x"})
		require.NoError(t, err)
		assert.Empty(t, res.Records)
	})

	t.Run("phrase not found is an empty result", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(esearchPhraseNotFoundJSON))
		}))
		defer server.Close()

		res, err := newTestClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "xyzzy"})
		require.NoError(t, err)
		assert.Empty(t, res.Records)
	})

	t.Run("server error exhausts retries", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "x"})
		var transient *domain.TransientSourceError
		require.True(t, errors.As(err, &transient))
		assert.Equal(t, domain.SourceTypePubMed, transient.Source)
	})

	t.Run("bad request is an API error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Search(context.Background(), papersources.SearchParams{Query: "x"})
		var apiErr *domain.ExternalAPIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	})

	t.Run("disabled client", func(t *testing.T) {
		client := NewWithHTTPClient(Config{}, nil)
		_, err := client.Search(context.Background(), papersources.SearchParams{Query: "x"})
		assert.Error(t, err)
		assert.False(t, client.IsEnabled())
	})
}

func TestClientIdentity(t *testing.T) {
	client := New(Config{Enabled: true}, papersources.NewIntervalLimiter(3, time.Second, 1))
	assert.Equal(t, domain.SourceTypePubMed, client.SourceType())
	assert.Equal(t, "PubMed", client.Name())
	assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
	assert.Equal(t, DefaultMaxResults, client.config.MaxResults)
}
