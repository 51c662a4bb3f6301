package pdf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var samplePDFContent = []byte("%PDF-1.4 sample content for testing")

func writeContent(w http.ResponseWriter, content []byte) {
	_, _ = w.Write(content)
}

func newTestDownloader(cfg Config) *Downloader {
	cfg.AllowPrivateNetworks = true
	return NewDownloader(cfg)
}

func pdfHandler(content []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		writeContent(w, content)
	}
}

func TestNewDownloader_Defaults(t *testing.T) {
	d := NewDownloader(Config{})
	assert.Equal(t, int64(defaultMaxSize), d.maxSize)
	assert.Equal(t, defaultUserAgent, d.userAgent)
	assert.Equal(t, defaultTimeout, d.client.Timeout)
	assert.False(t, d.allowPrivateNetworks)

	d = NewDownloader(Config{Timeout: 5 * time.Second, MaxSize: 1024, UserAgent: "Custom/2.0"})
	assert.Equal(t, int64(1024), d.maxSize)
	assert.Equal(t, "Custom/2.0", d.userAgent)
	assert.Equal(t, 5*time.Second, d.client.Timeout)
}

func TestDownload_Success(t *testing.T) {
	var userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		pdfHandler(samplePDFContent)(w, r)
	}))
	defer server.Close()

	result, err := newTestDownloader(Config{}).Download(context.Background(), server.URL+"/paper.pdf")
	require.NoError(t, err)

	expected := sha256.Sum256(samplePDFContent)
	assert.Equal(t, samplePDFContent, result.Content)
	assert.Equal(t, hex.EncodeToString(expected[:]), result.ContentHash)
	assert.Equal(t, int64(len(samplePDFContent)), result.SizeBytes)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.Equal(t, server.URL+"/paper.pdf", result.FinalURL)
	assert.Equal(t, defaultUserAgent, userAgent)
}

func TestDownload_ContentTypes(t *testing.T) {
	testCases := []struct {
		name        string
		contentType string
		wantErr     error
	}{
		{"pdf with charset", "application/pdf; charset=binary", nil},
		{"uppercase", "Application/PDF", nil},
		{"octet stream", "application/octet-stream", nil},
		{"json", "application/json", ErrNotPDF},
		{"image", "image/png", ErrNotPDF},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.contentType)
				writeContent(w, samplePDFContent)
			}))
			defer server.Close()

			result, err := newTestDownloader(Config{}).Download(context.Background(), server.URL)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, result)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, samplePDFContent, result.Content)
		})
	}
}

func TestDownload_MissingMagic(t *testing.T) {
	server := httptest.NewServer(pdfHandler([]byte("<html>error page</html>")))
	defer server.Close()

	_, err := newTestDownloader(Config{}).Download(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrNotPDF)
	assert.ErrorContains(t, err, "%PDF-")
}

func TestDownload_Size(t *testing.T) {
	server := httptest.NewServer(pdfHandler(samplePDFContent))
	defer server.Close()

	_, err := newTestDownloader(Config{MaxSize: int64(len(samplePDFContent)) - 1}).Download(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrTooLarge)

	result, err := newTestDownloader(Config{MaxSize: int64(len(samplePDFContent))}).Download(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(len(samplePDFContent)), result.SizeBytes)
}

func TestDownload_HTTPStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		_, err := newTestDownloader(Config{}).Download(context.Background(), server.URL)
		assert.ErrorIs(t, err, ErrDownloadFailed)
		assert.ErrorContains(t, err, fmt.Sprintf("HTTP %d", status))
		server.Close()
	}
}

func TestDownload_Redirect(t *testing.T) {
	final := httptest.NewServer(pdfHandler(samplePDFContent))
	defer final.Close()
	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL+"/file.pdf", http.StatusFound)
	}))
	defer redirect.Close()

	result, err := newTestDownloader(Config{}).Download(context.Background(), redirect.URL)
	require.NoError(t, err)
	assert.Equal(t, samplePDFContent, result.Content)
	assert.Equal(t, final.URL+"/file.pdf", result.FinalURL)
}

func TestDownload_LandingPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/article/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		writeContent(w, []byte(`<html><head>
			<meta name="citation_title" content="Deloading">
			<meta name="citation_pdf_url" content="/files/1.pdf">
		</head><body>Article</body></html>`))
	})
	mux.HandleFunc("/files/1.pdf", pdfHandler(samplePDFContent))
	mux.HandleFunc("/article/2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		writeContent(w, []byte(`<html><head><title>No pdf here</title></head></html>`))
	})
	mux.HandleFunc("/article/3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		writeContent(w, []byte(`<html><head><meta name="citation_pdf_url" content="/article/3"></head></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	d := newTestDownloader(Config{})

	result, err := d.Download(context.Background(), server.URL+"/article/1")
	require.NoError(t, err)
	assert.Equal(t, samplePDFContent, result.Content)
	assert.Equal(t, server.URL+"/files/1.pdf", result.FinalURL)

	_, err = d.Download(context.Background(), server.URL+"/article/2")
	assert.ErrorIs(t, err, ErrNotPDF)
	assert.ErrorContains(t, err, "citation_pdf_url")

	_, err = d.Download(context.Background(), server.URL+"/article/3")
	assert.ErrorIs(t, err, ErrNotPDF)
}

func TestDownload_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		pdfHandler(samplePDFContent)(w, r)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestDownloader(Config{}).Download(ctx, server.URL)
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDownload_SSRF(t *testing.T) {
	server := httptest.NewServer(pdfHandler(samplePDFContent))
	defer server.Close()

	d := NewDownloader(Config{})

	_, err := d.Download(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrSSRF)

	_, err = d.Download(context.Background(), "file:///etc/passwd")
	assert.ErrorIs(t, err, ErrSSRF)

	_, err = d.Download(context.Background(), "http://localhost:1/paper.pdf")
	assert.ErrorIs(t, err, ErrSSRF)
}

func TestDownload_SSRFRedirect(t *testing.T) {
	d := NewDownloader(Config{})

	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:1/secret", nil)
	err := d.client.CheckRedirect(req, []*http.Request{req})
	assert.ErrorIs(t, err, ErrSSRF)
}

func TestIsBlockedAddr(t *testing.T) {
	testCases := []struct {
		addr    string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.20.0.1", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"fd00::1", true},
		{"fe80::1", true},
		{"::ffff:10.0.0.1", true},
		{"8.8.8.8", false},
		{"172.32.0.1", false},
		{"2606:4700::1111", false},
	}

	for _, tc := range testCases {
		t.Run(tc.addr, func(t *testing.T) {
			assert.Equal(t, tc.blocked, isBlockedAddr(netip.MustParseAddr(tc.addr)))
		})
	}
}
