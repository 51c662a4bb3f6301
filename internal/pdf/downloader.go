// Package pdf fetches open-access PDFs, stores them on local disk and turns
// them into plain text split into conventional paper sections.
package pdf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Sentinel errors for PDF downloads.
var (
	ErrNotPDF         = errors.New("pdf: response is not a PDF")
	ErrTooLarge       = errors.New("pdf: file exceeds maximum size")
	ErrDownloadFailed = errors.New("pdf: download failed")
	ErrSSRF           = errors.New("pdf: request to private network denied")
)

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxSize   = 50 << 20
	defaultUserAgent = "TrainingEvidenceCurator/1.0"
	maxRedirects     = 10
	maxLandingPage   = 2 << 20
)

var pdfMagic = []byte("%PDF-")

// blockedPrefixes are non-routable ranges a paper URL must never reach.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// DownloadResult is a validated PDF body.
type DownloadResult struct {
	Content     []byte
	ContentHash string
	SizeBytes   int64
	ContentType string
	// FinalURL is the URL the PDF was served from after landing-page
	// resolution and redirects.
	FinalURL string
}

// Config holds downloader settings.
type Config struct {
	Timeout   time.Duration
	MaxSize   int64
	UserAgent string
	// AllowPrivateNetworks disables the private address check. Tests only.
	AllowPrivateNetworks bool
}

// Downloader fetches PDFs over HTTP.
type Downloader struct {
	client               *http.Client
	maxSize              int64
	userAgent            string
	allowPrivateNetworks bool
}

// NewDownloader creates a Downloader, filling zero config values with
// defaults.
func NewDownloader(cfg Config) *Downloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultMaxSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	d := &Downloader{
		maxSize:              cfg.MaxSize,
		userAgent:            cfg.UserAgent,
		allowPrivateNetworks: cfg.AllowPrivateNetworks,
	}
	d.client = &http.Client{
		Timeout: cfg.Timeout,
		// Redirect targets are checked too, so an open redirect cannot land
		// on an internal address.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("%w: too many redirects", ErrDownloadFailed)
			}
			return d.checkURL(req.Context(), req.URL)
		},
	}
	return d
}

// Download fetches rawURL and returns the PDF body. When the URL serves an
// HTML landing page carrying a citation_pdf_url meta tag, that link is
// followed once.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*DownloadResult, error) {
	return d.download(ctx, rawURL, true)
}

func (d *Downloader) download(ctx context.Context, rawURL string, followLanding bool) (*DownloadResult, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %w", ErrDownloadFailed, err)
	}
	if err := d.checkURL(ctx, target); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %w", ErrDownloadFailed, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/pdf, text/html;q=0.5, */*;q=0.1")

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrSSRF) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrDownloadFailed, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	mediaType = strings.ToLower(mediaType)

	if mediaType == "text/html" || mediaType == "application/xhtml+xml" {
		if !followLanding {
			return nil, fmt.Errorf("%w: landing page links to another landing page", ErrNotPDF)
		}
		pdfURL, err := citationPDFURL(io.LimitReader(resp.Body, maxLandingPage), resp.Request.URL)
		if err != nil {
			return nil, err
		}
		return d.download(ctx, pdfURL, false)
	}

	if mediaType != "application/pdf" && mediaType != "application/octet-stream" {
		return nil, fmt.Errorf("%w: Content-Type is %q", ErrNotPDF, contentType)
	}

	// One extra byte tells an exactly-max body from an oversized one.
	content, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrDownloadFailed, err)
	}
	if int64(len(content)) > d.maxSize {
		return nil, fmt.Errorf("%w: exceeded %d bytes", ErrTooLarge, d.maxSize)
	}
	if !bytes.HasPrefix(content, pdfMagic) {
		return nil, fmt.Errorf("%w: missing %%PDF- header", ErrNotPDF)
	}

	hash := sha256.Sum256(content)
	return &DownloadResult{
		Content:     content,
		ContentHash: hex.EncodeToString(hash[:]),
		SizeBytes:   int64(len(content)),
		ContentType: contentType,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// citationPDFURL extracts the Highwire citation_pdf_url meta tag that
// publisher landing pages carry, resolved against base.
func citationPDFURL(body io.Reader, base *url.URL) (string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("%w: parse landing page: %w", ErrNotPDF, err)
	}
	href, ok := doc.Find(`meta[name="citation_pdf_url"]`).First().Attr("content")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", fmt.Errorf("%w: landing page has no citation_pdf_url", ErrNotPDF)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: invalid citation_pdf_url: %w", ErrNotPDF, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// checkURL rejects non-HTTP schemes and, unless private networks are allowed,
// hosts that resolve to a blocked range.
func (d *Downloader) checkURL(ctx context.Context, u *url.URL) error {
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q is not allowed", ErrSSRF, u.Scheme)
	}
	if d.allowPrivateNetworks {
		return nil
	}

	host := u.Hostname()
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("%w: DNS lookup failed for %s: %w", ErrDownloadFailed, host, err)
	}
	for _, addr := range addrs {
		if isBlockedAddr(addr) {
			return fmt.Errorf("%w: %s resolves to private address %s", ErrSSRF, host, addr)
		}
	}
	return nil
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
