package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
)

// ErrNoText is returned when a PDF parses but yields no text, as with scanned
// documents.
var ErrNoText = errors.New("pdf: no extractable text")

// Extractor turns PDF bytes into plain text.
type Extractor struct {
	maxPages int
}

// NewExtractor creates an extractor reading at most maxPages pages
// (0 means all).
func NewExtractor(maxPages int) *Extractor {
	return &Extractor{maxPages: maxPages}
}

// Extract returns the document's text, page by page. Pages that fail to
// decode are skipped.
func (e *Extractor) Extract(content []byte) (text string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf: parser panic: %v", r)
		}
	}()

	reader, err := lpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("pdf: open: %w", err)
	}

	pages := reader.NumPage()
	if e.maxPages > 0 && e.maxPages < pages {
		pages = e.maxPages
	}

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrNoText
	}
	return out, nil
}

// Section names produced by SegmentSections.
const (
	SectionAbstract     = "abstract"
	SectionIntroduction = "introduction"
	SectionMethods      = "methods"
	SectionResults      = "results"
	SectionDiscussion   = "discussion"
	SectionConclusion   = "conclusion"
	SectionReferences   = "references"
)

// MinSectionLength is the shortest section body kept.
const MinSectionLength = 50

var sectionHeadings = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{SectionAbstract, regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.?\s*)?abstract\b[ \t:.]*`)},
	{SectionIntroduction, regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.?\s*)?(?:introduction|background)\b[ \t:.]*$`)},
	{SectionMethods, regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.?\s*)?(?:materials and methods|methods|methodology)\b[ \t:.]*$`)},
	{SectionResults, regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.?\s*)?results\b[ \t:.]*$`)},
	{SectionDiscussion, regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.?\s*)?discussion\b[ \t:.]*$`)},
	{SectionConclusion, regexp.MustCompile(`(?im)^[ \t]*(?:\d+\.?\s*)?conclusions?\b[ \t:.]*$`)},
	{SectionReferences, regexp.MustCompile(`(?im)^[ \t]*(?:references|bibliography)\b[ \t:.]*$`)},
}

type headingHit struct {
	name       string
	start, end int
}

// SegmentSections splits text at recognised headings. Each section runs to
// the next recognised heading. Only the first occurrence of a heading counts,
// and bodies shorter than MinSectionLength are dropped.
func SegmentSections(text string) map[string]string {
	var hits []headingHit
	for _, h := range sectionHeadings {
		loc := h.pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		hits = append(hits, headingHit{name: h.name, start: loc[0], end: loc[1]})
	}
	if len(hits) == 0 {
		return map[string]string{}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	sections := make(map[string]string, len(hits))
	for i, h := range hits {
		bodyEnd := len(text)
		if i+1 < len(hits) {
			bodyEnd = hits[i+1].start
		}
		if bodyEnd < h.end {
			continue
		}
		body := strings.TrimSpace(text[h.end:bodyEnd])
		if len(body) < MinSectionLength {
			continue
		}
		sections[h.name] = body
	}
	return sections
}
