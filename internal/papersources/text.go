package papersources

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CleanText strips inline markup (JATS or HTML tags such as <i> and <sup>),
// decodes entities and collapses whitespace. Abstracts and titles from
// several sources carry such markup.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}
