package papersources

import (
	"context"
	"fmt"
	"time"

	"github.com/helixir/training-evidence-curator/internal/domain"
)

// SearchParams defines the parameters for one query against one source.
type SearchParams struct {
	// Query is the search query string (required).
	Query string

	// Domain is the research domain the query belongs to. It is carried
	// through for attribution only.
	Domain string

	// MaxResults limits the number of records returned.
	// A value of 0 uses the source's default limit.
	MaxResults int

	// YearFrom and YearTo bound the publication year, inclusive.
	// Zero leaves the bound open.
	YearFrom int
	YearTo   int
}

// SearchResult contains the records returned by one query.
type SearchResult struct {
	// Records are the candidate records in the order the source ranked them.
	Records []domain.CandidateRecord

	// TotalResults is the total number of matches reported by the source.
	// It may be an estimate for large result sets.
	TotalResults int

	// Source identifies which collector produced these results.
	Source domain.SourceType

	// SearchDuration is the time taken to execute the search,
	// including rate-limit waits, retries and response parsing.
	SearchDuration time.Duration
}

// Collector is implemented by every academic search API client.
//
// Implementations should:
//   - respect context cancellation
//   - wait on their injected rate limiter before each request
//   - return records tagged with their own SourceType and the query
//   - report exhausted retries as *domain.TransientSourceError
type Collector interface {
	// Search queries the source for records matching params.
	Search(ctx context.Context, params SearchParams) (*SearchResult, error)

	// SourceType returns the type identifier for this collector.
	SourceType() domain.SourceType

	// Name returns a human-readable name for logging and display.
	Name() string

	// IsEnabled reports whether the collector takes part in collection.
	IsEnabled() bool
}

// YearRange formats the year window as "from-to", "from-" or "-to", the
// range syntax Semantic Scholar and OpenAlex accept. It is empty when both
// bounds are open.
func (p SearchParams) YearRange() string {
	switch {
	case p.YearFrom > 0 && p.YearTo > 0:
		return fmt.Sprintf("%d-%d", p.YearFrom, p.YearTo)
	case p.YearFrom > 0:
		return fmt.Sprintf("%d-", p.YearFrom)
	case p.YearTo > 0:
		return fmt.Sprintf("-%d", p.YearTo)
	default:
		return ""
	}
}

// InYearWindow reports whether year satisfies the window. Unknown years
// (zero) pass.
func (p SearchParams) InYearWindow(year int) bool {
	if year == 0 {
		return true
	}
	if p.YearFrom > 0 && year < p.YearFrom {
		return false
	}
	if p.YearTo > 0 && year > p.YearTo {
		return false
	}
	return true
}
