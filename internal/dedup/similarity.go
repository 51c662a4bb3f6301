package dedup

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/helixir/training-evidence-curator/internal/domain"
)

// TitleSimilarity scores two titles in [0, 1] as the maximum of the
// Levenshtein ratio, the token-sort ratio and the token-set ratio of their
// normalized forms, using DefaultTokenSetCoverage. It is symmetric.
func TitleSimilarity(a, b string) float64 {
	return normalizedSimilarity(domain.NormalizeTitle(a), domain.NormalizeTitle(b), DefaultTokenSetCoverage)
}

// normalizedSimilarity is TitleSimilarity over already normalized titles.
// The token-set ratio only counts when the shared tokens make up at least
// coverage of the larger token set.
func normalizedSimilarity(a, b string, coverage float64) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	tokensA := strings.Fields(a)
	tokensB := strings.Fields(b)

	best := Ratio(a, b)
	if s := tokenSortRatio(tokensA, tokensB); s > best {
		best = s
	}
	if tokenCoverage(tokensA, tokensB) >= coverage {
		if s := tokenSetRatio(tokensA, tokensB); s > best {
			best = s
		}
	}
	return best
}

// tokenCoverage is the share of the larger distinct token set that both
// titles have in common.
func tokenCoverage(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	shared := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			shared++
		}
	}
	larger := max(len(setA), len(setB))
	if larger == 0 {
		return 0
	}
	return float64(shared) / float64(larger)
}

// Ratio is 1 - levenshtein(a, b) / max(len(a), len(b)), measured in runes.
func Ratio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

func tokenSortRatio(a, b []string) float64 {
	return Ratio(sortedJoin(a), sortedJoin(b))
}

// tokenSetRatio compares the shared tokens against each side's full token
// set, so a title that extends another with extra words scores high.
func tokenSetRatio(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)

	var inter, onlyA, onlyB []string
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter = append(inter, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range setB {
		if _, ok := setA[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}
	if len(inter) == 0 {
		return 0
	}

	t0 := sortedJoin(inter)
	t1 := strings.TrimSpace(t0 + " " + sortedJoin(onlyA))
	t2 := strings.TrimSpace(t0 + " " + sortedJoin(onlyB))

	best := Ratio(t0, t1)
	if s := Ratio(t0, t2); s > best {
		best = s
	}
	if s := Ratio(t1, t2); s > best {
		best = s
	}
	return best
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func sortedJoin(tokens []string) string {
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}
