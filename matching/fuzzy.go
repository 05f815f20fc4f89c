package matching

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"
)

// =============================================================================
// LINE-ITEM MATCHER - Swappable fuzzy description matching
// =============================================================================

// DefaultThreshold rejects spurious matches between unrelated descriptions.
const DefaultThreshold = 85

const (
	StrategyLevenshtein = "levenshtein"
	StrategyJaroWinkler = "jarowinkler"
)

// Candidate is one line item a query may match. Key identifies the line
// (description plus owning document number); Text is what gets compared.
type Candidate struct {
	Key  string
	Text string
}

// Matcher picks the best candidate for a query. ok is false when nothing
// scores at or above the matcher's threshold. Ties go to the earliest
// candidate, so callers control determinism through candidate order.
type Matcher interface {
	Match(query string, candidates []Candidate) (key string, score int, ok bool)
}

// NewMatcher builds a matcher for the named strategy.
func NewMatcher(strategy string, threshold int) (Matcher, error) {
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultThreshold
	}
	switch strings.ToLower(strategy) {
	case "", StrategyLevenshtein:
		return &scoredMatcher{threshold: threshold, score: levenshteinScore}, nil
	case StrategyJaroWinkler:
		return &scoredMatcher{threshold: threshold, score: jaroWinklerScore}, nil
	default:
		return nil, fmt.Errorf("unknown fuzzy strategy %q", strategy)
	}
}

type scoredMatcher struct {
	threshold int
	score     func(a, b string) int
}

func (m *scoredMatcher) Match(query string, candidates []Candidate) (string, int, bool) {
	q := normalizeText(query)
	if q == "" {
		return "", 0, false
	}
	bestKey, bestScore := "", -1
	for _, c := range candidates {
		s := m.score(q, normalizeText(c.Text))
		if s > bestScore {
			bestKey, bestScore = c.Key, s
		}
	}
	if bestScore < m.threshold {
		return "", bestScore, false
	}
	return bestKey, bestScore, true
}

// =============================================================================
// SCORING
// =============================================================================

// levenshteinScore is the higher of the plain and token-sorted edit ratios.
func levenshteinScore(a, b string) int {
	return max(editRatio(a, b), editRatio(sortTokens(a), sortTokens(b)))
}

func editRatio(a, b string) int {
	if a == "" && b == "" {
		return 100
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	d := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(d)/float64(longest))))
}

func jaroWinklerScore(a, b string) int {
	plain := smetrics.JaroWinkler(a, b, 0.7, 4)
	sorted := smetrics.JaroWinkler(sortTokens(a), sortTokens(b), 0.7, 4)
	return int(math.Round(100 * math.Max(plain, sorted)))
}

// normalizeText lowercases and turns punctuation into single spaces.
func normalizeText(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
