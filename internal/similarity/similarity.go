// Package similarity scores how alike two transaction descriptions are.
//
// Two strategies share the Scorer contract: a lexical scorer that needs no
// external service, and a semantic scorer backed by an embedding provider.
// FallbackScorer composes them so a failing provider degrades to lexical
// scoring instead of failing a match.
package similarity

import (
	"context"
	"regexp"
	"strings"
)

// Strategy names the algorithm that produced a score.
type Strategy string

const (
	StrategyLexical  Strategy = "lexical"
	StrategySemantic Strategy = "semantic"
)

// Score is a similarity value in [0,1] tagged with the strategy that produced it.
type Score struct {
	Value    float64
	Strategy Strategy
}

// Scorer maps two descriptions to a similarity score.
type Scorer interface {
	Score(ctx context.Context, a, b string) (Score, error)
}

// Readiness is implemented by scorers that depend on an external provider.
type Readiness interface {
	Ready() bool
}

// IsReady reports whether s can be used. Scorers without a readiness
// check are always ready.
func IsReady(s Scorer) bool {
	if s == nil {
		return false
	}
	if r, ok := s.(Readiness); ok {
		return r.Ready()
	}
	return true
}

var (
	nonAlnum   = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespace = regexp.MustCompile(`\s+`)
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "to": {}, "from": {}, "in": {}, "at": {}, "on": {},
	"for": {}, "of": {}, "a": {}, "an": {}, "payment": {}, "deposit": {},
	"transaction": {}, "transfer": {},
}

// Normalize lower-cases s, replaces anything other than ASCII letters,
// digits and whitespace with a space, collapses whitespace and trims.
func Normalize(s string) string {
	s = nonAlnum.ReplaceAllString(strings.ToLower(s), " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Tokens splits normalized text into words longer than two characters that
// are not stop words.
func Tokens(normalized string) []string {
	var out []string
	for _, w := range strings.Fields(normalized) {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// shareKeyword reports whether two normalized strings have a common word
// longer than three characters. Stop words count here.
func shareKeyword(a, b string) bool {
	seen := make(map[string]struct{})
	for _, w := range strings.Fields(a) {
		if len(w) > 3 {
			seen[w] = struct{}{}
		}
	}
	for _, w := range strings.Fields(b) {
		if _, ok := seen[w]; ok {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
