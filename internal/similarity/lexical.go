package similarity

import (
	"context"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// unitCost counts a substitution as one edit, unlike levenshtein.DefaultOptions.
var unitCost = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

const (
	containmentWeight = 0.9
	nearMissWeight    = 0.7
	nearMissMaxEdits  = 2
	nearMissMaxRatio  = 0.4
)

// LexicalScorer scores descriptions by token alignment and edit distance.
// It is deterministic and has no external dependencies.
type LexicalScorer struct{}

// NewLexicalScorer creates a new LexicalScorer
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Score implements Scorer. It never returns an error.
func (l *LexicalScorer) Score(_ context.Context, a, b string) (Score, error) {
	return Score{Value: LexicalSimilarity(a, b), Strategy: StrategyLexical}, nil
}

// LexicalSimilarity returns the larger of the token overlap score and the
// edit-distance ratio of the normalized strings.
func LexicalSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}

	n1, n2 := Normalize(a), Normalize(b)
	if n1 == n2 {
		return 1
	}

	t1, t2 := Tokens(n1), Tokens(n2)
	ratio := editRatio(n1, n2)
	if len(t1) == 0 || len(t2) == 0 {
		return ratio
	}

	overlap := tokenOverlap(t1, t2)
	if overlap > ratio {
		return overlap
	}
	return ratio
}

// tokenOverlap aligns each token of t1 with its best unconsumed partner in
// t2 and returns the Dice-style score 2*sum / (len(t1)+len(t2)).
func tokenOverlap(t1, t2 []string) float64 {
	consumed := make([]bool, len(t2))
	var total float64

	for _, tok := range t1 {
		best, bestIdx := 0.0, -1
		for j, cand := range t2 {
			if consumed[j] {
				continue
			}
			s := tokenScore(tok, cand)
			if s > best {
				best, bestIdx = s, j
				if s == 1 {
					break
				}
			}
		}
		if bestIdx >= 0 {
			consumed[bestIdx] = true
			total += best
		}
	}

	return 2 * total / float64(len(t1)+len(t2))
}

// tokenScore applies exact, containment and near-miss rules in that order.
func tokenScore(a, b string) float64 {
	if a == b {
		return 1
	}

	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if strings.Contains(longer, shorter) {
		return float64(len(shorter)) / float64(len(longer)) * containmentWeight
	}

	maxLen := len(longer)
	dist := distance(a, b)
	if dist <= nearMissMaxEdits && float64(dist) < nearMissMaxRatio*float64(maxLen) {
		return float64(maxLen-dist) / float64(maxLen) * nearMissWeight
	}
	return 0
}

// editRatio is (maxLen - distance) / maxLen, or 1 when both are empty.
func editRatio(a, b string) float64 {
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	return float64(maxLen-distance(a, b)) / float64(maxLen)
}

func distance(a, b string) int {
	return levenshtein.DistanceForStrings([]rune(a), []rune(b), unitCost)
}
