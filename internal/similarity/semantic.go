package similarity

import (
	"context"
	"fmt"
	"math"

	"fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

// keywordBoost multiplies the cosine similarity of texts sharing a keyword.
const keywordBoost = 1.15

// Embedder turns text into a vector. Implementations may call out to a
// remote model and should honour ctx.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// SemanticScorer scores descriptions by cosine similarity of their embeddings.
type SemanticScorer struct {
	embedder Embedder
}

// NewSemanticScorer creates a scorer backed by embedder.
func NewSemanticScorer(embedder Embedder) *SemanticScorer {
	return &SemanticScorer{embedder: embedder}
}

// Ready reports whether the embedder is configured and, when it exposes a
// readiness check, ready.
func (s *SemanticScorer) Ready() bool {
	if s == nil || s.embedder == nil {
		return false
	}
	if r, ok := s.embedder.(Readiness); ok {
		return r.Ready()
	}
	return true
}

// Score implements Scorer.
func (s *SemanticScorer) Score(ctx context.Context, a, b string) (Score, error) {
	n1, n2 := Normalize(a), Normalize(b)
	if v, ok := trivialScore(n1, n2); ok {
		return Score{Value: v, Strategy: StrategySemantic}, nil
	}

	v1, err := s.embed(ctx, n1)
	if err != nil {
		return Score{}, err
	}
	v2, err := s.embed(ctx, n2)
	if err != nil {
		return Score{}, err
	}

	return Score{Value: boosted(v1, v2, n1, n2), Strategy: StrategySemantic}, nil
}

// ScoreBatch scores base against each candidate, embedding base once and
// each distinct candidate once. Results line up with candidates.
func (s *SemanticScorer) ScoreBatch(ctx context.Context, base string, candidates []string) ([]Score, error) {
	nb := Normalize(base)
	scores := make([]Score, len(candidates))

	var baseVec []float64
	vectors := make(map[string][]float64)

	for i, c := range candidates {
		nc := Normalize(c)
		if v, ok := trivialScore(nb, nc); ok {
			scores[i] = Score{Value: v, Strategy: StrategySemantic}
			continue
		}

		if baseVec == nil {
			vec, err := s.embed(ctx, nb)
			if err != nil {
				return nil, err
			}
			baseVec = vec
		}

		vec, ok := vectors[nc]
		if !ok {
			var err error
			if vec, err = s.embed(ctx, nc); err != nil {
				return nil, err
			}
			vectors[nc] = vec
		}

		scores[i] = Score{Value: boosted(baseVec, vec, nb, nc), Strategy: StrategySemantic}
	}

	return scores, nil
}

func (s *SemanticScorer) embed(ctx context.Context, text string) ([]float64, error) {
	if !s.Ready() {
		return nil, errors.SimilarityProviderError("embedding", fmt.Errorf("embedder not ready"))
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.SimilarityProviderError("embedding", err)
	}
	if len(vec) == 0 {
		return nil, errors.SimilarityProviderError("embedding", fmt.Errorf("empty embedding for %q", text))
	}
	return vec, nil
}

// trivialScore resolves identical and empty inputs without an embedding.
func trivialScore(n1, n2 string) (float64, bool) {
	if n1 == n2 {
		return 1, true
	}
	if n1 == "" || n2 == "" {
		return 0, true
	}
	return 0, false
}

func boosted(v1, v2 []float64, n1, n2 string) float64 {
	sim := Cosine(v1, v2)
	if shareKeyword(n1, n2) {
		sim *= keywordBoost
	}
	return clamp01(sim)
}

// Cosine returns the cosine similarity of the L2-normalized vectors a and b.
// Vectors of different length or zero norm yield 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// FallbackScorer uses primary when it is ready and falls back to fallback
// when primary is unavailable or fails.
type FallbackScorer struct {
	primary  Scorer
	fallback Scorer
	logger   logger.Logger
}

// NewFallbackScorer creates a new FallbackScorer
func NewFallbackScorer(primary, fallback Scorer, log logger.Logger) *FallbackScorer {
	return &FallbackScorer{
		primary:  primary,
		fallback: fallback,
		logger:   logger.OrGlobal(log).WithComponent("similarity"),
	}
}

// Score implements Scorer.
func (f *FallbackScorer) Score(ctx context.Context, a, b string) (Score, error) {
	if IsReady(f.primary) {
		score, err := f.primary.Score(ctx, a, b)
		if err == nil {
			return score, nil
		}
		if ctx.Err() != nil {
			return Score{}, ctx.Err()
		}
		f.logger.WithError(err).WithField("provider", "embedding").
			Warn("Semantic similarity failed, using lexical score")
	}
	return f.fallback.Score(ctx, a, b)
}
