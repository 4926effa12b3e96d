package matcher

import (
	"context"
	"slices"

	"fuzzy-reconciliation-service/internal/models"
	"fuzzy-reconciliation-service/internal/similarity"
	"fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

// Engine performs greedy one-to-one matching of bank and account transactions.
type Engine struct {
	config   *MatchingConfig
	lexical  similarity.Scorer
	semantic similarity.Scorer
	logger   logger.Logger
}

// NewEngine creates a new matching engine. semantic may be nil; it is only
// used when the configuration enables semantic similarity and the scorer
// reports ready.
func NewEngine(config *MatchingConfig, semantic similarity.Scorer, log logger.Logger) (*Engine, error) {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	l := logger.OrGlobal(log).WithComponent("matcher")
	e := &Engine{
		config:  config.Clone(),
		lexical: similarity.NewLexicalScorer(),
		logger:  l,
	}
	if semantic != nil {
		e.semantic = similarity.NewFallbackScorer(semantic, e.lexical, l)
	}
	return e, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() *MatchingConfig {
	return e.config.Clone()
}

// WithSemantic returns an engine sharing this one's scorers with semantic
// similarity switched on or off.
func (e *Engine) WithSemantic(enabled bool) *Engine {
	c := *e
	c.config = e.config.Clone()
	c.config.UseSemanticSimilarity = enabled
	return &c
}

func (e *Engine) scorer() similarity.Scorer {
	if e.config.UseSemanticSimilarity && similarity.IsReady(e.semantic) {
		return e.semantic
	}
	return e.lexical
}

// Reconcile pairs bank with accounts and summarizes the outcome.
//
// Neither input slice nor the transactions they hold are modified. Both
// sides must be non-empty. Cancellation is checked before each bank
// transaction; a cancelled run returns the context error and no result.
// progress, when set, is called after each bank transaction with the number
// processed so far.
func (e *Engine) Reconcile(ctx context.Context, bank, accounts []*models.ConvertedTransaction, progress func(done, total int)) (*models.ReconciliationResult, error) {
	if len(bank) == 0 {
		return nil, errors.EmptyInputSet("bank")
	}
	if len(accounts) == 0 {
		return nil, errors.EmptyInputSet("accounts")
	}

	scorer := e.scorer()
	unmatchedBank := slices.Clone(bank)
	unmatchedAccounts := slices.Clone(accounts)
	var matched []*models.MatchedPair

	total := len(bank)
	done := 0
	for i := len(unmatchedBank) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		b := unmatchedBank[i]
		for j := len(unmatchedAccounts) - 1; j >= 0; j-- {
			pair, err := e.evaluate(ctx, scorer, b, unmatchedAccounts[j])
			if err != nil {
				return nil, err
			}
			if pair == nil {
				continue
			}

			matched = append(matched, pair)
			unmatchedBank = slices.Delete(unmatchedBank, i, i+1)
			unmatchedAccounts = slices.Delete(unmatchedAccounts, j, j+1)
			e.logger.WithFields(logger.Fields{
				"bank":       b.ID,
				"account":    pair.Account.ID,
				"reason":     pair.Reason,
				"similarity": pair.Similarity,
			}).Debug("Matched transactions")
			break
		}

		done++
		if progress != nil {
			progress(done, total)
		}
	}

	result := &models.ReconciliationResult{
		Matched:           matched,
		UnmatchedBank:     unmatchedBank,
		UnmatchedAccounts: unmatchedAccounts,
		Summary:           Summarize(matched, unmatchedBank, unmatchedAccounts),
	}

	e.logger.WithFields(logger.Fields{
		"matched":            len(matched),
		"unmatched_bank":     len(unmatchedBank),
		"unmatched_accounts": len(unmatchedAccounts),
	}).Info("Matching completed")

	return result, nil
}

// evaluate applies the match predicate to one candidate pair. It returns a
// nil pair on rejection and an error only when ctx is done.
func (e *Engine) evaluate(ctx context.Context, scorer similarity.Scorer, b, a *models.ConvertedTransaction) (*models.MatchedPair, error) {
	if !e.config.AmountsMatch(b.ConvertedAmount, a.ConvertedAmount) {
		return nil, nil
	}

	if b.Reference != "" && b.Reference == a.Reference {
		pair := models.NewMatchedPair(b, a)
		pair.Reason = models.ReasonReference
		return pair, nil
	}

	score, err := e.score(ctx, scorer, b.Description, a.Description)
	if err != nil {
		return nil, err
	}

	// amounts already agree past the gate
	dateMatch := e.config.IsWithinDateWindow(b.Date, a.Date)
	t := e.config.ThresholdsFor(score.Strategy)

	var reason models.MatchReason
	switch {
	case dateMatch && score.Value > t.DateAndAmount:
		reason = models.ReasonDateAmountSimilar
	case dateMatch && score.Value > t.DateOnly:
		reason = models.ReasonDateSimilar
	case score.Value > t.AmountOnly:
		reason = models.ReasonAmountSimilar
	default:
		return nil, nil
	}

	pair := models.NewMatchedPair(b, a)
	pair.Reason = reason
	pair.Similarity = score.Value
	pair.Strategy = string(score.Strategy)
	return pair, nil
}

func (e *Engine) score(ctx context.Context, scorer similarity.Scorer, a, b string) (similarity.Score, error) {
	score, err := scorer.Score(ctx, a, b)
	if err == nil {
		return score, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return similarity.Score{}, ctxErr
	}

	e.logger.WithError(err).WithField("provider", "similarity").
		Warn("Similarity scoring failed, using lexical score")
	return e.lexical.Score(ctx, a, b)
}
