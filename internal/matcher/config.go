// Package matcher provides the transaction matching engine and its configuration.
//
// The engine pairs bank transactions with account transactions one-to-one
// using a greedy first-fit scan:
//   - Amount compatibility is a hard gate: absolute values must agree within
//     an absolute tolerance
//   - Equal non-empty references accept a pair outright
//   - Otherwise a pair is accepted when date proximity, amount agreement and
//     description similarity clear the thresholds of the scoring strategy
//
// Both lists are scanned from the end so that accepted pairs can be removed
// without disturbing positions not yet visited. The scan order is fixed and
// the outcome is deterministic for a deterministic scorer.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	config.UseSemanticSimilarity = true
//
//	engine, err := matcher.NewEngine(config, semanticScorer, log)
//	if err != nil {
//		return err
//	}
//	result, err := engine.Reconcile(ctx, bank, accounts, nil)
package matcher

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fuzzy-reconciliation-service/internal/models"
	"fuzzy-reconciliation-service/internal/similarity"
	"fuzzy-reconciliation-service/pkg/errors"
)

// Thresholds are the exclusive similarity minimums for each acceptance rule.
type Thresholds struct {
	// DateAndAmount applies when both the date window and the amount match.
	DateAndAmount float64 `json:"date_and_amount" yaml:"date_and_amount"`
	// DateOnly applies when the date window matches.
	DateOnly float64 `json:"date_only" yaml:"date_only"`
	// AmountOnly applies when the amounts match.
	AmountOnly float64 `json:"amount_only" yaml:"amount_only"`
}

// Validate checks that every threshold lies in [0,1].
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"date_and_amount": t.DateAndAmount,
		"date_only":       t.DateOnly,
		"amount_only":     t.AmountOnly,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold %s must be between 0.0 and 1.0: %f", name, v)
		}
	}
	return nil
}

// MatchingConfig holds configuration parameters for transaction matching.
type MatchingConfig struct {
	// AmountTolerance is the absolute difference allowed between the
	// absolute values of two amounts, in reporting-currency units.
	AmountTolerance decimal.Decimal `json:"amount_tolerance" yaml:"amount_tolerance"`

	// DateWindowDays is the inclusive calendar-day distance for a date match.
	DateWindowDays int `json:"date_window_days" yaml:"date_window_days"`

	// UseSemanticSimilarity scores descriptions with embeddings when a
	// semantic scorer is available.
	UseSemanticSimilarity bool `json:"use_semantic_similarity" yaml:"use_semantic_similarity"`

	LexicalThresholds  Thresholds `json:"lexical_thresholds" yaml:"lexical_thresholds"`
	SemanticThresholds Thresholds `json:"semantic_thresholds" yaml:"semantic_thresholds"`
}

// DefaultMatchingConfig returns a configuration with sensible defaults
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		AmountTolerance: decimal.NewFromFloat(0.01),
		DateWindowDays:  3,
		LexicalThresholds: Thresholds{
			DateAndAmount: 0.05,
			DateOnly:      0.45,
			AmountOnly:    0.55,
		},
		SemanticThresholds: Thresholds{
			DateAndAmount: 0.25,
			DateOnly:      0.45,
			AmountOnly:    0.55,
		},
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.AmountTolerance.IsNegative() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "amount_tolerance", mc.AmountTolerance.String(), nil)
	}

	if mc.DateWindowDays < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "date_window_days", mc.DateWindowDays, nil)
	}

	if err := mc.LexicalThresholds.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "lexical_thresholds", mc.LexicalThresholds, err)
	}

	if err := mc.SemanticThresholds.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "semantic_thresholds", mc.SemanticThresholds, err)
	}

	return nil
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	c := *mc
	return &c
}

// ThresholdsFor returns the thresholds that apply to scores of strategy.
func (mc *MatchingConfig) ThresholdsFor(strategy similarity.Strategy) Thresholds {
	if strategy == similarity.StrategySemantic {
		return mc.SemanticThresholds
	}
	return mc.LexicalThresholds
}

// AmountsMatch reports whether |abs(a) - abs(b)| is within the tolerance.
func (mc *MatchingConfig) AmountsMatch(a, b decimal.Decimal) bool {
	return models.CompareAmountsWithTolerance(a, b, mc.AmountTolerance)
}

// IsWithinDateWindow reports whether two dates are at most DateWindowDays
// calendar days apart.
func (mc *MatchingConfig) IsWithinDateWindow(a, b time.Time) bool {
	return models.AbsDaysBetween(a, b) <= mc.DateWindowDays
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{AmountTolerance: %s, DateWindow: %d days, Semantic: %t}",
		mc.AmountTolerance.String(), mc.DateWindowDays, mc.UseSemanticSimilarity)
}
