package matcher

import (
	"github.com/shopspring/decimal"

	"fuzzy-reconciliation-service/internal/currency"
	"fuzzy-reconciliation-service/internal/models"
)

// Summarize folds finalized buckets into totals. Amount sums are absolute
// values of ConvertedAmount, which equals Amount when no conversion ran.
// Matched pairs are counted on their bank side.
func Summarize(matched []*models.MatchedPair, unmatchedBank, unmatchedAccounts []*models.ConvertedTransaction) models.Summary {
	bankSide := make([]*models.ConvertedTransaction, 0, len(matched))
	failures := 0
	for _, m := range matched {
		bankSide = append(bankSide, m.Bank)
		if m.Bank.ConversionFailed() {
			failures++
		}
		if m.Account.ConversionFailed() {
			failures++
		}
	}
	for _, t := range unmatchedBank {
		if t.ConversionFailed() {
			failures++
		}
	}
	for _, t := range unmatchedAccounts {
		if t.ConversionFailed() {
			failures++
		}
	}

	return models.Summary{
		TotalMatched:                len(matched),
		TotalUnmatched:              len(unmatchedBank) + len(unmatchedAccounts),
		UnmatchedBankCount:          len(unmatchedBank),
		UnmatchedAccountsCount:      len(unmatchedAccounts),
		MatchedAmount:               sumAbs(bankSide),
		UnmatchedBankAmount:         sumAbs(unmatchedBank),
		UnmatchedAccountsAmount:     sumAbs(unmatchedAccounts),
		MatchedByCurrency:           currency.SummarizeByCurrency(bankSide),
		UnmatchedBankByCurrency:     currency.SummarizeByCurrency(unmatchedBank),
		UnmatchedAccountsByCurrency: currency.SummarizeByCurrency(unmatchedAccounts),
		ConversionFailures:          failures,
	}
}

func sumAbs(txns []*models.ConvertedTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		total = total.Add(t.ConvertedAmount.Abs())
	}
	return total
}
