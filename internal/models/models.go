package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Transaction is a single normalized record from either side of a reconciliation.
// Date carries no time component and is held at UTC midnight.
type Transaction struct {
	ID          string          `json:"id" yaml:"id"`
	Date        time.Time       `json:"date" yaml:"date"`
	Description string          `json:"description" yaml:"description"`
	Amount      decimal.Decimal `json:"amount" yaml:"amount"`
	Currency    string          `json:"currency" yaml:"currency"`
	Reference   string          `json:"reference,omitempty" yaml:"reference,omitempty"`
}

// NewTransaction creates a new Transaction instance, truncating date to a calendar day.
func NewTransaction(id string, date time.Time, description string, amount decimal.Decimal, currency, reference string) *Transaction {
	return &Transaction{
		ID:          id,
		Date:        CalendarDate(date),
		Description: description,
		Amount:      amount,
		Currency:    strings.ToUpper(strings.TrimSpace(currency)),
		Reference:   strings.TrimSpace(reference),
	}
}

// Validate performs basic validation on the Transaction
func (t *Transaction) Validate() error {
	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}
	if len(t.Currency) != 3 {
		return fmt.Errorf("invalid currency code %q", t.Currency)
	}
	return nil
}

// String returns a string representation of the Transaction
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Date: %s, Amount: %s %s, Description: %q}",
		t.ID, t.Date.Format(DateLayout), t.Amount.String(), t.Currency, t.Description)
}

// MarshalJSON implements custom JSON marshaling for Transaction
func (t Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		Date   string `json:"date"`
		Amount string `json:"amount"`
		Alias
	}{
		Date:   t.Date.Format(DateLayout),
		Amount: t.Amount.String(),
		Alias:  (Alias)(t),
	})
}

// UnmarshalJSON accepts the amount as a JSON string or number and the date in
// any of the formats understood by ParseDate.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type Alias Transaction
	aux := &struct {
		Date   string          `json:"date"`
		Amount json.RawMessage `json:"amount"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	amount, err := parseJSONAmount(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}
	t.Amount = amount

	if t.Date, err = ParseDate(aux.Date); err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}
	t.Currency = strings.ToUpper(strings.TrimSpace(t.Currency))

	return nil
}

// RateSource tags where an applied conversion rate came from.
type RateSource string

const (
	RateSourceNoConversion RateSource = "no-conversion"
	RateSourceExactDate    RateSource = "api-exact-date"
	RateSourceLatest       RateSource = "api-latest-fallback"
)

// FXRate is a resolved conversion rate. Date is the requested date and
// EffectiveDate the date the quote actually applies to.
type FXRate struct {
	Date           time.Time  `json:"date" yaml:"date"`
	EffectiveDate  time.Time  `json:"effectiveDate" yaml:"effective_date"`
	SourceCurrency string     `json:"sourceCurrency" yaml:"source_currency"`
	TargetCurrency string     `json:"targetCurrency" yaml:"target_currency"`
	Rate           float64    `json:"rate" yaml:"rate"`
	Source         RateSource `json:"source" yaml:"source"`
}

// MarshalJSON renders both dates as calendar dates.
func (r FXRate) MarshalJSON() ([]byte, error) {
	type Alias FXRate
	return json.Marshal(&struct {
		Date          string `json:"date"`
		EffectiveDate string `json:"effectiveDate"`
		Alias
	}{
		Date:          r.Date.Format(DateLayout),
		EffectiveDate: r.EffectiveDate.Format(DateLayout),
		Alias:         (Alias)(r),
	})
}

// ConvertedTransaction is a Transaction expressed in a reporting currency.
// ConversionRate is nil when conversion failed and ConvertedAmount then holds
// the original amount.
type ConvertedTransaction struct {
	Transaction     `yaml:",inline"`
	ConvertedAmount decimal.Decimal `json:"convertedAmount" yaml:"converted_amount"`
	ConversionRate  *float64        `json:"conversionRate" yaml:"conversion_rate"`
	BaseCurrency    string          `json:"baseCurrency" yaml:"base_currency"`
	RateSource      RateSource      `json:"rateSource,omitempty" yaml:"rate_source,omitempty"`
}

// MarshalJSON keeps the embedded transaction's date and amount formatting
// alongside the conversion fields.
func (c ConvertedTransaction) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(c.Transaction)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	fields["convertedAmount"] = c.ConvertedAmount.String()
	fields["conversionRate"] = c.ConversionRate
	fields["baseCurrency"] = c.BaseCurrency
	if c.RateSource != "" {
		fields["rateSource"] = c.RateSource
	}
	return json.Marshal(fields)
}

// Converted reports whether a conversion rate was applied.
func (c *ConvertedTransaction) Converted() bool {
	return c.ConversionRate != nil
}

// ConversionFailed reports whether a rate lookup was attempted for a
// foreign-currency transaction and failed.
func (c *ConvertedTransaction) ConversionFailed() bool {
	return c.ConversionRate == nil && c.BaseCurrency != "" && c.BaseCurrency != c.Currency
}

// Passthrough wraps transactions without conversion, for runs that skip
// currency normalization. ConvertedAmount mirrors Amount.
func Passthrough(txns []*Transaction) []*ConvertedTransaction {
	out := make([]*ConvertedTransaction, len(txns))
	for i, t := range txns {
		out[i] = &ConvertedTransaction{
			Transaction:     *t,
			ConvertedAmount: t.Amount,
			BaseCurrency:    t.Currency,
		}
	}
	return out
}

// MatchReason records which acceptance rule produced a match.
type MatchReason string

const (
	ReasonReference         MatchReason = "reference"
	ReasonDateAmountSimilar MatchReason = "date_amount_similarity"
	ReasonDateSimilar       MatchReason = "date_similarity"
	ReasonAmountSimilar     MatchReason = "amount_similarity"
)

// MatchedPair links one bank and one account transaction consumed by a match.
type MatchedPair struct {
	Bank             *ConvertedTransaction `json:"bank" yaml:"bank"`
	Account          *ConvertedTransaction `json:"account" yaml:"account"`
	Description      string                `json:"description" yaml:"description"`
	Date             time.Time             `json:"date" yaml:"date"`
	Reason           MatchReason           `json:"reason" yaml:"reason"`
	Similarity       float64               `json:"similarity" yaml:"similarity"`
	Strategy         string                `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	DaysApart        int                   `json:"daysApart" yaml:"days_apart"`
	AmountDifference decimal.Decimal       `json:"amountDifference" yaml:"amount_difference"`
}

// NewMatchedPair builds a pair using the bank description when present and
// the bank date for reporting.
func NewMatchedPair(bank, account *ConvertedTransaction) *MatchedPair {
	description := bank.Description
	if strings.TrimSpace(description) == "" {
		description = account.Description
	}
	return &MatchedPair{
		Bank:        bank,
		Account:     account,
		Description: description,
		Date:        bank.Date,
		DaysApart:   AbsDaysBetween(bank.Date, account.Date),
		AmountDifference: bank.ConvertedAmount.Abs().
			Sub(account.ConvertedAmount.Abs()).Abs(),
	}
}

// MarshalJSON renders the reporting date as a calendar date.
func (m MatchedPair) MarshalJSON() ([]byte, error) {
	type Alias MatchedPair
	return json.Marshal(&struct {
		Date             string `json:"date"`
		AmountDifference string `json:"amountDifference"`
		Alias
	}{
		Date:             m.Date.Format(DateLayout),
		AmountDifference: m.AmountDifference.String(),
		Alias:            (Alias)(m),
	})
}

// Summary holds counts and absolute-value sums per bucket.
type Summary struct {
	TotalMatched                int                        `json:"totalMatched" yaml:"total_matched"`
	TotalUnmatched              int                        `json:"totalUnmatched" yaml:"total_unmatched"`
	UnmatchedBankCount          int                        `json:"unmatchedBankCount" yaml:"unmatched_bank_count"`
	UnmatchedAccountsCount      int                        `json:"unmatchedAccountsCount" yaml:"unmatched_accounts_count"`
	MatchedAmount               decimal.Decimal            `json:"matchedAmount" yaml:"matched_amount"`
	UnmatchedBankAmount         decimal.Decimal            `json:"unmatchedBankAmount" yaml:"unmatched_bank_amount"`
	UnmatchedAccountsAmount     decimal.Decimal            `json:"unmatchedAccountsAmount" yaml:"unmatched_accounts_amount"`
	MatchedByCurrency           map[string]decimal.Decimal `json:"matchedByCurrency,omitempty" yaml:"matched_by_currency,omitempty"`
	UnmatchedBankByCurrency     map[string]decimal.Decimal `json:"unmatchedBankByCurrency,omitempty" yaml:"unmatched_bank_by_currency,omitempty"`
	UnmatchedAccountsByCurrency map[string]decimal.Decimal `json:"unmatchedAccountsByCurrency,omitempty" yaml:"unmatched_accounts_by_currency,omitempty"`
	ConversionFailures          int                        `json:"conversionFailures" yaml:"conversion_failures"`
}

// ReconciliationResult is the output of one reconciliation run.
type ReconciliationResult struct {
	RunID             string                  `json:"runId" yaml:"run_id"`
	BaseCurrency      string                  `json:"baseCurrency" yaml:"base_currency"`
	Matched           []*MatchedPair          `json:"matched" yaml:"matched"`
	UnmatchedBank     []*ConvertedTransaction `json:"unmatchedBank" yaml:"unmatched_bank"`
	UnmatchedAccounts []*ConvertedTransaction `json:"unmatchedAccounts" yaml:"unmatched_accounts"`
	Summary           Summary                 `json:"summary" yaml:"summary"`
	ProcessedAt       time.Time               `json:"processedAt" yaml:"processed_at"`
	Duration          time.Duration           `json:"duration" yaml:"duration"`
}

// parseJSONAmount reads a bare JSON number exactly and a JSON string through
// ParseDecimalFromString.
func parseJSONAmount(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, err
		}
		return ParseDecimalFromString(s)
	}
	return decimal.NewFromString(string(raw))
}

// ParseDecimalFromString parses an amount as written in statements: an
// optional ISO currency code or symbol, thousands separators, and
// parentheses for negatives. Any other letters are rejected.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}
	original := s

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = trimCurrencyCode(s)

	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == ',', unicode.Is(unicode.Sc, r):
			return -1
		default:
			return r
		}
	}, s)

	for _, r := range s {
		if unicode.IsLetter(r) && r != 'e' && r != 'E' {
			return decimal.Zero, fmt.Errorf("invalid decimal format '%s'", original)
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", original, err)
	}
	if negative {
		d = d.Neg()
	}

	return d, nil
}

// trimCurrencyCode drops a leading or trailing three-letter code such as
// "USD 12.50" or "12.50EUR".
func trimCurrencyCode(s string) string {
	if len(s) > 3 && isAlpha(s[:3]) && !unicode.IsLetter(rune(s[3])) {
		return strings.TrimSpace(s[3:])
	}
	if n := len(s); n > 3 && isAlpha(s[n-3:]) && !unicode.IsLetter(rune(s[n-4])) {
		return strings.TrimSpace(s[:n-3])
	}
	return s
}

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i] | 0x20
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

// ParseDate parses a calendar date using the common formats found in bank
// exports and returns it at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		DateLayout,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"01/02/2006",
		"2006/01/02",
		"02-01-2006",
		"Jan 2, 2006",
		"January 2, 2006",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return CalendarDate(t), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// CalendarDate drops the time component, keeping the wall-clock day.
func CalendarDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the signed number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(CalendarDate(b).Sub(CalendarDate(a)).Hours() / 24)
}

// AbsDaysBetween returns the absolute number of calendar days between a and b.
func AbsDaysBetween(a, b time.Time) int {
	d := DaysBetween(a, b)
	if d < 0 {
		return -d
	}
	return d
}

// CompareAmountsWithTolerance reports whether the absolute values of a and b
// differ by at most tolerance.
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	return a.Abs().Sub(b.Abs()).Abs().LessThanOrEqual(tolerance)
}
