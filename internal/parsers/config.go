package parsers

import (
	"fmt"
	"strings"

	"fuzzy-reconciliation-service/internal/fx"
)

// Logical fields a transaction row is read into.
const (
	FieldDate        = "date"
	FieldDescription = "description"
	FieldAmount      = "amount"
	FieldDebit       = "debit"
	FieldCredit      = "credit"
	FieldCurrency    = "currency"
	FieldReference   = "reference"
)

// DefaultColumnAliases lists, per logical field, the header names accepted
// for it in priority order. Header matching is case-insensitive.
var DefaultColumnAliases = map[string][]string{
	FieldDate: {
		"date", "transaction_date", "transactiondate", "posting_date",
		"postingdate", "value_date", "valuedate",
	},
	FieldDescription: {
		"description", "desc", "narrative", "details", "memo",
		"transaction_description", "transactiondescription", "payee", "merchant",
	},
	FieldAmount: {
		"amount", "value", "transaction_amount", "transactionamount",
	},
	FieldDebit:    {"debit", "withdrawal"},
	FieldCredit:   {"credit", "deposit"},
	FieldCurrency: {"currency", "currency_code", "ccy"},
	FieldReference: {
		"reference", "ref", "transaction_id", "transactionid", "id",
		"check_number", "checknumber",
	},
}

// LoaderConfig holds configuration for reading transaction files
type LoaderConfig struct {
	// DefaultCurrency applies to rows with no currency column value and no
	// recognizable symbol in the amount.
	DefaultCurrency string `json:"default_currency" yaml:"default_currency"`
	Delimiter       rune   `json:"delimiter" yaml:"delimiter"`
	// ColumnAliases overrides DefaultColumnAliases per field.
	ColumnAliases map[string][]string `json:"column_aliases,omitempty" yaml:"column_aliases,omitempty"`
	// KeepZeroAmounts disables dropping rows whose amount is zero.
	KeepZeroAmounts bool `json:"keep_zero_amounts" yaml:"keep_zero_amounts"`
}

// DefaultLoaderConfig returns a configuration with standard defaults
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		DefaultCurrency: "USD",
		Delimiter:       ',',
	}
}

// Validate checks if the loader configuration is valid
func (c *LoaderConfig) Validate() error {
	if !fx.IsValidCode(strings.ToUpper(c.DefaultCurrency)) {
		return fmt.Errorf("default currency must be a three-letter code, got %q", c.DefaultCurrency)
	}
	if c.Delimiter == 0 || c.Delimiter == '\n' || c.Delimiter == '"' {
		return fmt.Errorf("invalid delimiter %q", c.Delimiter)
	}
	return nil
}

// Aliases returns the accepted header names for field.
func (c *LoaderConfig) Aliases(field string) []string {
	if aliases, ok := c.ColumnAliases[field]; ok && len(aliases) > 0 {
		return aliases
	}
	return DefaultColumnAliases[field]
}
