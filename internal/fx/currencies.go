package fx

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency describes a supported currency.
type Currency struct {
	Code   string `json:"code" yaml:"code"`
	Name   string `json:"name" yaml:"name"`
	Symbol string `json:"symbol" yaml:"symbol"`
}

// SupportedCurrencies lists the currencies offered as reporting currencies.
var SupportedCurrencies = []Currency{
	{Code: "USD", Name: "US Dollar", Symbol: "$"},
	{Code: "EUR", Name: "Euro", Symbol: "€"},
	{Code: "GBP", Name: "British Pound", Symbol: "£"},
	{Code: "JPY", Name: "Japanese Yen", Symbol: "¥"},
	{Code: "CAD", Name: "Canadian Dollar", Symbol: "C$"},
	{Code: "AUD", Name: "Australian Dollar", Symbol: "A$"},
	{Code: "CHF", Name: "Swiss Franc", Symbol: "CHF"},
	{Code: "CNY", Name: "Chinese Yuan", Symbol: "¥"},
	{Code: "INR", Name: "Indian Rupee", Symbol: "₹"},
	{Code: "SGD", Name: "Singapore Dollar", Symbol: "S$"},
}

// symbolCodes is checked in order; prefixed dollar signs come before "$".
var symbolCodes = []struct {
	symbol string
	code   string
}{
	{"C$", "CAD"},
	{"A$", "AUD"},
	{"S$", "SGD"},
	{"$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
}

// DetectCurrencyFromSymbol returns the code of the first currency symbol
// found in text.
func DetectCurrencyFromSymbol(text string) (string, bool) {
	for _, s := range symbolCodes {
		if strings.Contains(text, s.symbol) {
			return s.code, true
		}
	}
	return "", false
}

// DetectCurrencyFromCode returns the first supported currency code that
// appears in text, case-insensitively.
func DetectCurrencyFromCode(text string) (string, bool) {
	upper := strings.ToUpper(text)
	for _, c := range SupportedCurrencies {
		if strings.Contains(upper, c.Code) {
			return c.Code, true
		}
	}
	return "", false
}

// IsValidCode reports whether code looks like an ISO-4217 code.
func IsValidCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// LookupCurrency returns the catalogue entry for code.
func LookupCurrency(code string) (Currency, bool) {
	code = strings.ToUpper(code)
	for _, c := range SupportedCurrencies {
		if c.Code == code {
			return c, true
		}
	}
	return Currency{}, false
}

// FormatAmount renders the absolute value of amount with the currency
// symbol, thousands separators and two decimals, e.g. "€1,234.50".
// Unknown currencies are prefixed with their code.
func FormatAmount(amount decimal.Decimal, code string) string {
	prefix := code + " "
	if c, ok := LookupCurrency(code); ok {
		prefix = c.Symbol
		if c.Code == "CHF" {
			prefix += " "
		}
	}

	fixed := amount.Abs().StringFixed(2)
	intPart, frac := fixed[:len(fixed)-3], fixed[len(fixed)-3:]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	return prefix + b.String() + frac
}
