package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNewTransaction(t *testing.T) {
	ts := time.Date(2024, 1, 15, 13, 45, 0, 0, time.UTC)
	tx := NewTransaction("T1", ts, "Coffee", decimal.NewFromFloat(4.5), " eur ", " R1 ")

	if !tx.Date.Equal(date("2024-01-15")) {
		t.Errorf("expected date truncated to 2024-01-15, got %s", tx.Date)
	}
	if tx.Currency != "EUR" {
		t.Errorf("expected currency EUR, got %s", tx.Currency)
	}
	if tx.Reference != "R1" {
		t.Errorf("expected reference R1, got %q", tx.Reference)
	}
}

func TestTransaction_Validate(t *testing.T) {
	tests := []struct {
		name      string
		tx        Transaction
		wantError bool
	}{
		{"valid", Transaction{Date: date("2024-01-01"), Currency: "USD"}, false},
		{"zero date", Transaction{Currency: "USD"}, true},
		{"bad currency", Transaction{Date: date("2024-01-01"), Currency: "US"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestTransaction_JSON(t *testing.T) {
	in := `{"id":"B1","date":"01/15/2024","description":"Rent","amount":-1200.5,"currency":"usd","reference":"R9"}`

	var tx Transaction
	if err := json.Unmarshal([]byte(in), &tx); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("-1200.5")) {
		t.Errorf("expected amount -1200.5, got %s", tx.Amount)
	}
	if !tx.Date.Equal(date("2024-01-15")) {
		t.Errorf("expected date 2024-01-15, got %s", tx.Date)
	}
	if tx.Currency != "USD" {
		t.Errorf("expected currency USD, got %s", tx.Currency)
	}

	out, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(out), `"date":"2024-01-15"`) || !strings.Contains(string(out), `"amount":"-1200.5"`) {
		t.Errorf("unexpected JSON: %s", out)
	}

	if err := json.Unmarshal([]byte(`{"date":"2024-01-15","amount":"abc"}`), &tx); err == nil {
		t.Error("expected error for malformed amount")
	}
}

func TestConvertedTransaction_JSON(t *testing.T) {
	rate := 1.1
	ct := ConvertedTransaction{
		Transaction:     Transaction{ID: "A", Date: date("2024-02-01"), Amount: decimal.NewFromInt(10), Currency: "EUR"},
		ConvertedAmount: decimal.NewFromInt(11),
		ConversionRate:  &rate,
		BaseCurrency:    "USD",
		RateSource:      RateSourceExactDate,
	}

	out, err := json.Marshal(ct)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(out, &fields); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if fields["date"] != "2024-02-01" {
		t.Errorf("expected calendar date, got %v", fields["date"])
	}
	if fields["convertedAmount"] != "11" {
		t.Errorf("expected convertedAmount 11, got %v", fields["convertedAmount"])
	}
	if fields["conversionRate"] != 1.1 {
		t.Errorf("expected conversionRate 1.1, got %v", fields["conversionRate"])
	}
}

func TestPassthrough(t *testing.T) {
	txns := []*Transaction{{ID: "1", Amount: decimal.NewFromInt(5), Currency: "GBP"}}
	out := Passthrough(txns)

	if len(out) != 1 {
		t.Fatalf("expected 1 record, got %d", len(out))
	}
	if !out[0].ConvertedAmount.Equal(txns[0].Amount) {
		t.Errorf("expected converted amount to mirror amount")
	}
	if out[0].Converted() {
		t.Error("passthrough records carry no rate")
	}

	out[0].Description = "changed"
	if txns[0].Description != "" {
		t.Error("passthrough must not alias the input transaction")
	}
}

func TestNewMatchedPair(t *testing.T) {
	bank := &ConvertedTransaction{
		Transaction:     Transaction{Date: date("2024-01-01"), Description: "  "},
		ConvertedAmount: decimal.RequireFromString("-50.00"),
	}
	account := &ConvertedTransaction{
		Transaction:     Transaction{Date: date("2024-01-04"), Description: "Invoice 7"},
		ConvertedAmount: decimal.RequireFromString("50.01"),
	}

	pair := NewMatchedPair(bank, account)
	if pair.Description != "Invoice 7" {
		t.Errorf("expected account description fallback, got %q", pair.Description)
	}
	if !pair.Date.Equal(bank.Date) {
		t.Errorf("expected bank date, got %s", pair.Date)
	}
	if pair.DaysApart != 3 {
		t.Errorf("expected 3 days apart, got %d", pair.DaysApart)
	}
	if !pair.AmountDifference.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("expected amount difference 0.01, got %s", pair.AmountDifference)
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"100.50", "100.5", false},
		{"$1,234.56", "1234.56", false},
		{"-42", "-42", false},
		{"(15.00)", "-15", false},
		{"€ 9.99", "9.99", false},
		{"USD 1,234.50", "1234.5", false},
		{"1,234.50 EUR", "1234.5", false},
		{"(GBP 20)", "-20", false},
		{"1e2", "100", false},
		{"", "", true},
		{"abc", "", true},
		{"12abc34", "", true},
		{"1,2O0", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalFromString(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestTransactionUnmarshalJSONAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		expected string
		wantErr  bool
	}{
		{"number", `45.99`, "45.99", false},
		{"exponent number", `1e2`, "100", false},
		{"negative exponent", `-1.5E-1`, "-0.15", false},
		{"string with code", `"USD 1,234.50"`, "1234.5", false},
		{"string with letters", `"12abc34"`, "", true},
		{"null", `null`, "", true},
		{"boolean", `true`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tx Transaction
			err := json.Unmarshal([]byte(`{"date":"2024-01-15","amount":`+tt.amount+`}`), &tx)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got amount %s", tx.Amount)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tx.Amount.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("expected %s, got %s", tt.expected, tx.Amount)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2024-03-05", "03/05/2024", "2024/03/05", "2024-03-05T22:10:00Z", "Mar 5, 2024"} {
		got, err := ParseDate(in)
		if err != nil {
			t.Errorf("ParseDate(%q) failed: %v", in, err)
			continue
		}
		if !got.Equal(date("2024-03-05")) {
			t.Errorf("ParseDate(%q) = %s, want 2024-03-05", in, got)
		}
	}

	if _, err := ParseDate("yesterday"); err == nil {
		t.Error("expected error for unparseable date")
	}
}

func TestDaysBetween(t *testing.T) {
	a := date("2024-01-01")
	if got := DaysBetween(a, date("2024-01-04")); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := DaysBetween(date("2024-01-05"), a); got != -4 {
		t.Errorf("expected -4, got %d", got)
	}
	if got := AbsDaysBetween(date("2024-03-01"), date("2024-02-28")); got != 2 {
		t.Errorf("expected 2 across leap day, got %d", got)
	}
}

func TestCompareAmountsWithTolerance(t *testing.T) {
	tol := decimal.RequireFromString("0.01")
	if !CompareAmountsWithTolerance(decimal.RequireFromString("-50.00"), decimal.RequireFromString("50.01"), tol) {
		t.Error("expected amounts within tolerance by absolute value")
	}
	if CompareAmountsWithTolerance(decimal.RequireFromString("100.00"), decimal.RequireFromString("100.02"), tol) {
		t.Error("expected 0.02 difference to exceed tolerance")
	}
}
