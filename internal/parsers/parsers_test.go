package parsers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"fuzzy-reconciliation-service/internal/models"
	"fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

const testDataDir = "../../testdata"

func getTestFilePath(filename string) string {
	return filepath.Join(testDataDir, filename)
}

func createTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	loader, err := NewLoader(DefaultLoaderConfig(), logger.Discard())
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	return loader
}

func TestLoaderConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  LoaderConfig
		wantErr bool
	}{
		{"default", *DefaultLoaderConfig(), false},
		{"lower-case currency", LoaderConfig{DefaultCurrency: "eur", Delimiter: ';'}, false},
		{"bad currency", LoaderConfig{DefaultCurrency: "EURO", Delimiter: ','}, true},
		{"no delimiter", LoaderConfig{DefaultCurrency: "USD"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := NewLoader(&LoaderConfig{DefaultCurrency: "x"}, logger.Discard()); !errors.HasCode(err, errors.CodeInvalidConfig) {
		t.Errorf("expected invalid_config, got %v", err)
	}
}

func TestLoadFile_BankCSV(t *testing.T) {
	loader := newTestLoader(t)

	txns, stats, err := loader.LoadFile(context.Background(), getTestFilePath("bank.csv"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if len(txns) != 5 {
		t.Fatalf("expected 5 transactions, got %d", len(txns))
	}
	if stats.RecordsSkipped != 1 {
		t.Errorf("expected the zero-amount row to be skipped, got %d skipped", stats.RecordsSkipped)
	}

	first := txns[0]
	if first.Description != "AMAZON MKTPLACE PMT" {
		t.Errorf("unexpected description %q", first.Description)
	}
	if !first.Amount.Equal(decimal.RequireFromString("-45.99")) {
		t.Errorf("unexpected amount %s", first.Amount)
	}
	if first.Date.Format(models.DateLayout) != "2024-01-02" {
		t.Errorf("unexpected date %s", first.Date)
	}
	if first.ID == "" {
		t.Error("expected an assigned ID")
	}
	if txns[2].Reference != "PR-0105" {
		t.Errorf("expected reference PR-0105, got %q", txns[2].Reference)
	}

	ids := make(map[string]bool)
	for _, tx := range txns {
		if ids[tx.ID] {
			t.Errorf("duplicate ID %s", tx.ID)
		}
		ids[tx.ID] = true
	}
}

func TestLoadFile_HeaderAliases(t *testing.T) {
	loader := newTestLoader(t)

	txns, _, err := loader.LoadFile(context.Background(), getTestFilePath("accounts.csv"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(txns) != 5 {
		t.Fatalf("expected 5 transactions, got %d", len(txns))
	}
	if txns[0].Date.Format(models.DateLayout) != "2024-01-03" {
		t.Errorf("US date not parsed: %s", txns[0].Date)
	}
	if txns[0].Description != "Amazon Marketplace Payment" {
		t.Errorf("narrative column not used: %q", txns[0].Description)
	}
	if txns[2].Reference != "PR-0105" {
		t.Errorf("ref column not used: %q", txns[2].Reference)
	}
}

func TestLoadFile_DebitCreditColumns(t *testing.T) {
	loader := newTestLoader(t)

	txns, stats, err := loader.LoadFile(context.Background(), getTestFilePath("bank_eur.csv"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txns))
	}
	if !txns[0].Amount.Equal(decimal.RequireFromString("-230")) {
		t.Errorf("debit should be negative, got %s", txns[0].Amount)
	}
	if !txns[1].Amount.Equal(decimal.RequireFromString("30")) {
		t.Errorf("credit should be positive, got %s", txns[1].Amount)
	}
	if txns[0].Currency != "EUR" {
		t.Errorf("expected currency detected from symbol, got %s", txns[0].Currency)
	}
	if stats.ErrorCount != 1 || stats.Errors[0].Field != FieldDebit {
		t.Errorf("expected one debit error, got %v", stats.GetSampleErrors(0))
	}
}

func TestLoadFile_JSON(t *testing.T) {
	loader := newTestLoader(t)

	txns, stats, err := loader.LoadFile(context.Background(), getTestFilePath("accounts.json"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txns))
	}
	if txns[0].Currency != "USD" || txns[1].Currency != "USD" {
		t.Errorf("unexpected currencies %s/%s", txns[0].Currency, txns[1].Currency)
	}
	if txns[1].ID != "acc-2" {
		t.Errorf("explicit ID not kept: %s", txns[1].ID)
	}
	if stats.RecordsSkipped != 1 || stats.ErrorCount != 1 {
		t.Errorf("unexpected stats: %s", stats)
	}
}

func TestLoad_JSONArray(t *testing.T) {
	loader := newTestLoader(t)
	body := `[{"date":"2024-02-01","description":"Coffee","amount":"-3.50","currency":"gbp","reference":"R1"}]`

	txns, _, err := loader.Load(context.Background(), strings.NewReader(body), FormatJSON, "body")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(txns) != 1 || txns[0].Currency != "GBP" || txns[0].Reference != "R1" {
		t.Errorf("unexpected transactions: %v", txns)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	loader := newTestLoader(t)
	ctx := context.Background()

	tests := []struct {
		name string
		path string
		code errors.ErrorCode
	}{
		{"missing file", getTestFilePath("does_not_exist.csv"), errors.CodeFileNotFound},
		{"unsupported extension", createTempFile(t, "data.xlsx", "x"), errors.CodeUnsupportedFile},
		{"no date column", createTempFile(t, "nodate.csv", "description,amount\nx,1\n"), errors.CodeMissingColumn},
		{"no amount column", createTempFile(t, "noamount.csv", "date,description\n2024-01-01,x\n"), errors.CodeMissingColumn},
		{"empty file", createTempFile(t, "empty.csv", ""), errors.CodeMissingColumn},
		{"bad json", createTempFile(t, "bad.json", "{not json"), errors.CodeInvalidFormat},
		{"invalid utf8", createTempFile(t, "latin1.csv", "date,amount\n2024-01-01,\xff\xfe\n"), errors.CodeInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := loader.LoadFile(ctx, tt.path)
			if !errors.HasCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestLoad_RowErrorsAreCollected(t *testing.T) {
	loader := newTestLoader(t)
	content := "date,description,amount,currency\n" +
		"2024-01-01,ok,10,USD\n" +
		"yesterday,bad date,10,USD\n" +
		"2024-01-02,bad currency,10,DOLLARS\n" +
		",,,\n" +
		"2024-01-03,bad amount,n/a,USD\n"

	txns, stats, err := loader.Load(context.Background(), strings.NewReader(content), FormatCSV, "inline")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("expected 1 valid transaction, got %d", len(txns))
	}
	if stats.ErrorCount != 3 {
		t.Errorf("expected 3 row errors, got %d: %v", stats.ErrorCount, stats.GetSampleErrors(0))
	}
	if stats.Errors[0].Line != 3 || stats.Errors[0].Field != FieldDate {
		t.Errorf("unexpected first error: %v", stats.Errors[0])
	}
	if !stats.HasErrors() {
		t.Error("HasErrors() should be true")
	}
}

func TestLoad_Cancelled(t *testing.T) {
	loader := newTestLoader(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := loader.Load(ctx, strings.NewReader("date,amount\n2024-01-01,1\n"), FormatCSV, "inline")
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	loader := newTestLoader(t)
	in := []*models.Transaction{{Description: "x", Amount: decimal.NewFromInt(1), Currency: "eur"}, {ID: "keep"}}

	out := loader.ApplyDefaults(in)
	if out[0].ID == "" || out[0].Currency != "EUR" {
		t.Errorf("defaults not applied: %+v", out[0])
	}
	if out[1].ID != "keep" || out[1].Currency != "USD" {
		t.Errorf("unexpected defaults: %+v", out[1])
	}
	if in[0].ID != "" {
		t.Error("input was modified")
	}
}
