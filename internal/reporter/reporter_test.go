package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"fuzzy-reconciliation-service/internal/matcher"
	"fuzzy-reconciliation-service/internal/models"
	recerrors "fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

func converted(id, date, amount, cur, description string, rate *float64, convertedAmount string) *models.ConvertedTransaction {
	d, err := models.ParseDate(date)
	if err != nil {
		panic(err)
	}
	t := models.NewTransaction(id, d, description, decimal.RequireFromString(amount), cur, "")
	return &models.ConvertedTransaction{
		Transaction:     *t,
		ConvertedAmount: decimal.RequireFromString(convertedAmount),
		ConversionRate:  rate,
		BaseCurrency:    "USD",
	}
}

func createSampleReconciliationResult() *models.ReconciliationResult {
	one := 1.0
	eur := 1.1

	p1 := models.NewMatchedPair(
		converted("b1", "2024-01-02", "-45.99", "USD", "AMAZON MKTPLACE PMT", &one, "-45.99"),
		converted("a1", "2024-01-03", "45.99", "USD", "Amazon Marketplace Payment", &one, "45.99"))
	p1.Reason, p1.Similarity, p1.Strategy = models.ReasonDateAmountSimilar, 0.81, "lexical"

	p2 := models.NewMatchedPair(
		converted("b2", "2024-01-05", "2500", "USD", "ACME PAYROLL", &one, "2500"),
		converted("a2", "2024-01-05", "-2500", "USD", "Salary January", &one, "-2500"))
	p2.Reason, p2.Similarity = models.ReasonReference, 1

	matched := []*models.MatchedPair{p1, p2}
	unmatchedBank := []*models.ConvertedTransaction{
		converted("b3", "2024-01-08", "-100", "EUR", "Hotel Berlin", &eur, "-110"),
	}
	unmatchedAccounts := []*models.ConvertedTransaction{
		converted("a3", "2024-01-09", "30", "XAU", "Gold storage", nil, "30"),
	}

	return &models.ReconciliationResult{
		RunID:             "run-1",
		BaseCurrency:      "USD",
		Matched:           matched,
		UnmatchedBank:     unmatchedBank,
		UnmatchedAccounts: unmatchedAccounts,
		Summary:           matcher.Summarize(matched, unmatchedBank, unmatchedAccounts),
		ProcessedAt:       time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
		Duration:          1500 * time.Millisecond,
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{"default config", nil, false},
		{"valid config", DefaultReportConfig(), false},
		{"yaml", &ReportConfig{Format: FormatYAML}, false},
		{"invalid format", &ReportConfig{Format: "xlsx"}, true},
		{"negative list limit", &ReportConfig{Format: FormatConsole, MaxListItems: -1}, true},
		{"csv without delimiter", &ReportConfig{Format: FormatCSV}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if generator == nil {
				t.Errorf("expected generator but got nil")
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{FormatYAML, true},
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.format.IsValid(); got != tt.valid {
			t.Errorf("%q.IsValid() = %v, want %v", tt.format, got, tt.valid)
		}
	}
}

func TestGenerateReport_NilResult(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestConsoleOutputSections(t *testing.T) {
	generator, err := NewReportGenerator(DefaultReportConfig())
	if err != nil {
		t.Fatalf("NewReportGenerator() error = %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleReconciliationResult(), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	output := buf.String()

	expected := []string{
		"RECONCILIATION REPORT",
		"Run ID: run-1",
		"Reporting Currency: USD",
		"=== SUMMARY ===",
		"Matched Pairs:        2",
		"Unmatched Bank:       1 of 3 (33.3%)",
		"Conversion Failures:  1",
		"=== FINANCIAL SUMMARY ===",
		"Matched Amount:            $2,545.99",
		"Unmatched Bank Amount:     $110.00",
		"=== BY ORIGINAL CURRENCY ===",
		"EUR  €100.00",
		"=== MATCHED PAIRS ===",
		"AMAZON MKTPLACE PMT",
		"date_amount_similarity",
		"=== UNMATCHED BANK TRANSACTIONS ===",
		"€100.00 ($110.00)",
		"=== UNMATCHED ACCOUNT TRANSACTIONS ===",
		"(not converted)",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("console output missing %q\n%s", want, output)
		}
	}
}

func TestConsoleOutput_Options(t *testing.T) {
	config := DefaultReportConfig()
	config.IncludeMatched = false
	config.IncludeCurrencyBreakdown = false
	config.MaxListItems = 1
	config.SortByAmount = true

	result := createSampleReconciliationResult()
	result.UnmatchedBank = append(result.UnmatchedBank,
		converted("b4", "2024-01-10", "-5", "USD", "Coffee", nil, "-5"),
		converted("b5", "2024-01-11", "-500", "USD", "Rent", nil, "-500"))

	generator, _ := NewReportGenerator(config)
	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	output := buf.String()

	if strings.Contains(output, "=== MATCHED PAIRS ===") || strings.Contains(output, "BY ORIGINAL CURRENCY") {
		t.Error("disabled sections were printed")
	}
	if !strings.Contains(output, "1. 2024-01-11  Rent") {
		t.Errorf("expected the largest amount first\n%s", output)
	}
	if !strings.Contains(output, "... and 2 more") {
		t.Errorf("expected the list to be truncated\n%s", output)
	}
	if result.UnmatchedBank[0].ID != "b3" {
		t.Error("sorting modified the result")
	}
}

func TestJSONReport(t *testing.T) {
	generator, _ := NewReportGenerator(&ReportConfig{Format: FormatJSON, IncludeMatched: true})

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleReconciliationResult(), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if decoded["runId"] != "run-1" || decoded["durationMs"] != float64(1500) {
		t.Errorf("unexpected run metadata: %v", decoded)
	}
	if matched, ok := decoded["matched"].([]interface{}); !ok || len(matched) != 2 {
		t.Errorf("expected 2 matched pairs, got %v", decoded["matched"])
	}
	if _, ok := decoded["unmatchedBank"]; ok {
		t.Error("unmatched bank transactions should be filtered out")
	}
	summary := decoded["summary"].(map[string]interface{})
	if summary["totalMatched"] != float64(2) {
		t.Errorf("unexpected summary %v", summary)
	}
}

func TestYAMLReport(t *testing.T) {
	generator, _ := NewReportGenerator(&ReportConfig{Format: FormatYAML, IncludeUnmatchedBank: true})

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleReconciliationResult(), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	var decoded struct {
		RunID         string `yaml:"runId"`
		BaseCurrency  string `yaml:"baseCurrency"`
		UnmatchedBank []struct {
			ID              string `yaml:"id"`
			Date            string `yaml:"date"`
			ConvertedAmount string `yaml:"convertedAmount"`
		} `yaml:"unmatchedBank"`
		Summary struct {
			TotalMatched int `yaml:"totalMatched"`
		} `yaml:"summary"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML output: %v\n%s", err, buf.String())
	}

	if decoded.RunID != "run-1" || decoded.BaseCurrency != "USD" || decoded.Summary.TotalMatched != 2 {
		t.Errorf("unexpected YAML document: %+v", decoded)
	}
	if len(decoded.UnmatchedBank) != 1 || decoded.UnmatchedBank[0].Date != "2024-01-08" ||
		decoded.UnmatchedBank[0].ConvertedAmount != "-110" {
		t.Errorf("unexpected unmatched bank entries: %+v", decoded.UnmatchedBank)
	}
}

func TestCSVFormatting(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	config.CSVDelimiter = ';'
	generator, _ := NewReportGenerator(config)

	var buf bytes.Buffer
	if err := generator.GenerateReport(createSampleReconciliationResult(), &buf); err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	reader := csv.NewReader(&buf)
	reader.Comma = ';'
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV output: %v", err)
	}

	if len(records) != 5 {
		t.Fatalf("expected header plus 4 rows, got %d", len(records))
	}
	if records[0][0] != "Status" || len(records[0]) != 13 {
		t.Errorf("unexpected header %v", records[0])
	}
	first := records[1]
	if first[0] != "Matched" || first[1] != "b1" || first[2] != "a1" || first[9] != "date_amount_similarity" {
		t.Errorf("unexpected matched row %v", first)
	}
	if records[3][0] != "Unmatched Bank" || records[3][7] != "-110.00" {
		t.Errorf("unexpected unmatched bank row %v", records[3])
	}
	if records[4][0] != "Unmatched Account" || records[4][1] != "" || records[4][2] != "a3" {
		t.Errorf("unexpected unmatched account row %v", records[4])
	}
}

func TestEmptyResultHandling(t *testing.T) {
	empty := &models.ReconciliationResult{Summary: matcher.Summarize(nil, nil, nil)}

	for _, format := range []OutputFormat{FormatConsole, FormatJSON, FormatCSV, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			config := DefaultReportConfig()
			config.Format = format
			generator, _ := NewReportGenerator(config)

			var buf bytes.Buffer
			if err := generator.GenerateReport(empty, &buf); err != nil {
				t.Errorf("GenerateReport() error = %v", err)
			}
			if buf.Len() == 0 {
				t.Error("expected some output")
			}
		})
	}
}

type failingWriter struct {
	failures int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.failures > 0 {
		w.failures--
		return 0, errors.New("disk full")
	}
	return len(p), nil
}

func TestSafeReportGenerator(t *testing.T) {
	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "pdf"}, logger.Discard()); !recerrors.HasCode(err, recerrors.CodeInvalidConfig) {
		t.Errorf("expected invalid_config, got %v", err)
	}

	srg, err := NewSafeReportGenerator(&ReportConfig{Format: FormatJSON}, logger.Discard())
	if err != nil {
		t.Fatalf("NewSafeReportGenerator() error = %v", err)
	}

	if err := srg.GenerateReportSafely(nil, &bytes.Buffer{}); !recerrors.HasCode(err, recerrors.CodeInvalidInput) {
		t.Errorf("expected invalid_input for nil result, got %v", err)
	}

	// the JSON encoder writes once; the console fallback then succeeds
	w := &failingWriter{failures: 1}
	if err := srg.GenerateReportSafely(createSampleReconciliationResult(), w); err != nil {
		t.Errorf("expected console fallback to succeed, got %v", err)
	}

	console, _ := NewSafeReportGenerator(nil, logger.Discard())
	err = console.GenerateReportSafely(createSampleReconciliationResult(), &failingWriter{failures: 1})
	if !recerrors.HasCode(err, recerrors.CodeUnexpectedError) {
		t.Errorf("expected unexpected_error without a fallback, got %v", err)
	}
}

func BenchmarkGenerateConsoleReport(b *testing.B) {
	generator, _ := NewReportGenerator(DefaultReportConfig())
	result := createSampleReconciliationResult()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		_ = generator.GenerateReport(result, &buf)
	}
}

func BenchmarkGenerateCSVReport(b *testing.B) {
	config := DefaultReportConfig()
	config.Format = FormatCSV
	generator, _ := NewReportGenerator(config)
	result := createSampleReconciliationResult()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		_ = generator.GenerateReport(result, &buf)
	}
}
