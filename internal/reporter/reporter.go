// Package reporter renders reconciliation results.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: the full result for programmatic consumption
//   - CSV: one row per matched pair or unmatched transaction
//   - YAML: the full result for config-style tooling
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	if err != nil {
//		return err
//	}
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"fuzzy-reconciliation-service/internal/fx"
	"fuzzy-reconciliation-service/internal/models"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatYAML    OutputFormat = "yaml"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatYAML:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" yaml:"format"`

	IncludeMatched           bool `json:"include_matched" yaml:"include_matched"`
	IncludeUnmatchedBank     bool `json:"include_unmatched_bank" yaml:"include_unmatched_bank"`
	IncludeUnmatchedAccounts bool `json:"include_unmatched_accounts" yaml:"include_unmatched_accounts"`
	IncludeCurrencyBreakdown bool `json:"include_currency_breakdown" yaml:"include_currency_breakdown"`

	// MaxListItems caps each console list; 0 prints everything.
	MaxListItems int `json:"max_list_items" yaml:"max_list_items"`

	CSVDelimiter rune `json:"csv_delimiter" yaml:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" yaml:"csv_headers"`

	SortByAmount bool `json:"sort_by_amount" yaml:"sort_by_amount"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                   FormatConsole,
		IncludeMatched:           true,
		IncludeUnmatchedBank:     true,
		IncludeUnmatchedAccounts: true,
		IncludeCurrencyBreakdown: true,
		MaxListItems:             10,
		CSVDelimiter:             ',',
		CSVHeaders:               true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}
	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	c := *config
	return &ReportGenerator{config: &c}, nil
}

// GenerateReport generates a report from reconciliation results and writes it to the provided writer
func (rg *ReportGenerator) GenerateReport(result *models.ReconciliationResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	case FormatYAML:
		return rg.generateYAMLReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() ReportConfig {
	return *rg.config
}

func (rg *ReportGenerator) generateConsoleReport(result *models.ReconciliationResult, w io.Writer) error {
	p := &printer{w: w}
	summary := result.Summary
	base := result.BaseCurrency

	p.printf("RECONCILIATION REPORT\n")
	if result.RunID != "" {
		p.printf("Run ID: %s\n", result.RunID)
	}
	if !result.ProcessedAt.IsZero() {
		p.printf("Generated: %s\n", result.ProcessedAt.Format(time.RFC3339))
	}
	p.printf("Processing Duration: %v\n", result.Duration)
	if base != "" {
		p.printf("Reporting Currency: %s\n", base)
	}
	p.printf("\n")

	p.printf("=== SUMMARY ===\n")
	bankTotal := summary.TotalMatched + summary.UnmatchedBankCount
	accountsTotal := summary.TotalMatched + summary.UnmatchedAccountsCount
	p.printf("Matched Pairs:        %d\n", summary.TotalMatched)
	p.printf("Unmatched Bank:       %d of %d (%.1f%%)\n",
		summary.UnmatchedBankCount, bankTotal, percentage(summary.UnmatchedBankCount, bankTotal))
	p.printf("Unmatched Accounts:   %d of %d (%.1f%%)\n",
		summary.UnmatchedAccountsCount, accountsTotal, percentage(summary.UnmatchedAccountsCount, accountsTotal))
	if summary.ConversionFailures > 0 {
		p.printf("Conversion Failures:  %d\n", summary.ConversionFailures)
	}
	p.printf("\n")

	p.printf("=== FINANCIAL SUMMARY ===\n")
	p.printf("Matched Amount:            %s\n", formatAmount(summary.MatchedAmount, base))
	p.printf("Unmatched Bank Amount:     %s\n", formatAmount(summary.UnmatchedBankAmount, base))
	p.printf("Unmatched Accounts Amount: %s\n", formatAmount(summary.UnmatchedAccountsAmount, base))
	p.printf("\n")

	if rg.config.IncludeCurrencyBreakdown && hasBreakdown(summary) {
		p.printf("=== BY ORIGINAL CURRENCY ===\n")
		rg.printCurrencyTotals(p, "Matched", summary.MatchedByCurrency)
		rg.printCurrencyTotals(p, "Unmatched Bank", summary.UnmatchedBankByCurrency)
		rg.printCurrencyTotals(p, "Unmatched Accounts", summary.UnmatchedAccountsByCurrency)
		p.printf("\n")
	}

	if rg.config.IncludeMatched && len(result.Matched) > 0 {
		p.printf("=== MATCHED PAIRS ===\n")
		rg.printMatches(p, result.Matched, base)
		p.printf("\n")
	}

	if rg.config.IncludeUnmatchedBank && len(result.UnmatchedBank) > 0 {
		p.printf("=== UNMATCHED BANK TRANSACTIONS ===\n")
		rg.printTransactions(p, result.UnmatchedBank)
		p.printf("\n")
	}

	if rg.config.IncludeUnmatchedAccounts && len(result.UnmatchedAccounts) > 0 {
		p.printf("=== UNMATCHED ACCOUNT TRANSACTIONS ===\n")
		rg.printTransactions(p, result.UnmatchedAccounts)
		p.printf("\n")
	}

	return p.err
}

func (rg *ReportGenerator) generateJSONReport(result *models.ReconciliationResult, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.filterResultForOutput(result))
}

func (rg *ReportGenerator) generateYAMLReport(result *models.ReconciliationResult, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(yamlDocument(rg.filterResultForOutput(result))); err != nil {
		return fmt.Errorf("failed to encode YAML report: %w", err)
	}
	return encoder.Close()
}

// generateCSVReport writes one row per matched pair and per unmatched transaction.
func (rg *ReportGenerator) generateCSVReport(result *models.ReconciliationResult, w io.Writer) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		headers := []string{
			"Status",
			"Bank_ID",
			"Account_ID",
			"Date",
			"Description",
			"Amount",
			"Currency",
			"Converted_Amount",
			"Base_Currency",
			"Reason",
			"Similarity",
			"Days_Apart",
			"Amount_Difference",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	if rg.config.IncludeMatched {
		for _, m := range result.Matched {
			record := []string{
				"Matched",
				m.Bank.ID,
				m.Account.ID,
				m.Date.Format(models.DateLayout),
				m.Description,
				m.Bank.Amount.String(),
				m.Bank.Currency,
				m.Bank.ConvertedAmount.StringFixed(2),
				m.Bank.BaseCurrency,
				string(m.Reason),
				fmt.Sprintf("%.4f", m.Similarity),
				fmt.Sprint(m.DaysApart),
				m.AmountDifference.StringFixed(2),
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write matched pair record: %w", err)
			}
		}
	}

	unmatched := []struct {
		include bool
		status  string
		txns    []*models.ConvertedTransaction
	}{
		{rg.config.IncludeUnmatchedBank, "Unmatched Bank", result.UnmatchedBank},
		{rg.config.IncludeUnmatchedAccounts, "Unmatched Account", result.UnmatchedAccounts},
	}
	for _, group := range unmatched {
		if !group.include {
			continue
		}
		for _, t := range group.txns {
			bankID, accountID := t.ID, ""
			if group.status == "Unmatched Account" {
				bankID, accountID = "", t.ID
			}
			record := []string{
				group.status,
				bankID,
				accountID,
				t.Date.Format(models.DateLayout),
				t.Description,
				t.Amount.String(),
				t.Currency,
				t.ConvertedAmount.StringFixed(2),
				t.BaseCurrency,
				"", "", "", "",
			}
			if err := csvWriter.Write(record); err != nil {
				return fmt.Errorf("failed to write unmatched record: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func (rg *ReportGenerator) printCurrencyTotals(p *printer, label string, totals map[string]decimal.Decimal) {
	if len(totals) == 0 {
		return
	}
	codes := make([]string, 0, len(totals))
	for code := range totals {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	p.printf("%s:\n", label)
	for _, code := range codes {
		p.printf("  %s  %s\n", code, formatAmount(totals[code], code))
	}
}

func (rg *ReportGenerator) printMatches(p *printer, matches []*models.MatchedPair, base string) {
	matches = slices.Clone(matches)
	if rg.config.SortByAmount {
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].Bank.ConvertedAmount.Abs().GreaterThan(matches[j].Bank.ConvertedAmount.Abs())
		})
	}

	p.printf("Total Matched Pairs: %d\n\n", len(matches))
	for i, m := range matches {
		if rg.truncated(p, i, len(matches)) {
			break
		}
		p.printf("  %d. %s  %-32s %12s  [%s, similarity %.2f, %d day(s) apart]\n",
			i+1,
			m.Date.Format(models.DateLayout),
			truncate(m.Description, 32),
			formatAmount(m.Bank.ConvertedAmount, base),
			m.Reason,
			m.Similarity,
			m.DaysApart)
	}
}

func (rg *ReportGenerator) printTransactions(p *printer, txns []*models.ConvertedTransaction) {
	txns = slices.Clone(txns)
	if rg.config.SortByAmount {
		sort.SliceStable(txns, func(i, j int) bool {
			return txns[i].ConvertedAmount.Abs().GreaterThan(txns[j].ConvertedAmount.Abs())
		})
	}

	p.printf("Total: %d\n\n", len(txns))
	for i, t := range txns {
		if rg.truncated(p, i, len(txns)) {
			break
		}
		line := fmt.Sprintf("  %d. %s  %-32s %12s",
			i+1,
			t.Date.Format(models.DateLayout),
			truncate(t.Description, 32),
			formatAmount(t.Amount, t.Currency))
		if t.Converted() && t.BaseCurrency != t.Currency {
			line += fmt.Sprintf(" (%s)", formatAmount(t.ConvertedAmount, t.BaseCurrency))
		} else if t.ConversionFailed() {
			line += " (not converted)"
		}
		p.printf("%s\n", line)
	}
}

func (rg *ReportGenerator) truncated(p *printer, i, total int) bool {
	limit := rg.config.MaxListItems
	if limit == 0 || i < limit {
		return false
	}
	p.printf("  ... and %d more\n", total-limit)
	return true
}

func (rg *ReportGenerator) filterResultForOutput(result *models.ReconciliationResult) map[string]interface{} {
	output := map[string]interface{}{
		"runId":        result.RunID,
		"baseCurrency": result.BaseCurrency,
		"summary":      result.Summary,
		"processedAt":  result.ProcessedAt,
		"durationMs":   result.Duration.Milliseconds(),
	}

	if rg.config.IncludeMatched {
		output["matched"] = nonNil(result.Matched)
	}
	if rg.config.IncludeUnmatchedBank {
		output["unmatchedBank"] = nonNil(result.UnmatchedBank)
	}
	if rg.config.IncludeUnmatchedAccounts {
		output["unmatchedAccounts"] = nonNil(result.UnmatchedAccounts)
	}

	return output
}

// yamlDocument round-trips the JSON view so YAML output shares its field
// names and its decimal and date formatting.
func yamlDocument(view map[string]interface{}) interface{} {
	data, err := json.Marshal(view)
	if err != nil {
		return view
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return view
	}
	return doc
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func hasBreakdown(s models.Summary) bool {
	return len(s.MatchedByCurrency)+len(s.UnmatchedBankByCurrency)+len(s.UnmatchedAccountsByCurrency) > 0
}

func formatAmount(amount decimal.Decimal, code string) string {
	if code == "" {
		return amount.Abs().StringFixed(2)
	}
	return fx.FormatAmount(amount, code)
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// printer remembers the first write error so sections can be written
// without checking each line.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

// String renders the configuration for logs.
func (c ReportConfig) String() string {
	return fmt.Sprintf("ReportConfig{Format: %s, Matched: %t, UnmatchedBank: %t, UnmatchedAccounts: %t}",
		c.Format, c.IncludeMatched, c.IncludeUnmatchedBank, c.IncludeUnmatchedAccounts)
}
