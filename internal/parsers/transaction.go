package parsers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fuzzy-reconciliation-service/internal/fx"
	"fuzzy-reconciliation-service/internal/models"
	"fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

// Format identifies an input encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// FormatFromPath returns the format implied by the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", errors.FileError(errors.CodeUnsupportedFile, path, nil)
	}
}

// Loader reads transaction files into models.Transaction values
type Loader struct {
	config *LoaderConfig
	logger logger.Logger
}

// NewLoader creates a new Loader with the given configuration
func NewLoader(config *LoaderConfig, log logger.Logger) (*Loader, error) {
	if config == nil {
		config = DefaultLoaderConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "loader_config", config.DefaultCurrency, err).
			WithSuggestion("check the default currency and delimiter")
	}

	c := *config
	c.DefaultCurrency = strings.ToUpper(c.DefaultCurrency)

	return &Loader{
		config: &c,
		logger: logger.OrGlobal(log).WithComponent("parser"),
	}, nil
}

// LoadFile reads transactions from a .csv or .json file
func (l *Loader) LoadFile(ctx context.Context, path string) ([]*models.Transaction, *ParseStats, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, nil, err
	}

	file, err := openFile(path)
	if err != nil {
		l.logger.WithError(err).WithField("file_path", path).Error("Failed to open transaction file")
		return nil, nil, err
	}
	defer file.Close()

	if err := validateEncoding(file, path); err != nil {
		return nil, nil, err
	}

	return l.Load(ctx, file, format, path)
}

// Load reads transactions in format from r. source names the input in
// errors and logs.
func (l *Loader) Load(ctx context.Context, r io.Reader, format Format, source string) ([]*models.Transaction, *ParseStats, error) {
	l.logger.WithFields(logger.Fields{
		"source": source,
		"format": format,
	}).Debug("Starting transaction parsing")

	var (
		txns  []*models.Transaction
		stats *ParseStats
		err   error
	)
	switch format {
	case FormatCSV:
		txns, stats, err = l.parseCSV(ctx, r, source)
	case FormatJSON:
		txns, stats, err = l.parseJSON(ctx, r, source)
	default:
		return nil, nil, errors.FileError(errors.CodeUnsupportedFile, source, fmt.Errorf("unknown format %q", format))
	}
	if err != nil {
		return nil, stats, err
	}

	l.logger.WithFields(logger.Fields{
		"source":          source,
		"total_lines":     stats.TotalLines,
		"records_parsed":  stats.RecordsParsed,
		"records_valid":   stats.RecordsValid,
		"records_skipped": stats.RecordsSkipped,
		"error_count":     stats.ErrorCount,
	}).Info("Transaction parsing completed")

	if stats.HasErrors() {
		l.logger.WithField("sample_errors", stats.GetSampleErrors(3)).Warn("Encountered errors during parsing")
	}

	return txns, stats, nil
}

func (l *Loader) parseCSV(ctx context.Context, r io.Reader, source string) ([]*models.Transaction, *ParseStats, error) {
	stats := NewParseStats(source)

	reader := csv.NewReader(r)
	reader.Comma = l.config.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, stats, errors.ParseError(errors.CodeMissingColumn, source, 1, FieldDate, "", fmt.Errorf("file is empty"))
		}
		return nil, stats, errors.ParseError(errors.CodeInvalidFormat, source, 1, "headers", "", err)
	}
	stats.TotalLines = 1

	columns := resolveColumns(headers, l.config)
	if _, ok := columns[FieldDate]; !ok {
		return nil, stats, errors.ParseError(errors.CodeMissingColumn, source, 1, FieldDate, "", nil)
	}
	_, hasAmount := columns[FieldAmount]
	_, hasDebit := columns[FieldDebit]
	_, hasCredit := columns[FieldCredit]
	if !hasAmount && !hasDebit && !hasCredit {
		return nil, stats, errors.ParseError(errors.CodeMissingColumn, source, 1, FieldAmount, "", nil)
	}

	var txns []*models.Transaction
	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		stats.TotalLines++
		line := stats.TotalLines
		if err != nil {
			stats.AddError(&ParseError{Line: line, Field: "record", Message: "unreadable record", Err: err})
			continue
		}
		if isEmptyRecord(record) {
			continue
		}
		stats.RecordsParsed++

		t, perr := l.recordToTransaction(record, columns, line)
		if perr != nil {
			stats.AddError(perr)
			continue
		}
		if t == nil {
			stats.RecordsSkipped++
			continue
		}

		txns = append(txns, t)
		stats.RecordsValid++
	}

	return txns, stats, nil
}

// recordToTransaction builds a transaction from one CSV row. A nil
// transaction with a nil error means the row was skipped.
func (l *Loader) recordToTransaction(record []string, columns map[string]int, line int) (*models.Transaction, *ParseError) {
	rawDate := fieldValue(record, columns, FieldDate)
	date, err := models.ParseDate(rawDate)
	if err != nil {
		return nil, &ParseError{Line: line, Field: FieldDate, Value: rawDate, Message: "invalid date", Err: err}
	}

	amount, rawAmount, perr := l.amountOf(record, columns, line)
	if perr != nil {
		return nil, perr
	}
	if amount.IsZero() && !l.config.KeepZeroAmounts {
		return nil, nil
	}

	currency := strings.ToUpper(fieldValue(record, columns, FieldCurrency))
	if currency == "" {
		currency = l.detectCurrency(rawAmount)
	}
	if !fx.IsValidCode(currency) {
		return nil, &ParseError{Line: line, Field: FieldCurrency, Value: currency, Message: "invalid currency code"}
	}

	t := models.NewTransaction(uuid.NewString(), date,
		fieldValue(record, columns, FieldDescription), amount, currency,
		fieldValue(record, columns, FieldReference))
	return t, nil
}

// amountOf reads the signed amount, preferring the amount column and
// falling back to debit (negative) then credit (positive).
func (l *Loader) amountOf(record []string, columns map[string]int, line int) (decimal.Decimal, string, *ParseError) {
	if raw := fieldValue(record, columns, FieldAmount); raw != "" {
		amount, err := models.ParseDecimalFromString(raw)
		if err != nil {
			return decimal.Zero, raw, &ParseError{Line: line, Field: FieldAmount, Value: raw, Message: "invalid amount", Err: err}
		}
		return amount, raw, nil
	}

	for _, side := range []string{FieldDebit, FieldCredit} {
		raw := fieldValue(record, columns, side)
		if raw == "" {
			continue
		}
		amount, err := models.ParseDecimalFromString(raw)
		if err != nil {
			return decimal.Zero, raw, &ParseError{Line: line, Field: side, Value: raw, Message: "invalid amount", Err: err}
		}
		if amount.IsZero() {
			continue
		}
		if side == FieldDebit {
			return amount.Abs().Neg(), raw, nil
		}
		return amount.Abs(), raw, nil
	}

	return decimal.Zero, "", nil
}

func (l *Loader) detectCurrency(rawAmount string) string {
	if code, ok := fx.DetectCurrencyFromSymbol(rawAmount); ok {
		return code
	}
	if code, ok := fx.DetectCurrencyFromCode(rawAmount); ok {
		return code
	}
	return l.config.DefaultCurrency
}

// parseJSON accepts either an array of transactions or an object with a
// "transactions" array.
func (l *Loader) parseJSON(ctx context.Context, r io.Reader, source string) ([]*models.Transaction, *ParseStats, error) {
	stats := NewParseStats(source)

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, stats, errors.FileError(errors.CodeInvalidFormat, source, err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		var wrapped struct {
			Transactions []json.RawMessage `json:"transactions"`
		}
		if werr := json.Unmarshal(data, &wrapped); werr != nil {
			return nil, stats, errors.ParseError(errors.CodeInvalidFormat, source, 1, "document", "", err)
		}
		items = wrapped.Transactions
	}

	var txns []*models.Transaction
	for i, raw := range items {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		stats.TotalLines++
		stats.RecordsParsed++

		t, perr := l.decodeJSONTransaction(raw, i+1)
		if perr != nil {
			stats.AddError(perr)
			continue
		}
		if t == nil {
			stats.RecordsSkipped++
			continue
		}

		txns = append(txns, t)
		stats.RecordsValid++
	}

	return txns, stats, nil
}

func (l *Loader) decodeJSONTransaction(raw json.RawMessage, index int) (*models.Transaction, *ParseError) {
	var t models.Transaction
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, &ParseError{Line: index, Field: "record", Value: string(raw), Message: "invalid transaction", Err: err}
	}
	if t.Amount.IsZero() && !l.config.KeepZeroAmounts {
		return nil, nil
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Currency == "" {
		t.Currency = l.config.DefaultCurrency
	}
	if err := t.Validate(); err != nil {
		return nil, &ParseError{Line: index, Field: "record", Value: t.ID, Message: "invalid transaction", Err: err}
	}
	return &t, nil
}

// ApplyDefaults fills missing IDs and currencies on transactions that did
// not come through a file, such as API request bodies. Nil entries are
// dropped.
func (l *Loader) ApplyDefaults(txns []*models.Transaction) []*models.Transaction {
	out := make([]*models.Transaction, 0, len(txns))
	for _, t := range txns {
		if t == nil {
			continue
		}
		c := *t
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.Currency == "" {
			c.Currency = l.config.DefaultCurrency
		}
		c.Currency = strings.ToUpper(c.Currency)
		c.Date = models.CalendarDate(c.Date)
		out = append(out, &c)
	}
	return out
}
