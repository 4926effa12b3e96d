// Package parsers reads bank and account transaction files.
//
// CSV and JSON inputs are supported. CSV headers are matched against
// per-field alias lists, so exports that name their columns "posting_date",
// "narrative" or "transaction_amount" load without extra configuration.
// Split debit/credit columns are folded into a signed amount.
//
// Row-level problems (an unparseable date, a bad amount) are collected in
// ParseStats and the row is skipped; problems with the file itself (missing,
// unreadable, unsupported, no usable columns) fail the load.
//
// Example usage:
//
//	loader, err := parsers.NewLoader(parsers.DefaultLoaderConfig(), log)
//	if err != nil {
//		return err
//	}
//	txns, stats, err := loader.LoadFile(ctx, "bank.csv")
package parsers

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"fuzzy-reconciliation-service/pkg/errors"
)

// ParseError describes a rejected row.
type ParseError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d (%s='%s'): %s: %v", e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("line %d (%s='%s'): %s", e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	Source         string
	TotalLines     int
	RecordsParsed  int
	RecordsValid   int
	RecordsSkipped int
	ErrorCount     int
	Errors         []*ParseError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(source string) *ParseStats {
	return &ParseStats{Source: source}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d valid, %d skipped), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.RecordsValid, ps.RecordsSkipped, ps.ErrorCount)
}

// GetSampleErrors returns up to maxSamples error messages
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for _, e := range ps.Errors[:limit] {
		samples = append(samples, e.Error())
	}
	return samples
}

// openFile opens path for reading, mapping OS errors to file error codes.
func openFile(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		case os.IsPermission(err):
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		default:
			return nil, errors.FileError(errors.CodeInvalidFormat, path, err)
		}
	}
	return file, nil
}

// validateEncoding checks the first lines of r for valid UTF-8 and rewinds it.
func validateEncoding(r io.ReadSeeker, source string) error {
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan() && line <= 100; line++ {
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(errors.CodeInvalidFormat, source, line, "encoding", "",
				fmt.Errorf("invalid UTF-8 encoding detected")).
				WithSuggestion("save the file in UTF-8 encoding and try again")
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeInvalidFormat, source, err)
	}

	_, err := r.Seek(0, io.SeekStart)
	return err
}

// resolveColumns maps each logical field to the index of the first header
// that matches one of its aliases.
func resolveColumns(headers []string, config *LoaderConfig) map[string]int {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	columns := make(map[string]int)
	for field := range DefaultColumnAliases {
		for _, alias := range config.Aliases(field) {
			if i, ok := index[strings.ToLower(alias)]; ok {
				columns[field] = i
				break
			}
		}
	}
	return columns
}

// fieldValue returns the trimmed value of field in record, or "" when the
// column is absent or the record is short.
func fieldValue(record []string, columns map[string]int, field string) string {
	i, ok := columns[field]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
