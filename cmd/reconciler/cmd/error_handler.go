package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

// exitInterrupted follows the shell convention for SIGINT.
const exitInterrupted = 130

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	out     io.Writer
	logger  logger.Logger
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler writing to out.
func NewCLIErrorHandler(out io.Writer, verbose bool) *CLIErrorHandler {
	return &CLIErrorHandler{
		out:     out,
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: verbose,
	}
}

// HandleError prints err and returns the process exit code.
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if stderrors.Is(err, context.Canceled) {
		fmt.Fprintln(h.out, "Interrupted")
		return exitInterrupted
	}

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}

	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	if err.Code == errors.CodeFileNotFound {
		if path, ok := err.Context["file_path"].(string); ok {
			if similar := similarFiles(path, 3); len(similar) > 0 {
				fmt.Fprintf(h.out, "\nSimilar files found:\n")
				for _, name := range similar {
					fmt.Fprintf(h.out, "  - %s\n", name)
				}
			}
		}
	}

	fmt.Fprintf(h.out, "\n%s\n", getCategoryHelp(err.Category))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	switch {
	case isFileNotFoundError(err):
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	case isPermissionError(err):
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	case isDiskFullError(err):
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	// Flag and argument errors from cobra land here.
	fmt.Fprintf(h.out, "Error: %v\n", err)
	fmt.Fprintf(h.out, "Run 'reconciler --help' for usage.\n")
	return 1
}

func getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that the file exists and is readable
• Use .csv or .json transaction files
• Use absolute paths if the working directory is unclear`

	case errors.CategoryParse:
		return `Parse error help:
• Files need date, description and amount columns (or debit/credit)
• Dates may be YYYY-MM-DD, MM/DD/YYYY or similar common layouts
• Amounts may carry a currency symbol such as $ or €
• JSON files hold an array of transactions or {"transactions": [...]}`

	case errors.CategoryInput:
		return `Input error help:
• Both sides need at least one transaction after filtering
• Check --start-date and --end-date against the data
• Currency codes are three letters, such as USD or EUR`

	case errors.CategoryRate:
		return `Exchange rate help:
• Check network access to the rate API (fx.endpoint)
• Rates exist for working days only; weekend dates fall back to the latest rate
• Run without --normalize to match in original currencies`

	case errors.CategoryNetwork:
		return `Network error help:
• Check connectivity and the configured endpoints
• Increase fx.timeout or embedding.timeout for slow links`

	case errors.CategorySimilarity:
		return `Similarity help:
• Check embedding.endpoint and embedding.api-key
• Run without --semantic to use lexical matching only`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• RECONCILER_* environment variables override the config file
• Use 'reconciler reconcile --help' to see all available options`

	default:
		return `For more help:
• Use 'reconciler --help' for general help
• Run with --verbose for the underlying error`
	}
}

// similarFiles lists up to max entries in path's directory sharing a
// prefix with its base name.
func similarFiles(path string, max int) []string {
	base := strings.ToLower(filepath.Base(path))
	prefix := base[:min(len(base), 3)]

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		return nil
	}

	var similar []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(strings.ToLower(entry.Name()), prefix) {
			continue
		}
		similar = append(similar, entry.Name())
		if len(similar) == max {
			break
		}
	}
	return similar
}

func isFileNotFoundError(err error) bool {
	return stderrors.Is(err, os.ErrNotExist) || strings.Contains(err.Error(), "no such file or directory")
}

func isPermissionError(err error) bool {
	return stderrors.Is(err, os.ErrPermission) ||
		strings.Contains(err.Error(), "permission denied")
}

func isDiskFullError(err error) bool {
	if stderrors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") || strings.Contains(errStr, "disk full")
}
