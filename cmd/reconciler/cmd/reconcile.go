package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fuzzy-reconciliation-service/cmd/reconciler/config"
	"fuzzy-reconciliation-service/internal/models"
	"fuzzy-reconciliation-service/internal/parsers"
	"fuzzy-reconciliation-service/internal/reconciler"
	"fuzzy-reconciliation-service/internal/reporter"
	"fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

// Flags for the reconcile command
var (
	bankFiles     []string
	accountsFiles []string
	startDate     string
	endDate       string
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Match bank transactions against account records",
	Long: `Reconcile loads bank and account transactions from CSV or JSON files,
pairs records that describe the same event and reports what is left over.

Descriptions are compared fuzzily, dates may differ by a few days and, with
--normalize, amounts in different currencies are converted with historical
exchange rates before matching.

Examples:
  # Basic reconciliation
  reconciler reconcile --bank-file bank.csv --accounts-file ledger.csv

  # Several statements, converted to euros
  reconciler reconcile --bank-file jan.csv,feb.csv --accounts-file ledger.json \
    --normalize --base-currency EUR

  # Machine-readable output with progress on stderr
  reconciler reconcile --bank-file bank.csv --accounts-file ledger.csv \
    --output-format json --output-file report.json --progress`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	flags := reconcileCmd.Flags()
	flags.StringSliceVarP(&bankFiles, "bank-file", "b", nil, "bank statement file(s), CSV or JSON (required)")
	flags.StringSliceVarP(&accountsFiles, "accounts-file", "a", nil, "account record file(s), CSV or JSON (required)")
	flags.Bool("normalize", false, "convert both sides into the base currency before matching")
	flags.Bool("semantic", false, "compare descriptions with embeddings (needs embedding.endpoint)")
	flags.StringP("output-format", "f", "console", "output format: console, json, csv, yaml")
	flags.StringP("output-file", "o", "", "output file path (default: stdout)")
	flags.Bool("progress", false, "show progress on stderr")
	flags.StringVar(&startDate, "start-date", "", "ignore transactions before this date (YYYY-MM-DD)")
	flags.StringVar(&endDate, "end-date", "", "ignore transactions after this date (YYYY-MM-DD)")
	flags.String("amount-tolerance", "0.01", "largest amount difference still treated as equal")
	flags.Int("date-window", 3, "largest date distance in days for a match")

	_ = reconcileCmd.MarkFlagRequired("bank-file")
	_ = reconcileCmd.MarkFlagRequired("accounts-file")
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	bindFlags(cmd.Flags(), map[string]string{
		config.KeyNormalize:       "normalize",
		config.KeySemantic:        "semantic",
		config.KeyOutputFormat:    "output-format",
		config.KeyOutputFile:      "output-file",
		config.KeyProgress:        "progress",
		config.KeyAmountTolerance: "amount-tolerance",
		config.KeyDateWindowDays:  "date-window",
	})

	for _, path := range bankFiles {
		if err := validateFileExists(path, "bank file"); err != nil {
			return err
		}
	}
	for _, path := range accountsFiles {
		if err := validateFileExists(path, "accounts file"); err != nil {
			return err
		}
	}

	if _, err := parseDateFlag(startDate, "start-date"); err != nil {
		return err
	}
	if _, err := parseDateFlag(endDate, "end-date"); err != nil {
		return err
	}

	if outputFile := viper.GetString(config.KeyOutputFile); outputFile != "" {
		dir := filepath.Dir(outputFile)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "output-file", outputFile,
				fmt.Errorf("output directory does not exist: %s", dir))
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if strings.TrimSpace(filePath) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, description, filePath,
			fmt.Errorf("%s path cannot be empty", description))
	}

	info, err := os.Stat(filePath)
	if err != nil {
		code := errors.CodeFileNotFound
		if os.IsPermission(err) {
			code = errors.CodeFilePermission
		}
		return errors.FileError(code, filePath, err)
	}
	if info.IsDir() {
		return errors.FileError(errors.CodeUnsupportedFile, filePath,
			fmt.Errorf("%s is a directory, expected a file", description))
	}
	if _, err := parsers.FormatFromPath(filePath); err != nil {
		return err
	}
	return nil
}

func parseDateFlag(value, flag string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	d, err := models.ParseDate(value)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, flag, value, err).
			WithSuggestion("use YYYY-MM-DD")
	}
	return &d, nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	settings, components, err := loadSettings()
	if err != nil {
		return err
	}
	defer components.Close()

	log := logger.GetGlobalLogger().WithComponent("cli")
	stderr := cmd.ErrOrStderr()

	opts := settings.RunOptions()
	opts.StartDate, _ = parseDateFlag(startDate, "start-date")
	opts.EndDate, _ = parseDateFlag(endDate, "end-date")
	if settings.Progress {
		opts.Progress = newProgressPrinter(stderr).Print
	}

	log.WithFields(logger.Fields{
		"bank_files":     bankFiles,
		"accounts_files": accountsFiles,
		"base_currency":  opts.BaseCurrency,
		"normalize":      opts.Normalize,
		"semantic":       opts.UseSemantic,
	}).Debug("Starting reconciliation")

	fileResult, err := components.Service.ProcessFiles(cmd.Context(), &reconciler.FileRequest{
		BankFiles:     bankFiles,
		AccountsFiles: accountsFiles,
		Options:       opts,
	})
	if settings.Progress {
		fmt.Fprintln(stderr)
	}
	if err != nil {
		return err
	}

	printParseWarnings(stderr, fileResult.Stats)

	return writeReport(cmd.OutOrStdout(), settings, fileResult.Result)
}

func writeReport(stdout io.Writer, settings *config.Settings, result *models.ReconciliationResult) error {
	generator, err := reporter.NewSafeReportGenerator(config.CreateReportConfig(settings.OutputFormat), logger.GetGlobalLogger())
	if err != nil {
		return err
	}

	if settings.OutputFile == "" {
		return generator.GenerateReportSafely(result, stdout)
	}

	output, err := os.Create(settings.OutputFile)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, settings.OutputFile, err)
	}
	defer output.Close()

	if err := generator.GenerateReportSafely(result, output); err != nil {
		return err
	}
	return output.Close()
}

func printParseWarnings(w io.Writer, stats []*parsers.ParseStats) {
	for _, st := range stats {
		if st == nil || !st.HasErrors() {
			continue
		}
		fmt.Fprintf(w, "Warning: %s: %s\n", st.Source, st)
		for _, sample := range st.GetSampleErrors(3) {
			fmt.Fprintf(w, "  %s\n", sample)
		}
		if st.ErrorCount > 3 {
			fmt.Fprintf(w, "  ... and %d more\n", st.ErrorCount-3)
		}
	}
}

// progressPrinter renders phase progress on a single terminal line.
type progressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) Print(phase reconciler.Phase, done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	percent := 100.0
	if total > 0 {
		percent = float64(done) / float64(total) * 100
	}
	fmt.Fprintf(p.w, "\r%-18s %d/%d (%.1f%%)", phaseLabel(phase), done, total, percent)
}

func phaseLabel(phase reconciler.Phase) string {
	switch phase {
	case reconciler.PhaseLoad:
		return "Loading files"
	case reconciler.PhaseConvertBank:
		return "Converting bank"
	case reconciler.PhaseConvertAccounts:
		return "Converting ledger"
	case reconciler.PhaseMatch:
		return "Matching"
	default:
		return string(phase)
	}
}
