// Package reconciler runs a reconciliation end to end.
//
// A run optionally converts both sides into a reporting currency, hands the
// result to the matching engine and stamps the outcome with a run ID and
// timing. File-based runs load their inputs through the parsers package
// first.
//
// Example usage:
//
//	service, err := reconciler.NewService(engine, converter, loader, nil, log)
//	if err != nil {
//		return err
//	}
//	result, err := service.Run(ctx, bank, accounts, reconciler.RunOptions{
//		BaseCurrency: "USD",
//		Normalize:    true,
//	})
package reconciler

import (
	"fmt"
	"strings"
	"time"

	"fuzzy-reconciliation-service/internal/currency"
	"fuzzy-reconciliation-service/internal/fx"
	"fuzzy-reconciliation-service/internal/matcher"
	"fuzzy-reconciliation-service/internal/models"
	"fuzzy-reconciliation-service/internal/parsers"
	"fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

// Phase names a stage of a run reported through ProgressFunc.
type Phase string

const (
	PhaseLoad            Phase = "load"
	PhaseConvertBank     Phase = "convert_bank"
	PhaseConvertAccounts Phase = "convert_accounts"
	PhaseMatch           Phase = "match"
)

// ProgressFunc receives progress for each phase of a run.
type ProgressFunc func(phase Phase, done, total int)

// Service orchestrates the complete reconciliation process
type Service struct {
	engine    *matcher.Engine
	converter *currency.Converter
	loader    *parsers.Loader
	config    *Config
	logger    logger.Logger
}

// Config holds configuration options for the reconciliation service
type Config struct {
	// DefaultBaseCurrency is used when a run does not name one.
	DefaultBaseCurrency string
	// ProgressInterval throttles progress log lines.
	ProgressInterval time.Duration
	// MaxConcurrentFiles bounds parallel file loading.
	MaxConcurrentFiles int
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		DefaultBaseCurrency: "USD",
		ProgressInterval:    2 * time.Second,
		MaxConcurrentFiles:  4,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !fx.IsValidCode(strings.ToUpper(c.DefaultBaseCurrency)) {
		return fmt.Errorf("default base currency must be a three-letter code, got %q", c.DefaultBaseCurrency)
	}
	if c.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("max concurrent files must be positive, got %d", c.MaxConcurrentFiles)
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progress interval cannot be negative, got %s", c.ProgressInterval)
	}
	return nil
}

// RunOptions controls a single run.
type RunOptions struct {
	// BaseCurrency is the reporting currency; empty uses the service default.
	BaseCurrency string
	// Normalize converts both sides into BaseCurrency before matching.
	Normalize bool
	// UseSemantic enables embedding-based description similarity.
	UseSemantic bool
	// StartDate and EndDate, when set, drop transactions outside the
	// inclusive range before matching.
	StartDate *time.Time
	EndDate   *time.Time
	Progress  ProgressFunc
}

// Validate validates the run options
func (o *RunOptions) Validate() error {
	if o.BaseCurrency != "" && !fx.IsValidCode(strings.ToUpper(o.BaseCurrency)) {
		return errors.New(errors.CategoryInput, errors.CodeInvalidCurrency,
			fmt.Sprintf("invalid base currency %q", o.BaseCurrency)).
			WithSuggestion("use a three-letter ISO-4217 code such as USD")
	}
	if o.StartDate != nil && o.EndDate != nil && o.StartDate.After(*o.EndDate) {
		return errors.New(errors.CategoryInput, errors.CodeInvalidInput, "start date must be before end date")
	}
	return nil
}

// FileRequest names the files for a file-based run.
type FileRequest struct {
	BankFiles     []string
	AccountsFiles []string
	Options       RunOptions
}

// Validate validates the file request
func (r *FileRequest) Validate() error {
	if len(r.BankFiles) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "bank-file", nil, nil)
	}
	if len(r.AccountsFiles) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "accounts-file", nil, nil)
	}
	return r.Options.Validate()
}

// FileResult is the outcome of a file-based run.
type FileResult struct {
	Result *models.ReconciliationResult
	Stats  []*parsers.ParseStats
}

// NewService creates a new reconciliation service. converter may be nil
// when runs never normalize; loader may be nil when runs never read files.
func NewService(engine *matcher.Engine, converter *currency.Converter, loader *parsers.Loader, config *Config, log logger.Logger) (*Service, error) {
	if engine == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "matching_engine", nil, nil)
	}

	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", config.DefaultBaseCurrency, err)
	}

	c := *config
	c.DefaultBaseCurrency = strings.ToUpper(c.DefaultBaseCurrency)

	return &Service{
		engine:    engine,
		converter: converter,
		loader:    loader,
		config:    &c,
		logger:    logger.OrGlobal(log).WithComponent("reconciler"),
	}, nil
}

// GetConfiguration returns the current configuration
func (s *Service) GetConfiguration() Config {
	return *s.config
}

// CanNormalize reports whether the service has a currency converter.
func (s *Service) CanNormalize() bool {
	return s.converter != nil
}
