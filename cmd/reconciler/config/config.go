// Package config turns viper settings into wired reconciliation components
// for the CLI commands.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"fuzzy-reconciliation-service/internal/api"
	"fuzzy-reconciliation-service/internal/currency"
	"fuzzy-reconciliation-service/internal/embedding"
	"fuzzy-reconciliation-service/internal/fx"
	"fuzzy-reconciliation-service/internal/matcher"
	"fuzzy-reconciliation-service/internal/parsers"
	"fuzzy-reconciliation-service/internal/reconciler"
	"fuzzy-reconciliation-service/internal/reporter"
	"fuzzy-reconciliation-service/internal/similarity"
	"fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

// Viper keys.
const (
	KeyBaseCurrency    = "base-currency"
	KeyDefaultCurrency = "default-currency"
	KeyNormalize       = "normalize"
	KeySemantic        = "semantic"
	KeyAmountTolerance = "matcher.amount-tolerance"
	KeyDateWindowDays  = "matcher.date-window-days"
	KeyEmbedEndpoint   = "embedding.endpoint"
	KeyEmbedModel      = "embedding.model"
	KeyEmbedAPIKey     = "embedding.api-key"
	KeyEmbedTimeout    = "embedding.timeout"
	KeyFXEndpoint      = "fx.endpoint"
	KeyFXTimeout       = "fx.timeout"
	KeyFXConcurrency   = "fx.concurrency"
	KeyFXStore         = "fx.store"
	KeyOutputFormat    = "output-format"
	KeyOutputFile      = "output-file"
	KeyProgress        = "progress"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
	KeyLogFile         = "log.file"
	KeyServerAddr      = "server.addr"
	KeyServerOrigins   = "server.allowed-origins"
	KeyServerTimeout   = "server.request-timeout"
	KeyVerbose         = "verbose"
)

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	server := api.DefaultConfig()

	v.SetDefault(KeyBaseCurrency, "USD")
	v.SetDefault(KeyDefaultCurrency, "USD")
	v.SetDefault(KeyAmountTolerance, "0.01")
	v.SetDefault(KeyDateWindowDays, 3)
	v.SetDefault(KeyEmbedModel, "text-embedding-3-small")
	v.SetDefault(KeyEmbedTimeout, 10*time.Second)
	v.SetDefault(KeyFXEndpoint, fx.DefaultFrankfurterEndpoint)
	v.SetDefault(KeyFXTimeout, 10*time.Second)
	v.SetDefault(KeyFXConcurrency, fx.DefaultConcurrency)
	v.SetDefault(KeyOutputFormat, string(reporter.FormatConsole))
	v.SetDefault(KeyLogLevel, string(logger.InfoLevel))
	v.SetDefault(KeyLogFormat, string(logger.TextFormat))
	v.SetDefault(KeyServerAddr, server.Addr)
	v.SetDefault(KeyServerOrigins, server.AllowedOrigins)
	v.SetDefault(KeyServerTimeout, server.RequestTimeout)
}

// FXSettings configures exchange rate lookups.
type FXSettings struct {
	Endpoint    string
	Timeout     time.Duration
	Concurrency int
	// StorePath is a SQLite database for historical rates; empty disables it.
	StorePath string
}

// Settings is the resolved runtime configuration.
type Settings struct {
	BaseCurrency    string
	DefaultCurrency string
	Normalize       bool
	Semantic        bool
	Matching        *matcher.MatchingConfig
	Embedding       embedding.Config
	FX              FXSettings
	OutputFormat    reporter.OutputFormat
	OutputFile      string
	Progress        bool
	Log             logger.Config
	Server          api.Config
}

// Load reads Settings from v and validates them.
func Load(v *viper.Viper) (*Settings, error) {
	tolerance, err := decimal.NewFromString(strings.TrimSpace(v.GetString(KeyAmountTolerance)))
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyAmountTolerance, v.GetString(KeyAmountTolerance), err)
	}

	matching := matcher.DefaultMatchingConfig()
	matching.AmountTolerance = tolerance
	matching.DateWindowDays = v.GetInt(KeyDateWindowDays)

	server := api.DefaultConfig()
	server.Addr = v.GetString(KeyServerAddr)
	server.AllowedOrigins = v.GetStringSlice(KeyServerOrigins)
	server.RequestTimeout = v.GetDuration(KeyServerTimeout)

	s := &Settings{
		BaseCurrency:    strings.ToUpper(v.GetString(KeyBaseCurrency)),
		DefaultCurrency: strings.ToUpper(v.GetString(KeyDefaultCurrency)),
		Normalize:       v.GetBool(KeyNormalize),
		Semantic:        v.GetBool(KeySemantic),
		Matching:        matching,
		Embedding: embedding.Config{
			Endpoint: v.GetString(KeyEmbedEndpoint),
			Model:    v.GetString(KeyEmbedModel),
			APIKey:   v.GetString(KeyEmbedAPIKey),
			Timeout:  v.GetDuration(KeyEmbedTimeout),
		},
		FX: FXSettings{
			Endpoint:    v.GetString(KeyFXEndpoint),
			Timeout:     v.GetDuration(KeyFXTimeout),
			Concurrency: v.GetInt(KeyFXConcurrency),
			StorePath:   v.GetString(KeyFXStore),
		},
		OutputFormat: reporter.OutputFormat(strings.ToLower(v.GetString(KeyOutputFormat))),
		OutputFile:   v.GetString(KeyOutputFile),
		Progress:     v.GetBool(KeyProgress),
		Log:          logConfig(v),
		Server:       server,
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func logConfig(v *viper.Viper) logger.Config {
	c := logger.Config{
		Level:  logger.Level(strings.ToLower(v.GetString(KeyLogLevel))),
		Format: logger.Format(strings.ToLower(v.GetString(KeyLogFormat))),
		Output: logger.StderrOutput,
		File:   v.GetString(KeyLogFile),
	}
	if c.File != "" {
		c.Output = logger.FileOutput
	}
	if v.GetBool(KeyVerbose) {
		c.Level = logger.DebugLevel
	}
	return c
}

// Validate validates the settings
func (s *Settings) Validate() error {
	if !fx.IsValidCode(s.BaseCurrency) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, KeyBaseCurrency, s.BaseCurrency,
			fmt.Errorf("must be a three-letter currency code"))
	}
	if !fx.IsValidCode(s.DefaultCurrency) {
		return errors.ConfigurationError(errors.CodeInvalidConfig, KeyDefaultCurrency, s.DefaultCurrency,
			fmt.Errorf("must be a three-letter currency code"))
	}
	if err := s.Matching.Validate(); err != nil {
		return err
	}
	if s.FX.Concurrency <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, KeyFXConcurrency, s.FX.Concurrency,
			fmt.Errorf("must be positive"))
	}
	if !s.OutputFormat.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, KeyOutputFormat, s.OutputFormat,
			fmt.Errorf("valid formats: console, json, csv, yaml"))
	}
	if err := s.Log.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", s.Log.Level, err)
	}
	return nil
}

// NewLogger builds the process logger from the settings.
func NewLogger(s *Settings) (logger.Logger, error) {
	log, err := logger.NewLogger(&s.Log)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", s.Log.Output, err)
	}
	return log, nil
}

// Components are the wired services a command runs against.
type Components struct {
	Rates     *fx.Client
	Store     *fx.SQLiteStore
	Converter *currency.Converter
	Engine    *matcher.Engine
	Loader    *parsers.Loader
	Service   *reconciler.Service
}

// Build wires the reconciliation components described by s.
func Build(s *Settings, log logger.Logger) (*Components, error) {
	c := &Components{}

	var store fx.Store
	if s.FX.StorePath != "" {
		sqlite, err := fx.NewSQLiteStore(s.FX.StorePath)
		if err != nil {
			return nil, errors.ConfigurationError(errors.CodeInvalidConfig, KeyFXStore, s.FX.StorePath, err).
				WithSuggestion("check that the rate store directory exists and is writable")
		}
		c.Store, store = sqlite, sqlite
	}

	provider := fx.NewFrankfurterProvider(s.FX.Endpoint, s.FX.Timeout)
	c.Rates = fx.NewClient(provider, fx.NewCache(), fx.ClientConfig{
		Concurrency: s.FX.Concurrency,
		Store:       store,
	}, log)
	c.Converter = currency.NewConverter(c.Rates, s.DefaultCurrency, log)

	var semantic similarity.Scorer
	if s.Embedding.Endpoint != "" {
		semantic = similarity.NewSemanticScorer(embedding.NewClient(s.Embedding, log))
	}

	var err error
	if c.Engine, err = matcher.NewEngine(s.Matching, semantic, log); err != nil {
		c.Close()
		return nil, err
	}

	loaderConfig := parsers.DefaultLoaderConfig()
	loaderConfig.DefaultCurrency = s.DefaultCurrency
	if c.Loader, err = parsers.NewLoader(loaderConfig, log); err != nil {
		c.Close()
		return nil, err
	}

	serviceConfig := reconciler.DefaultConfig()
	serviceConfig.DefaultBaseCurrency = s.BaseCurrency
	if c.Service, err = reconciler.NewService(c.Engine, c.Converter, c.Loader, serviceConfig, log); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// Close releases the rate store, if any.
func (c *Components) Close() error {
	if c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

// RunOptions derives per-run options from the settings.
func (s *Settings) RunOptions() reconciler.RunOptions {
	return reconciler.RunOptions{
		BaseCurrency: s.BaseCurrency,
		Normalize:    s.Normalize,
		UseSemantic:  s.Semantic,
	}
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format reporter.OutputFormat) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()
	config.Format = format

	switch format {
	case reporter.FormatConsole:
		config.SortByAmount = true
	case reporter.FormatJSON, reporter.FormatYAML:
		config.MaxListItems = 0
	case reporter.FormatCSV:
		config.IncludeCurrencyBreakdown = false
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	}

	return config
}
