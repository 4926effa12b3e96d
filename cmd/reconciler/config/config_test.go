package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuzzy-reconciliation-service/internal/reporter"
	"fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

func newViper(overrides map[string]interface{}) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(newViper(nil))
	require.NoError(t, err)

	assert.Equal(t, "USD", s.BaseCurrency)
	assert.Equal(t, "USD", s.DefaultCurrency)
	assert.False(t, s.Normalize)
	assert.False(t, s.Semantic)
	assert.True(t, s.Matching.AmountTolerance.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, 3, s.Matching.DateWindowDays)
	assert.Equal(t, "https://api.frankfurter.app", s.FX.Endpoint)
	assert.Equal(t, 8, s.FX.Concurrency)
	assert.Equal(t, reporter.FormatConsole, s.OutputFormat)
	assert.Equal(t, logger.InfoLevel, s.Log.Level)
	assert.Equal(t, logger.StderrOutput, s.Log.Output)
	assert.Equal(t, ":8080", s.Server.Addr)
}

func TestLoad_Overrides(t *testing.T) {
	s, err := Load(newViper(map[string]interface{}{
		KeyBaseCurrency:    "eur",
		KeyNormalize:       true,
		KeyOutputFormat:    "YAML",
		KeyAmountTolerance: "0.05",
		KeyDateWindowDays:  5,
		KeyVerbose:         true,
		KeyLogFile:         filepath.Join(t.TempDir(), "reconciler.log"),
		KeyServerOrigins:   []string{"https://ledger.example"},
		KeyFXTimeout:       "3s",
	}))
	require.NoError(t, err)

	assert.Equal(t, "EUR", s.BaseCurrency)
	assert.True(t, s.Normalize)
	assert.Equal(t, reporter.FormatYAML, s.OutputFormat)
	assert.True(t, s.Matching.AmountTolerance.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, 5, s.Matching.DateWindowDays)
	assert.Equal(t, logger.DebugLevel, s.Log.Level)
	assert.Equal(t, logger.FileOutput, s.Log.Output)
	assert.Equal(t, []string{"https://ledger.example"}, s.Server.AllowedOrigins)
	assert.Equal(t, 3*time.Second, s.FX.Timeout)

	opts := s.RunOptions()
	assert.Equal(t, "EUR", opts.BaseCurrency)
	assert.True(t, opts.Normalize)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]interface{}
	}{
		{"base currency", map[string]interface{}{KeyBaseCurrency: "dollars"}},
		{"default currency", map[string]interface{}{KeyDefaultCurrency: "€"}},
		{"tolerance not a number", map[string]interface{}{KeyAmountTolerance: "abc"}},
		{"negative tolerance", map[string]interface{}{KeyAmountTolerance: "-1"}},
		{"negative window", map[string]interface{}{KeyDateWindowDays: -1}},
		{"fx concurrency", map[string]interface{}{KeyFXConcurrency: 0}},
		{"output format", map[string]interface{}{KeyOutputFormat: "pdf"}},
		{"log level", map[string]interface{}{KeyLogLevel: "chatty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(tt.overrides))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig), "got %v", err)
		})
	}
}

func TestBuild(t *testing.T) {
	s, err := Load(newViper(map[string]interface{}{
		KeyFXStore:       filepath.Join(t.TempDir(), "rates.db"),
		KeyEmbedEndpoint: "http://127.0.0.1:1",
	}))
	require.NoError(t, err)

	c, err := Build(s, logger.Discard())
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.Rates)
	assert.NotNil(t, c.Store)
	assert.NotNil(t, c.Engine)
	assert.NotNil(t, c.Loader)
	assert.True(t, c.Service.CanNormalize())
	assert.Equal(t, "USD", c.Service.GetConfiguration().DefaultBaseCurrency)
}

func TestBuild_BadStorePath(t *testing.T) {
	s, err := Load(newViper(map[string]interface{}{
		KeyFXStore: filepath.Join(t.TempDir(), "missing", "dir", "rates.db"),
	}))
	require.NoError(t, err)

	_, err = Build(s, logger.Discard())
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig), "got %v", err)
}

func TestCreateReportConfig(t *testing.T) {
	for _, format := range []reporter.OutputFormat{reporter.FormatConsole, reporter.FormatJSON, reporter.FormatCSV, reporter.FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			config := CreateReportConfig(format)
			assert.Equal(t, format, config.Format)
			assert.NoError(t, config.Validate())
		})
	}

	assert.Zero(t, CreateReportConfig(reporter.FormatJSON).MaxListItems)
	assert.False(t, CreateReportConfig(reporter.FormatCSV).IncludeCurrencyBreakdown)
}

func TestNewLogger(t *testing.T) {
	s, err := Load(newViper(map[string]interface{}{KeyLogFormat: "json"}))
	require.NoError(t, err)

	log, err := NewLogger(s)
	require.NoError(t, err)
	assert.NotNil(t, log)
}
