package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"fuzzy-reconciliation-service/cmd/reconciler/config"
	"fuzzy-reconciliation-service/pkg/errors"
	"fuzzy-reconciliation-service/pkg/logger"
)

var (
	cfgFile string
	envFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Fuzzy transaction reconciliation tool",
	Long: `Reconciler pairs bank transactions with internal account records that
describe the same event, even when descriptions, dates and currencies differ.
Unpaired transactions on either side are reported for investigation.

Examples:
  reconciler reconcile --bank-file bank.csv --accounts-file ledger.csv
  reconciler reconcile --bank-file bank.csv --accounts-file ledger.json --normalize --base-currency EUR
  reconciler rate --date 2024-03-01 --from EUR --to USD
  reconciler serve --addr :8080`,
	Version:           getVersionString(),
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	return NewCLIErrorHandler(os.Stderr, viper.GetBool(config.KeyVerbose)).HandleError(err)
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(viper.GetViper())

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text, json")
	rootCmd.PersistentFlags().String("base-currency", "USD", "reporting currency")
	rootCmd.PersistentFlags().String("default-currency", "USD", "currency assumed for records without one")
	rootCmd.PersistentFlags().String("fx-endpoint", "", "exchange rate API endpoint")
	rootCmd.PersistentFlags().String("fx-store", "", "SQLite file caching historical rates across runs")

	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		config.KeyVerbose:         "verbose",
		config.KeyLogLevel:        "log-level",
		config.KeyLogFormat:       "log-format",
		config.KeyBaseCurrency:    "base-currency",
		config.KeyDefaultCurrency: "default-currency",
		config.KeyFXEndpoint:      "fx-endpoint",
		config.KeyFXStore:         "fx-store",
	})
}

// bindFlags binds viper keys to flags. Flags only override when set.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

// initConfig reads in the .env file, the config file and ENV variables.
func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", envFile, err)
		}
	}

	viper.SetEnvPrefix("RECONCILER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(4)
		}
		if viper.GetBool(config.KeyVerbose) {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}
}

// setupLogging installs the configured logger as the global logger.
func setupLogging(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	log, err := config.NewLogger(settings)
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)
	return nil
}

// loadSettings reads the settings and builds the components for a command.
func loadSettings() (*config.Settings, *config.Components, error) {
	settings, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	components, err := config.Build(settings, logger.GetGlobalLogger())
	if err != nil {
		return nil, nil, errors.WrapIfNeeded(err, errors.CategoryConfiguration, errors.CodeInvalidConfig, "failed to build components")
	}
	return settings, components, nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
