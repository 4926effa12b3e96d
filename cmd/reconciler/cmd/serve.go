package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fuzzy-reconciliation-service/cmd/reconciler/config"
	"fuzzy-reconciliation-service/internal/api"
	"fuzzy-reconciliation-service/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reconciliation HTTP API",
	Long: `Serve exposes reconciliation over HTTP until interrupted.

Routes:
  POST /api/v1/reconcile   reconcile two transaction lists
  GET  /api/v1/rates       resolve one historical exchange rate
  GET  /api/v1/currencies  list supported currencies
  GET  /healthz            liveness

Examples:
  reconciler serve --addr :8080
  RECONCILER_SERVER_ALLOWED_ORIGINS=https://books.example reconciler serve`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindFlags(cmd.Flags(), map[string]string{
			config.KeyServerAddr:    "addr",
			config.KeyServerOrigins: "allowed-origins",
			config.KeyServerTimeout: "request-timeout",
		})
		return nil
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	defaults := api.DefaultConfig()
	serveCmd.Flags().String("addr", defaults.Addr, "listen address")
	serveCmd.Flags().StringSlice("allowed-origins", defaults.AllowedOrigins, "CORS origins allowed to call the API")
	serveCmd.Flags().Duration("request-timeout", defaults.RequestTimeout, "per-request deadline")
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, components, err := loadSettings()
	if err != nil {
		return err
	}
	defer components.Close()

	log := logger.GetGlobalLogger()
	server, err := api.NewServer(components.Service, components.Loader, components.Rates, settings.Server, log)
	if err != nil {
		return err
	}

	log.WithFields(logger.Fields{
		"addr":          settings.Server.Addr,
		"base_currency": settings.BaseCurrency,
		"rate_store":    viper.GetString(config.KeyFXStore),
	}).Info("Reconciliation API ready")

	return server.ListenAndServe(cmd.Context())
}
