package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fuzzy-reconciliation-service/internal/fx"
	"fuzzy-reconciliation-service/internal/models"
	"fuzzy-reconciliation-service/pkg/errors"
)

var (
	rateDate   string
	rateFrom   string
	rateTo     string
	rateFormat string
)

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Look up a historical exchange rate",
	Long: `Rate resolves the exchange rate used to convert one currency into another
on a given date, the same way reconcile --normalize does. When no quote
exists for the date the latest available rate is used and reported as such.

Examples:
  reconciler rate --date 2024-03-01 --from EUR --to USD
  reconciler rate --date 2024-03-01 --from GBP --to EUR --format json`,
	PreRunE: validateRateFlags,
	RunE:    runRate,
}

func init() {
	rootCmd.AddCommand(rateCmd)

	rateCmd.Flags().StringVar(&rateDate, "date", "", "rate date (YYYY-MM-DD, required)")
	rateCmd.Flags().StringVar(&rateFrom, "from", "", "source currency (required)")
	rateCmd.Flags().StringVar(&rateTo, "to", "", "target currency (default: base currency)")
	rateCmd.Flags().StringVar(&rateFormat, "format", "console", "output format: console, json")

	_ = rateCmd.MarkFlagRequired("date")
	_ = rateCmd.MarkFlagRequired("from")
}

func validateRateFlags(cmd *cobra.Command, args []string) error {
	rateFrom = strings.ToUpper(strings.TrimSpace(rateFrom))
	rateTo = strings.ToUpper(strings.TrimSpace(rateTo))

	for flag, code := range map[string]string{"from": rateFrom, "to": rateTo} {
		if flag == "to" && code == "" {
			continue
		}
		if !fx.IsValidCode(code) {
			return errors.New(errors.CategoryInput, errors.CodeInvalidCurrency,
				fmt.Sprintf("--%s must be a three-letter currency code, got %q", flag, code))
		}
	}

	if rateFormat != "console" && rateFormat != "json" {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "format", rateFormat,
			fmt.Errorf("valid formats: console, json"))
	}

	_, err := parseDateFlag(rateDate, "date")
	return err
}

func runRate(cmd *cobra.Command, args []string) error {
	settings, components, err := loadSettings()
	if err != nil {
		return err
	}
	defer components.Close()

	to := rateTo
	if to == "" {
		to = settings.BaseCurrency
	}
	date, _ := parseDateFlag(rateDate, "date")

	rate, err := components.Rates.Rate(cmd.Context(), *date, rateFrom, to)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rateFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rate)
	}

	fmt.Fprintf(out, "1 %s = %.6f %s on %s\n", rate.SourceCurrency, rate.Rate, rate.TargetCurrency,
		rate.Date.Format(models.DateLayout))
	if rate.Source == models.RateSourceLatest {
		fmt.Fprintf(out, "No quote for the requested date; using the latest rate from %s\n",
			rate.EffectiveDate.Format(models.DateLayout))
	}
	return nil
}
