package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fuzzy-reconciliation-service/internal/fx"
)

var currenciesCmd = &cobra.Command{
	Use:   "currencies",
	Short: "List supported reporting currencies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tSYMBOL\tNAME")
		for _, c := range fx.SupportedCurrencies {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.Code, c.Symbol, c.Name)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(currenciesCmd)
}
