package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rental-payments",
	Short: "Rental payments microservice",
	Long:  "M-Pesa collections and payouts, provider callback reconciliation, the transaction ledger and fleet finance reports for the rental platform.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
