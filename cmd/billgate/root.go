package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "billgate",
	Short: "Subscription billing engine with invoicing and payment collection",
	Long: `Billgate is a self-hosted subscription billing engine.

It bills subscriptions on their plan cycles, prorates partial windows,
charges metered usage, issues invoices and proformas, and collects them
through configured payment processors.

Quick start:
  billgate serve     # Start the scheduler and ops server
  billgate generate  # Run one billing pass by hand

Management:
  billgate retry     # Run one payment retry pass
  billgate validate  # Validate configuration`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "billgate.yaml", "config file path")
}
