package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/billgate/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}
		fmt.Println("Configuration valid")
		fmt.Printf("  Database:   %s (%s)\n", cfg.Database.Driver, cfg.Database.DSN)
		fmt.Printf("  Billing:    %q, %d workers\n", cfg.Billing.Schedule, cfg.Billing.Workers)
		fmt.Printf("  Retries:    %q\n", cfg.Payments.RetrySchedule)
		fmt.Printf("  Processors: %d\n", len(cfg.Payments.Processors))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
