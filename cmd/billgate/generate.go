package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/billgate/bootstrap"
	"github.com/artpar/billgate/domain/calendar"
)

var (
	generateDate         string
	generateSubscription string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one billing pass",
	Long: `Run a single billing pass outside the scheduler.

Every billable subscription is examined; the ones with due billing
windows get document entries generated. The pass is idempotent: windows
already billed are skipped, so rerunning for the same date is safe.

Examples:
  billgate generate
  billgate generate --date 2026-09-01
  billgate generate --subscription sub-42`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&generateDate, "date", "", "billing date (YYYY-MM-DD, default today)")
	generateCmd.Flags().StringVar(&generateSubscription, "subscription", "", "bill a single subscription")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	asOf := calendar.Truncate(time.Now().UTC())
	if generateDate != "" {
		parsed, err := time.ParseInLocation("2006-01-02", generateDate, time.UTC)
		if err != nil {
			return fmt.Errorf("parse --date: %w", err)
		}
		asOf = parsed
	}

	app, err := bootstrap.New(cfgFile)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()

	if generateSubscription != "" {
		billed, err := app.Billing.BillOne(ctx, generateSubscription, asOf)
		if err != nil {
			return err
		}
		if billed {
			fmt.Printf("subscription %s billed\n", generateSubscription)
		} else {
			fmt.Printf("subscription %s had nothing due\n", generateSubscription)
		}
		return nil
	}

	stats, err := app.Billing.Run(ctx, asOf)
	if err != nil {
		return err
	}
	fmt.Printf("billing pass for %s\n", asOf.Format("2006-01-02"))
	fmt.Printf("  subscriptions: %d\n", stats.Subscriptions)
	fmt.Printf("  billed:        %d\n", stats.Billed)
	fmt.Printf("  skipped:       %d\n", stats.Skipped)
	fmt.Printf("  errors:        %d\n", stats.Errors)
	return nil
}
