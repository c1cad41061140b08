package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/artpar/billgate/bootstrap"
)

var (
	usageSubscription string
	usageFeature      string
	usageUnits        string
	usageAbsolute     bool
	usageDate         string
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Record metered feature consumption",
	Long: `Record consumed units for a subscription's metered feature.

Units accumulate onto the current billing window by default; --absolute
replaces the window's recorded total instead. Usage on windows that were
already billed is rejected.

Examples:
  billgate usage --subscription sub-42 --feature api-calls --units 1500
  billgate usage --subscription sub-42 --feature api-calls --units 2000 --absolute`,
	RunE: runUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.Flags().StringVar(&usageSubscription, "subscription", "", "subscription ID (required)")
	usageCmd.Flags().StringVar(&usageFeature, "feature", "", "metered feature ID (required)")
	usageCmd.Flags().StringVar(&usageUnits, "units", "", "unit count (required)")
	usageCmd.Flags().BoolVar(&usageAbsolute, "absolute", false, "replace the window total instead of accumulating")
	usageCmd.Flags().StringVar(&usageDate, "date", "", "consumption date (YYYY-MM-DD, default today)")
	usageCmd.MarkFlagRequired("subscription")
	usageCmd.MarkFlagRequired("feature")
	usageCmd.MarkFlagRequired("units")
}

func runUsage(cmd *cobra.Command, args []string) error {
	units, err := decimal.NewFromString(usageUnits)
	if err != nil {
		return fmt.Errorf("parse --units: %w", err)
	}

	at := time.Now().UTC()
	if usageDate != "" {
		at, err = time.ParseInLocation("2006-01-02", usageDate, time.UTC)
		if err != nil {
			return fmt.Errorf("parse --date: %w", err)
		}
	}

	app, err := bootstrap.New(cfgFile)
	if err != nil {
		return err
	}
	defer app.Close()

	err = app.Billing.RecordUsage(context.Background(), usageSubscription, usageFeature, units, !usageAbsolute, at)
	if err != nil {
		return err
	}
	fmt.Printf("recorded %s units for %s/%s\n", units, usageSubscription, usageFeature)
	return nil
}
