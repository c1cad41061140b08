package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/artpar/billgate/bootstrap"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Inspect subscription plans",
	Long: `Inspect the subscription plans known to the billing engine.

Examples:
  billgate plans list
  billgate plans get <plan-id>`,
}

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all enabled plans",
	RunE:  runPlansList,
}

var plansGetCmd = &cobra.Command{
	Use:   "get <plan-id>",
	Short: "Show plan details including metered features",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlansGet,
}

func init() {
	rootCmd.AddCommand(plansCmd)
	plansCmd.AddCommand(plansListCmd)
	plansCmd.AddCommand(plansGetCmd)
}

func runPlansList(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(cfgFile)
	if err != nil {
		return err
	}
	defer app.Close()

	plans, err := app.Stores.Plans.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list plans: %w", err)
	}
	if len(plans) == 0 {
		fmt.Println("No plans found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tINTERVAL\tAMOUNT\tTRIAL DAYS\tENABLED")
	fmt.Fprintln(w, "--\t----\t--------\t------\t----------\t-------")
	for _, p := range plans {
		interval := fmt.Sprintf("%d %s", p.IntervalCountOrOne(), p.Interval)
		amount := fmt.Sprintf("%s %s", p.Amount.StringFixed(2), p.Currency)
		enabled := "no"
		if p.Enabled {
			enabled = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			p.ID, p.Name, interval, amount, p.TrialPeriodDays, enabled)
	}
	return w.Flush()
}

func runPlansGet(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(cfgFile)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := context.Background()
	p, err := app.Stores.Plans.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get plan: %w", err)
	}
	features, err := app.Stores.Plans.Features(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("failed to get metered features: %w", err)
	}

	fmt.Printf("Plan: %s\n", p.ID)
	fmt.Printf("  Name:           %s\n", p.Name)
	fmt.Printf("  Provider:       %s\n", p.ProviderID)
	fmt.Printf("  Interval:       %d %s\n", p.IntervalCountOrOne(), p.Interval)
	fmt.Printf("  Amount:         %s %s\n", p.Amount.StringFixed(2), p.Currency)
	fmt.Printf("  Trial days:     %d\n", p.TrialPeriodDays)
	fmt.Printf("  Generate after: %s\n", p.GenerateAfter)
	fmt.Printf("  Enabled:        %v\n", p.Enabled)

	if len(features) == 0 {
		return nil
	}
	fmt.Println("  Metered features:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "    NAME\tUNIT\tPRICE/UNIT\tINCLUDED\tINCLUDED (TRIAL)")
	for _, f := range features {
		fmt.Fprintf(w, "    %s\t%s\t%s\t%s\t%s\n",
			f.Name, f.Unit, f.PricePerUnit.String(),
			f.IncludedUnits.String(), f.IncludedUnitsDuringTrial.String())
	}
	return w.Flush()
}
