package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/billgate/bootstrap"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Run one payment retry pass",
	Long: `Scan failed transactions and retry the ones whose provider retry
policy allows it. Each eligible transaction gets a fresh retry
transaction executed against its processor.

Examples:
  billgate retry`,
	RunE: runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(cfgFile)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Payments.RetryPass(context.Background()); err != nil {
		return err
	}
	fmt.Println("retry pass complete")
	return nil
}
