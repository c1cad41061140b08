package main

import (
	"github.com/spf13/cobra"

	"github.com/artpar/billgate/bootstrap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the billing scheduler and operational server",
	Long: `Start the billgate daemon.

The daemon will:
  - Load configuration from billgate.yaml (or --config)
  - Or load configuration from BILLGATE_* environment variables
  - Connect to the database and run pending migrations
  - Run billing passes and payment retry passes on their cron schedules
  - Serve /healthz and /metrics on the configured address

Configuration hot reload: edits to the config file (or SIGHUP) apply the
new log level and cron schedules without a restart.

Environment variables (for Docker deployments):
  BILLGATE_DATABASE_DSN      - Database path (default: billgate.db)
  BILLGATE_SERVER_PORT       - Server port (default: 8080)
  BILLGATE_BILLING_SCHEDULE  - Cron expression for billing runs
  BILLGATE_LOG_LEVEL         - Log level: debug, info, warn, error
  BILLGATE_STRIPE_SECRET_KEY - Registers a stripe processor

Examples:
  billgate serve
  billgate serve --config /etc/billgate/config.yaml

  # Docker (env vars only):
  BILLGATE_DATABASE_DSN=/data/billgate.db billgate serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.New(cfgFile)
	if err != nil {
		return err
	}
	return app.Run()
}
