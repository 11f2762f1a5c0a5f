/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the lease engine: runs the HTTP server with the
  overdue scheduler, and exposes the pure engine functions for scripting.

COMMANDS:
  serve           HTTP API + background sweep, graceful shutdown
  schedule        Print the payment schedule of a contract JSON file
  resolve-index   Print the base index date for a reference date
  seed            Load a demo scenario into the database

GLOBAL FLAGS:
  --config      Optional YAML config file (see internal/config)
  --log-level   Overrides log.level

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests (server.shutdown_timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  LEASE_DATABASE_PATH=./data/lease.db ./server serve

  # Run with in-memory database on another port
  LEASE_DATABASE_PATH=":memory:" LEASE_SERVER_PORT=3000 ./server serve

  # Preview a schedule
  ./server schedule -f contract.json

SEE ALSO:
  - api/server.go: Router configuration
  - internal/config/config.go: Settings and environment variables
*/
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "lease-engine",
		Short:         "Lease financial engine: payment schedules, indexation and reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		serveCmd(flags),
		scheduleCmd(flags),
		resolveIndexCmd(),
		seedCmd(flags),
	)
	return rootCmd
}
