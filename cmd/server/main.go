/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the AP reconciliation engine. "serve" runs the HTTP
  API with the re-match workers and the monitor; the other commands run one
  operation against the same database and exit.

COMMANDS:
  serve              HTTP API, background re-matching, monitoring cycle
  ingest <files...>  Ingest and match files synchronously, print the summary
  rematch <id>       Re-run matching for one invoice row
  monitor            Run one monitoring cycle

CONFIGURATION:
  --config points at an optional YAML file. Every key can be overridden by
  an AP_-prefixed environment variable or a .env file. See config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Wait for running ingestion jobs
  4. Stop the monitor and drain queued re-matches
  5. Close the database connection

EXAMPLES:
  ./server serve --config ./ap.yaml
  AP_DATABASE_PATH=":memory:" ./server serve
  ./server ingest ./samples/*.pdf

SEE ALSO:
  - app.go: Dependency wiring
  - api/server.go: Router configuration
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "server",
		Short:         "AP reconciliation engine: three-way matching of invoices, POs and GRNs",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")

	rootCmd.AddCommand(serveCmd(&configFile))
	rootCmd.AddCommand(ingestCmd(&configFile))
	rootCmd.AddCommand(rematchCmd(&configFile))
	rootCmd.AddCommand(monitorCmd(&configFile))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
