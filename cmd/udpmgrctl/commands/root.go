// Package commands implements the udpmgrctl CLI commands.
package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// client is the HTTP client used to talk to the daemon's control API.
	client = &http.Client{Timeout: 5 * time.Second}

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the daemon's control API address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for udpmgrctl.
var rootCmd = &cobra.Command{
	Use:   "udpmgrctl",
	Short: "CLI client for the udpmgrd daemon",
	Long:  "udpmgrctl talks to the udpmgrd daemon's HTTP control API to inspect and manage endpoints.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:9108",
		"udpmgrd control API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(endpointsCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func controlURL(path string) string {
	return "http://" + serverAddr + path
}
