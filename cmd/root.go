// Package cmd provides the command-line interface of the gateway. The default
// command serves the HTTP and WebSocket API; the others inspect the local setup.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
// The add-on container starts the binary without arguments, so it serves.
var rootCmd = &cobra.Command{
	Use:           "ha-gateway",
	Short:         "Safe query and configuration gateway for Home Assistant",
	Long:          `ha-gateway exposes the Home Assistant recorder database and configuration files through a rate limited, audited HTTP and WebSocket API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the CLI application
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(backupsCmd)
	rootCmd.AddCommand(versionCmd)
}
