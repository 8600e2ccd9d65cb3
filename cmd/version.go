package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blogem/ha-gateway/services"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gateway version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ha-gateway %s\n", services.Version)
	},
}
