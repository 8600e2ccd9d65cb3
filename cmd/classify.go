package cmd

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blogem/ha-gateway/config"
	"github.com/blogem/ha-gateway/querysafety"
)

var (
	classifyAllowAll bool
	classifyTables   []string
)

// classifyCmd reports how the gateway would treat a statement without running it
var classifyCmd = &cobra.Command{
	Use:   "classify <sql>",
	Short: "Show whether a SQL statement would be allowed",
	Long: `The classify command runs the query safety rules against a statement and prints the verdict.
The policy comes from the gateway configuration unless --allow-all or --tables is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		policy := querysafety.Policy{
			AllowAllQueries: cfg.AllowAllQueries,
			AllowedTables:   cfg.AllowedTables,
		}
		if cmd.Flags().Changed("allow-all") {
			policy.AllowAllQueries = classifyAllowAll
		}
		if cmd.Flags().Changed("tables") {
			policy.AllowedTables = classifyTables
		}

		verdict := querysafety.Classify(strings.Join(args, " "), policy)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(verdict)
	},
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyAllowAll, "allow-all", false, "Allow mutating statements")
	classifyCmd.Flags().StringSliceVar(&classifyTables, "tables", nil, "Tables mutating statements may touch")
}
