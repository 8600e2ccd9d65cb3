package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/blogem/ha-gateway/config"
	"github.com/blogem/ha-gateway/configfs"
)

var backupsDir string

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "Inspect configuration backups",
}

// backupsListCmd lists the backups the mutation pipeline kept for a file
var backupsListCmd = &cobra.Command{
	Use:   "list [filename]",
	Short: "List backups of a configuration file, newest first",
	Long: `The list command shows the backups kept for a file under the configuration root.
Without a filename it lists the backups of the main configuration file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := configfs.NewLocalStore(configfs.Options{
			Root:       cfg.ConfigRoot,
			ConfigFile: cfg.ConfigFile,
			Retention:  cfg.BackupRetention,
		})
		if err != nil {
			return err
		}

		path := store.ConfigPath()
		if len(args) == 1 {
			if path, err = store.Resolve(backupsDir, args[0]); err != nil {
				return err
			}
		}

		backups, err := store.ListBackups(path)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(backups) == 0 {
			fmt.Fprintf(out, "No backups of %s\n", path)
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSIZE\tCREATED")
		for _, b := range backups {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", b.Name, b.Size, b.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	},
}

func init() {
	backupsListCmd.Flags().StringVar(&backupsDir, "dir", ".", "Directory of the file, relative to the configuration root")
	backupsCmd.AddCommand(backupsListCmd)
}
