package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init <database-folder>",
		Short: "Set the database folder",
		Long: `Set the folder where the vector index, metadata and model fingerprint are stored.
The folder is created if it does not exist, and the choice is saved to the config file.`,
		Example: `  mnemo init ~/mnemo-db`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.newService(true)
			if err != nil {
				return err
			}
			if err := svc.Initialize(args[0]); err != nil {
				return err
			}
			cfg := svc.Config()
			fmt.Fprintf(cmd.OutOrStdout(), "The database has been initialized successfully!\nDatabase folder: %s\nConfig: %s\n", cfg.DatabaseFolder, a.cfgPath)
			return nil
		},
	}
}
