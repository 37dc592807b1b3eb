package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mnemo/internal/domain"
)

func newForgetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <file-name-or-path>",
		Short: "Remove a document from the database",
		Long: `Remove a document from the index and metadata so that the next organize run
summarizes it again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.newService(true)
			if err != nil {
				return err
			}
			removed, err := svc.Forget(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRemoved(cmd.OutOrStdout(), removed)
			return nil
		},
	}
}

func newPruneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove documents whose files no longer exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.newService(true)
			if err != nil {
				return err
			}
			removed, err := svc.Prune(cmd.Context())
			if err != nil {
				return err
			}
			if len(removed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to prune.")
				return nil
			}
			printRemoved(cmd.OutOrStdout(), removed)
			return nil
		},
	}
}

func printRemoved(w io.Writer, docs []domain.Document) {
	fmt.Fprintf(w, "Removed %d documents:\n", len(docs))
	for _, d := range docs {
		fmt.Fprintf(w, "  %s\n", d.FilePath)
	}
}
