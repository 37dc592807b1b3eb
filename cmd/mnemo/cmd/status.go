package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mnemo/internal/service"
)

func newStatusCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the database state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.newService(true)
			if err != nil {
				return err
			}
			st, err := svc.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), st)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print status as JSON")

	return cmd
}

func printStatus(w io.Writer, st *service.Status) {
	if !st.Initialized {
		fmt.Fprintln(w, "Database folder: not initialized (run 'mnemo init <folder>')")
		return
	}
	fmt.Fprintf(w, "Database folder: %s\n", st.DatabaseFolder)
	fmt.Fprintf(w, "Embedding model: %s\n", st.EmbeddingModel)
	fmt.Fprintf(w, "Index type:      %s\n", st.IndexType)
	if !st.HasDatabase {
		fmt.Fprintln(w, "Documents:       none (run 'mnemo organize <folder>')")
	} else {
		fmt.Fprintf(w, "Documents:       %d\n", st.Documents)
		fmt.Fprintf(w, "Vectors:         %d\n", st.Vectors)
	}
	if st.Fingerprint != "" {
		fmt.Fprintf(w, "Fingerprint:     %s\n", st.Fingerprint)
	}
	if st.Warning != "" {
		fmt.Fprintf(w, "Warning:         %s\n", st.Warning)
	} else if !st.ModelConsistent {
		fmt.Fprintf(w, "Warning:         embedding model changed (now %s), rebuild the database\n", st.CurrentFingerprint)
	}
}
