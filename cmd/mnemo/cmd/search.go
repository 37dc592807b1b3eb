package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mnemo/internal/domain"
	"mnemo/internal/service"
	"mnemo/internal/textclean"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		topK       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the organized documents",
		Long: `Search the organized documents by meaning. The query is embedded with the
same model as the summaries and matched by cosine similarity.`,
		Example: `  mnemo search quarterly revenue forecast
  mnemo search "onboarding checklist" -k 5 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.newService(true)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			results, err := svc.Search(cmd.Context(), query, topK)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), results)
			}
			printResults(cmd.OutOrStdout(), query, results)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", service.DefaultTopK, "Number of results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	return cmd
}

func printResults(w io.Writer, query string, results []domain.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintf(w, "No results for %q\n", query)
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "%2d. %s  (%.3f)\n", i+1, textclean.CutText(r.FileName, 70), r.Score)
		fmt.Fprintf(w, "    %s\n", r.FilePath)
		if len(r.Keywords) > 0 {
			fmt.Fprintf(w, "    %s\n", strings.Join(r.Keywords, ", "))
		}
		if r.Summary != "" {
			fmt.Fprintf(w, "    %s\n", textclean.CutText(r.Summary, 200))
		}
	}
}
