package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mnemo/internal/service"
	"mnemo/internal/textclean"
)

type organizeOptions struct {
	types      []string
	tier       string
	offline    bool
	jsonOutput bool
}

func newOrganizeCmd(a *app) *cobra.Command {
	var opts organizeOptions

	cmd := &cobra.Command{
		Use:   "organize <folder>",
		Short: "Summarize and index the new documents of a folder",
		Long: `Summarize every new PDF and PowerPoint file in a folder (non-recursive)
and add it to the database. Files already in the database are skipped by name.

Ctrl+C stops after the files in progress; the batch gathered so far is still indexed.`,
		Example: `  mnemo organize ~/Documents/reports
  mnemo organize ~/slides --types ppt --tier speed
  mnemo organize ~/papers --offline --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrganize(cmd.Context(), a, args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringSliceVarP(&opts.types, "types", "t", []string{"pdf", "ppt"}, "File types to organize: pdf, ppt")
	cmd.Flags().StringVar(&opts.tier, "tier", "quality", "Summarization model tier: quality, speed")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Summarize without the LLM (term frequency)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the report as JSON")

	return cmd
}

func runOrganize(ctx context.Context, a *app, folder string, opts organizeOptions, stdout, stderr io.Writer) error {
	svc, err := a.newService(opts.offline)
	if err != nil {
		return err
	}
	if _, err := service.Extensions(opts.types); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := service.Request{Folder: folder, Types: opts.types, Tier: opts.tier}
	report, err := svc.Organize(ctx, req, progressPrinter(stderr))
	if opts.jsonOutput && report != nil {
		if encErr := printJSON(stdout, report); encErr != nil {
			return encErr
		}
	} else {
		for _, line := range service.Outcome(report, err) {
			fmt.Fprintln(stdout, line)
		}
	}
	return err
}

func progressPrinter(w io.Writer) func(service.Event) {
	return func(e service.Event) {
		switch e.Kind {
		case service.EventStarted:
			fmt.Fprintf(w, "Organizing %d files\n", e.Total)
		case service.EventFileDone:
			fmt.Fprintf(w, "[%d/%d] ✓ %s\n", e.Done, e.Total, textclean.CutText(e.File, 70))
		case service.EventFileSkipped:
			fmt.Fprintf(w, "[%d/%d] ✗ %s (%s)\n", e.Done, e.Total, textclean.CutText(e.File, 70), e.Reason)
		case service.EventEmbedding:
			fmt.Fprintf(w, "Embedding batch %d/%d …\n", e.Batch, e.Batches)
		}
	}
}
