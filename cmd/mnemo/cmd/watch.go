package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mnemo/internal/domain"
	"mnemo/internal/service"
	"mnemo/internal/watcher"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		opts  organizeOptions
		quiet time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <folder>",
		Short: "Organize new documents as they appear in a folder",
		Long: `Organize the folder once, then keep watching it and organize new or changed
PDF and PowerPoint files after the folder has been quiet for a while.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.newService(opts.offline)
			if err != nil {
				return err
			}
			cfg := svc.Config()
			if !cfg.Initialized() {
				return errNotInitialized()
			}
			exts, err := service.Extensions(opts.types)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			w := watcher.New(watcher.Options{
				Folder:      args[0],
				Extensions:  exts,
				QuietPeriod: quiet,
				RunOnStart:  true,
			}, func(ctx context.Context, _ []string) error {
				req := service.Request{Folder: args[0], Types: opts.types, Tier: opts.tier}
				report, err := svc.Organize(ctx, req, progressPrinter(cmd.ErrOrStderr()))
				if errors.Is(err, domain.ErrNothingToOrganize) {
					return nil
				}
				for _, line := range service.Outcome(report, err) {
					fmt.Fprintln(out, line)
				}
				return err
			})
			return w.Run(ctx)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.types, "types", "t", []string{"pdf", "ppt"}, "File types to organize: pdf, ppt")
	cmd.Flags().StringVar(&opts.tier, "tier", "quality", "Summarization model tier: quality, speed")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Summarize without the LLM (term frequency)")
	cmd.Flags().DurationVar(&quiet, "quiet", watcher.DefaultQuietPeriod, "How long the folder must stay unchanged before organizing")

	return cmd
}
