package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mnemo/internal/opener"
	"mnemo/internal/web"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		host      string
		port      int
		noBrowser bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local web UI",
		Long: `Serve the search / organize / initialize web UI on localhost.

Ctrl+C stops a running organize job after its current files and shuts the server down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if host != "" {
				a.cfg.Server.Host = host
			}
			if port > 0 {
				a.cfg.Server.Port = port
			}
			return runServe(cmd.Context(), a, a.cfg.Server.OpenBrowser && !noBrowser)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (default from config, 127.0.0.1)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (default from config, 8501)")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Do not open the browser")

	return cmd
}

func runServe(ctx context.Context, a *app, openBrowser bool) error {
	svc, err := a.newService(false)
	if err != nil {
		return err
	}
	op := opener.New()

	wcfg := web.DefaultConfig()
	wcfg.Host = a.cfg.Server.Host
	wcfg.Port = a.cfg.Server.Port
	srv, err := web.NewServer(wcfg, svc, op)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	if openBrowser {
		go func() {
			select {
			case <-time.After(500 * time.Millisecond):
				if err := op.OpenURL(srv.URL()); err != nil {
					slog.Warn("open browser failed", "error", err)
				}
			case <-ctx.Done():
			}
		}()
	}
	fmt.Fprintf(os.Stderr, "Mnemo is running at %s (Ctrl+C to stop)\n", srv.URL())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
