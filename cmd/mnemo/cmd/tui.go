package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"mnemo/internal/opener"
	"mnemo/internal/service"
	"mnemo/internal/tui"
)

func newTUICmd(a *app) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Search interactively in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.newService(true)
			if err != nil {
				return err
			}
			cfg := svc.Config()
			if !cfg.Initialized() {
				return errNotInitialized()
			}
			m := tui.New(svc, opener.New(), topK, cfg.DatabaseFolder)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", service.DefaultTopK, "Number of results")

	return cmd
}
