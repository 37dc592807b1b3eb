// Package cmd provides the CLI commands for mnemo.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mnemo/internal/config"
	"mnemo/internal/logging"
)

// Version is set at build time.
var Version = "1.0.0-dev"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg      *config.AppConfig
	cfgPath  string
	flushLog func()
}

// NewRootCmd creates the root command. Without a subcommand it serves the web UI.
func NewRootCmd() *cobra.Command {
	a := &app{}
	serve := newServeCmd(a)

	cmd := &cobra.Command{
		Use:   "mnemo",
		Short: "Organize and search local documents",
		Long: `Mnemo summarizes PDF and PowerPoint files with a local LLM, embeds the
summaries and lets you search them by meaning.

Run 'mnemo' to open the web UI, or use the subcommands from a terminal.`,
		Version:      Version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         serve.RunE,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.flushLog != nil {
				a.flushLog()
			}
		},
	}
	cmd.SetVersionTemplate("mnemo version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to config file (default ./config.json, ./config.yaml or ~/.config/mnemo/config.json)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: text, json")
	cmd.Flags().AddFlagSet(serve.Flags())

	cmd.AddCommand(serve)
	cmd.AddCommand(newInitCmd(a))
	cmd.AddCommand(newOrganizeCmd(a))
	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newStatusCmd(a))
	cmd.AddCommand(newForgetCmd(a))
	cmd.AddCommand(newPruneCmd(a))
	cmd.AddCommand(newDoctorCmd(a))
	cmd.AddCommand(newTUICmd(a))
	cmd.AddCommand(newWatchCmd(a))

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) load(cmd *cobra.Command) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.Load(a.configPath)
		a.cfgPath = a.configPath
	} else {
		a.cfg, a.cfgPath, err = config.LoadDefault()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := a.cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	format := a.cfg.LogFormat
	if a.logFormat != "" {
		format = a.logFormat
	}
	a.flushLog = logging.Init(logging.Config{Level: level, Format: format, Output: cmd.ErrOrStderr()})
	return nil
}
