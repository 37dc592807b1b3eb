package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mnemo/internal/config"
	"mnemo/internal/llm"
)

const doctorTimeout = 10 * time.Second

// check is one line of the doctor report.
type check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

func newDoctorCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the configuration, Ollama and the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
			defer cancel()

			checks := runChecks(ctx, a)
			if jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), checks); err != nil {
					return err
				}
			} else {
				printChecks(cmd.OutOrStdout(), checks)
			}
			for _, c := range checks {
				if !c.OK {
					return fmt.Errorf("%s check failed", c.Name)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print checks as JSON")

	return cmd
}

func runChecks(ctx context.Context, a *app) []check {
	cfg := a.cfg
	checks := []check{{Name: "config", OK: true, Detail: a.cfgPath}}
	checks = append(checks, checkDatabaseFolder(cfg))

	client := llm.NewClient(cfg.OllamaBaseURL(), cfg.OllamaTimeout())
	models, err := client.Models(ctx)
	if err != nil {
		checks = append(checks, check{Name: "ollama", Detail: fmt.Sprintf("%s: %v", client.BaseURL(), err)})
	} else {
		checks = append(checks, check{Name: "ollama", OK: true, Detail: fmt.Sprintf("%s (%d models)", client.BaseURL(), len(models))})
		wanted := []struct{ name, model string }{
			{"quality model", cfg.Ollama.QualityModel},
			{"speed model", cfg.Ollama.SpeedModel},
		}
		if cfg.Embedder.Type == "ollama" || cfg.Embedder.Type == "" {
			wanted = append(wanted, struct{ name, model string }{"embedding model", cfg.EmbeddingModelName})
		}
		for _, w := range wanted {
			ok := llm.ContainsModel(models, w.model)
			detail := w.model
			if !ok {
				detail = fmt.Sprintf("%s not pulled (ollama pull %s)", w.model, w.model)
			}
			checks = append(checks, check{Name: w.name, OK: ok, Detail: detail})
		}
	}

	if cfg.Initialized() {
		svc, err := a.newService(true)
		if err != nil {
			return append(checks, check{Name: "database", Detail: err.Error()})
		}
		st, err := svc.Status(ctx)
		switch {
		case err != nil:
			checks = append(checks, check{Name: "database", Detail: err.Error()})
		case !st.HasDatabase:
			checks = append(checks, check{Name: "database", OK: true, Detail: "empty"})
		case st.Documents != st.Vectors:
			checks = append(checks, check{Name: "database", Detail: fmt.Sprintf("%d documents but %d vectors", st.Documents, st.Vectors)})
		case st.Warning == "" && !st.ModelConsistent:
			checks = append(checks, check{Name: "database", Detail: fmt.Sprintf("built with %s, current model is %s", st.Fingerprint, st.CurrentFingerprint)})
		default:
			checks = append(checks, check{Name: "database", OK: true, Detail: fmt.Sprintf("%d documents", st.Documents)})
		}
	}
	return checks
}

func checkDatabaseFolder(cfg *config.AppConfig) check {
	c := check{Name: "database folder"}
	if !cfg.Initialized() {
		c.Detail = "not initialized (run 'mnemo init <folder>')"
		return c
	}
	info, err := os.Stat(cfg.DatabaseFolder)
	switch {
	case err != nil:
		c.Detail = err.Error()
	case !info.IsDir():
		c.Detail = cfg.DatabaseFolder + " is not a directory"
	default:
		c.OK = true
		c.Detail = cfg.DatabaseFolder
	}
	return c
}

func printChecks(w io.Writer, checks []check) {
	for _, c := range checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %-16s %s\n", mark, c.Name, c.Detail)
	}
}
