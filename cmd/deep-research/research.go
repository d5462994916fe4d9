// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/report"
	"github.com/pdiddy/deep-research/internal/research"
	"github.com/pdiddy/deep-research/internal/store"
	"github.com/pdiddy/deep-research/internal/websearch"
	"github.com/pdiddy/deep-research/pkg/types"
)

var researchCmd = &cobra.Command{
	Use:   "research <topic> <domain>",
	Short: "Run a research session: questions, evidence, answers, report",
	Long: `Research runs the full pipeline for a topic and domain: five yes/no
questions are generated, web evidence is collected from the enabled search
backends and deduplicated per question, each question gets a cited answer,
and a structured report is composed from the answers.

The finished session is archived in the session store and the report is
written to the output directory as HTML and Markdown. A failed session is
archived too, with its partial results, and can be inspected with
"report show". Interrupting with Ctrl-C cancels at the next stage boundary.`,
	Args: cobra.ExactArgs(2),
	RunE: runResearch,
}

func runResearch(cmd *cobra.Command, args []string) error {
	topic, domain := args[0], args[1]

	cfg := pipelineConfig()
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Model.Model = model
	}
	if backends, _ := cmd.Flags().GetStringSlice("backends"); len(backends) > 0 {
		cfg.Search.Backends = backends
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.Research.QuestionWorkers = workers
	}
	if err := resolveModel(&cfg.Model); err != nil {
		return err
	}

	client, err := llm.FromConfig(cfg.Model, nil)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.Search.Timeout}
	backends, err := websearch.FromConfig(cfg.Search, httpClient, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	o := research.New(cfg, client, backends, printEvent)
	session, runErr := o.Run(ctx, topic, domain)

	if noSave, _ := cmd.Flags().GetBool("no-save"); !noSave {
		if err := archiveSession(cfg.Store, session); err != nil {
			fmt.Fprintf(os.Stderr, "warning: archiving session: %v\n", err)
		} else {
			fmt.Printf("Session %s archived.\n", session.ID)
		}
	}

	if runErr != nil {
		return fmt.Errorf("session %s: %w", session.ID, runErr)
	}

	paths, err := writeReportFiles(cfg.Report.OutputDir, session)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Printf("Report written to %s\n", p)
	}
	return nil
}

// printEvent renders orchestrator progress as plain lines.
func printEvent(ev research.Event) {
	target := ev.Stage
	if ev.QuestionID > 0 {
		target = fmt.Sprintf("%s q%d", ev.Stage, ev.QuestionID)
	}

	switch ev.Kind {
	case research.EventWarning:
		fmt.Fprintf(os.Stderr, "warning: [%s] %s\n", target, ev.Message)
	case research.EventFailed:
		fmt.Fprintf(os.Stderr, "failed:  [%s] %s\n", target, ev.Message)
	default:
		if ev.Message != "" {
			fmt.Printf("%-9s [%s] %s\n", string(ev.Kind), target, ev.Message)
		} else {
			fmt.Printf("%-9s [%s]\n", string(ev.Kind), target)
		}
	}
}

func archiveSession(cfg types.StoreConfig, session *types.Session) error {
	st, err := store.NewStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.Save(context.Background(), session)
}

// writeReportFiles exports the session report as HTML and Markdown into
// outputDir, returning the written paths.
func writeReportFiles(outputDir string, session *types.Session) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	var paths []string
	for _, format := range []string{"html", "md"} {
		path := filepath.Join(outputDir, report.FileName(session.Topic, session.Domain, format))
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", path, err)
		}

		if format == "html" {
			err = report.RenderHTML(f, session)
		} else {
			err = report.RenderMarkdown(f, session)
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func init() {
	researchCmd.Flags().String("model", "", "model identifier (default: configured model)")
	researchCmd.Flags().StringSlice("backends", nil, "search backends in priority order (default: configured backends)")
	researchCmd.Flags().Int("workers", 0, "concurrent evidence collectors (default: configured)")
	researchCmd.Flags().Bool("no-save", false, "skip archiving the session")

	rootCmd.AddCommand(researchCmd)
}
