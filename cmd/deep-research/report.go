// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/deep-research/internal/report"
	"github.com/pdiddy/deep-research/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Manage archived research sessions (list, show, export, search)",
	Long: `Report manages the session archive. Use subcommands to list past
sessions, print a session's report, export it to a file, or run a full-text
search across archived answers and report text.

Session IDs may be abbreviated to any unique prefix.`,
}

// --- list subcommand ---

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived sessions",
	RunE:  runReportList,
}

func runReportList(cmd *cobra.Command, args []string) error {
	st, err := store.NewStore(pipelineConfig().Store)
	if err != nil {
		return err
	}
	defer st.Close()

	summaries, err := st.List(context.Background())
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No archived sessions.")
		return nil
	}

	fmt.Printf("%-10s  %-25s  %-20s  %-16s  %s\n", "ID", "Topic", "Domain", "State", "Created")
	fmt.Println(strings.Repeat("-", 90))
	for _, s := range summaries {
		fmt.Printf("%-10s  %-25s  %-20s  %-16s  %s\n",
			shorten(s.ID, 8), shorten(s.Topic, 25), shorten(s.Domain, 20),
			s.State, s.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Printf("\n%d sessions\n", len(summaries))
	return nil
}

func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// --- show subcommand ---

var reportShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session's report as Markdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportShow,
}

func runReportShow(cmd *cobra.Command, args []string) error {
	st, err := store.NewStore(pipelineConfig().Store)
	if err != nil {
		return err
	}
	defer st.Close()

	session, err := st.Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	if session.Report == nil {
		fmt.Printf("Session %s is in state %q and has no report.\n", session.ID, session.State)
		if session.FailureStage != "" {
			fmt.Printf("Failed at %s: %s\n", session.FailureStage, session.FailureReason)
		}
		for _, q := range session.Questions {
			fmt.Printf("\nQ%d. %s\n", q.ID, q.Text)
			if ans := session.Answer(q.ID); ans != nil {
				fmt.Printf("%s\n", ans.Text)
			} else {
				fmt.Println("(unanswered)")
			}
		}
		return nil
	}

	return report.RenderMarkdown(os.Stdout, session)
}

// --- export subcommand ---

var reportExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session to a file (html, md, yaml, json)",
	Long: `Export writes an archived session to the output directory. The html and
md formats render the report; yaml and json dump the full session including
questions, evidence bundles, and answers.`,
	Args: cobra.ExactArgs(1),
	RunE: runReportExport,
}

func runReportExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg := pipelineConfig()
	st, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	session, err := st.Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Report.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(cfg.Report.OutputDir, report.FileName(session.Topic, session.Domain, format))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	switch format {
	case "html":
		err = report.RenderHTML(f, session)
	case "md":
		err = report.RenderMarkdown(f, session)
	case "yaml":
		err = yaml.NewEncoder(f).Encode(session)
	case "json":
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		err = enc.Encode(session)
	default:
		return fmt.Errorf("unsupported format %q: use html, md, yaml, or json", format)
	}
	if err != nil {
		return fmt.Errorf("exporting session: %w", err)
	}

	fmt.Printf("Exported to %s\n", path)
	return nil
}

// --- search subcommand ---

var reportSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search across archived answers and reports",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReportSearch,
}

func runReportSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	st, err := store.NewStore(pipelineConfig().Store)
	if err != nil {
		return err
	}
	defer st.Close()

	hits, err := st.Search(context.Background(), strings.Join(args, " "), limit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	for i, hit := range hits {
		ref := hit.Kind
		if hit.QuestionID > 0 {
			ref = fmt.Sprintf("%s q%d", hit.Kind, hit.QuestionID)
		}
		fmt.Printf("%d. [%s] %s / %s (%s)\n   %s\n",
			i+1, shorten(hit.SessionID, 8), hit.Topic, hit.Domain, ref, shorten(hit.Content, 120))
	}
	fmt.Printf("\n%d matches\n", len(hits))
	return nil
}

// --- delete subcommand ---

var reportDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete an archived session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.NewStore(pipelineConfig().Store)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Delete(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Println("Deleted.")
		return nil
	},
}

func init() {
	reportExportCmd.Flags().String("format", "html", "export format: html, md, yaml, or json")
	reportSearchCmd.Flags().Int("limit", 0, "maximum matches (0 = default)")

	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportExportCmd)
	reportCmd.AddCommand(reportSearchCmd)
	reportCmd.AddCommand(reportDeleteCmd)

	rootCmd.AddCommand(reportCmd)
}
