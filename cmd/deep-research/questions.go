// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/question"
)

var questionsCmd = &cobra.Command{
	Use:   "questions <topic> <domain>",
	Short: "Preview the research questions for a topic without running research",
	Long: `Questions runs only the question-generation stage and prints the five
yes/no research questions the pipeline would investigate. Useful for checking
whether a topic/domain pairing produces sensible questions before spending
search and model budget on a full session.`,
	Args: cobra.ExactArgs(2),
	RunE: runQuestions,
}

func runQuestions(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Model.Model = model
	}
	if err := resolveModel(&cfg.Model); err != nil {
		return err
	}

	client, err := llm.FromConfig(cfg.Model, nil)
	if err != nil {
		return err
	}

	g := &question.Generator{Client: client, MaxRetries: cfg.Model.MaxRetries}
	questions, err := g.Generate(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}

	for _, q := range questions {
		fmt.Printf("%d. %s\n", q.ID, q.Text)
	}
	return nil
}

func init() {
	questionsCmd.Flags().String("model", "", "model identifier (default: configured model)")

	rootCmd.AddCommand(questionsCmd)
}
