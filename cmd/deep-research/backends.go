// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pdiddy/deep-research/internal/websearch"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "Show the configured search backends and model catalog",
	Long: `Backends shows the search backends the research command would use, in
merge priority order, including any skipped for a missing API key, plus the
configured model catalog.`,
	RunE: runBackends,
}

func runBackends(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	fmt.Println("Search backends (priority order):")
	backends, err := websearch.FromConfig(cfg.Search, nil, io.Discard)
	if err != nil {
		return err
	}
	enabled := make(map[string]bool, len(backends))
	for _, b := range backends {
		enabled[b.Name()] = true
	}
	for _, name := range cfg.Search.Backends {
		status := "enabled"
		if !enabled[name] {
			status = "skipped (no API key)"
		}
		fmt.Printf("  %-12s %s\n", name, status)
	}
	fmt.Printf("Per-backend results: %d, rate: %.2g/s\n\n", cfg.Search.PerBackendResults, cfg.Search.RatePerSecond)

	fmt.Printf("Model provider: %s\n", cfg.Model.Provider)
	if len(cfg.Model.AvailableModels) > 0 {
		fmt.Println("Available models:")
		for _, m := range cfg.Model.AvailableModels {
			marker := " "
			if m == cfg.Model.Model || (cfg.Model.Model == "" && m == cfg.Model.AvailableModels[0]) {
				marker = "*"
			}
			fmt.Printf("  %s %s\n", marker, m)
		}
	} else if cfg.Model.Model != "" {
		fmt.Printf("Model: %s\n", cfg.Model.Model)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}
