// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/deep-research/internal/container"
)

// searxngContainerName is the fixed name of the managed SearXNG container.
const searxngContainerName = "deep-research-searxng"

// searxngInternalPort is the port the SearXNG image listens on.
const searxngInternalPort = 8080

var searxngCmd = &cobra.Command{
	Use:   "searxng",
	Short: "Manage a local SearXNG container for the searxng backend",
	Long: `Searxng runs a local SearXNG metasearch instance in a container so the
searxng backend works without any API key. Docker is used when available,
falling back to Podman.`,
}

var searxngUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the SearXNG container",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := pipelineConfig().Searxng

		rt, err := container.DetectRuntime()
		if err != nil {
			return err
		}

		running, err := rt.Running(searxngContainerName)
		if err != nil {
			return err
		}
		if running {
			fmt.Println("SearXNG is already running.")
			return nil
		}

		if err := rt.StartDetached(searxngContainerName, cfg.Image, cfg.Port, searxngInternalPort); err != nil {
			return err
		}
		fmt.Printf("SearXNG started on http://localhost:%d (%s)\n", cfg.Port, rt.Name())
		return nil
	},
}

var searxngDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop the SearXNG container",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := container.DetectRuntime()
		if err != nil {
			return err
		}
		if err := rt.Stop(searxngContainerName); err != nil {
			return err
		}
		fmt.Println("SearXNG stopped.")
		return nil
	},
}

var searxngStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the SearXNG container is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := pipelineConfig().Searxng

		rt, err := container.DetectRuntime()
		if err != nil {
			return err
		}
		running, err := rt.Running(searxngContainerName)
		if err != nil {
			return err
		}
		if running {
			fmt.Printf("SearXNG is running on http://localhost:%d (%s)\n", cfg.Port, rt.Name())
		} else {
			fmt.Println("SearXNG is not running.")
		}
		return nil
	},
}

func init() {
	searxngCmd.AddCommand(searxngUpCmd)
	searxngCmd.AddCommand(searxngDownCmd)
	searxngCmd.AddCommand(searxngStatusCmd)

	rootCmd.AddCommand(searxngCmd)
}
