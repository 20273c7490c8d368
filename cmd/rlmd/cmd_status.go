package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report rlmd configuration and environment status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	rt, err := buildRuntime(ctx, runtimeOptions{})
	if err != nil {
		return err
	}

	fmt.Println("rlmd status")
	fmt.Println("===========")
	fmt.Printf("Default model:       %s\n", rt.cfg.General.DefaultModel)
	fmt.Printf("Review model:        %s\n", rt.cfg.General.ReviewModel)
	fmt.Printf("Classifier threshold: %d\n", rt.cfg.General.ClassifierThreshold)
	fmt.Printf("Budget ceiling:      $%.2f / %d tokens\n", rt.cfg.Budget.MaxCostUSD, rt.cfg.Budget.MaxTokens)
	fmt.Println()

	if resolveAPIKey() != "" {
		fmt.Println("API key:     configured")
	} else {
		fmt.Println("API key:     not configured (pass --api-key or set RLM_API_KEY)")
	}

	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}
	fmt.Printf("Workspace:   %s\n", ws)

	if configPath != "" {
		fmt.Printf("Config file: %s\n", configPath)
	} else {
		fmt.Println("Config file: (none, using built-in defaults)")
	}

	summary := rt.costMgr.Summary()
	fmt.Printf("\nSession cost so far: $%.4f (%d components)\n", summary.TotalCostUSD, len(summary.ByComponent))
	return nil
}
