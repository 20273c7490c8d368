package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/rlm-systems/rlm-runtime/internal/speclink"
)

var speclinkWatch bool

var speclinkCmd = &cobra.Command{
	Use:   "speclink [root]",
	Short: "Build and report the spec-coverage index",
	Long: `Scans root (default: workspace) for markdown spec references, Lean
theorems, Go tests, and topos elements, links them together, and prints
a per-spec coverage summary. With --watch, rebuilds on a debounced
trailing edge of filesystem activity until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSpeclink,
}

func init() {
	speclinkCmd.Flags().BoolVar(&speclinkWatch, "watch", false, "Keep rebuilding the index as files change")
}

func runSpeclink(cmd *cobra.Command, args []string) error {
	root := workspace
	if len(args) > 0 {
		root = args[0]
	}
	if root == "" {
		root, _ = os.Getwd()
	}

	rt, err := buildRuntime(cmd.Context(), runtimeOptions{needMangle: true})
	if err != nil {
		return err
	}

	builder := speclink.New(root, rt.engine)
	tracker, err := speclink.NewTracker(builder)
	if err != nil {
		return fmt.Errorf("building spec-coverage index: %w", err)
	}

	printSpeclinkSummary(tracker.Snapshot())

	if !speclinkWatch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if err := tracker.Watch(ctx, 0); err != nil {
		return fmt.Errorf("watching %s: %w", root, err)
	}

	fmt.Println("watching for changes, press ctrl-c to stop")
	<-ctx.Done()
	printSpeclinkSummary(tracker.Snapshot())
	return nil
}

func printSpeclinkSummary(idx *speclink.Index) {
	s := idx.Summary
	fmt.Printf("specs: %d total, %d formalized, %d complete, %d with sorry, %d failed\n",
		s.TotalSpecs, s.FormalizedCount, s.CompleteCount, s.HasSorryCount, s.FailedCount)
	fmt.Printf("topos/lean links: %d\n", len(idx.Links))
}
