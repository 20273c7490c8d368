package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rlm-systems/rlm-runtime/internal/embedding"
	"github.com/rlm-systems/rlm-runtime/internal/proof"
)

var (
	cascadeLemmas []string
	cascadeCorpus string
)

var cascadeCmd = &cobra.Command{
	Use:   "cascade [goal]",
	Short: "Run the proof-automation cascade against a goal",
	Long: `Attempts goal tier by tier - decidable procedures, then general
automation tactics, then an AI-assisted tactic sequence, falling back to
a human-review placeholder - against the sandboxed theorem-prover REPL,
promoting whichever tactic wins within its domain.`,
	Args: cobra.ExactArgs(1),
	RunE: runCascade,
}

func init() {
	cascadeCmd.Flags().StringSliceVar(&cascadeLemmas, "lemma", nil, "Supporting lemma names available to the goal (repeatable)")
	cascadeCmd.Flags().StringVar(&cascadeCorpus, "corpus", "", "Path to a proof corpus JSON file for similar-goal lookup (default: <workspace>/.rlm/proof_corpus.json)")
}

func runCascade(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	rt, err := buildRuntime(ctx, runtimeOptions{
		needLLM:     true,
		needSandbox: true,
		needMangle:  true,
		needCascade: true,
	})
	if err != nil {
		return err
	}

	corpusPath := cascadeCorpus
	if corpusPath == "" {
		ws := workspace
		if ws == "" {
			ws = "."
		}
		corpusPath = filepath.Join(ws, ".rlm", "proof_corpus.json")
	}
	embedder, err := embedding.NewGenAIEngine(resolveAPIKey(), "", "")
	if err != nil {
		return fmt.Errorf("constructing embedding engine: %w", err)
	}
	corpus, err := embedding.LoadProofCorpus(corpusPath, embedder)
	if err != nil {
		return fmt.Errorf("loading proof corpus: %w", err)
	}

	goal := proof.Goal{Text: args[0], Lemmas: cascadeLemmas}
	if similar, err := corpus.SimilarTo(ctx, goal.Text, 3); err == nil {
		goal.Similar = similar
	}

	result, err := rt.cascade.Attempt(ctx, goal)
	if err != nil {
		return fmt.Errorf("cascade attempt: %w", err)
	}

	if result.Success {
		if err := corpus.Record(ctx, goal.Text, result.Tactic); err != nil {
			fmt.Printf("warning: failed to record corpus entry: %v\n", err)
		} else if err := corpus.Save(corpusPath); err != nil {
			fmt.Printf("warning: failed to save proof corpus: %v\n", err)
		}
	}

	fmt.Printf("goal: %s\n", result.Goal.Text)
	fmt.Printf("success: %v (tier=%s tactic=%q, sorry_left=%v)\n", result.Success, result.WinningTier, result.Tactic, result.SorryLeft)
	for i, a := range result.Attempts {
		fmt.Printf("  [%d] tier=%s tactic=%q success=%v elapsed_ms=%d\n", i, a.Tier, a.Tactic, a.Success, a.ElapsedMs)
	}
	return nil
}
