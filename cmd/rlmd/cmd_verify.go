package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rlm-systems/rlm-runtime/internal/orchestrator"
	"github.com/rlm-systems/rlm-runtime/internal/scrub"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [response-text]",
	Short: "Extract claims from a response and run epistemic verification",
	Long: `Extracts individually-verifiable claims from response-text, elicits a
scrubbed-context prior and a full-context posterior probability estimate
for each via the configured LLM, and reports the resulting budget gap
and grounding status.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	rt, err := buildRuntime(ctx, runtimeOptions{needLLM: true})
	if err != nil {
		return err
	}

	text := args[0]
	claimList := rt.extractor.Extract(text)
	if len(claimList) == 0 {
		fmt.Println("no verifiable claims extracted")
		return nil
	}

	scrubbed := scrub.Scrub(text, scrub.DefaultOptions()).Scrubbed
	elicitor := orchestrator.NewPredictElicitor(rt.client, rt.cfg.General.DefaultModel, 3)

	for _, claim := range claimList {
		p0, err := elicitor.Elicit(ctx, scrubbed, claim.Text)
		if err != nil {
			fmt.Printf("claim %q: prior elicitation failed: %v\n", claim.Text, err)
			continue
		}
		p1, err := elicitor.Elicit(ctx, text, claim.Text)
		if err != nil {
			fmt.Printf("claim %q: posterior elicitation failed: %v\n", claim.Text, err)
			continue
		}
		result := rt.verifier.Evaluate(claim, p0, p1)
		fmt.Printf("[%s] %q\n  p0=%.3f p1=%.3f observed_bits=%.3f required_bits=%.3f gap=%.3f status=%s\n",
			claim.Category, claim.Text, p0.Estimate, p1.Estimate, result.ObservedBits, result.RequiredBits, result.BudgetGap, result.Status)
	}
	return nil
}
