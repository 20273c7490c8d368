package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rlm-systems/rlm-runtime/internal/classifier"
	"github.com/rlm-systems/rlm-runtime/internal/llm"
	"github.com/rlm-systems/rlm-runtime/internal/orchestrator"
	"github.com/rlm-systems/rlm-runtime/internal/predict"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

var (
	executeCodeField string
	executeNoReview  bool
)

var executeCmd = &cobra.Command{
	Use:   "execute [query]",
	Short: "Run a query through the orchestrator",
	Long: `Classifies the query, and if it's complex enough to activate,
runs it through a predict pipeline, the sandbox (if the response emits
code), epistemic verification, and adversarial review.`,
	Args: cobra.ExactArgs(1),
	RunE: runExecute,
}

func init() {
	executeCmd.Flags().StringVar(&executeCodeField, "code-field", "code", "Output field the sandbox executes, if present")
	executeCmd.Flags().BoolVar(&executeNoReview, "no-review", false, "Skip adversarial review even if an LLM client is configured")
}

// querySignature is the default single-turn predict pipeline execute
// binds an activated query to, answering directly in prose with an
// optional fenced code field.
func querySignature() rlmtypes.Signature {
	return rlmtypes.Signature{
		Name: "answer_query",
		Instruction: "Answer the user's query directly and completely. If the answer " +
			"requires computing something, also emit it as runnable code in the " +
			"code field.",
		Inputs: []rlmtypes.FieldSpec{
			{Name: "query", Type: rlmtypes.FieldString, Required: true},
		},
		Outputs: []rlmtypes.FieldSpec{
			{Name: "response", Type: rlmtypes.FieldString, Required: true},
			{Name: "code", Type: rlmtypes.FieldString, Required: false},
		},
	}
}

func runExecute(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	rt, err := buildRuntime(ctx, runtimeOptions{
		needLLM:       true,
		needSandbox:   true,
		needValidator: !executeNoReview,
		needAdapter:   true,
	})
	if err != nil {
		return err
	}

	query := args[0]
	model := rt.cfg.General.DefaultModel
	if decision, ok := routeModel(rt, query); ok {
		model = decision.Model.ID
		fmt.Printf("routed to %s (tier=%s, %s)\n", decision.Model.Name, decision.Tier, decision.Reason)
	}
	pipeline := predict.New(querySignature(), rt.client, model)

	req := orchestrator.Request{
		Query:           query,
		SessionContext:  classifier.SessionContext{},
		CodeField:       executeCodeField,
		OutputTextField: "response",
	}

	result, err := rt.adapter.Execute(ctx, req, pipeline)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	printExecuteResult(result)
	return nil
}

// routeModel asks a SmartRouter, seeded from the session's remaining
// budget, which model tier best fits query. ok is false if the router
// has no usable candidate (e.g. every model was filtered out).
func routeModel(rt *runtime, query string) (llm.RoutingDecision, bool) {
	router := llm.NewSmartRouter(llm.DefaultModels(), rt.bus)
	_, remainingUSD := rt.costMgr.Remaining()
	decision := router.Route(query, llm.RoutingContext{RemainingBudget: &remainingUSD})
	if decision.Model.ID == "" {
		return llm.RoutingDecision{}, false
	}
	return decision, true
}

func printExecuteResult(result orchestrator.Result) {
	fmt.Printf("mode: %s (score=%d, activated=%v)\n", result.Mode, result.Activation.Score, result.Activation.ShouldActivate)
	if result.Mode == orchestrator.ModeDirect {
		fmt.Println("reason:", result.Activation.Reason)
		return
	}
	if response, ok := result.Output["response"].(string); ok {
		fmt.Println()
		fmt.Println(response)
	}
	if result.ExecuteResult != nil {
		fmt.Printf("\n[sandbox] success=%v result=%v\n", result.ExecuteResult.Success, result.ExecuteResult.Result)
	}
	if len(result.Claims) > 0 {
		fmt.Printf("\nclaims: %d, grounding=%s\n", len(result.Claims), result.GroundingStatus)
	}
	if result.Review != nil {
		fmt.Printf("review: %s (%d issues, %d iterations)\n", result.Review.Verdict, len(result.Review.Issues), result.Review.Iterations)
	}
	fmt.Printf("\ncost: $%.4f, %d input + %d output tokens across %d components\n",
		result.CostSummary.TotalCostUSD, result.CostSummary.InputTokens, result.CostSummary.OutputTokens, len(result.CostSummary.ByComponent))

	if logger != nil {
		logger.Debug("execute complete", zap.String("mode", string(result.Mode)), zap.Int("score", result.Activation.Score))
	}
}
