package llm

import (
	"fmt"
	"regexp"

	"github.com/rlm-systems/rlm-runtime/internal/eventbus"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// classification patterns, ordered most-specific first: the first list
// whose pattern matches wins. Mirrors the teacher's ordered regex-table
// style for request classification.
var (
	architecturePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)architect`),
		regexp.MustCompile(`(?i)system\s+design`),
		regexp.MustCompile(`(?i)overall\s+structure`),
		regexp.MustCompile(`(?i)design\s+(pattern|decision)`),
	}
	multiFilePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)across\s+(all|multiple|the)\s+files?`),
		regexp.MustCompile(`(?i)every\s+(file|module|package)`),
		regexp.MustCompile(`(?i)refactor\s+.+\s+and\s+.+`),
		regexp.MustCompile(`(?i)rename\s+.+\s+throughout`),
	}
	debuggingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(bug|crash|panic|stack\s*trace|traceback)\b`),
		regexp.MustCompile(`(?i)\bfails?\s+(with|because|when)\b`),
		regexp.MustCompile(`(?i)\bwhy\s+(is|does|isn't|doesn't)\b`),
		regexp.MustCompile(`(?i)\bnot\s+working\b`),
	}
	extractionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(extract|list|find|summarize|summarise)\b`),
		regexp.MustCompile(`(?i)\bwhat\s+(functions?|types?|methods?)\b`),
	}
)

// ClassifyQuery assigns the heuristic QueryType a routing decision keys
// off, checking pattern groups in priority order and defaulting to Simple.
func ClassifyQuery(query string) QueryType {
	switch {
	case matchesAny(architecturePatterns, query):
		return QueryArchitecture
	case matchesAny(multiFilePatterns, query):
		return QueryMultiFile
	case matchesAny(debuggingPatterns, query):
		return QueryDebugging
	case matchesAny(extractionPatterns, query):
		return QueryExtraction
	default:
		return QuerySimple
	}
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// SmartRouter picks a ModelSpec for a query given its routing context.
type SmartRouter struct {
	models []ModelSpec
	bus    *eventbus.Bus
}

// NewSmartRouter constructs a router over a fixed model table. Pass nil
// for bus to disable routing-decision publication.
func NewSmartRouter(models []ModelSpec, bus *eventbus.Bus) *SmartRouter {
	return &SmartRouter{models: models, bus: bus}
}

// DefaultModels is the built-in routing table: one Gemini model per tier,
// the only provider this tree has a live client for.
func DefaultModels() []ModelSpec {
	return []ModelSpec{
		{
			ID: "gemini-3-pro-preview", Name: "Gemini 3 Pro", Provider: ProviderGemini, Tier: TierFlagship,
			ContextWindow: 1_000_000, MaxOutput: 65536, InputCostPerM: 2.5, OutputCostPerM: 10,
			SupportsCaching: true, SupportsVision: true, SupportsTools: true,
		},
		{
			ID: "gemini-3-flash-preview", Name: "Gemini 3 Flash", Provider: ProviderGemini, Tier: TierBalanced,
			ContextWindow: 1_000_000, MaxOutput: 65536, InputCostPerM: 0.3, OutputCostPerM: 1.2,
			SupportsCaching: true, SupportsVision: true, SupportsTools: true,
		},
		{
			ID: "gemini-flash-lite", Name: "Gemini Flash Lite", Provider: ProviderGemini, Tier: TierFast,
			ContextWindow: 1_000_000, MaxOutput: 65536, InputCostPerM: 0.1, OutputCostPerM: 0.4,
			SupportsCaching: false, SupportsVision: false, SupportsTools: true,
		},
	}
}

// Models returns the router's fixed model table.
func (r *SmartRouter) Models() []ModelSpec {
	return r.models
}

// Route chooses a model for query under ctx. Budget-exhaustion pressure
// downgrades the base tier one step once remaining budget drops below
// $0.10; depth approaching max_depth does the same, since deep recursive
// calls should get cheaper as the pipeline narrows. Capability
// requirements filter the candidate set before tier selection.
func (r *SmartRouter) Route(query string, ctx RoutingContext) RoutingDecision {
	queryType := ClassifyQuery(query)
	tier := queryType.BaseTier()

	reason := fmt.Sprintf("query_type:%s", queryType)

	if ctx.RemainingBudget != nil && *ctx.RemainingBudget < 0.10 && tier < TierFast {
		tier++
		reason += ",budget_pressure"
	}
	if ctx.MaxDepth > 0 && ctx.Depth >= ctx.MaxDepth-1 && tier < TierFast {
		tier++
		reason += ",depth_pressure"
	}

	candidates := r.filterCapable(ctx)
	model, ok := pickTier(candidates, tier)
	if !ok {
		// Fall back to the best available candidate regardless of tier;
		// if nothing satisfies the capability requirements, fall back to
		// the full table so Route never returns a zero ModelSpec.
		if len(candidates) > 0 {
			model = candidates[0]
			reason += ",tier_unavailable"
		} else if len(r.models) > 0 {
			model = r.models[0]
			reason += ",no_capable_model"
		}
	}

	cost := model.CalculateCost(1000, 500)
	decision := RoutingDecision{
		Model:         model,
		QueryType:     queryType,
		Tier:          tier,
		Reason:        reason,
		EstimatedCost: &cost,
	}

	if r.bus != nil {
		r.bus.Publish(rlmtypes.EventRouteDecision, uint32(ctx.Depth), model.ID, map[string]interface{}{
			"query_type": string(queryType),
			"tier":       tier.String(),
			"reason":     reason,
		})
	}

	return decision
}

func (r *SmartRouter) filterCapable(ctx RoutingContext) []ModelSpec {
	out := make([]ModelSpec, 0, len(r.models))
	for _, m := range r.models {
		if ctx.RequireCaching && !m.SupportsCaching {
			continue
		}
		if ctx.RequireVision && !m.SupportsVision {
			continue
		}
		if ctx.RequireTools && !m.SupportsTools {
			continue
		}
		if ctx.PreferredProvider != nil && m.Provider != *ctx.PreferredProvider {
			continue
		}
		out = append(out, m)
	}
	if len(out) == 0 && ctx.PreferredProvider != nil {
		// Preferred provider eliminated everything; retry without it so a
		// hard capability requirement still has a chance to be met.
		relaxed := ctx
		relaxed.PreferredProvider = nil
		return r.filterCapable(relaxed)
	}
	return out
}

func pickTier(models []ModelSpec, tier ModelTier) (ModelSpec, bool) {
	for _, m := range models {
		if m.Tier == tier {
			return m, true
		}
	}
	return ModelSpec{}, false
}
