// Package llm implements the LLM Client Contract: a uniform completion
// interface, a heuristic model router, and bounded-parallelism batched
// execution over it.
package llm

// Provider is the closed set of upstream LLM providers a ModelSpec can
// name. Gemini is the one with a concrete Client implementation in this
// tree (GenAIClient); the others exist so RoutingContext.PreferredProvider
// and ModelSpec.Provider can express a real routing table without every
// provider needing a live client.
type Provider string

const (
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
	ProviderGemini     Provider = "gemini"
)

// ModelTier ranks models by capability/cost, most capable first.
type ModelTier int

const (
	TierFlagship ModelTier = iota
	TierBalanced
	TierFast
)

func (t ModelTier) String() string {
	switch t {
	case TierFlagship:
		return "flagship"
	case TierBalanced:
		return "balanced"
	case TierFast:
		return "fast"
	default:
		return "unknown"
	}
}

// ModelSpec describes one routable model: identity, tier, pricing, and
// capability flags the router checks against RoutingContext requirements.
type ModelSpec struct {
	ID               string
	Name             string
	Provider         Provider
	Tier             ModelTier
	ContextWindow    int
	MaxOutput        int
	InputCostPerM    float64
	OutputCostPerM   float64
	SupportsCaching  bool
	SupportsVision   bool
	SupportsTools    bool
}

// CalculateCost estimates USD cost for a completion with the given token
// counts, using this model's per-million-token pricing.
func (m ModelSpec) CalculateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1_000_000*m.InputCostPerM + float64(outputTokens)/1_000_000*m.OutputCostPerM
}

// QueryType is the heuristic classification of a query's shape, used to
// pick a default tier before any explicit model override.
type QueryType string

const (
	QueryArchitecture QueryType = "architecture"
	QueryMultiFile    QueryType = "multi_file"
	QueryDebugging    QueryType = "debugging"
	QueryExtraction   QueryType = "extraction"
	QuerySimple       QueryType = "simple"
)

// BaseTier is the default model tier for this query type absent any other
// routing pressure: architecture/multi-file analysis defaults flagship,
// debugging/extraction default balanced, everything else defaults fast.
func (q QueryType) BaseTier() ModelTier {
	switch q {
	case QueryArchitecture, QueryMultiFile:
		return TierFlagship
	case QueryDebugging, QueryExtraction:
		return TierBalanced
	default:
		return TierFast
	}
}

// RoutingContext carries the caller's routing pressure: how deep into a
// recursive pipeline this call is, how much budget remains, and any hard
// capability requirements.
type RoutingContext struct {
	Depth             int
	MaxDepth          int
	RemainingBudget   *float64
	PreferredProvider *Provider
	RequireCaching    bool
	RequireVision     bool
	RequireTools      bool
}

// RoutingDecision is the router's output: which model to use, the tier and
// query type that led there, an estimated cost if computable, and a
// human-readable reason suitable for the event bus.
type RoutingDecision struct {
	Model         ModelSpec
	QueryType     QueryType
	Tier          ModelTier
	Reason        string
	EstimatedCost *float64
}
