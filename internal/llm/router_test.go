package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyQuery(t *testing.T) {
	cases := []struct {
		query string
		want  QueryType
	}{
		{"Can you review the overall system design here?", QueryArchitecture},
		{"Rename this function and update it throughout the codebase", QueryMultiFile},
		{"The server panics with a stack trace on startup", QueryDebugging},
		{"List all the exported functions in this package", QueryExtraction},
		{"What's two plus two?", QuerySimple},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassifyQuery(c.query), c.query)
	}
}

func TestSmartRouter_RoutesByBaseTier(t *testing.T) {
	r := NewSmartRouter(DefaultModels(), nil)

	decision := r.Route("design the overall architecture for this service", RoutingContext{})
	assert.Equal(t, TierFlagship, decision.Tier)
	assert.Equal(t, QueryArchitecture, decision.QueryType)

	decision = r.Route("what's the capital of France?", RoutingContext{})
	assert.Equal(t, TierFast, decision.Tier)
}

func TestSmartRouter_BudgetPressureDowngradesTier(t *testing.T) {
	r := NewSmartRouter(DefaultModels(), nil)
	tiny := 0.01

	decision := r.Route("design the system architecture", RoutingContext{RemainingBudget: &tiny})
	assert.Equal(t, TierBalanced, decision.Tier)
}

func TestSmartRouter_DepthPressureDowngradesTier(t *testing.T) {
	r := NewSmartRouter(DefaultModels(), nil)

	decision := r.Route("extract all function names", RoutingContext{Depth: 4, MaxDepth: 5})
	assert.Equal(t, TierFast, decision.Tier)
}

func TestSmartRouter_CapabilityRequirementFiltersCandidates(t *testing.T) {
	r := NewSmartRouter(DefaultModels(), nil)

	decision := r.Route("what's happening here?", RoutingContext{RequireCaching: true})
	assert.True(t, decision.Model.SupportsCaching)
}

func TestSmartRouter_PreferredProviderEliminatedFallsBackToAnyCapable(t *testing.T) {
	anthropic := ProviderAnthropic
	r := NewSmartRouter(DefaultModels(), nil)

	decision := r.Route("what's happening here?", RoutingContext{PreferredProvider: &anthropic})
	assert.NotEmpty(t, decision.Model.ID)
}

func TestModelSpec_CalculateCost(t *testing.T) {
	m := ModelSpec{InputCostPerM: 2.5, OutputCostPerM: 10}
	cost := m.CalculateCost(1_000_000, 500_000)
	assert.InDelta(t, 2.5+5.0, cost, 1e-9)
}
