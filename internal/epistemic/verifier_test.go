package epistemic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

func TestProbabilityFromSamples_NarrowsWithMoreSamples(t *testing.T) {
	small := ProbabilityFromSamples(8, 10)
	large := ProbabilityFromSamples(80, 100)

	assert.InDelta(t, small.Estimate, large.Estimate, 1e-9)
	assert.Less(t, large.Upper-large.Lower, small.Upper-small.Lower)
}

func TestProbabilityFromSamples_ZeroSamplesIsUninformative(t *testing.T) {
	p := ProbabilityFromSamples(0, 0)
	assert.Equal(t, 0, p.NSamples)
	assert.InDelta(t, 0.5, p.Estimate, 1e-9)
}

func TestVerifier_Evaluate_GroundedClaim(t *testing.T) {
	v := New(DefaultConfig(), nil)
	claim := rlmtypes.Claim{ID: "c1", Specificity: 0.5}
	p0 := rlmtypes.Probability{Estimate: 0.5, Lower: 0.3, Upper: 0.7, NSamples: 20}
	p1 := rlmtypes.Probability{Estimate: 0.95, Lower: 0.85, Upper: 0.99, NSamples: 20}

	result := v.Evaluate(claim, p0, p1)

	assert.Equal(t, rlmtypes.StatusGrounded, result.Status)
	assert.True(t, result.IsGrounded())
	assert.Less(t, result.BudgetGap, 0.0)
}

func TestVerifier_Evaluate_UngroundedClaim(t *testing.T) {
	v := New(DefaultConfig(), nil)
	claim := rlmtypes.Claim{ID: "c2", Specificity: 0.99}
	p0 := rlmtypes.Probability{Estimate: 0.5, Lower: 0.4, Upper: 0.6, NSamples: 10}
	p1 := rlmtypes.Probability{Estimate: 0.55, Lower: 0.45, Upper: 0.65, NSamples: 10}

	result := v.Evaluate(claim, p0, p1)

	assert.Equal(t, rlmtypes.StatusUngrounded, result.Status)
	assert.False(t, result.IsGrounded())
}

func TestMemoryGate_RejectsLargeGap(t *testing.T) {
	gate := NewMemoryGate(DefaultConfig())
	decision, confidence := gate.Decide(rlmtypes.BudgetResult{BudgetGap: 0.8, Status: rlmtypes.StatusUngrounded})
	assert.Equal(t, GateReject, decision)
	assert.Zero(t, confidence)
}

func TestMemoryGate_AllowsWithPenaltyWhenWeaklyGrounded(t *testing.T) {
	gate := NewMemoryGate(DefaultConfig())
	decision, confidence := gate.Decide(rlmtypes.BudgetResult{BudgetGap: 0.3, Status: rlmtypes.StatusWeaklyGrounded, Confidence: 0.8})
	assert.Equal(t, GateAllowWithPenalty, decision)
	assert.InDelta(t, 0.4, confidence, 1e-9)
}

func TestMemoryGate_AllowsGrounded(t *testing.T) {
	gate := NewMemoryGate(DefaultConfig())
	decision, confidence := gate.Decide(rlmtypes.BudgetResult{BudgetGap: -0.1, Status: rlmtypes.StatusGrounded, Confidence: 0.9})
	assert.Equal(t, GateAllow, decision)
	assert.InDelta(t, 0.9, confidence, 1e-9)
}

func TestMemoryGate_DefersUncertain(t *testing.T) {
	gate := NewMemoryGate(DefaultConfig())
	decision, _ := gate.Decide(rlmtypes.BudgetResult{BudgetGap: 0.1, Status: rlmtypes.StatusUncertain})
	assert.Equal(t, GateDefer, decision)
}

func TestThresholdGate_RejectsHedgedText(t *testing.T) {
	gate := DefaultThresholdGate()
	assert.False(t, gate.Allow("this might possibly be correct", 0.9))
}

func TestThresholdGate_RejectsUniversalClaims(t *testing.T) {
	gate := DefaultThresholdGate()
	assert.False(t, gate.Allow("this always happens", 0.9))
}

func TestThresholdGate_AllowsConfidentUnhedgedText(t *testing.T) {
	gate := DefaultThresholdGate()
	assert.True(t, gate.Allow("the function returns an error on timeout", 0.6))
	assert.False(t, gate.Allow("the function returns an error on timeout", 0.2))
}
