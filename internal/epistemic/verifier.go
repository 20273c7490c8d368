package epistemic

import (
	"math"

	"github.com/rlm-systems/rlm-runtime/internal/eventbus"
	"github.com/rlm-systems/rlm-runtime/internal/logging"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// wilsonZ is the z-score for a 95% confidence interval.
const wilsonZ = 1.959963984540054

// ProbabilityFromSamples derives a Probability with a Wilson 95% confidence
// interval from k agreeing samples out of n total.
func ProbabilityFromSamples(k, n int) rlmtypes.Probability {
	if n <= 0 {
		return rlmtypes.Probability{Estimate: 0.5, Lower: minProb, Upper: maxProb, NSamples: 0}
	}
	phat := float64(k) / float64(n)
	z2 := wilsonZ * wilsonZ
	denom := 1 + z2/float64(n)
	center := phat + z2/(2*float64(n))
	margin := wilsonZ * math.Sqrt(phat*(1-phat)/float64(n)+z2/(4*float64(n)*float64(n)))

	lower := (center - margin) / denom
	upper := (center + margin) / denom

	return rlmtypes.Probability{
		Estimate: Clamp(phat),
		Lower:    Clamp(lower),
		Upper:    Clamp(upper),
		NSamples: n,
	}
}

// Config holds the epistemic verifier's tunable thresholds.
type Config struct {
	HallucinationThreshold float64 // budget_gap above which EventHallucinationFlag fires
	RejectionThreshold     float64 // gap above which the memory gate Rejects (default 0.5)
	AllowWeakGrounding     bool
	WeakGroundingPenalty   float64 // confidence multiplier penalty for AllowWithPenalty
}

// DefaultConfig returns the spec's default thresholds.
func DefaultConfig() Config {
	return Config{
		HallucinationThreshold: 0.5,
		RejectionThreshold:     0.5,
		AllowWeakGrounding:     true,
		WeakGroundingPenalty:   0.5,
	}
}

// Verifier computes BudgetResults for claims given sampled prior/posterior
// probabilities, and publishes BudgetComputed/HallucinationFlag events.
type Verifier struct {
	cfg Config
	bus *eventbus.Bus
}

// New constructs a Verifier. bus may be nil to disable event publication.
func New(cfg Config, bus *eventbus.Bus) *Verifier {
	return &Verifier{cfg: cfg, bus: bus}
}

// StatusFromGap maps a budget gap to its GroundingStatus per the fixed
// thresholds: gap<=0 -> Grounded, 0<gap<=0.5 -> WeaklyGrounded, gap>0.5 ->
// Ungrounded. Monotone in gap.
func StatusFromGap(gap float64) rlmtypes.GroundingStatus {
	switch {
	case gap <= 0:
		return rlmtypes.StatusGrounded
	case gap <= 0.5:
		return rlmtypes.StatusWeaklyGrounded
	default:
		return rlmtypes.StatusUngrounded
	}
}

// Evaluate computes the BudgetResult for a claim given its prior p0 and
// posterior p1 probability samples. observed_bits treats the prior as the
// reference distribution being tested against the posterior: a posterior
// far from the prior, in the direction the claim asserts, produces a large
// positive KL (strong evidence); required_bits is the specificity's
// information demand. See DESIGN.md for the p0/p1 argument-order note.
func (v *Verifier) Evaluate(claim rlmtypes.Claim, p0, p1 rlmtypes.Probability) rlmtypes.BudgetResult {
	observedBits := KLBernoulliBits(p0.Estimate, p1.Estimate)
	requiredBits := RequiredBits(claim.Specificity)
	gap := requiredBits - observedBits
	status := StatusFromGap(gap)

	result := rlmtypes.BudgetResult{
		ClaimID:      claim.ID,
		P0:           p0,
		P1:           p1,
		ObservedBits: observedBits,
		RequiredBits: requiredBits,
		BudgetGap:    gap,
		Status:       status,
		Confidence:   confidenceFromSamples(p0, p1),
	}

	if v.bus != nil {
		v.bus.Publish(rlmtypes.EventBudgetComputed, 0, claim.ID, map[string]interface{}{
			"observed_bits": observedBits,
			"required_bits": requiredBits,
			"budget_gap":    gap,
			"status":        string(status),
		})
		if gap > v.cfg.HallucinationThreshold {
			v.bus.Publish(rlmtypes.EventHallucinationFlag, 0, claim.ID, map[string]interface{}{
				"budget_gap": gap,
			})
		}
	}

	logging.Get(logging.CategoryEpistemic).Debug(
		"claim %s: observed=%.4f required=%.4f gap=%.4f status=%s",
		claim.ID, observedBits, requiredBits, gap, status)

	return result
}

func confidenceFromSamples(p0, p1 rlmtypes.Probability) float64 {
	n := p0.NSamples + p1.NSamples
	if n == 0 {
		return 0
	}
	spread := (p1.Upper - p1.Lower) + (p0.Upper - p0.Lower)
	confidence := 1 - spread/2
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// GateDecision is the outcome of the memory gate's admission check.
type GateDecision string

const (
	GateAllow           GateDecision = "allow"
	GateAllowWithPenalty GateDecision = "allow_with_penalty"
	GateDefer           GateDecision = "defer"
	GateReject          GateDecision = "reject"
)

// MemoryGate wraps a Verifier's BudgetResult with the admission policy for
// writing a candidate node into the (external) memory store.
type MemoryGate struct {
	cfg Config
}

// NewMemoryGate constructs a MemoryGate using cfg's rejection threshold and
// weak-grounding policy.
func NewMemoryGate(cfg Config) *MemoryGate {
	return &MemoryGate{cfg: cfg}
}

// Decide applies the gate policy to a BudgetResult, returning the decision
// and the (possibly penalized) confidence to record alongside the write.
func (g *MemoryGate) Decide(result rlmtypes.BudgetResult) (GateDecision, float64) {
	switch {
	case result.BudgetGap > g.cfg.RejectionThreshold:
		return GateReject, 0
	case result.Status == rlmtypes.StatusWeaklyGrounded && g.cfg.AllowWeakGrounding:
		return GateAllowWithPenalty, result.Confidence * (1 - g.cfg.WeakGroundingPenalty)
	case result.Status == rlmtypes.StatusUncertain:
		return GateDefer, result.Confidence
	case result.Status == rlmtypes.StatusGrounded:
		return GateAllow, result.Confidence
	default:
		return GateReject, 0
	}
}

// ThresholdGate is a cheap heuristics-only gate for high-throughput callers
// that cannot afford the verifier's sampling round-trips. It inspects hedge
// words, universal quantifiers, and a caller-supplied existing confidence.
type ThresholdGate struct {
	HedgeWords       []string
	UniversalWords   []string
	MinConfidence    float64
}

// DefaultThresholdGate returns a ThresholdGate with a small built-in lexicon.
func DefaultThresholdGate() ThresholdGate {
	return ThresholdGate{
		HedgeWords:     []string{"might", "maybe", "possibly", "could be", "i think", "probably"},
		UniversalWords: []string{"always", "never", "all", "every", "none"},
		MinConfidence:  0.4,
	}
}

// Allow reports whether text and an existing confidence pass the cheap
// heuristic gate: hedged or over-universal text is rejected outright,
// otherwise the existing confidence must clear MinConfidence.
func (g ThresholdGate) Allow(text string, existingConfidence float64) bool {
	lower := toLower(text)
	for _, hedge := range g.HedgeWords {
		if contains(lower, hedge) {
			return false
		}
	}
	for _, universal := range g.UniversalWords {
		if contains(lower, universal) {
			return false
		}
	}
	return existingConfidence >= g.MinConfidence
}

func toLower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func contains(haystack, needle string) bool {
	if len(needle) == 0 {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
