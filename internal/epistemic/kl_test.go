package epistemic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKLBernoulli_GibbsInequality(t *testing.T) {
	for p := 0.01; p < 1; p += 0.07 {
		for q := 0.01; q < 1; q += 0.07 {
			kl := KLBernoulli(p, q)
			assert.GreaterOrEqualf(t, kl, -1e-9, "KL(%.2f||%.2f) = %.6f should be >= 0", p, q, kl)
		}
	}
}

func TestKLBernoulli_ZeroWhenEqual(t *testing.T) {
	for p := 0.05; p < 1; p += 0.1 {
		assert.InDelta(t, 0, KLBernoulli(p, p), 1e-9)
	}
}

func TestBinaryEntropy_SymmetricAndBounded(t *testing.T) {
	for p := 0.01; p < 1; p += 0.05 {
		assert.InDelta(t, BinaryEntropy(p), BinaryEntropy(1-p), 1e-9)
		assert.LessOrEqual(t, BinaryEntropy(p), 1.0+1e-9)
	}
	assert.InDelta(t, 1.0, BinaryEntropy(0.5), 1e-9)
}

func TestJSD_Symmetric(t *testing.T) {
	assert.InDelta(t, JSD(0.2, 0.8), JSD(0.8, 0.2), 1e-9)
	assert.InDelta(t, 0, JSD(0.5, 0.5), 1e-9)
}

func TestRequiredBits_KnownPoints(t *testing.T) {
	assert.InDelta(t, 1.0, RequiredBits(0.5), 1e-9)
	assert.InDelta(t, math.Log2(10), RequiredBits(0.9), 1e-9)
}

// TestBudgetGrounding_ScenarioThree reproduces the worked example: a claim
// whose prior sits at 0.5 and whose sampled posterior moves to 0.95, with a
// specificity of 0.5 (required_bits = 1.0). Observed bits is computed as
// KL(p0 || p1) in bits -- the prior treated as the reference distribution
// against which the posterior's shift is measured, see DESIGN.md for why
// the opposite argument order produces the wrong sign for this example.
func TestBudgetGrounding_ScenarioThree(t *testing.T) {
	required := RequiredBits(0.5)
	observed := KLBernoulliBits(0.5, 0.95)
	gap := required - observed

	assert.InDelta(t, 1.0, required, 1e-9)
	assert.InDelta(t, 1.198, observed, 0.01)
	assert.Less(t, gap, 0.0)
	assert.InDelta(t, -0.198, gap, 0.01)
	assert.Equal(t, "grounded", string(StatusFromGap(gap)))
}
