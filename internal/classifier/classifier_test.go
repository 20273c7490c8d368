package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_SimpleQueryDoesNotActivate(t *testing.T) {
	c := New(DefaultThreshold, nil)
	decision := c.Classify("what is 2 + 2", SessionContext{}, Options{})

	assert.False(t, decision.ShouldActivate)
	assert.Equal(t, "simple_task", decision.Reason)
	assert.Equal(t, 0, decision.Score)
}

func TestClassify_ArchitectureSecurityQueryActivates(t *testing.T) {
	c := New(DefaultThreshold, nil)
	decision := c.Classify("analyze the architecture and find all security issues", SessionContext{}, Options{})

	require.True(t, decision.ShouldActivate)
	assert.GreaterOrEqual(t, decision.Score, 9)
	assert.True(t, decision.Signals.ArchitectureAnalysis)
	assert.True(t, decision.Signals.SecurityReview)
	assert.True(t, decision.Signals.ExhaustiveSearch)
}

func TestClassify_ForceActivationReportsScore100(t *testing.T) {
	c := New(DefaultThreshold, nil)
	decision := c.Classify("what is 2 + 2", SessionContext{}, Options{ForceActivation: true})

	assert.True(t, decision.ShouldActivate)
	assert.Equal(t, 100, decision.Score)
}

func TestClassify_NegativeSignalReducesScore(t *testing.T) {
	c := New(DefaultThreshold, nil)
	decision := c.Classify("give me a quick one-liner fix for this bug", SessionContext{}, Options{})

	assert.True(t, decision.Signals.UserWantsFast)
	assert.True(t, decision.Signals.Debugging)
	assert.Equal(t, 2-3, decision.Score)
}

func TestClassify_SessionContextCountersContributeSignals(t *testing.T) {
	c := New(DefaultThreshold, nil)
	decision := c.Classify("what about this", SessionContext{FilesInScope: 10}, Options{})

	assert.True(t, decision.Signals.MultiFile)
	assert.True(t, decision.ShouldActivate)
}

func TestClassify_ThresholdOverridePerCall(t *testing.T) {
	c := New(DefaultThreshold, nil)
	decision := c.Classify("why does this fail", SessionContext{}, Options{Threshold: 10})

	assert.True(t, decision.Signals.Debugging)
	assert.False(t, decision.ShouldActivate)
}
