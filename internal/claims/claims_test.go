package claims

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

func TestExtract_DropsQuestionsAndMetaCommentary(t *testing.T) {
	e := New(DefaultOptions())
	out := e.Extract("Let me check the file first. Did you mean to do this? The config uses port 8080.")

	for _, c := range out {
		assert.False(t, strings.HasSuffix(c.Text, "?"))
	}
	var texts []string
	for _, c := range out {
		texts = append(texts, c.Text)
	}
	assert.NotContains(t, texts, "Let me check the file first.")
}

func TestExtract_RespectsLengthBounds(t *testing.T) {
	e := New(Options{MinLength: 8, MaxLength: 40})
	out := e.Extract("Ok. This sentence is within bounds nicely. This one runs on for far too long to fit inside the configured maximum length bound and should be dropped entirely from the result.")

	for _, c := range out {
		assert.GreaterOrEqual(t, len(c.Text), 8)
		assert.LessOrEqual(t, len(c.Text), 40)
	}
}

func TestExtract_AssignsIDsAndSourceSpans(t *testing.T) {
	e := New(DefaultOptions())
	out := e.Extract("The config uses port 8080 for its listener.")
	require.Len(t, out, 1)

	assert.NotEmpty(t, out[0].ID)
	require.NotNil(t, out[0].SourceSpan)
	start, end := out[0].SourceSpan[0], out[0].SourceSpan[1]
	assert.Equal(t, out[0].Text, "The config uses port 8080 for its listener.")
	assert.True(t, end > start)
}

func TestExtract_CategorizesCodeBehavior(t *testing.T) {
	e := New(DefaultOptions())
	out := e.Extract("The getUserData() function caches its result for five minutes.")
	require.NotEmpty(t, out)
	assert.Equal(t, rlmtypes.CategoryCodeBehavior, out[0].Category)
}

func TestExtract_CategorizesNumerical(t *testing.T) {
	e := New(DefaultOptions())
	out := e.Extract("The response time dropped to 42 milliseconds after the change.")
	require.NotEmpty(t, out)
	assert.Equal(t, rlmtypes.CategoryNumerical, out[0].Category)
}

func TestExtract_CategorizesRelational(t *testing.T) {
	e := New(DefaultOptions())
	out := e.Extract("This module depends on the upstream authentication service.")
	require.NotEmpty(t, out)
	assert.Equal(t, rlmtypes.CategoryRelational, out[0].Category)
}

func TestExtract_HedgedClaimHasLowerSpecificityThanUnhedged(t *testing.T) {
	e := New(DefaultOptions())
	hedged := e.Extract("This might always work on every platform we support.")
	unhedged := e.Extract("This always works on every platform we support.")

	require.NotEmpty(t, hedged)
	require.NotEmpty(t, unhedged)
	assert.Less(t, hedged[0].Specificity, unhedged[0].Specificity)
}

func TestExtract_CrossLinksInlineEvidence(t *testing.T) {
	e := New(DefaultOptions())
	out := e.Extract("The fix lives in internal/sandbox/handle.go and uses `uuid.NewString()` for ids.")
	require.NotEmpty(t, out)

	var kinds []rlmtypes.EvidenceType
	for _, ev := range out[0].EvidenceRefs {
		kinds = append(kinds, ev.Type)
		assert.NotEmpty(t, ev.ID)
		assert.Greater(t, ev.Strength, 0.0)
	}
	assert.Contains(t, kinds, rlmtypes.EvidenceCodeRef)
}

func TestExtract_SpecificityAlwaysWithinBounds(t *testing.T) {
	e := New(DefaultOptions())
	samples := []string{
		"Maybe this could possibly work sometimes.",
		"ALL tests ALWAYS pass on EVERY platform with 100% coverage and 42 assertions.",
		"It works.",
	}
	for _, s := range samples {
		out := e.Extract(s)
		for _, c := range out {
			assert.GreaterOrEqual(t, c.Specificity, 0.1)
			assert.LessOrEqual(t, c.Specificity, 0.95)
		}
	}
}
