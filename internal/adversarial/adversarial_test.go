package adversarial

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

type fakeClient struct {
	responses []string
	calls     int
}

func (f *fakeClient) Complete(_ context.Context, _ rlmtypes.CompletionRequest) (rlmtypes.CompletionResponse, error) {
	i := f.calls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.calls++
	return rlmtypes.CompletionResponse{Content: f.responses[i]}, nil
}

const oneIssueBlock = `ISSUE: missing nil check
DESCRIPTION: the handler dereferences req.User without checking for nil
LOCATION: handler.go:42
SUGGESTION: add a nil check before dereferencing
CONFIDENCE: 90
SEVERITY: high`

func TestParseIssues_SingleBlock(t *testing.T) {
	issues := parseIssues(oneIssueBlock)
	require.Len(t, issues, 1)
	assert.Equal(t, "missing nil check", issues[0].Title)
	assert.Equal(t, "the handler dereferences req.User without checking for nil", issues[0].Description)
	assert.Equal(t, "handler.go:42", issues[0].Location)
	assert.Equal(t, rlmtypes.SeverityHigh, issues[0].Severity)
	assert.InDelta(t, 0.9, issues[0].Confidence, 0.001)
	assert.True(t, issues[0].Blocking)
}

func TestParseIssues_MultipleBlocksAndNoIssues(t *testing.T) {
	two := oneIssueBlock + "\n\nISSUE: slow loop\nDESCRIPTION: O(n^2) scan\nLOCATION: n/a\nSUGGESTION: use a map\nCONFIDENCE: 60\nSEVERITY: low"
	issues := parseIssues(two)
	require.Len(t, issues, 2)
	assert.Equal(t, "slow loop", issues[1].Title)
	assert.Equal(t, rlmtypes.SeverityLow, issues[1].Severity)

	assert.Nil(t, parseIssues("NO ISSUES FOUND"))
}

func TestSecurityStrategy_ElevatesLowSeverityAndForcesBlocking(t *testing.T) {
	// literal scenario: a Low-severity security issue marked non-blocking
	// must come out of the security strategy's post-processor as Medium
	// and blocking=true.
	issue := rlmtypes.Issue{
		Category: rlmtypes.IssueSecurity,
		Severity: rlmtypes.SeverityLow,
		Blocking: false,
	}
	processed := SecurityStrategy().PostProcess(issue)

	assert.Equal(t, rlmtypes.SeverityMedium, processed.Severity)
	assert.True(t, processed.Blocking)
}

func TestSecurityStrategy_LeavesHigherSeverityAlone(t *testing.T) {
	issue := rlmtypes.Issue{Category: rlmtypes.IssueSecurity, Severity: rlmtypes.SeverityCritical, Blocking: true}
	processed := SecurityStrategy().PostProcess(issue)
	assert.Equal(t, rlmtypes.SeverityCritical, processed.Severity)
}

func TestValidator_ReviewAppliesSecurityPostProcessEndToEnd(t *testing.T) {
	client := &fakeClient{responses: []string{
		"ISSUE: weak auth check\nDESCRIPTION: token comparison is not constant time\nLOCATION: auth.go:10\nSUGGESTION: use hmac.Equal\nCONFIDENCE: 80\nSEVERITY: low",
	}}
	v := New(client, "critic-model", []Strategy{SecurityStrategy()}, DefaultConfig(), nil)

	issues, err := v.Review(context.Background(), Bundle{Request: "r", Response: "resp"})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, rlmtypes.SeverityMedium, issues[0].Severity)
	assert.True(t, issues[0].Blocking)
	assert.Equal(t, rlmtypes.IssueSecurity, issues[0].Category)
}

func TestValidator_RunIterativeStopsWhenNoBlockingIssueRemains(t *testing.T) {
	client := &fakeClient{responses: []string{
		"ISSUE: cosmetic naming\nDESCRIPTION: variable name could be clearer\nLOCATION: n/a\nSUGGESTION: rename\nCONFIDENCE: 50\nSEVERITY: info",
	}}
	v := New(client, "m", []Strategy{CriticStrategy()}, DefaultConfig(), nil)

	result, err := v.RunIterative(context.Background(), Bundle{Request: "r", Response: "resp"})
	require.NoError(t, err)
	assert.Equal(t, VerdictApproved, result.Verdict)
	assert.Equal(t, 1, result.Iterations)
	assert.Len(t, result.Issues, 1)
}

func TestValidator_RunIterativeRejectsWhenBlockingIssuePersists(t *testing.T) {
	block := "ISSUE: sql injection\nDESCRIPTION: user input concatenated into query\nLOCATION: db.go:5\nSUGGESTION: use parameterized queries\nCONFIDENCE: 95\nSEVERITY: high"
	client := &fakeClient{responses: []string{block, block, block}}
	v := New(client, "m", []Strategy{SecurityStrategy()}, Config{MaxIterations: 3}, nil)

	result, err := v.RunIterative(context.Background(), Bundle{Request: "r", Response: "resp"})
	require.NoError(t, err)
	assert.Equal(t, VerdictRejected, result.Verdict)
	assert.Equal(t, 3, result.Iterations)
	assert.Len(t, result.Issues, 1, "the same title should be de-duplicated across iterations")
}

func TestValidator_MinConfidenceDropsWeakIssues(t *testing.T) {
	client := &fakeClient{responses: []string{
		"ISSUE: maybe an issue\nDESCRIPTION: not sure\nLOCATION: n/a\nSUGGESTION: investigate\nCONFIDENCE: 20\nSEVERITY: low",
	}}
	v := New(client, "m", []Strategy{CriticStrategy()}, Config{MaxIterations: 1, MinConfidence: 0.5}, nil)

	issues, err := v.Review(context.Background(), Bundle{Request: "r", Response: "resp"})
	require.NoError(t, err)
	assert.Empty(t, issues)
}
