package proof

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlm-systems/rlm-runtime/internal/mangle"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// fakeExec succeeds on a configured tactic name (or never, if empty) and
// fails on everything else.
type fakeExec struct {
	winningTactic string
	calls         []string
}

func (f *fakeExec) Execute(_ context.Context, code string, _ int, _ bool) (rlmtypes.ExecuteResult, error) {
	f.calls = append(f.calls, code)
	if f.winningTactic != "" && code == f.winningTactic {
		return rlmtypes.ExecuteResult{Success: true, Result: "no goals"}, nil
	}
	return rlmtypes.ExecuteResult{Success: false, Error: "unsolved goals"}, nil
}

func newTestEngine(t *testing.T) *mangle.Engine {
	engine, err := mangle.NewEngine(mangle.DefaultConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, engine.LoadSchemaString(mangle.DefaultSchema))
	return engine
}

func TestInferDomain(t *testing.T) {
	assert.Equal(t, DomainArithmetic, InferDomain("prove that nat addition is commutative"))
	assert.Equal(t, DomainArithmetic, InferDomain("show that a <= b implies a < b + 1"))
	assert.Equal(t, DomainSetTheory, InferDomain("x is a member of the finset"))
	assert.Equal(t, DomainGeneral, InferDomain("an abstract proposition about widgets"))
}

func TestCascade_DecidableTierWinsOnFirstTactic(t *testing.T) {
	exec := &fakeExec{winningTactic: "decide"}
	engine := newTestEngine(t)
	c := New(exec, nil, "", engine, nil)

	result, err := c.Attempt(context.Background(), Goal{Text: "2 + 2 = 4"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, rlmtypes.TierDecidable, result.WinningTier)
	assert.Equal(t, "decide", result.Tactic)
	assert.Equal(t, "decide", exec.calls[0], "decide must be tried first per the default strategy order")
}

func TestCascade_FallsThroughToAutomationTier(t *testing.T) {
	exec := &fakeExec{winningTactic: "linarith"}
	engine := newTestEngine(t)
	c := New(exec, nil, "", engine, nil)

	result, err := c.Attempt(context.Background(), Goal{Text: "a <= b"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, rlmtypes.TierAutomation, result.WinningTier)
	assert.Equal(t, "linarith", result.Tactic)

	var decidableTried int
	for _, call := range exec.calls {
		if call == "decide" || call == "native_decide" || call == "omega" || call == "simp" || call == "rfl" {
			decidableTried++
		}
	}
	assert.Equal(t, 5, decidableTried, "every decidable tactic must be exhausted before falling through")
}

func TestCascade_NoClientFallsStraightToHumanLoop(t *testing.T) {
	exec := &fakeExec{} // nothing ever succeeds
	engine := newTestEngine(t)
	c := New(exec, nil, "", engine, nil)

	result, err := c.Attempt(context.Background(), Goal{Text: "an unprovable goal"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, rlmtypes.TierHumanLoop, result.WinningTier)
	assert.True(t, result.SorryLeft)
	assert.Equal(t, "sorry", result.Attempts[len(result.Attempts)-1].Tactic)
}

func TestCascade_PromotesWinningTacticToFrontOfStrategy(t *testing.T) {
	exec := &fakeExec{winningTactic: "omega"}
	engine := newTestEngine(t)
	c := New(exec, nil, "", engine, nil)

	_, err := c.Attempt(context.Background(), Goal{Domain: DomainArithmetic, Text: "x + 0 = x"})
	require.NoError(t, err)

	tactics := c.tacticsFor(DomainArithmetic, rlmtypes.TierDecidable)
	require.NotEmpty(t, tactics)
	assert.Equal(t, "omega", tactics[0], "a winning tactic must move to the front for the next goal in this domain")
}

func TestCascade_RecordsTacticTriedAndSuccessFacts(t *testing.T) {
	exec := &fakeExec{winningTactic: "rfl"}
	engine := newTestEngine(t)
	c := New(exec, nil, "", engine, nil)

	_, err := c.Attempt(context.Background(), Goal{Domain: DomainGeneral, Text: "x = x"})
	require.NoError(t, err)

	tried, err := engine.GetFacts("tactic_tried")
	require.NoError(t, err)
	assert.NotEmpty(t, tried)

	success, err := engine.GetFacts("tactic_success")
	require.NoError(t, err)
	require.Len(t, success, 1)
	assert.Equal(t, "/rfl", success[0].Args[1])
}

type fakeAIClient struct {
	response string
}

func (f *fakeAIClient) Complete(_ context.Context, _ rlmtypes.CompletionRequest) (rlmtypes.CompletionResponse, error) {
	return rlmtypes.CompletionResponse{Content: f.response}, nil
}

func TestCascade_AITierTriesSuggestedTacticsInOrder(t *testing.T) {
	exec := &fakeExec{winningTactic: "induction n"}
	engine := newTestEngine(t)
	client := &fakeAIClient{response: "simp_all\ninduction n\nring"}
	c := New(exec, client, "test-model", engine, nil)

	result, err := c.Attempt(context.Background(), Goal{Text: "an obscure goal about widgets"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, rlmtypes.TierAIAssisted, result.WinningTier)
	assert.Equal(t, "induction n", result.Tactic)

	joined := strings.Join(exec.calls, ",")
	assert.Contains(t, joined, "simp_all,induction n", "AI-suggested tactics must be tried in the order the model returned them")
}
