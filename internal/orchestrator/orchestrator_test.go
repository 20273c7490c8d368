package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlm-systems/rlm-runtime/internal/adversarial"
	"github.com/rlm-systems/rlm-runtime/internal/claims"
	"github.com/rlm-systems/rlm-runtime/internal/classifier"
	"github.com/rlm-systems/rlm-runtime/internal/epistemic"
	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

type fakePipeline struct {
	output map[string]interface{}
	err    error
	gate   chan struct{} // if non-nil, Forward blocks until closed
}

func (p *fakePipeline) Forward(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	if p.gate != nil {
		<-p.gate
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.output, nil
}

type fakeExecutor struct {
	calledWith string
}

func (e *fakeExecutor) Execute(ctx context.Context, code string, timeoutMs int, captureOutput bool) (rlmtypes.ExecuteResult, error) {
	e.calledWith = code
	return rlmtypes.ExecuteResult{Success: true, Result: "42"}, nil
}

type fakeElicitor struct {
	estimate float64
}

func (e *fakeElicitor) Elicit(ctx context.Context, contextText, claim string) (rlmtypes.Probability, error) {
	return rlmtypes.Probability{Estimate: e.estimate, Lower: e.estimate, Upper: e.estimate, NSamples: 1}, nil
}

type fakeReviewClient struct{}

func (fakeReviewClient) Complete(ctx context.Context, req rlmtypes.CompletionRequest) (rlmtypes.CompletionResponse, error) {
	return rlmtypes.CompletionResponse{Content: "No issues found in this response."}, nil
}

func newActivatingClassifier() *classifier.Classifier {
	return classifier.New(classifier.DefaultThreshold, nil)
}

func TestExecute_DirectModeShortCircuitsOnLowComplexity(t *testing.T) {
	a := New(Config{Classifier: newActivatingClassifier()})
	req := Request{Query: "what time is it"}

	result, err := a.Execute(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeDirect, result.Mode)
	assert.False(t, result.Activation.ShouldActivate)
	assert.Equal(t, ModeDirect, a.Mode())
	assert.Equal(t, StatusDone, a.CurrentStatus())
}

func TestExecute_ActivatedRequestWithNoPipelineFails(t *testing.T) {
	a := New(Config{Classifier: newActivatingClassifier()})
	req := Request{Query: "please find all security vulnerabilities across the entire codebase exhaustively"}

	_, err := a.Execute(context.Background(), req, nil)
	require.Error(t, err)
	kind, ok := rlmerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, rlmerrors.KindConfig, kind)
}

func TestExecute_PipelineModeRunsPredictAndExecute(t *testing.T) {
	a := New(Config{Classifier: newActivatingClassifier(), Executor: &fakeExecutor{}})
	pipeline := &fakePipeline{output: map[string]interface{}{
		"response": "the answer is computed",
		"code":     "print(42)",
	}}
	req := Request{Query: "analyze the architecture and find all security vulnerabilities, exhaustively"}

	result, err := a.Execute(context.Background(), req, pipeline)
	require.NoError(t, err)
	assert.Equal(t, ModePipeline, result.Mode)
	require.NotNil(t, result.ExecuteResult)
	assert.Equal(t, "42", result.ExecuteResult.Result)
}

func TestExecute_RejectsConcurrentCalls(t *testing.T) {
	a := New(Config{Classifier: newActivatingClassifier()})
	gate := make(chan struct{})
	blocking := &fakePipeline{output: map[string]interface{}{"response": "ok"}, gate: gate}
	req := Request{Query: "analyze the architecture exhaustively across the entire codebase"}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = a.Execute(context.Background(), req, blocking)
	}()

	// Give the goroutine a chance to acquire the interlock before the
	// second call races it.
	for !a.executing.Load() {
	}

	_, err := a.Execute(context.Background(), req, blocking)
	require.Error(t, err)
	kind, ok := rlmerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, rlmerrors.KindInternal, kind)
	assert.Contains(t, err.Error(), "already executing")

	close(gate)
	wg.Wait()
}

func TestExecute_HooksFireInOrderAndAbortOnError(t *testing.T) {
	a := New(Config{Classifier: newActivatingClassifier()})
	pipeline := &fakePipeline{output: map[string]interface{}{"response": "ok"}}
	req := Request{Query: "analyze the architecture exhaustively across the entire codebase"}

	var seen []Phase
	a.RegisterHook(func(ctx context.Context, phase Phase, r *Request) error {
		seen = append(seen, phase)
		return nil
	})

	result, err := a.Execute(context.Background(), req, pipeline)
	require.NoError(t, err)
	assert.Equal(t, ModePipeline, result.Mode)
	assert.Equal(t, []Phase{
		PhasePreClassify, PhasePostClassify, PhasePrePredict, PhasePostPredict, PhaseComplete,
	}, seen)

	a2 := New(Config{Classifier: newActivatingClassifier()})
	a2.RegisterHook(func(ctx context.Context, phase Phase, r *Request) error {
		if phase == PhasePostClassify {
			return rlmerrors.New(rlmerrors.KindInternal, "boom")
		}
		return nil
	})
	_, err = a2.Execute(context.Background(), req, pipeline)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, a2.CurrentStatus())
}

func TestExecute_VerifiesClaimsAndRunsAdversarialReview(t *testing.T) {
	validator := adversarial.New(fakeReviewClient{}, "critic-model",
		[]adversarial.Strategy{adversarial.CriticStrategy()}, adversarial.DefaultConfig(), nil)

	a := New(Config{
		Classifier:     newActivatingClassifier(),
		ClaimExtractor: claims.New(claims.DefaultOptions()),
		Verifier:       epistemic.New(epistemic.DefaultConfig(), nil),
		Elicitor:       &fakeElicitor{estimate: 0.9},
		Validator:      validator,
	})
	pipeline := &fakePipeline{output: map[string]interface{}{
		"response": "The cache eviction policy is strictly least-recently-used across all shards.",
	}}
	req := Request{Query: "analyze the architecture exhaustively across the entire codebase"}

	result, err := a.Execute(context.Background(), req, pipeline)
	require.NoError(t, err)
	require.NotEmpty(t, result.Claims)
	require.NotEmpty(t, result.BudgetResults)
	require.NotNil(t, result.Review)
	assert.Equal(t, adversarial.VerdictApproved, result.Review.Verdict)
}

func TestPredictElicitor_AggregatesSamples(t *testing.T) {
	values := []float64{0.2, 0.6, 0.4}
	p := aggregateEstimates(values)
	assert.InDelta(t, 0.4, p.Estimate, 1e-9)
	assert.InDelta(t, 0.2, p.Lower, 1e-9)
	assert.InDelta(t, 0.6, p.Upper, 1e-9)
	assert.Equal(t, 3, p.NSamples)
}

func TestWorstGrounding_PicksHigherRank(t *testing.T) {
	assert.Equal(t, rlmtypes.StatusUngrounded, worstGrounding(rlmtypes.StatusGrounded, rlmtypes.StatusUngrounded))
	assert.Equal(t, rlmtypes.StatusWeaklyGrounded, worstGrounding(rlmtypes.StatusWeaklyGrounded, rlmtypes.StatusGrounded))
}
