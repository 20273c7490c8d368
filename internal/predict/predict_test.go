package predict

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

type fakeClient struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeClient) Complete(_ context.Context, _ rlmtypes.CompletionRequest) (rlmtypes.CompletionResponse, error) {
	if f.err != nil {
		return rlmtypes.CompletionResponse{}, f.err
	}
	i := f.calls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.calls++
	return rlmtypes.CompletionResponse{Content: f.responses[i]}, nil
}

func sigWithAnswer() rlmtypes.Signature {
	return rlmtypes.Signature{
		Name:    "answer_sig",
		Outputs: []rlmtypes.FieldSpec{{Name: "answer", Type: rlmtypes.FieldInteger, Required: true}},
	}
}

func TestPredict_ForwardParsesJSONOutput(t *testing.T) {
	client := &fakeClient{responses: []string{`{"answer": 42}`}}
	p := New(sigWithAnswer(), client, "test-model")

	out, err := p.Forward(context.Background(), map[string]interface{}{"question": "what"})
	require.NoError(t, err)
	assert.Equal(t, float64(42), out["answer"])
}

func TestPredict_ForwardExtractsJSONFromChainOfThoughtText(t *testing.T) {
	client := &fakeClient{responses: []string{"Let's think step by step.\nThe answer is clearly 42.\n{\"answer\": 42}"}}
	p := New(sigWithAnswer(), client, "test-model").WithChainOfThought(true)

	out, err := p.Forward(context.Background(), map[string]interface{}{"question": "what"})
	require.NoError(t, err)
	assert.Equal(t, float64(42), out["answer"])
}

func TestPredict_ForwardRetriesOnParseFailureThenSucceeds(t *testing.T) {
	client := &fakeClient{responses: []string{"not json", `{"answer": 7}`}}
	p := New(sigWithAnswer(), client, "test-model").WithMaxRetries(2)

	out, err := p.Forward(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, float64(7), out["answer"])
	assert.Equal(t, 2, client.calls)
}

func TestPredict_ForwardSurfacesLastErrorAfterExhaustingRetries(t *testing.T) {
	client := &fakeClient{responses: []string{"not json", "still not json"}}
	p := New(sigWithAnswer(), client, "test-model").WithMaxRetries(2)

	_, err := p.Forward(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	kind, ok := rlmerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, rlmerrors.KindSerialization, kind)
}

func TestPredict_ForwardFailsValidationOnMissingRequiredField(t *testing.T) {
	client := &fakeClient{responses: []string{`{"wrong_field": 1}`}}
	p := New(sigWithAnswer(), client, "test-model")

	_, err := p.Forward(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	kind, ok := rlmerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, rlmerrors.KindValidation, kind)
}

func TestChainDirect_FieldTypeMismatchFailsWithoutInvokingEitherModule(t *testing.T) {
	client := &fakeClient{responses: []string{`{"value": "should not be called"}`}}

	a := New(rlmtypes.Signature{
		Outputs: []rlmtypes.FieldSpec{{Name: "value", Type: rlmtypes.FieldString, Required: true}},
	}, client, "test-model")
	b := New(rlmtypes.Signature{
		Inputs: []rlmtypes.FieldSpec{{Name: "value", Type: rlmtypes.FieldInteger, Required: true}},
	}, client, "test-model")

	chain := ChainDirect(a, b)
	_, err := chain.Forward(context.Background(), map[string]interface{}{})

	require.Error(t, err)
	kind, ok := rlmerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, rlmerrors.KindConfig, kind)
	assert.Equal(t, 0, client.calls)
}

func TestChainDirect_CompatibleFieldsFlowThrough(t *testing.T) {
	client := &fakeClient{responses: []string{`{"value": 9}`, `{"doubled": 18}`}}

	a := New(rlmtypes.Signature{
		Outputs: []rlmtypes.FieldSpec{{Name: "value", Type: rlmtypes.FieldInteger, Required: true}},
	}, client, "test-model")
	b := New(rlmtypes.Signature{
		Inputs:  []rlmtypes.FieldSpec{{Name: "value", Type: rlmtypes.FieldInteger, Required: true}},
		Outputs: []rlmtypes.FieldSpec{{Name: "doubled", Type: rlmtypes.FieldInteger, Required: true}},
	}, client, "test-model")

	chain := ChainDirect(a, b)
	out, err := chain.Forward(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, float64(18), out["doubled"])
}

func TestParallel_CollectsResultsInModuleOrder(t *testing.T) {
	clientA := &fakeClient{responses: []string{`{"answer": 1}`}}
	clientB := &fakeClient{responses: []string{`{"answer": 2}`}}
	a := New(sigWithAnswer(), clientA, "m")
	b := New(sigWithAnswer(), clientB, "m")

	par := NewParallel(a, b)
	results, err := par.Forward(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, float64(1), results[0]["answer"])
	assert.Equal(t, float64(2), results[1]["answer"])
}

func TestParallel_FirstErrorPropagatesOthersStillAwaited(t *testing.T) {
	failing := &fakeClient{responses: []string{"not json"}}
	ok := &fakeClient{responses: []string{`{"answer": 1}`}}
	a := New(sigWithAnswer(), failing, "m")
	b := New(sigWithAnswer(), ok, "m")

	par := NewParallel(a, b)
	_, err := par.Forward(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.Equal(t, 1, ok.calls)
}
