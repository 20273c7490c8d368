package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

func TestHandle_ExecuteSimpleExpression(t *testing.T) {
	h := NewHandle()
	result, err := h.Execute(context.Background(), `1 + 1`, 1000, true)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestHandle_ExecuteForbiddenImportFails(t *testing.T) {
	h := NewHandle()
	result, err := h.Execute(context.Background(), "import \"os/exec\"\nexec.Command(\"ls\")", 1000, false)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, string(rlmerrors.KindReplExecution), result.ErrorType)
}

func TestHandle_SetAndGetVariableRoundTrips(t *testing.T) {
	h := NewHandle()
	require.NoError(t, h.SetVariable("x", float64(42)))
	v, err := h.GetVariable("x")
	require.NoError(t, err)
	assert.Equal(t, float64(42), v)
}

func TestHandle_RegisterSignatureAndSubmitValidates(t *testing.T) {
	h := NewHandle()
	h.RegisterSignature([]rlmtypes.FieldSpec{
		{Name: "answer", Type: rlmtypes.FieldInteger, Required: true},
	}, "answer_sig")

	result, err := h.Execute(context.Background(),
		`SUBMIT := map[string]interface{}{"answer": 42}`, 1000, false)
	require.NoError(t, err)
	require.NotNil(t, result.SubmitResult)
	assert.Equal(t, rlmtypes.SubmitSuccess, result.SubmitResult.Status)
}

func TestHandle_SubmitWithoutSignatureIsValidationError(t *testing.T) {
	h := NewHandle()
	result, err := h.Execute(context.Background(),
		`SUBMIT := map[string]interface{}{"answer": 42}`, 1000, false)
	require.NoError(t, err)
	require.NotNil(t, result.SubmitResult)
	assert.Equal(t, rlmtypes.SubmitValidation, result.SubmitResult.Status)
}

func TestHandle_ClearSignatureRevertsToValidationError(t *testing.T) {
	h := NewHandle()
	h.RegisterSignature([]rlmtypes.FieldSpec{{Name: "answer", Type: rlmtypes.FieldInteger}}, "sig")
	h.ClearSignature()

	result, err := h.Execute(context.Background(),
		`SUBMIT := map[string]interface{}{"answer": 1}`, 1000, false)
	require.NoError(t, err)
	require.NotNil(t, result.SubmitResult)
	assert.Equal(t, rlmtypes.SubmitValidation, result.SubmitResult.Status)
}

func TestHandle_ResetClearsStateAndRevivesDeadHandle(t *testing.T) {
	h := NewHandle()
	require.NoError(t, h.SetVariable("x", "hello"))
	h.RegisterSignature([]rlmtypes.FieldSpec{{Name: "a"}}, "sig")
	h.Shutdown()

	status, _ := h.Status()
	assert.Equal(t, StatusDead, status)

	h.Reset()
	status, _ = h.Status()
	assert.Equal(t, StatusIdle, status)
	assert.Empty(t, h.ListVariables())
}

func TestHandle_ShutdownRejectsFurtherExecute(t *testing.T) {
	h := NewHandle()
	h.Shutdown()
	_, err := h.Execute(context.Background(), `1`, 1000, false)
	require.Error(t, err)
	kind, ok := rlmerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, rlmerrors.KindReplExecution, kind)
}

func TestHandle_PendingOperationLifecycle(t *testing.T) {
	h := NewHandle()
	id := h.AddPendingOperation("llm_call", map[string]interface{}{"prompt": "hi"})

	result, err := h.Execute(context.Background(), `1`, 1000, false)
	require.NoError(t, err)
	require.Len(t, result.PendingOperations, 1)
	assert.Equal(t, id, result.PendingOperations[0].ID)

	require.NoError(t, h.ResolveOperation(id, "resolved-value"))

	result, err = h.Execute(context.Background(), `1`, 1000, false)
	require.NoError(t, err)
	assert.Empty(t, result.PendingOperations)

	v, err := h.GetVariable(resolvedValueVar(id))
	require.NoError(t, err)
	assert.Equal(t, "resolved-value", v)
}

func TestHandle_ResolveUnknownOperationErrors(t *testing.T) {
	h := NewHandle()
	err := h.ResolveOperation("nonexistent", "x")
	require.Error(t, err)
	kind, ok := rlmerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, rlmerrors.KindValidation, kind)
}
