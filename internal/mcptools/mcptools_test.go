package mcptools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
	"github.com/rlm-systems/rlm-runtime/internal/trace"
)

type fakeExecutor struct {
	lastCode string
}

func (f *fakeExecutor) Execute(_ context.Context, code string, _ int, _ bool) (rlmtypes.ExecuteResult, error) {
	f.lastCode = code
	return rlmtypes.ExecuteResult{Success: true, Result: "ok"}, nil
}

type fakeStatus struct{}

func (fakeStatus) Status() StatusSnapshot {
	return StatusSnapshot{Mode: "idle", Executing: false}
}

func TestDispatch_UnknownToolReturnsConfigError(t *testing.T) {
	s := New(nil, nil, nil, nil)
	_, err := s.Dispatch(context.Background(), "not_a_tool", nil)
	require.Error(t, err)
	kind, ok := rlmerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, rlmerrors.KindConfig, kind)
}

func TestDispatch_ExecuteRequiresCode(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, nil, nil, nil)
	_, err := s.Dispatch(context.Background(), ToolExecute, json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestDispatch_ExecuteCallsExecutor(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(exec, nil, nil, nil)
	result, err := s.Dispatch(context.Background(), ToolExecute, json.RawMessage(`{"code":"1+1"}`))
	require.NoError(t, err)
	assert.Equal(t, "1+1", exec.lastCode)
	res := result.(rlmtypes.ExecuteResult)
	assert.True(t, res.Success)
}

func TestDispatch_Status(t *testing.T) {
	s := New(nil, fakeStatus{}, nil, nil)
	result, err := s.Dispatch(context.Background(), ToolStatus, nil)
	require.NoError(t, err)
	assert.Equal(t, "idle", result.(StatusSnapshot).Mode)
}

func TestDispatch_MemoryStoreThenQuery(t *testing.T) {
	mem := NewMemoryStore()
	s := New(nil, nil, mem, nil)

	_, err := s.Dispatch(context.Background(), ToolMemoryStore, json.RawMessage(`{"key":"k","value":{"a":1}}`))
	require.NoError(t, err)

	result, err := s.Dispatch(context.Background(), ToolMemoryQuery, json.RawMessage(`{"key":"k"}`))
	require.NoError(t, err)
	m := result.(map[string]interface{})
	assert.Equal(t, true, m["found"])
}

func TestDispatch_MemoryQueryMissingKeyReportsNotFound(t *testing.T) {
	mem := NewMemoryStore()
	s := New(nil, nil, mem, nil)
	result, err := s.Dispatch(context.Background(), ToolMemoryQuery, json.RawMessage(`{"key":"missing"}`))
	require.NoError(t, err)
	m := result.(map[string]interface{})
	assert.Equal(t, false, m["found"])
}

func TestDispatch_TraceVisualizeRendersDOT(t *testing.T) {
	g := trace.New()
	g.AddNode(rlmtypes.TraceNode{NodeType: rlmtypes.NodeGoal, Content: "goal"})
	s := New(nil, nil, nil, g)

	result, err := s.Dispatch(context.Background(), ToolTraceVisualize, json.RawMessage(`{"format":"dot"}`))
	require.NoError(t, err)
	assert.Contains(t, result.(string), "digraph trace")
}

func TestDispatch_TraceVisualizeUnknownFormatIsValidationError(t *testing.T) {
	g := trace.New()
	s := New(nil, nil, nil, g)
	_, err := s.Dispatch(context.Background(), ToolTraceVisualize, json.RawMessage(`{"format":"svg"}`))
	require.Error(t, err)
	kind, ok := rlmerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, rlmerrors.KindValidation, kind)
}

func TestSchemas_DeclaresAllFiveTools(t *testing.T) {
	s := New(nil, nil, nil, nil)
	schemas := s.Schemas()
	names := make(map[string]bool)
	for _, sc := range schemas {
		names[sc.Name] = true
	}
	for _, want := range []string{ToolExecute, ToolStatus, ToolMemoryQuery, ToolMemoryStore, ToolTraceVisualize} {
		assert.True(t, names[want], want)
	}
}
