// Package mcptools exposes the orchestrator over the MCP tool surface:
// rlm_execute, rlm_status, memory_query, memory_store, and
// trace_visualize, each declaring a JSON Schema and validated against it
// before dispatch.
package mcptools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rlm-systems/rlm-runtime/internal/mcp"
	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
	"github.com/rlm-systems/rlm-runtime/internal/trace"
)

// Executor is the code-execution surface rlm_execute drives; satisfied
// by *sandbox.Handle and *sandbox.RemoteHandle.
type Executor interface {
	Execute(ctx context.Context, code string, timeoutMs int, captureOutput bool) (rlmtypes.ExecuteResult, error)
}

// StatusSnapshot is what rlm_status reports.
type StatusSnapshot struct {
	Mode        string `json:"mode"`
	Executing   bool   `json:"executing"`
	ActiveTasks int    `json:"active_tasks"`
}

// StatusProvider is the subset of the orchestrator's surface rlm_status
// reads.
type StatusProvider interface {
	Status() StatusSnapshot
}

// MemoryStore is a minimal in-memory key/value store. The memory store's
// real transactional discipline lives outside this module's scope; this
// stub exists so the memory_query/memory_store tool contracts can be
// exercised end to end.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]json.RawMessage)}
}

// Store sets key to value, overwriting any prior entry.
func (m *MemoryStore) Store(key string, value json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// Query returns the value stored at key, if any.
func (m *MemoryStore) Query(key string) (json.RawMessage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Surface is the schema-registry + dispatcher wrapping the orchestrator
// for MCP callers. It implements jsonrpcframe.Handler-compatible
// dispatch via Dispatch.
type Surface struct {
	executor Executor
	status   StatusProvider
	memory   *MemoryStore
	graph    *trace.Graph
}

// New constructs a Surface. graph may be nil if trace_visualize isn't
// needed; it can be set later with SetGraph.
func New(executor Executor, status StatusProvider, memory *MemoryStore, graph *trace.Graph) *Surface {
	return &Surface{executor: executor, status: status, memory: memory, graph: graph}
}

// SetGraph swaps the graph trace_visualize renders, so a caller can point
// the surface at a freshly built trace without reconstructing Surface.
func (s *Surface) SetGraph(g *trace.Graph) {
	s.graph = g
}

const (
	ToolExecute        = "rlm_execute"
	ToolStatus         = "rlm_status"
	ToolMemoryQuery    = "memory_query"
	ToolMemoryStore    = "memory_store"
	ToolTraceVisualize = "trace_visualize"
)

// Schemas returns every tool's declared JSON Schema, for advertisement
// over ListTools.
func (s *Surface) Schemas() []mcp.MCPToolSchema {
	return []mcp.MCPToolSchema{
		{Name: ToolExecute, Description: "Execute code in the sandboxed REPL", InputSchema: executeSchema},
		{Name: ToolStatus, Description: "Report orchestrator execution status", InputSchema: emptySchema},
		{Name: ToolMemoryQuery, Description: "Query the memory store by key", InputSchema: memoryQuerySchema},
		{Name: ToolMemoryStore, Description: "Store a value in the memory store", InputSchema: memoryStoreSchema},
		{Name: ToolTraceVisualize, Description: "Render the reasoning trace graph", InputSchema: traceVisualizeSchema},
	}
}

var (
	emptySchema          = json.RawMessage(`{"type":"object","properties":{}}`)
	executeSchema        = json.RawMessage(`{"type":"object","required":["code"],"properties":{"code":{"type":"string"},"timeout_ms":{"type":"integer"},"capture_output":{"type":"boolean"}}}`)
	memoryQuerySchema    = json.RawMessage(`{"type":"object","required":["key"],"properties":{"key":{"type":"string"}}}`)
	memoryStoreSchema    = json.RawMessage(`{"type":"object","required":["key","value"],"properties":{"key":{"type":"string"},"value":{}}}`)
	traceVisualizeSchema = json.RawMessage(`{"type":"object","required":["format"],"properties":{"format":{"type":"string","enum":["dot","mermaid","networkx_json","html"]}}}`)
)

type executeParams struct {
	Code          string `json:"code"`
	TimeoutMs     int    `json:"timeout_ms"`
	CaptureOutput bool   `json:"capture_output"`
}

type memoryQueryParams struct {
	Key string `json:"key"`
}

type memoryStoreParams struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

type traceVisualizeParams struct {
	Format string `json:"format"`
}

// Dispatch routes name to its tool implementation, validating params
// against the declared required fields before calling it. Unknown tool
// names and field-level validation failures return a *rlmerrors.Error
// matching the taxonomy §6 specifies.
func (s *Surface) Dispatch(ctx context.Context, name string, params json.RawMessage) (interface{}, error) {
	switch name {
	case ToolExecute:
		return s.dispatchExecute(ctx, params)
	case ToolStatus:
		return s.dispatchStatus()
	case ToolMemoryQuery:
		return s.dispatchMemoryQuery(params)
	case ToolMemoryStore:
		return s.dispatchMemoryStore(params)
	case ToolTraceVisualize:
		return s.dispatchTraceVisualize(params)
	default:
		return nil, rlmerrors.New(rlmerrors.KindConfig, "Unknown tool: "+name)
	}
}

func (s *Surface) dispatchExecute(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	if s.executor == nil {
		return nil, rlmerrors.New(rlmerrors.KindConfig, "rlm_execute: no executor configured")
	}
	var p executeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, rlmerrors.Validation("code", "invalid rlm_execute params: "+err.Error())
	}
	if p.Code == "" {
		return nil, rlmerrors.Validation("code", "code is required")
	}
	timeout := p.TimeoutMs
	if timeout <= 0 {
		timeout = 30000
	}
	return s.executor.Execute(ctx, p.Code, timeout, p.CaptureOutput)
}

func (s *Surface) dispatchStatus() (interface{}, error) {
	if s.status == nil {
		return nil, rlmerrors.New(rlmerrors.KindConfig, "rlm_status: no status provider configured")
	}
	return s.status.Status(), nil
}

func (s *Surface) dispatchMemoryQuery(raw json.RawMessage) (interface{}, error) {
	if s.memory == nil {
		return nil, rlmerrors.New(rlmerrors.KindConfig, "memory_query: no memory store configured")
	}
	var p memoryQueryParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, rlmerrors.Validation("key", "invalid memory_query params: "+err.Error())
	}
	if p.Key == "" {
		return nil, rlmerrors.Validation("key", "key is required")
	}
	value, ok := s.memory.Query(p.Key)
	if !ok {
		return map[string]interface{}{"found": false}, nil
	}
	return map[string]interface{}{"found": true, "value": value}, nil
}

func (s *Surface) dispatchMemoryStore(raw json.RawMessage) (interface{}, error) {
	if s.memory == nil {
		return nil, rlmerrors.New(rlmerrors.KindConfig, "memory_store: no memory store configured")
	}
	var p memoryStoreParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, rlmerrors.Validation("value", "invalid memory_store params: "+err.Error())
	}
	if p.Key == "" {
		return nil, rlmerrors.Validation("key", "key is required")
	}
	if len(p.Value) == 0 {
		return nil, rlmerrors.Validation("value", "value is required")
	}
	s.memory.Store(p.Key, p.Value)
	return map[string]interface{}{"stored": true}, nil
}

func (s *Surface) dispatchTraceVisualize(raw json.RawMessage) (interface{}, error) {
	if s.graph == nil {
		return nil, rlmerrors.New(rlmerrors.KindConfig, "trace_visualize: no graph configured")
	}
	var p traceVisualizeParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, rlmerrors.Validation("format", "invalid trace_visualize params: "+err.Error())
	}
	switch p.Format {
	case "dot":
		return s.graph.ExportDOT(), nil
	case "mermaid":
		return s.graph.ExportMermaid(), nil
	case "networkx_json":
		data, err := s.graph.ExportNetworkXJSON()
		if err != nil {
			return nil, err
		}
		return json.RawMessage(data), nil
	case "html":
		return s.graph.ExportHTML(trace.DefaultHTMLPreset()), nil
	default:
		return nil, rlmerrors.Validation("format", "unknown format: "+p.Format)
	}
}
