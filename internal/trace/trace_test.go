package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

func TestLogDecision_CreatesChosenAndRejectedEdges(t *testing.T) {
	g := New()
	goalID := g.AddNode(rlmtypes.TraceNode{NodeType: rlmtypes.NodeGoal, Content: "ship the feature"})

	decisionID, optionIDs, err := g.LogDecision(goalID, "which retry strategy?",
		[]string{"exponential backoff", "fixed delay", "no retry"}, 0, "bounds worst-case latency")
	require.NoError(t, err)
	require.Len(t, optionIDs, 3)

	var chose, rejected int
	for _, e := range g.Edges() {
		if e.From != decisionID {
			continue
		}
		switch e.Label {
		case rlmtypes.EdgeChooses:
			chose++
			assert.Equal(t, optionIDs[0], e.To)
		case rlmtypes.EdgeRejects:
			rejected++
		}
	}
	assert.Equal(t, 1, chose)
	assert.Equal(t, 2, rejected)
}

func TestLogDecision_RejectsOutOfRangeChoice(t *testing.T) {
	g := New()
	_, _, err := g.LogDecision("", "pick one", []string{"a", "b"}, 5, "")
	assert.Error(t, err)
}

func TestAddEdge_RejectsDisallowedTriple(t *testing.T) {
	g := New()
	a := g.AddNode(rlmtypes.TraceNode{NodeType: rlmtypes.NodeOption, Content: "a"})
	b := g.AddNode(rlmtypes.TraceNode{NodeType: rlmtypes.NodeGoal, Content: "b"})

	err := g.AddEdge(a, b, rlmtypes.EdgeChooses)
	assert.Error(t, err)
}

func TestAddEdge_UnknownEndpointFails(t *testing.T) {
	g := New()
	a := g.AddNode(rlmtypes.TraceNode{NodeType: rlmtypes.NodeDecision, Content: "a"})
	err := g.AddEdge(a, "does-not-exist", rlmtypes.EdgeChooses)
	assert.Error(t, err)
}

func TestExportDOT_ContainsNodesAndEdges(t *testing.T) {
	g := New()
	decisionID, optionIDs, err := g.LogDecision("", "which path?", []string{"left", "right"}, 1, "")
	require.NoError(t, err)

	dot := g.ExportDOT()
	assert.Contains(t, dot, "digraph trace")
	assert.Contains(t, dot, decisionID)
	assert.Contains(t, dot, optionIDs[1])
	assert.Contains(t, dot, "chooses")
}

func TestExportMermaid_UsesDistinctShapesPerNodeType(t *testing.T) {
	g := New()
	_, _, err := g.LogDecision("", "which path?", []string{"left", "right"}, 0, "")
	require.NoError(t, err)

	mermaid := g.ExportMermaid()
	assert.Contains(t, mermaid, "flowchart TD")
	assert.Contains(t, mermaid, "{") // decision diamond
	assert.Contains(t, mermaid, "[") // option box
}

func TestNetworkXJSONRoundTrip_IsLossless(t *testing.T) {
	g := New()
	goalID := g.AddNode(rlmtypes.TraceNode{NodeType: rlmtypes.NodeGoal, Content: "ship it", Confidence: 0.9})
	_, optionIDs, err := g.LogDecision(goalID, "which path?", []string{"left", "right", "middle"}, 2, "balances risk")
	require.NoError(t, err)

	data, err := g.ExportNetworkXJSON()
	require.NoError(t, err)

	restored, err := Import(data)
	require.NoError(t, err)

	assert.ElementsMatch(t, g.Nodes(), restored.Nodes())
	assert.ElementsMatch(t, g.Edges(), restored.Edges())
	assert.Len(t, restored.Nodes(), len(optionIDs)+2) // goal + decision + 3 options
}

func TestExportHTML_EscapesContentAndEmbedsMermaid(t *testing.T) {
	g := New()
	_, _, err := g.LogDecision("", "<script>alert(1)</script>", []string{"a"}, 0, "")
	require.NoError(t, err)

	out := g.ExportHTML(DefaultHTMLPreset())
	assert.Contains(t, out, "<pre>")
	assert.NotContains(t, out, "<script>alert(1)</script>")
	assert.Contains(t, out, "flowchart TD")
}

func TestEdgeAllowed_RejectsUnknownLabel(t *testing.T) {
	assert.False(t, EdgeAllowed(rlmtypes.NodeDecision, rlmtypes.NodeOption, rlmtypes.EdgeLabel("made_up")))
}
