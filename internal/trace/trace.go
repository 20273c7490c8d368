// Package trace builds the reasoning-trace decision graph: Decision and
// Option nodes linked by typed, directionally-restricted edges, with
// exports to DOT, Mermaid, NetworkX JSON, and HTML. Import reads back the
// NetworkX JSON export; the DOT, Mermaid and HTML exports carry node
// content and type but not reason, confidence or metadata.
package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// allowedEdges is the fixed matrix of (source node type, edge label,
// target node type) triples the graph accepts. An edge outside this
// matrix is rejected by AddEdge.
var allowedEdges = map[rlmtypes.EdgeLabel]map[rlmtypes.NodeType][]rlmtypes.NodeType{
	rlmtypes.EdgeSpawns: {
		rlmtypes.NodeGoal: {rlmtypes.NodeDecision},
	},
	rlmtypes.EdgeConsiders: {
		rlmtypes.NodeDecision: {rlmtypes.NodeOption},
	},
	rlmtypes.EdgeChooses: {
		rlmtypes.NodeDecision: {rlmtypes.NodeOption},
	},
	rlmtypes.EdgeRejects: {
		rlmtypes.NodeDecision: {rlmtypes.NodeOption},
	},
	rlmtypes.EdgeImplements: {
		rlmtypes.NodeOption: {rlmtypes.NodeAction},
	},
	rlmtypes.EdgeProduces: {
		rlmtypes.NodeAction: {rlmtypes.NodeOutcome},
	},
	rlmtypes.EdgeLeadsTo: {
		rlmtypes.NodeOutcome: {rlmtypes.NodeDecision, rlmtypes.NodeGoal, rlmtypes.NodeObservation},
	},
	rlmtypes.EdgeReferences: {
		rlmtypes.NodeObservation: {rlmtypes.NodeDecision, rlmtypes.NodeOption, rlmtypes.NodeAction},
	},
	rlmtypes.EdgeRequires: {
		rlmtypes.NodeAction: {rlmtypes.NodeObservation},
	},
	rlmtypes.EdgeInvalidates: {
		rlmtypes.NodeObservation: {rlmtypes.NodeOutcome, rlmtypes.NodeDecision},
	},
}

// EdgeAllowed reports whether label may connect a node of type from to a
// node of type to.
func EdgeAllowed(from, to rlmtypes.NodeType, label rlmtypes.EdgeLabel) bool {
	byFrom, ok := allowedEdges[label]
	if !ok {
		return false
	}
	targets, ok := byFrom[from]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

// Graph is the reasoning-trace decision graph: an append-only set of
// nodes and typed edges between them.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]rlmtypes.TraceNode
	order []string // insertion order, for deterministic export
	edges []rlmtypes.TraceEdge
}

// New constructs an empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]rlmtypes.TraceNode)}
}

// AddNode inserts node, assigning it an ID via uuid if it doesn't already
// have one, and returns the ID actually used.
func (g *Graph) AddNode(node rlmtypes.TraceNode) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	g.nodes[node.ID] = node
	g.order = append(g.order, node.ID)
	return node.ID
}

// AddEdge links from->to with label, rejecting the edge with a
// KindValidation error if either endpoint is unknown or the (type,
// label, type) triple isn't in the allowed matrix.
func (g *Graph) AddEdge(from, to string, label rlmtypes.EdgeLabel) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	fromNode, ok := g.nodes[from]
	if !ok {
		return rlmerrors.New(rlmerrors.KindValidation, "trace: unknown source node "+from)
	}
	toNode, ok := g.nodes[to]
	if !ok {
		return rlmerrors.New(rlmerrors.KindValidation, "trace: unknown target node "+to)
	}
	if !EdgeAllowed(fromNode.NodeType, toNode.NodeType, label) {
		return rlmerrors.New(rlmerrors.KindValidation, fmt.Sprintf(
			"trace: edge %s not allowed from %s to %s", label, fromNode.NodeType, toNode.NodeType))
	}

	g.edges = append(g.edges, rlmtypes.TraceEdge{From: from, To: to, Label: label})
	return nil
}

// Nodes returns a copy of every node, in insertion order.
func (g *Graph) Nodes() []rlmtypes.TraceNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]rlmtypes.TraceNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns a copy of every edge, in the order they were added.
func (g *Graph) Edges() []rlmtypes.TraceEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]rlmtypes.TraceEdge, len(g.edges))
	copy(out, g.edges)
	return out
}

// LogDecision records a decision point: a Decision node under parentID,
// one Option node per entry in options, a Chosen edge to
// options[chosenIndex], and Rejected edges to every other option. It
// returns the new Decision node's ID and the IDs of its Option nodes, in
// the same order as options.
func (g *Graph) LogDecision(parentID, question string, options []string, chosenIndex int, reason string) (string, []string, error) {
	if chosenIndex < 0 || chosenIndex >= len(options) {
		return "", nil, rlmerrors.New(rlmerrors.KindValidation, "trace: chosen_index out of range")
	}

	decisionID := g.AddNode(rlmtypes.TraceNode{NodeType: rlmtypes.NodeDecision, Content: question, Reason: reason})

	if parentID != "" {
		if err := g.AddEdge(parentID, decisionID, rlmtypes.EdgeSpawns); err != nil {
			return "", nil, err
		}
	}

	optionIDs := make([]string, len(options))
	for i, opt := range options {
		optionID := g.AddNode(rlmtypes.TraceNode{NodeType: rlmtypes.NodeOption, Content: opt})
		optionIDs[i] = optionID

		if err := g.AddEdge(decisionID, optionID, rlmtypes.EdgeConsiders); err != nil {
			return "", nil, err
		}
		if i == chosenIndex {
			if err := g.AddEdge(decisionID, optionID, rlmtypes.EdgeChooses); err != nil {
				return "", nil, err
			}
		} else {
			if err := g.AddEdge(decisionID, optionID, rlmtypes.EdgeRejects); err != nil {
				return "", nil, err
			}
		}
	}

	return decisionID, optionIDs, nil
}

// nodeShape picks a Mermaid/DOT-specific shape per node type, so exports
// visually distinguish decisions from options/actions/outcomes.
func nodeShape(t rlmtypes.NodeType) (dotShape string, mermaidOpen, mermaidClose string) {
	switch t {
	case rlmtypes.NodeDecision:
		return "diamond", "{", "}"
	case rlmtypes.NodeOption:
		return "box", "[", "]"
	case rlmtypes.NodeAction:
		return "ellipse", "([", "])"
	case rlmtypes.NodeOutcome:
		return "hexagon", "{{", "}}"
	case rlmtypes.NodeObservation:
		return "note", "[/", "/]"
	default: // NodeGoal
		return "doublecircle", "((", "))"
	}
}

// ExportDOT renders the graph as a Graphviz DOT digraph.
func (g *Graph) ExportDOT() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString("digraph trace {\n")
	for _, id := range g.order {
		node := g.nodes[id]
		shape, _, _ := nodeShape(node.NodeType)
		sb.WriteString(fmt.Sprintf("  %q [label=%q shape=%s];\n", id, node.Content, shape))
	}
	for _, e := range g.edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q [label=%q];\n", e.From, e.To, e.Label))
	}
	sb.WriteString("}\n")
	return sb.String()
}

// ExportMermaid renders the graph as a Mermaid flowchart, using
// type-specific node shapes.
func (g *Graph) ExportMermaid() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString("flowchart TD\n")
	for _, id := range g.order {
		node := g.nodes[id]
		_, open, shapeClose := nodeShape(node.NodeType)
		sb.WriteString(fmt.Sprintf("  %s%s%q%s\n", sanitizeMermaidID(id), open, node.Content, shapeClose))
	}
	for _, e := range g.edges {
		sb.WriteString(fmt.Sprintf("  %s -->|%s| %s\n", sanitizeMermaidID(e.From), e.Label, sanitizeMermaidID(e.To)))
	}
	return sb.String()
}

func sanitizeMermaidID(id string) string {
	return "n" + strings.ReplaceAll(id, "-", "")
}

// networkXDocument mirrors the shape python-networkx's json_graph.node_link
// helpers expect/produce, so the export can be loaded directly with
// `networkx.readwrite.json_graph.node_link_graph`.
type networkXDocument struct {
	Directed bool                   `json:"directed"`
	Multigraph bool                 `json:"multigraph"`
	Graph    map[string]interface{} `json:"graph"`
	Nodes    []networkXNode         `json:"nodes"`
	Links    []networkXLink         `json:"links"`
}

type networkXNode struct {
	ID         string                 `json:"id"`
	NodeType   string                 `json:"node_type"`
	Content    string                 `json:"content"`
	Reason     string                 `json:"reason,omitempty"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type networkXLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// ExportNetworkXJSON renders the graph in the node-link JSON format
// python-networkx's json_graph module consumes.
func (g *Graph) ExportNetworkXJSON() ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	doc := networkXDocument{
		Directed: true,
		Graph:    map[string]interface{}{},
	}
	for _, id := range g.order {
		n := g.nodes[id]
		doc.Nodes = append(doc.Nodes, networkXNode{
			ID: n.ID, NodeType: string(n.NodeType), Content: n.Content,
			Reason: n.Reason, Confidence: n.Confidence, Metadata: n.Metadata,
		})
	}
	for _, e := range g.edges {
		doc.Links = append(doc.Links, networkXLink{Source: e.From, Target: e.To, Label: string(e.Label)})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// HTMLPreset configures ExportHTML's output.
type HTMLPreset struct {
	Title        string
	IncludeStyle bool
}

// DefaultHTMLPreset mirrors a reasonable standalone-page default.
func DefaultHTMLPreset() HTMLPreset {
	return HTMLPreset{Title: "Reasoning Trace", IncludeStyle: true}
}

// ExportHTML renders a minimal standalone HTML page listing every node
// and edge; it embeds the Mermaid source in a <pre> block rather than
// pulling in a JS renderer, keeping the export dependency-free.
func (g *Graph) ExportHTML(preset HTMLPreset) string {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	buf.WriteString(html.EscapeString(preset.Title))
	buf.WriteString("</title>")
	if preset.IncludeStyle {
		buf.WriteString("<style>body{font-family:sans-serif}pre{background:#f4f4f4;padding:1em}</style>")
	}
	buf.WriteString("</head><body><h1>")
	buf.WriteString(html.EscapeString(preset.Title))
	buf.WriteString("</h1><pre>")
	buf.WriteString(html.EscapeString(g.ExportMermaid()))
	buf.WriteString("</pre></body></html>\n")
	return buf.String()
}

// Import reconstructs a Graph from the NetworkX JSON an earlier
// ExportNetworkXJSON produced, for the lossless round-trip the graph
// model guarantees.
func Import(data []byte) (*Graph, error) {
	var doc networkXDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, rlmerrors.Wrap(rlmerrors.KindSerialization, "trace: invalid export", err)
	}

	g := New()
	for _, n := range doc.Nodes {
		node := rlmtypes.TraceNode{
			ID: n.ID, NodeType: rlmtypes.NodeType(n.NodeType), Content: n.Content,
			Reason: n.Reason, Confidence: n.Confidence, Metadata: n.Metadata,
		}
		g.nodes[node.ID] = node
		g.order = append(g.order, node.ID)
	}
	for _, l := range doc.Links {
		g.edges = append(g.edges, rlmtypes.TraceEdge{From: l.Source, To: l.Target, Label: rlmtypes.EdgeLabel(l.Label)})
	}
	return g, nil
}
