package flow

import (
	"strings"
	"time"

	"github.com/agentcord/agentflow/pkg/kernel"
)

// ============================================================================
// Flow Entity
// ============================================================================

// FlowStatus estado de publicación de un flujo
type FlowStatus string

const (
	FlowStatusDraft     FlowStatus = "draft"
	FlowStatusPublished FlowStatus = "published"
	FlowStatusStopped   FlowStatus = "stopped"
)

// Flow representa un flujo de automatización construido en el editor visual
type Flow struct {
	ID        kernel.FlowID `db:"id" json:"id"`
	Name      string        `db:"name" json:"name"`
	Status    FlowStatus    `db:"status" json:"status"`
	BrandID   int64         `db:"brand_id" json:"brand_id"`
	AccountID int64         `db:"account_id" json:"user_id"`
	IsPro     bool          `db:"is_pro" json:"isPro"`
	Transform *Transform    `db:"transform" json:"transform,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// Transform posición y zoom del lienzo del editor; el builder serializa los
// tres valores como strings
type Transform struct {
	PosX string `json:"posX"`
	PosY string `json:"posY"`
	Zoom string `json:"zoom"`
}

// IsPublished reports whether the flow can be triggered.
func (f *Flow) IsPublished() bool {
	return f.Status == FlowStatusPublished
}

// ============================================================================
// Node Entity
// ============================================================================

// NodeType tipo de nodo del flujo
type NodeType string

const (
	NodeTypeTriggerKeyword    NodeType = "trigger_keyword"
	NodeTypeTriggerTemplate   NodeType = "trigger_template"
	NodeTypeMessage           NodeType = "message"
	NodeTypeQuestion          NodeType = "question"
	NodeTypeButtonQuestion    NodeType = "button_question"
	NodeTypeListQuestion      NodeType = "list_question"
	NodeTypeCondition         NodeType = "condition"
	NodeTypeDelay             NodeType = "delay"
	NodeTypeSendTemplate      NodeType = "send_template"
	NodeTypeSendEmailTemplate NodeType = "send_email_template"
)

// RequiresUserInput reports whether the automation must stop and wait for a
// reply after reaching a node of this type.
func (t NodeType) RequiresUserInput() bool {
	switch t {
	case NodeTypeQuestion, NodeTypeButtonQuestion, NodeTypeListQuestion:
		return true
	}
	return false
}

// IsTrigger reports whether this type can start a flow.
func (t NodeType) IsTrigger() bool {
	return t == NodeTypeTriggerKeyword || t == NodeTypeTriggerTemplate
}

// AutoChains reports whether a node of this type dispatches and immediately
// advances to its next node without waiting for the user.
func (t NodeType) AutoChains() bool {
	switch t {
	case NodeTypeMessage, NodeTypeSendTemplate, NodeTypeSendEmailTemplate:
		return true
	}
	return false
}

// Node es un nodo persistido de un flujo. Data guarda el payload del editor
// tal cual (camelCase); los accesores tipados viven en nodeconfig.go.
type Node struct {
	FlowID       kernel.FlowID  `db:"flow_id" json:"flow_id"`
	NodeID       kernel.NodeID  `db:"node_id" json:"node_id"`
	Type         NodeType       `db:"node_type" json:"node_type"`
	FlowNodeType string         `db:"flow_node_type" json:"flow_node_type,omitempty"`
	Data         map[string]any `db:"node_data" json:"node_data"`
	Position     int            `db:"position" json:"-"`
}

// IsStartNode reports whether the editor marked this node as the entry point.
func (n *Node) IsStartNode() bool {
	if n.Data == nil {
		return false
	}
	start, _ := n.Data["isStartNode"].(bool)
	return start
}

// ============================================================================
// Edge Entity
// ============================================================================

// Edge conecta un nodo (o un selector sintético) con el siguiente nodo.
// SourceNodeID puede ser un node id real o un id sintético como
// "<node>__true" o el id de una respuesta esperada.
type Edge struct {
	FlowID       kernel.FlowID `db:"flow_id" json:"flow_id"`
	EdgeID       kernel.EdgeID `db:"edge_id" json:"id"`
	SourceNodeID string        `db:"source_node_id" json:"sourceNodeId"`
	TargetNodeID string        `db:"target_node_id" json:"targetNodeId"`
	Position     int           `db:"position" json:"-"`
}

// Selector suffixes used by condition and delay nodes. They are matched by
// substring because the builder generates ids like "node-3__true-1".
const (
	SelectorSuffixTrue           = "__true"
	SelectorSuffixFalse          = "__false"
	SelectorSuffixInterrupted    = "__interrupted"
	SelectorSuffixNotInterrupted = "__not_interrupted"
)

// SelectorFor returns the first candidate id containing the given suffix, or
// empty when none does. The double underscore keeps "__interrupted" from
// matching inside "__not_interrupted".
func SelectorFor(candidates []string, suffix string) string {
	for _, id := range candidates {
		if strings.Contains(id, suffix) {
			return id
		}
	}
	return ""
}

// ============================================================================
// Trigger Entity
// ============================================================================

// TriggerType forma en la que un flujo puede arrancar
type TriggerType string

const (
	TriggerTypeKeyword  TriggerType = "keyword"
	TriggerTypeTemplate TriggerType = "template"
)

// Trigger es la condición de arranque derivada del nodo inicial de un flujo
type Trigger struct {
	ID       kernel.TriggerID `db:"id" json:"id"`
	FlowID   kernel.FlowID    `db:"flow_id" json:"flow_id"`
	NodeID   kernel.NodeID    `db:"node_id" json:"node_id"`
	Type     TriggerType      `db:"trigger_type" json:"trigger_type"`
	Values   []string         `db:"trigger_values" json:"trigger_values"`
	Position int              `db:"position" json:"-"`
}

// ============================================================================
// Graph
// ============================================================================

// Graph agrupa los nodos y aristas de un flujo ya cargado para recorrerlo
type Graph struct {
	Flow  *Flow
	Nodes []Node
	Edges []Edge

	nodesByID map[kernel.NodeID]*Node
}

// NewGraph builds the node index once so walks stay cheap.
func NewGraph(f *Flow, nodes []Node, edges []Edge) *Graph {
	g := &Graph{Flow: f, Nodes: nodes, Edges: edges}
	g.nodesByID = make(map[kernel.NodeID]*Node, len(nodes))
	for i := range nodes {
		g.nodesByID[nodes[i].NodeID] = &nodes[i]
	}
	return g
}

// NodeByID returns the node with the given id, or nil.
func (g *Graph) NodeByID(id kernel.NodeID) *Node {
	return g.nodesByID[id]
}

// HasNode reports whether id names a real node (not a synthetic selector).
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodesByID[kernel.NodeID(id)]
	return ok
}

// EdgesFrom returns every edge whose source is the given id, in stored order.
func (g *Graph) EdgesFrom(sourceID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.SourceNodeID == sourceID {
			out = append(out, e)
		}
	}
	return out
}

// FirstEdgeFrom returns the first stored edge leaving the given id, or nil.
func (g *Graph) FirstEdgeFrom(sourceID string) *Edge {
	for i := range g.Edges {
		if g.Edges[i].SourceNodeID == sourceID {
			return &g.Edges[i]
		}
	}
	return nil
}

// SelectorSources returns every edge source id that is not a real node id.
// These are the synthetic selector ids (condition branches, delay outcomes,
// expected answer ids).
func (g *Graph) SelectorSources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range g.Edges {
		if g.HasNode(e.SourceNodeID) || seen[e.SourceNodeID] {
			continue
		}
		seen[e.SourceNodeID] = true
		out = append(out, e.SourceNodeID)
	}
	return out
}

// StartNode returns the node flagged as entry point, preferring trigger types.
func (g *Graph) StartNode() *Node {
	for i := range g.Nodes {
		if g.Nodes[i].IsStartNode() {
			return &g.Nodes[i]
		}
	}
	for i := range g.Nodes {
		if g.Nodes[i].Type.IsTrigger() {
			return &g.Nodes[i]
		}
	}
	return nil
}
