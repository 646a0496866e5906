// Package graph holds the task/goal graph data model, its NodeIndex and the
// recursive tree walks used when the index is unavailable.
package graph

// NodeType distinguishes leaf-progress tasks from aggregating nodes.
type NodeType string

const (
	NodeTypeTask      NodeType = "task"
	NodeTypeAggregate NodeType = "aggregate"
)

// NodeSubtype refines a NodeType.
type NodeSubtype string

const (
	SubtypeSimple       NodeSubtype = "simple"
	SubtypeWithChildren NodeSubtype = "withChildren"
	SubtypeCategory     NodeSubtype = "category"
	SubtypeUpstream     NodeSubtype = "upstream"
	SubtypeDownstream   NodeSubtype = "downstream"
)

// LinkKind keys Node.LinkedNodeIDs.
type LinkKind string

const (
	LinkUpstream   LinkKind = "upstream"
	LinkDownstream LinkKind = "downstream"
)

// ResetFrequency controls how often task progress is cleared.
type ResetFrequency string

const (
	ResetDaily   ResetFrequency = "daily"
	ResetWeekly  ResetFrequency = "weekly"
	ResetMonthly ResetFrequency = "monthly"
)

// MaxDepth bounds nesting so the recursive walks cannot exhaust the stack.
const MaxDepth = 256

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is a task or aggregate in the graph tree. Children are owned
// exclusively by their parent.
type Node struct {
	ID                  string                `json:"id" yaml:"id"`
	Title               string                `json:"title" yaml:"title"`
	NodeType            NodeType              `json:"nodeType" yaml:"nodeType"`
	NodeSubtype         NodeSubtype           `json:"nodeSubtype" yaml:"nodeSubtype"`
	Position            Position              `json:"position" yaml:"position"`
	IsDone              bool                  `json:"isDone" yaml:"isDone"`
	CurrentCompletions  int                   `json:"currentCompletions" yaml:"currentCompletions"`
	RequiredCompletions int                   `json:"requiredCompletions" yaml:"requiredCompletions"`
	CalculatedProgress  float64               `json:"calculatedProgress" yaml:"calculatedProgress"`
	LinkedNodeIDs       map[LinkKind][]string `json:"linkedNodeIds" yaml:"linkedNodeIds"`
	Children            []*Node               `json:"children" yaml:"children"`
}

// Edge is a weak reference between two nodes by id.
type Edge struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Kind   string `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// Viewport is the last saved canvas camera.
type Viewport struct {
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
	Zoom float64 `json:"zoom" yaml:"zoom"`
}

// ProgressReset configures periodic clearing of task progress.
type ProgressReset struct {
	Enabled           bool           `json:"enabled" yaml:"enabled"`
	Frequency         ResetFrequency `json:"frequency" yaml:"frequency"`
	LastProgressReset string         `json:"lastProgressReset,omitempty" yaml:"lastProgressReset,omitempty"`
}

// Settings are per-graph preferences stored with the graph.
type Settings struct {
	ProgressReset ProgressReset `json:"progressReset" yaml:"progressReset"`
}

// Graph is the whole document persisted under one storage key.
type Graph struct {
	Nodes    []*Node  `json:"nodes" yaml:"nodes"`
	Edges    []Edge   `json:"edges" yaml:"edges"`
	Viewport Viewport `json:"viewport" yaml:"viewport"`
	Settings Settings `json:"settings" yaml:"settings"`
	Version  int64    `json:"version" yaml:"version"`
}

// New returns an empty graph with default settings.
func New() *Graph {
	g := &Graph{
		Nodes:    []*Node{},
		Edges:    []Edge{},
		Viewport: Viewport{Zoom: 1},
	}
	g.Settings.ProgressReset.Frequency = ResetDaily
	return g
}

// IsTask reports whether n contributes its own progress.
func (n *Node) IsTask() bool {
	return n.NodeType == NodeTypeTask
}

// Links returns the ids linked under kind.
func (n *Node) Links(kind LinkKind) []string {
	if n.LinkedNodeIDs == nil {
		return nil
	}
	return n.LinkedNodeIDs[kind]
}

// ValidSubtype reports whether subtype is allowed for nodeType.
func ValidSubtype(nodeType NodeType, subtype NodeSubtype) bool {
	switch nodeType {
	case NodeTypeTask:
		return subtype == SubtypeSimple || subtype == SubtypeWithChildren
	case NodeTypeAggregate:
		switch subtype {
		case SubtypeCategory, SubtypeUpstream, SubtypeDownstream, SubtypeSimple:
			return true
		}
	}
	return false
}

// Normalize fills defaults on n and its subtree: task/simple, at least one
// required completion, and non-nil children and link maps.
func (n *Node) Normalize() {
	if n.NodeType == "" {
		n.NodeType = NodeTypeTask
	}
	if n.NodeSubtype == "" {
		n.NodeSubtype = SubtypeSimple
	}
	if n.RequiredCompletions < 1 {
		n.RequiredCompletions = 1
	}
	if n.CurrentCompletions < 0 {
		n.CurrentCompletions = 0
	}
	if n.LinkedNodeIDs == nil {
		n.LinkedNodeIDs = map[LinkKind][]string{}
	}
	if n.Children == nil {
		n.Children = []*Node{}
	}
	for _, child := range n.Children {
		if child != nil {
			child.Normalize()
		}
	}
}

// Normalize fills graph-level defaults and normalizes every node.
func (g *Graph) Normalize() {
	if g.Nodes == nil {
		g.Nodes = []*Node{}
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	if g.Viewport.Zoom == 0 {
		g.Viewport.Zoom = 1
	}
	if g.Settings.ProgressReset.Frequency == "" {
		g.Settings.ProgressReset.Frequency = ResetDaily
	}
	for _, n := range g.Nodes {
		if n != nil {
			n.Normalize()
		}
	}
}
