package graph

// Locator answers structural queries through the index when one is present
// and falls back to walking the tree otherwise. A nil index is a valid
// degraded mode.
type Locator struct {
	graph *Graph
	index *Index
}

// NewLocator returns a Locator over g. ix may be nil.
func NewLocator(g *Graph, ix *Index) Locator {
	return Locator{graph: g, index: ix}
}

// Indexed reports whether lookups go through an index.
func (l Locator) Indexed() bool {
	return l.index != nil
}

// Node returns the node with id, or nil.
func (l Locator) Node(id string) *Node {
	if l.index != nil {
		return l.index.Node(id)
	}
	return FindNode(l.graph.Nodes, id)
}

// Parent returns the parent node of id. ok is false when id is unknown; a
// root returns (nil, true).
func (l Locator) Parent(id string) (parent *Node, ok bool) {
	if l.index != nil {
		if !l.index.Has(id) {
			return nil, false
		}
		parentID := l.index.ParentID(id)
		if parentID == "" {
			return nil, true
		}
		return l.index.Node(parentID), true
	}
	return FindParent(l.graph.Nodes, id)
}

// Path returns the titles from a root down to id.
func (l Locator) Path(id string) []string {
	if l.index != nil {
		return l.index.Path(id)
	}
	chain := PathTo(l.graph.Nodes, id)
	if chain == nil {
		return nil
	}
	titles := make([]string, len(chain))
	for i, n := range chain {
		titles[i] = n.Title
	}
	return titles
}

// AncestorIDs returns the strict ancestors of id, root first.
func (l Locator) AncestorIDs(id string) []string {
	if l.index != nil {
		return l.index.AncestorIDs(id)
	}
	chain := PathTo(l.graph.Nodes, id)
	if len(chain) < 2 {
		return nil
	}
	ids := make([]string, 0, len(chain)-1)
	for _, n := range chain[:len(chain)-1] {
		ids = append(ids, n.ID)
	}
	return ids
}

// Each calls fn for every node in the graph.
func (l Locator) Each(fn func(*Node)) {
	Walk(l.graph.Nodes, func(n, _ *Node, _ int) bool {
		fn(n)
		return true
	})
}
