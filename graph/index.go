package graph

import "slices"

// Index is the derived lookup structure for one graph: id to node, id to
// parent id and id to title path. Nodes are the same pointers held by the
// tree, so mutating an indexed node mutates the graph. Index is not safe for
// concurrent use; the owning room serializes access.
type Index struct {
	nodes   map[string]*Node
	parents map[string]string
	paths   map[string][]string
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		nodes:   make(map[string]*Node),
		parents: make(map[string]string),
		paths:   make(map[string][]string),
	}
}

// BuildIndex returns an index populated from g.
func BuildIndex(g *Graph) *Index {
	ix := NewIndex()
	ix.Build(g)
	return ix
}

// Build discards the current contents and indexes every node of g.
func (ix *Index) Build(g *Graph) {
	ix.nodes = make(map[string]*Node)
	ix.parents = make(map[string]string)
	ix.paths = make(map[string][]string)
	if g == nil {
		return
	}
	for _, n := range g.Nodes {
		ix.add(n, "", nil, 0)
	}
}

func (ix *Index) add(n *Node, parentID string, parentPath []string, depth int) {
	if n == nil || depth >= MaxDepth {
		return
	}
	path := make([]string, len(parentPath)+1)
	copy(path, parentPath)
	path[len(parentPath)] = n.Title

	ix.nodes[n.ID] = n
	ix.parents[n.ID] = parentID
	ix.paths[n.ID] = path
	for _, child := range n.Children {
		ix.add(child, n.ID, path, depth+1)
	}
}

// Node returns the node with id, or nil.
func (ix *Index) Node(id string) *Node {
	return ix.nodes[id]
}

// Has reports whether id is indexed.
func (ix *Index) Has(id string) bool {
	_, ok := ix.nodes[id]
	return ok
}

// ParentID returns the parent id of id; empty for roots and unknown ids.
func (ix *Index) ParentID(id string) string {
	return ix.parents[id]
}

// Path returns the titles from the root down to id. The returned slice is
// shared with the index and must not be modified.
func (ix *Index) Path(id string) []string {
	return ix.paths[id]
}

// Len returns the number of indexed nodes.
func (ix *Index) Len() int {
	return len(ix.nodes)
}

// Add indexes n and any children it already carries under parentID. An empty
// or unknown parentID indexes n as a root.
func (ix *Index) Add(n *Node, parentID string) {
	if _, ok := ix.nodes[parentID]; !ok {
		parentID = ""
	}
	depth := len(ix.paths[parentID])
	ix.add(n, parentID, ix.paths[parentID], depth)
}

// Remove drops id and all its descendants.
func (ix *Index) Remove(id string) {
	n, ok := ix.nodes[id]
	if !ok {
		return
	}
	for _, child := range n.Children {
		if child != nil {
			ix.Remove(child.ID)
		}
	}
	delete(ix.nodes, id)
	delete(ix.parents, id)
	delete(ix.paths, id)
}

// UpdatePath recomputes the cached path of id after a title change and
// propagates it to every descendant.
func (ix *Index) UpdatePath(id string) {
	n, ok := ix.nodes[id]
	if !ok {
		return
	}
	ix.add(n, ix.parents[id], ix.paths[ix.parents[id]], len(ix.paths[ix.parents[id]]))
}

// AncestorIDs returns the strict ancestors of id, root first.
func (ix *Index) AncestorIDs(id string) []string {
	var ids []string
	for parent := ix.parents[id]; parent != ""; parent = ix.parents[parent] {
		ids = append(ids, parent)
		if len(ids) > MaxDepth {
			break
		}
	}
	slices.Reverse(ids)
	return ids
}

// Descendants returns every node below id in depth-first order.
func (ix *Index) Descendants(id string) []*Node {
	n, ok := ix.nodes[id]
	if !ok {
		return nil
	}
	var out []*Node
	Walk(n.Children, func(c, _ *Node, _ int) bool {
		out = append(out, c)
		return true
	})
	return out
}

// IDs returns every indexed id in no particular order.
func (ix *Index) IDs() []string {
	ids := make([]string, 0, len(ix.nodes))
	for id := range ix.nodes {
		ids = append(ids, id)
	}
	return ids
}
