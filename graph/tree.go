package graph

// Recursive tree walks. These are the fallback when no NodeIndex is
// available and are O(n) per call.

// WalkFunc is called for every node with its parent (nil for roots) and
// depth (0 for roots). Returning false stops the walk.
type WalkFunc func(n, parent *Node, depth int) bool

// Walk visits nodes depth-first in child order. Subtrees deeper than
// MaxDepth are not visited.
func Walk(nodes []*Node, fn WalkFunc) {
	walk(nodes, nil, 0, fn)
}

func walk(nodes []*Node, parent *Node, depth int, fn WalkFunc) bool {
	if depth >= MaxDepth {
		return true
	}
	for _, n := range nodes {
		if !fn(n, parent, depth) {
			return false
		}
		if !walk(n.Children, n, depth+1, fn) {
			return false
		}
	}
	return true
}

// FindNode returns the node with id, or nil.
func FindNode(nodes []*Node, id string) *Node {
	var found *Node
	Walk(nodes, func(n, _ *Node, _ int) bool {
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindParent returns the parent of id. ok is false when id is not in the
// tree; a root returns (nil, true).
func FindParent(nodes []*Node, id string) (parent *Node, ok bool) {
	Walk(nodes, func(n, p *Node, _ int) bool {
		if n.ID == id {
			parent, ok = p, true
			return false
		}
		return true
	})
	return parent, ok
}

// PathTo returns the chain of nodes from a root down to id, or nil.
func PathTo(nodes []*Node, id string) []*Node {
	return pathTo(nodes, id, nil, 0)
}

func pathTo(nodes []*Node, id string, prefix []*Node, depth int) []*Node {
	if depth >= MaxDepth {
		return nil
	}
	for _, n := range nodes {
		chain := append(prefix[:len(prefix):len(prefix)], n)
		if n.ID == id {
			return chain
		}
		if found := pathTo(n.Children, id, chain, depth+1); found != nil {
			return found
		}
	}
	return nil
}

// Count returns the number of nodes reachable from nodes.
func Count(nodes []*Node) int {
	count := 0
	Walk(nodes, func(*Node, *Node, int) bool {
		count++
		return true
	})
	return count
}

// CollectIDs returns the ids of n and all its descendants, n first.
func CollectIDs(n *Node) []string {
	ids := []string{n.ID}
	Walk(n.Children, func(c, _ *Node, _ int) bool {
		ids = append(ids, c.ID)
		return true
	})
	return ids
}

// Depth returns the height of the forest: 1 for a single root, 0 when empty.
func Depth(nodes []*Node) int {
	return depth(nodes, 0)
}

func depth(nodes []*Node, level int) int {
	if len(nodes) == 0 || level > MaxDepth {
		return level
	}
	deepest := level + 1
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if d := depth(n.Children, level+1); d > deepest {
			deepest = d
		}
	}
	return deepest
}

// RemoveChild detaches the node with id from nodes and returns the new slice
// along with whether it was present.
func RemoveChild(nodes []*Node, id string) ([]*Node, bool) {
	for i, n := range nodes {
		if n.ID == id {
			out := make([]*Node, 0, len(nodes)-1)
			out = append(out, nodes[:i]...)
			return append(out, nodes[i+1:]...), true
		}
	}
	return nodes, false
}
