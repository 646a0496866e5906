package ops

import (
	"github.com/google/uuid"

	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/graph"
)

// prepareSubtree readies client-supplied nodes for insertion at depth:
// missing ids are assigned, defaults filled and types checked. Ids must be
// unique within the subtree and absent from the graph unless listed in
// reusable. Nothing in the graph is modified.
func prepareSubtree(nodes []*graph.Node, depth int, loc graph.Locator, reusable map[string]bool) error {
	if depth+graph.Depth(nodes) > graph.MaxDepth {
		return errors.NewInvalidRequestError("nesting exceeds %d levels", graph.MaxDepth)
	}
	seen := make(map[string]bool)
	var err error
	graph.Walk(nodes, func(n, _ *graph.Node, _ int) bool {
		if n == nil {
			err = errors.NewInvalidRequestError("null node")
			return false
		}
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if seen[n.ID] || (!reusable[n.ID] && loc.Node(n.ID) != nil) {
			err = errors.NewConflictError("node %s already exists", n.ID)
			return false
		}
		seen[n.ID] = true
		return true
	})
	if err != nil {
		return err
	}
	for _, n := range nodes {
		n.Normalize()
	}
	graph.Walk(nodes, func(n, _ *graph.Node, _ int) bool {
		if len(n.Children) > 0 {
			promote(n)
		}
		return true
	})
	return checkTypes(nodes)
}

func checkTypes(nodes []*graph.Node) error {
	var err error
	graph.Walk(nodes, func(n, _ *graph.Node, _ int) bool {
		if !graph.ValidSubtype(n.NodeType, n.NodeSubtype) {
			err = errors.NewInvalidRequestError("node %s: subtype %q is not valid for %q", n.ID, n.NodeSubtype, n.NodeType)
			return false
		}
		return true
	})
	return err
}

// promote turns a simple parent into the subtype that reads its children.
func promote(parent *graph.Node) {
	parent.NodeSubtype = promoted(parent.NodeType, parent.NodeSubtype)
}

func promoted(nodeType graph.NodeType, subtype graph.NodeSubtype) graph.NodeSubtype {
	if subtype != graph.SubtypeSimple {
		return subtype
	}
	switch nodeType {
	case graph.NodeTypeTask:
		return graph.SubtypeWithChildren
	case graph.NodeTypeAggregate:
		return graph.SubtypeCategory
	}
	return subtype
}

// depthOf returns how many ancestors id has.
func depthOf(loc graph.Locator, id string) int {
	return len(loc.AncestorIDs(id))
}
