package progress

import (
	"github.com/teranos/trellis/graph"
)

// AffectedNodes returns the ids whose cached progress may change when id's
// own state changes: id itself, every strict ancestor, and every
// upstream/downstream aggregate anywhere in the graph whose traversal
// reaches an affected node, together with that aggregate's ancestors. The
// link search repeats until no new node is added. Order is id, then
// ancestors nearest first, then link aggregates in tree order.
func AffectedNodes(id string, loc graph.Locator) []string {
	if loc.Node(id) == nil {
		return nil
	}
	return AffectedBy([]string{id}, loc)
}

// AffectedBy is AffectedNodes for several changed nodes at once. Seeds that
// are not in the graph are skipped. Callers removing a subtree compute this
// before detaching it.
func AffectedBy(seeds []string, loc graph.Locator) []string {
	affected := make(map[string]bool)
	var ordered []string
	add := func(nodeID string) {
		if !affected[nodeID] {
			affected[nodeID] = true
			ordered = append(ordered, nodeID)
		}
	}
	addWithAncestors := func(nodeID string) {
		add(nodeID)
		ancestors := loc.AncestorIDs(nodeID)
		for i := len(ancestors) - 1; i >= 0; i-- {
			add(ancestors[i])
		}
	}

	for _, id := range seeds {
		if loc.Node(id) != nil {
			addWithAncestors(id)
		}
	}
	if len(ordered) == 0 {
		return nil
	}

	// Whole-graph reverse-link scan; O(n) per pass.
	for changed := true; changed; {
		changed = false
		loc.Each(func(n *graph.Node) {
			if affected[n.ID] {
				return
			}
			kind := LinkKindOf(n)
			if kind == "" {
				return
			}
			for _, reached := range LinkedNodes(n, kind, loc) {
				if affected[reached.ID] {
					addWithAncestors(n.ID)
					changed = true
					return
				}
			}
		})
	}
	return ordered
}
