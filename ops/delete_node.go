package ops

import (
	"context"
	"encoding/json"

	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/graph"
	"github.com/teranos/trellis/progress"
)

type deleteNodePayload struct {
	ID string `json:"id"`
}

type deleteNodeApplied struct {
	ID           string             `json:"id"`
	RemovedEdges []string           `json:"removedEdges,omitempty"`
	Progress     map[string]float64 `json:"progress,omitempty"`
}

// applyDeleteNode removes a node, its subtree and every edge touching any
// removed node.
func applyDeleteNode(ctx context.Context, r *Router, t *Target, raw json.RawMessage) (json.RawMessage, error) {
	var p deleteNodePayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.NewInvalidRequestError("id is required")
	}
	loc := t.locator()
	n := loc.Node(p.ID)
	if n == nil {
		return nil, errors.NewNotFoundError("node %s", p.ID)
	}
	parent, _ := loc.Parent(p.ID)

	removedIDs := graph.CollectIDs(n)
	affected := progress.AffectedBy(removedIDs, loc)

	removedEdges := removeEdgesTouching(t.Graph, removedIDs)
	if parent != nil {
		parent.Children, _ = graph.RemoveChild(parent.Children, p.ID)
	} else {
		t.Graph.Nodes, _ = graph.RemoveChild(t.Graph.Nodes, p.ID)
	}
	if t.Index != nil {
		t.Index.Remove(p.ID)
	}

	values := r.refreshProgress(ctx, t, present(t.locator(), affected), nil, false)
	return encode(deleteNodeApplied{ID: p.ID, RemovedEdges: removedEdges, Progress: values})
}

// removeEdgesTouching drops edges whose source or target is in ids and
// returns the removed edge ids.
func removeEdgesTouching(g *graph.Graph, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	gone := make(map[string]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
	}
	var removed []string
	kept := make([]graph.Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if gone[e.Source] || gone[e.Target] {
			removed = append(removed, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	g.Edges = kept
	return removed
}
