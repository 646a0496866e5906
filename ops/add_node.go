package ops

import (
	"context"
	"encoding/json"

	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/graph"
	"github.com/teranos/trellis/logger"
	"github.com/teranos/trellis/progress"
)

type addNodePayload struct {
	ParentID string      `json:"parentId,omitempty"`
	Node     *graph.Node `json:"node"`
}

type addNodeApplied struct {
	ParentID string             `json:"parentId,omitempty"`
	Node     *graph.Node        `json:"node"`
	Progress map[string]float64 `json:"progress,omitempty"`
}

// applyAddNode inserts a node (with any children it carries) under parentId,
// or as a root when parentId is empty or unknown. A simple parent is
// promoted to the subtype that aggregates its children.
func applyAddNode(ctx context.Context, r *Router, t *Target, raw json.RawMessage) (json.RawMessage, error) {
	var p addNodePayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.Node == nil {
		return nil, errors.NewInvalidRequestError("node is required")
	}
	loc := t.locator()

	var parent *graph.Node
	if p.ParentID != "" {
		parent = loc.Node(p.ParentID)
		if parent == nil {
			r.logger.Warnw("Parent not found, adding node as root",
				logger.FieldParentID, p.ParentID,
				logger.FieldGraphID, t.GraphID,
			)
		}
	}
	depth := 0
	if parent != nil {
		depth = depthOf(loc, parent.ID) + 1
	}
	if err := prepareSubtree([]*graph.Node{p.Node}, depth, loc, nil); err != nil {
		return nil, err
	}

	parentID := ""
	if parent != nil {
		parentID = parent.ID
		promote(parent)
		parent.Children = append(parent.Children, p.Node)
	} else {
		t.Graph.Nodes = append(t.Graph.Nodes, p.Node)
	}
	if t.Index != nil {
		t.Index.Add(p.Node, parentID)
	}

	// The new subtree computes its own values; ancestors and linked
	// aggregates are refreshed through the affected set.
	ids := append(graph.CollectIDs(p.Node), progress.AffectedNodes(p.Node.ID, t.locator())...)
	values := r.refreshProgress(ctx, t, dedupe(ids), nil, false)

	return encode(addNodeApplied{ParentID: parentID, Node: p.Node, Progress: values})
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
