package ops

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/graph"
)

type deleteEdgePayload struct {
	ID string `json:"id"`
}

// applyAddEdge appends an edge between two existing nodes.
func applyAddEdge(_ context.Context, _ *Router, t *Target, raw json.RawMessage) (json.RawMessage, error) {
	var e graph.Edge
	if err := decode(raw, &e); err != nil {
		return nil, err
	}
	if e.Source == "" || e.Target == "" {
		return nil, errors.NewInvalidRequestError("source and target are required")
	}
	loc := t.locator()
	for _, id := range []string{e.Source, e.Target} {
		if loc.Node(id) == nil {
			return nil, errors.NewNotFoundError("node %s", id)
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	for _, existing := range t.Graph.Edges {
		if existing.ID == e.ID {
			return nil, errors.NewConflictError("edge %s already exists", e.ID)
		}
	}
	t.Graph.Edges = append(t.Graph.Edges, e)
	return encode(e)
}

func applyDeleteEdge(_ context.Context, _ *Router, t *Target, raw json.RawMessage) (json.RawMessage, error) {
	var p deleteEdgePayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.NewInvalidRequestError("id is required")
	}
	for i, e := range t.Graph.Edges {
		if e.ID == p.ID {
			t.Graph.Edges = append(t.Graph.Edges[:i:i], t.Graph.Edges[i+1:]...)
			return encode(p)
		}
	}
	return nil, errors.NewNotFoundError("edge %s", p.ID)
}
