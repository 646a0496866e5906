package ops

import (
	"context"
	"encoding/json"

	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/graph"
)

type positionPayload struct {
	ID       string          `json:"id"`
	Position *graph.Position `json:"position"`
}

func applyUpdateNodePosition(_ context.Context, _ *Router, t *Target, raw json.RawMessage) (json.RawMessage, error) {
	var p positionPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.ID == "" || p.Position == nil {
		return nil, errors.NewInvalidRequestError("id and position are required")
	}
	n := t.locator().Node(p.ID)
	if n == nil {
		return nil, errors.NewNotFoundError("node %s", p.ID)
	}
	n.Position = *p.Position
	return encode(p)
}
