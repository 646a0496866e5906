package ops

import (
	"context"
	"encoding/json"

	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/graph"
)

func applyUpdateViewport(_ context.Context, _ *Router, t *Target, raw json.RawMessage) (json.RawMessage, error) {
	var v graph.Viewport
	if err := decode(raw, &v); err != nil {
		return nil, err
	}
	if v.Zoom <= 0 {
		return nil, errors.NewInvalidRequestError("zoom must be positive")
	}
	t.Graph.Viewport = v
	return encode(v)
}
