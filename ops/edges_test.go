package ops

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/trellis/graph"
)

func TestAddAndDeleteEdge(t *testing.T) {
	r := NewRouter(nil)
	target := newTarget(true)
	mustApply(t, r, target, AddNode, addNode("", map[string]any{"id": "a", "title": "A"}))
	mustApply(t, r, target, AddNode, addNode("", map[string]any{"id": "b", "title": "B"}))

	op := mustApply(t, r, target, AddEdge, map[string]any{"source": "a", "target": "b", "kind": "blocks"})
	var e graph.Edge
	require.NoError(t, json.Unmarshal(op.Payload, &e))
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "blocks", e.Kind)
	require.Len(t, target.Graph.Edges, 1)

	mustApply(t, r, target, AddEdge, map[string]any{"id": "e2", "source": "b", "target": "a"})
	mustApply(t, r, target, DeleteEdge, map[string]any{"id": e.ID})
	require.Len(t, target.Graph.Edges, 1)
	assert.Equal(t, "e2", target.Graph.Edges[0].ID)
}

func TestUpdateViewport(t *testing.T) {
	r := NewRouter(nil)
	target := newTarget(false)

	op := mustApply(t, r, target, UpdateViewport, map[string]any{"x": 5, "y": 6, "zoom": 1.5})
	assert.Equal(t, graph.Viewport{X: 5, Y: 6, Zoom: 1.5}, target.Graph.Viewport)
	assert.JSONEq(t, `{"x":5,"y":6,"zoom":1.5}`, string(op.Payload))
}
