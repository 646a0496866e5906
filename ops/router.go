// Package ops applies client operations to a graph. Every handler validates
// its payload completely before touching the graph, so a failed operation
// leaves the graph, its index and the version unchanged.
package ops

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/teranos/trellis/analytics"
	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/graph"
	"github.com/teranos/trellis/logger"
)

// Type names an operation on the wire.
type Type string

const (
	AddNode            Type = "ADD_NODE"
	UpdateNode         Type = "UPDATE_NODE"
	DeleteNode         Type = "DELETE_NODE"
	UpdateNodePosition Type = "UPDATE_NODE_POSITION"
	AddEdge            Type = "ADD_EDGE"
	DeleteEdge         Type = "DELETE_EDGE"
	UpdateViewport     Type = "UPDATE_VIEWPORT"
)

// Operation is a client's mutation request and, once applied, the normalized
// form broadcast to every subscriber.
type Operation struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Version int64           `json:"version,omitempty"`
}

// Target is the graph an operation runs against. Index may be nil, in which
// case lookups fall back to walking the tree.
type Target struct {
	Graph   *graph.Graph
	Index   *graph.Index
	UserID  string
	GraphID string
}

func (t *Target) locator() graph.Locator {
	return graph.NewLocator(t.Graph, t.Index)
}

// HandlerFunc applies one operation type and returns the normalized payload
// to broadcast.
type HandlerFunc func(ctx context.Context, r *Router, t *Target, payload json.RawMessage) (json.RawMessage, error)

// Router dispatches operations to their handlers.
type Router struct {
	handlers map[Type]HandlerFunc
	tracker  analytics.Tracker
	logger   *zap.SugaredLogger
}

// NewRouter returns a router with every built-in handler registered. A nil
// tracker discards progress events.
func NewRouter(tracker analytics.Tracker) *Router {
	if tracker == nil {
		tracker = analytics.NoopTracker{}
	}
	r := &Router{
		handlers: make(map[Type]HandlerFunc),
		tracker:  tracker,
		logger:   logger.ComponentLogger("ops"),
	}
	r.Register(AddNode, applyAddNode)
	r.Register(UpdateNode, applyUpdateNode)
	r.Register(DeleteNode, applyDeleteNode)
	r.Register(UpdateNodePosition, applyUpdateNodePosition)
	r.Register(AddEdge, applyAddEdge)
	r.Register(DeleteEdge, applyDeleteEdge)
	r.Register(UpdateViewport, applyUpdateViewport)
	return r
}

// Register installs h for typ, replacing any existing handler.
func (r *Router) Register(typ Type, h HandlerFunc) {
	r.handlers[typ] = h
}

// Apply runs op against t. On success the graph version is incremented and
// the returned Operation carries the normalized payload and new version.
func (r *Router) Apply(ctx context.Context, t *Target, op Operation) (Operation, error) {
	h, ok := r.handlers[op.Type]
	if !ok {
		return Operation{}, errors.NewInvalidRequestError("unknown operation type %q", op.Type)
	}
	if len(op.Payload) == 0 {
		return Operation{}, errors.NewInvalidRequestError("%s: missing payload", op.Type)
	}

	payload, err := h(ctx, r, t, op.Payload)
	if err != nil {
		return Operation{}, errors.Wrapf(err, "%s", op.Type)
	}
	t.Graph.Version++

	// Position updates arrive at drag frequency and are never logged.
	if op.Type != UpdateNodePosition {
		r.logger.Debugw("Operation applied",
			logger.FieldOperation, op.Type,
			logger.FieldUserID, t.UserID,
			logger.FieldGraphID, t.GraphID,
			logger.FieldVersion, t.Graph.Version,
		)
	}
	return Operation{Type: op.Type, Payload: payload, Version: t.Graph.Version}, nil
}

func decode(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return errors.WrapInvalidRequest(err, "failed to decode payload")
	}
	return nil
}

func encode(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode payload")
	}
	return data, nil
}
