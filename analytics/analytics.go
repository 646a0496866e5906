// Package analytics records progress changes to an external sink. Tracking
// is fire-and-forget: the mutation path never waits on a sink and sink
// failures never reach the caller.
package analytics

import (
	"context"
	"time"

	"github.com/teranos/trellis/graph"
)

// ProgressEvent describes one node's progress change after an update.
type ProgressEvent struct {
	UserID              string            `json:"userId"`
	GraphID             string            `json:"graphId"`
	NodeID              string            `json:"nodeId"`
	NodePath            []string          `json:"nodePath"`
	NodeType            graph.NodeType    `json:"nodeType"`
	NodeSubtype         graph.NodeSubtype `json:"nodeSubtype"`
	CategoryID          string            `json:"categoryId,omitempty"`
	PreviousProgress    float64           `json:"previousProgress"`
	CurrentProgress     float64           `json:"currentProgress"`
	IsDone              bool              `json:"isDone"`
	CurrentCompletions  int               `json:"currentCompletions"`
	RequiredCompletions int               `json:"requiredCompletions"`
	Timestamp           time.Time         `json:"timestamp"`
}

// Tracker accepts progress events. Implementations must not block.
type Tracker interface {
	TrackProgressUpdate(ctx context.Context, event ProgressEvent)
}

// Sink is a destination for progress events.
type Sink interface {
	Write(ctx context.Context, event ProgressEvent) error
	Close() error
}

// NoopTracker discards every event.
type NoopTracker struct{}

// TrackProgressUpdate implements Tracker.
func (NoopTracker) TrackProgressUpdate(context.Context, ProgressEvent) {}
