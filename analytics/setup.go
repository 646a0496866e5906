package analytics

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/trellis/am"
	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/graph"
)

type discardSink struct{}

func (discardSink) Write(context.Context, ProgressEvent) error { return nil }
func (discardSink) Close() error                               { return nil }

// New builds the dispatcher configured by cfg. db is required for the
// sqlite backend.
func New(cfg am.AnalyticsConfig, db *sql.DB) (*Dispatcher, error) {
	var sink Sink
	switch cfg.Backend {
	case "", am.AnalyticsNone:
		sink = discardSink{}
	case am.AnalyticsSQLite:
		if db == nil {
			return nil, errors.New("sqlite analytics requires a database")
		}
		sink = NewSQLiteSink(db)
	case am.AnalyticsNATS:
		natsSink, err := NewNATSSink(cfg.NATSURL, cfg.Subject)
		if err != nil {
			return nil, err
		}
		sink = natsSink
	default:
		return nil, errors.Newf("unknown analytics backend %q", cfg.Backend)
	}
	return NewDispatcher(sink, cfg.QueueSize), nil
}

// NewProgressEvent describes n after an update. previous is n's cached
// progress before the update; categoryID is the nearest category ancestor
// (or n itself).
func NewProgressEvent(userID, graphID string, n *graph.Node, path []string, categoryID string, previous float64) ProgressEvent {
	return ProgressEvent{
		UserID:              userID,
		GraphID:             graphID,
		NodeID:              n.ID,
		NodePath:            append([]string(nil), path...),
		NodeType:            n.NodeType,
		NodeSubtype:         n.NodeSubtype,
		CategoryID:          categoryID,
		PreviousProgress:    previous,
		CurrentProgress:     n.CalculatedProgress,
		IsDone:              n.IsDone,
		CurrentCompletions:  n.CurrentCompletions,
		RequiredCompletions: n.RequiredCompletions,
		Timestamp:           time.Now().UTC(),
	}
}
