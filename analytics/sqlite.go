package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/trellis/errors"
)

// SQLiteSink appends events to the progress_events table. The database is
// owned by the caller.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink returns a sink writing to db, which must be migrated.
func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{db: db}
}

// Write implements Sink.
func (s *SQLiteSink) Write(ctx context.Context, event ProgressEvent) error {
	path, err := json.Marshal(event.NodePath)
	if err != nil {
		return errors.Wrap(err, "failed to marshal node path")
	}
	var categoryID sql.NullString
	if event.CategoryID != "" {
		categoryID = sql.NullString{String: event.CategoryID, Valid: true}
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO progress_events (
			user_id, graph_id, node_id, node_path, node_type, node_subtype, category_id,
			previous_progress, current_progress, is_done, current_completions, required_completions,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.UserID, event.GraphID, event.NodeID, string(path),
		string(event.NodeType), string(event.NodeSubtype), categoryID,
		event.PreviousProgress, event.CurrentProgress, event.IsDone,
		event.CurrentCompletions, event.RequiredCompletions,
		ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to insert progress event for node %s", event.NodeID)
	}
	return nil
}

// Close is a no-op; the database outlives the sink.
func (s *SQLiteSink) Close() error {
	return nil
}
