package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/trellis/errors"
	trellistest "github.com/teranos/trellis/internal/testing"
)

func TestSQLiteSinkWrite(t *testing.T) {
	db := trellistest.CreateTestDB(t)
	sink := NewSQLiteSink(db)

	event := ProgressEvent{
		UserID: "u1", GraphID: "g1", NodeID: "run",
		NodePath: []string{"Goals", "Run"}, NodeType: "task", NodeSubtype: "simple",
		PreviousProgress: 0, CurrentProgress: 0.5, CurrentCompletions: 1, RequiredCompletions: 2,
		Timestamp: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, sink.Write(context.Background(), event))
	require.NoError(t, sink.Close())

	var (
		path       string
		categoryID *string
		current    float64
		createdAt  string
	)
	err := db.QueryRow(`SELECT node_path, category_id, current_progress, created_at FROM progress_events WHERE node_id = ?`, "run").
		Scan(&path, &categoryID, &current, &createdAt)
	require.NoError(t, err)
	assert.Equal(t, `["Goals","Run"]`, path)
	assert.Nil(t, categoryID)
	assert.InDelta(t, 0.5, current, 1e-9)
	assert.Equal(t, "2026-10-14T09:00:00Z", createdAt)
}

func TestSQLiteSinkWriteError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO progress_events").WillReturnError(errors.New("disk I/O error"))

	err = NewSQLiteSink(db).Write(context.Background(), ProgressEvent{NodeID: "run"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node run")
	assert.NoError(t, mock.ExpectationsWereMet())
}
