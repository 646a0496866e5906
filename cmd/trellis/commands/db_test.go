package commands

import (
	"bytes"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/trellis/db"
	trellistest "github.com/teranos/trellis/internal/testing"
)

func TestWriteMigrations(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeMigrations(&buf, []db.Migration{
		{Version: "000", Name: "create_schema_migrations", AppliedAt: "2026-10-14T09:00:00.000Z"},
		{Version: "001", Name: "create_graph_blobs"},
	}))

	out := buf.String()
	assert.Contains(t, out, "create_schema_migrations")
	assert.Contains(t, out, "2026-10-14T09:00:00.000Z")
	assert.Contains(t, out, "pending")
}

func TestCountRows(t *testing.T) {
	database := trellistest.CreateTestDB(t)
	_, err := database.Exec("INSERT INTO graph_blobs (key, blob, updated_at) VALUES ('user:u1:graph:g1', x'7b7d', '2026-10-14')")
	require.NoError(t, err)

	count, err := countRows(database, "graph_blobs")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	empty, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer empty.Close()
	count, err = countRows(empty, "graph_blobs")
	require.NoError(t, err)
	assert.Equal(t, -1, count)
}
