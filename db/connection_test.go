package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpen(t *testing.T) {
	t.Run("opens database with pragmas", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(dbPath, zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		defer db.Close()

		var journalMode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
		assert.Equal(t, "wal", journalMode)

		var busyTimeout int
		require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
		assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)
	})
}

func TestIsDatabaseClosed(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "closed.db")
	db, err := Open(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.Exec("SELECT 1")
	require.Error(t, err)
	assert.True(t, IsDatabaseClosed(err))
	assert.True(t, IsDatabaseClosed(ErrDatabaseClosed))
	assert.False(t, IsDatabaseClosed(nil))
}
