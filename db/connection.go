package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/trellis/errors"
)

// SQLiteBusyTimeoutMS is how long a writer waits on a locked database
const SQLiteBusyTimeoutMS = 5000

// Open opens a SQLite database at the specified path with optimized settings.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Enable WAL mode for concurrent reads during writes
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set busy timeout")
	}

	if logger != nil {
		logger.Infow("Database opened",
			"path", path,
			"wal_mode", true,
		)
	}

	return db, nil
}

// OpenWithMigrations opens the database and applies pending migrations
func OpenWithMigrations(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}

	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to migrate database at %s", path)
	}

	return db, nil
}
