package commands

import (
	"context"
	"database/sql"

	"github.com/teranos/trellis/am"
	"github.com/teranos/trellis/db"
	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/logger"
	"github.com/teranos/trellis/storage"
)

// needsDatabase reports whether any configured backend lives in SQLite.
func needsDatabase(cfg *am.Config) bool {
	return cfg.Storage.Backend == am.StorageSQLite || cfg.Analytics.Backend == am.AnalyticsSQLite
}

// databasePath is the SQLite file shared by the graph store and analytics.
func databasePath(cfg *am.Config) string {
	if cfg.Storage.Path == "" {
		return "trellis.db"
	}
	return cfg.Storage.Path
}

// openDatabase opens and migrates the SQLite database at storage.path.
// It returns nil when no backend needs it.
func openDatabase(cfg *am.Config) (*sql.DB, error) {
	if !needsDatabase(cfg) {
		return nil, nil
	}
	dbPath := databasePath(cfg)
	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, nil
}

// openStore opens the configured graph store. The returned close function
// releases the database, if one was opened.
func openStore(ctx context.Context, cfg *am.Config) (storage.Store, func(), error) {
	var database *sql.DB
	if cfg.Storage.Backend == am.StorageSQLite {
		var err error
		database, err = openDatabase(cfg)
		if err != nil {
			return nil, nil, err
		}
	}
	store, err := storage.Open(ctx, cfg.Storage, database)
	if err != nil {
		if database != nil {
			database.Close()
		}
		return nil, nil, err
	}
	return store, func() {
		if database != nil {
			database.Close()
		}
	}, nil
}
