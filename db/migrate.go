package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/trellis/errors"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// Migration is one embedded schema file. AppliedAt is empty while the
// migration is pending.
type Migration struct {
	Version   string `json:"version"`
	Name      string `json:"name"`
	AppliedAt string `json:"applied_at,omitempty"`
}

// Pending reports whether the migration has not run yet.
func (m Migration) Pending() bool {
	return m.AppliedAt == ""
}

// embedded lists the migration files in version order.
func embedded() ([]Migration, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}
	var list []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, label, _ := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
		list = append(list, Migration{Version: version, Name: label})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Version < list[j].Version })
	return list, nil
}

func (m Migration) filename() string {
	return m.Version + "_" + m.Name + ".sql"
}

// appliedVersions returns version -> applied_at. A database that has never
// been migrated has no schema_migrations table and yields an empty map.
func appliedVersions(db *sql.DB) (map[string]string, error) {
	var tables int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'").Scan(&tables)
	if err != nil {
		return nil, errors.Wrap(err, "check schema_migrations")
	}
	applied := make(map[string]string)
	if tables == 0 {
		return applied, nil
	}

	rows, err := db.Query("SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, errors.Wrap(err, "query schema_migrations")
	}
	defer rows.Close()
	for rows.Next() {
		var version, at string
		if err := rows.Scan(&version, &at); err != nil {
			return nil, errors.Wrap(err, "scan schema_migrations")
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// Status returns every embedded migration with its applied time, in
// version order.
func Status(db *sql.DB) ([]Migration, error) {
	list, err := embedded()
	if err != nil {
		return nil, err
	}
	applied, err := appliedVersions(db)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].AppliedAt = applied[list[i].Version]
	}
	return list, nil
}

// Migrate runs all pending migrations. A nil logger runs silently.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	_, err := Apply(db, logger)
	return err
}

// Apply runs all pending migrations, each in its own transaction, and
// returns the ones it applied.
func Apply(db *sql.DB, logger *zap.SugaredLogger) ([]Migration, error) {
	list, err := Status(db)
	if err != nil {
		return nil, err
	}

	var ran []Migration
	for _, m := range list {
		if !m.Pending() {
			continue
		}
		body, err := migrations.ReadFile(path.Join(migrationsDir, m.filename()))
		if err != nil {
			return ran, errors.Wrapf(err, "read %s", m.filename())
		}
		if logger != nil {
			logger.Infow("Applying migration", "migration", m.Name, "version", m.Version)
		}
		if err := applyOne(db, m, string(body)); err != nil {
			return ran, err
		}
		ran = append(ran, m)
	}

	if logger != nil && len(ran) > 0 {
		logger.Infow("Migrations complete", "total_migrations", len(list), "applied", len(ran))
	}
	return ran, nil
}

func applyOne(db *sql.DB, m Migration, body string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", m.filename())
	}
	defer tx.Rollback()

	if _, err := tx.Exec(body); err != nil {
		return errors.Wrapf(err, "execute %s", m.filename())
	}
	// 000 creates the table and then records itself
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return errors.Wrapf(err, "record %s", m.filename())
	}
	return errors.Wrapf(tx.Commit(), "commit %s", m.filename())
}
