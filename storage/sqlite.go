package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/trellis/errors"
)

// SQLiteStore keeps blobs in the graph_blobs table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore returns a store over a migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM graph_blobs WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("graph %s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read graph %s", key)
	}
	return blob, nil
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, key string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO graph_blobs (key, blob, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`,
		key, blob, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to write graph %s", key)
	}
	return nil
}
