// Package storage persists serialized graphs in a key-value store.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/teranos/trellis/am"
	"github.com/teranos/trellis/errors"
	"github.com/teranos/trellis/graph"
)

// Store is a key-value store of graph blobs. Get returns an error wrapping
// errors.ErrNotFound when key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, blob []byte) error
}

// Key returns the storage key of a user's graph.
func Key(userID, graphID string) string {
	return fmt.Sprintf("user:%s:graph:%s", userID, graphID)
}

// Open builds the store configured by cfg. db is required for the sqlite
// backend.
func Open(ctx context.Context, cfg am.StorageConfig, db *sql.DB) (Store, error) {
	switch cfg.Backend {
	case am.StorageSQLite:
		if db == nil {
			return nil, errors.New("sqlite storage requires a database")
		}
		return NewSQLiteStore(db), nil
	case am.StorageS3:
		return NewS3Store(ctx, cfg.S3)
	case am.StorageMemory:
		return NewMemoryStore(), nil
	default:
		return nil, errors.Newf("unknown storage backend %q", cfg.Backend)
	}
}

// LoadGraph reads and decodes the graph under key. A missing key yields an
// empty graph.
func LoadGraph(ctx context.Context, s Store, key string) (*graph.Graph, error) {
	blob, err := s.Get(ctx, key)
	if errors.IsNotFoundError(err) {
		return graph.New(), nil
	}
	if err != nil {
		return nil, errors.WrapUnavailable(err, "failed to load graph "+key)
	}
	g, err := graph.Decode(blob)
	if err != nil {
		return nil, errors.Wrapf(err, "stored graph %s is corrupt", key)
	}
	return g, nil
}

// SaveGraph encodes g and writes it under key.
func SaveGraph(ctx context.Context, s Store, key string, g *graph.Graph) error {
	blob, err := graph.Encode(g)
	if err != nil {
		return err
	}
	if err := s.Set(ctx, key, blob); err != nil {
		return errors.WrapUnavailable(err, "failed to save graph "+key)
	}
	return nil
}
