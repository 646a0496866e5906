package testing

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/teranos/trellis/db"
)

// CreateTestDB creates a migrated in-memory SQLite test database.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	// Every pooled connection would get its own private :memory: database
	conn.SetMaxOpenConns(1)

	if err := db.Migrate(conn, nil); err != nil {
		conn.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return conn
}
