package db

import (
	"path/filepath"
	"testing"
)

// newTestDB opens a migrated capture log in a temporary directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "capture.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }
