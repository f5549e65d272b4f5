package sqlite

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// seedStoreFile creates a real database with one populated table and
// closes it, leaving a clean file on disk.
func seedStoreFile(t *testing.T, path string) {
	t.Helper()
	conn, err := openConnection(path, 1000)
	if err != nil {
		t.Fatalf("openConnection: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	if _, err := conn.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO kv (k, v) VALUES ('greeting', 'hello')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestIntegrityChecker_HealthyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teststore.db")
	seedStoreFile(t, path)

	c := newIntegrityChecker(path, 1000, slog.Default())
	ok, err := c.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !ok {
		t.Error("Check = false for a healthy store")
	}
}

func TestIntegrityChecker_GarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teststore.db")
	if err := os.WriteFile(path, []byte("this is not a database"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newIntegrityChecker(path, 1000, slog.Default())
	ok, err := c.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ok {
		t.Error("Check = true for a garbage file")
	}
}
