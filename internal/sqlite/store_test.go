package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/strongbox-db/strongbox/pkg/types"
)

func testSchemas() []types.TableSchema {
	return []types.TableSchema{
		{
			Name: "guild_settings",
			Columns: []types.Column{
				{Name: "guild_id", Type: "TEXT", PrimaryKey: true},
				{Name: "prefix", Type: "TEXT", NotNull: true, Default: "'!'"},
			},
		},
	}
}

// newTestStore opens a store over a temp dir with the guild_settings table.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := types.Config{
		Name:             "teststore",
		BaseDir:          t.TempDir(),
		AcquireTimeoutMS: 2000,
	}
	s, err := Open(cfg, testSchemas(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertGuild(tx *sql.Tx, id, prefix string) error {
	_, err := tx.Exec("INSERT INTO guild_settings (guild_id, prefix) VALUES (?, ?)", id, prefix)
	return err
}

func countGuilds(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	err := s.WithReadTransaction(context.Background(), func(tx *sql.Tx) error {
		return tx.QueryRow("SELECT COUNT(*) FROM guild_settings").Scan(&n)
	})
	if err != nil {
		t.Fatalf("counting rows: %v", err)
	}
	return n
}

func TestStore_OpenCreatesLayout(t *testing.T) {
	s := newTestStore(t)

	if s.State() != types.StateReady {
		t.Errorf("state = %s, want ready", s.State())
	}
	if _, err := os.Stat(s.Path()); err != nil {
		t.Errorf("store file missing: %v", err)
	}
	if _, err := os.Stat(s.backups.dir); err != nil {
		t.Errorf("backups dir missing: %v", err)
	}
}

func TestStore_OpenValidatesConfig(t *testing.T) {
	_, err := Open(types.Config{BaseDir: t.TempDir()}, nil, nil)
	if !errors.Is(err, types.ErrNameEmpty) {
		t.Errorf("Open = %v, want ErrNameEmpty", err)
	}
}

func TestStore_OpenIsIdempotentAcrossRestarts(t *testing.T) {
	cfg := types.Config{Name: "teststore", BaseDir: t.TempDir()}

	s, err := Open(cfg, testSchemas(), nil)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	err = s.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		return insertGuild(tx, "g1", "?")
	})
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}
	s.Close()

	// Reopen: first-run DDL must not disturb the existing table, and a
	// startup backup of the previous state must appear.
	s2, err := Open(cfg, testSchemas(), nil)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	if n := countGuilds(t, s2); n != 1 {
		t.Errorf("row count after reopen = %d, want 1", n)
	}
	backups, err := s2.backups.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) == 0 {
		t.Error("no startup backup was taken for the existing store")
	}
}

func TestStore_WithTransactionCommits(t *testing.T) {
	s := newTestStore(t)

	err := s.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		return insertGuild(tx, "g1", "!")
	})
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}
	if n := countGuilds(t, s); n != 1 {
		t.Errorf("row count = %d, want 1", n)
	}
}

func TestStore_WithTransactionRollsBackExactly(t *testing.T) {
	s := newTestStore(t)

	err := s.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		return insertGuild(tx, "seed", "!")
	})
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("unit of work failed")
	err = s.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		if err := insertGuild(tx, "doomed-1", "$"); err != nil {
			return err
		}
		if err := insertGuild(tx, "doomed-2", "%"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTransaction = %v, want the caller's error unchanged", err)
	}

	// Observable state equals the state before the failed transaction.
	if n := countGuilds(t, s); n != 1 {
		t.Errorf("row count = %d after rollback, want 1", n)
	}
}

func TestStore_WithTransactionReleasesOnCancellation(t *testing.T) {
	cfg := types.Config{
		Name:     "teststore",
		BaseDir:  t.TempDir(),
		PoolSize: 1,
	}
	s, err := Open(cfg, testSchemas(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	err = s.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := insertGuild(tx, "g1", "!"); err != nil {
			return err
		}
		cancel() // caller abandons the scope mid-flight
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WithTransaction = %v, want context.Canceled", err)
	}

	// Rolled back, and the single pooled connection was released.
	if n := countGuilds(t, s); n != 0 {
		t.Errorf("row count = %d after cancelled scope, want 0", n)
	}
}

func TestStore_ConcurrentTransactionsShareNothing(t *testing.T) {
	cfg := types.Config{
		Name:             "teststore",
		BaseDir:          t.TempDir(),
		PoolSize:         2,
		AcquireTimeoutMS: 5000,
	}
	s, err := Open(cfg, testSchemas(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	const writers = 6
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			errs <- s.WithTransaction(context.Background(), func(tx *sql.Tx) error {
				return insertGuild(tx, fmt.Sprintf("guild-%d", i), "!")
			})
		}(i)
	}
	for i := 0; i < writers; i++ {
		if err := <-errs; err != nil {
			t.Errorf("writer error: %v", err)
		}
	}

	if n := countGuilds(t, s); n != writers {
		t.Errorf("row count = %d, want %d", n, writers)
	}
}

func TestStore_MigrateEndToEnd(t *testing.T) {
	s := newTestStore(t)

	err := s.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		return insertGuild(tx, "g1", "$")
	})
	if err != nil {
		t.Fatal(err)
	}

	next := types.TableSchema{
		Name: "guild_settings",
		Columns: []types.Column{
			{Name: "guild_id", Type: "TEXT", PrimaryKey: true},
			{Name: "locale", Type: "TEXT", NotNull: true, Default: "'en'"},
		},
	}
	if err := s.Migrate(context.Background(), next); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	var locale string
	err = s.WithReadTransaction(context.Background(), func(tx *sql.Tx) error {
		return tx.QueryRow("SELECT locale FROM guild_settings WHERE guild_id = 'g1'").Scan(&locale)
	})
	if err != nil {
		t.Fatalf("reading migrated row: %v", err)
	}
	if locale != "en" {
		t.Errorf("locale = %q, want default 'en'", locale)
	}

	ok, err := s.CheckIntegrity(context.Background())
	if err != nil || !ok {
		t.Errorf("CheckIntegrity after migration = %v, %v; want true, nil", ok, err)
	}

	// The pool serves transactions again after the maintenance drain.
	err = s.WithTransaction(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO guild_settings (guild_id) VALUES ('g2')")
		return err
	})
	if err != nil {
		t.Errorf("WithTransaction after migrate: %v", err)
	}
}

func TestStore_CorruptionRestoreCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTransaction(ctx, func(tx *sql.Tx) error {
		return insertGuild(tx, "g1", "!")
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.CreateBackup(ctx); err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}

	// Tear the live file apart, with no handles open on it.
	s.pool.Drain()
	if err := os.WriteFile(s.Path(), []byte("shredded"), 0o644); err != nil {
		t.Fatal(err)
	}
	s.pool.Resume()

	ok, err := s.CheckIntegrity(ctx)
	if err != nil {
		t.Fatalf("CheckIntegrity: %v", err)
	}
	if !ok {
		t.Fatal("CheckIntegrity = false; restore from backup did not recover the store")
	}
	if s.State() != types.StateDegraded {
		t.Errorf("state = %s after repair, want degraded", s.State())
	}

	// Data matches the backup taken before the corruption.
	if n := countGuilds(t, s); n != 1 {
		t.Errorf("row count = %d after restore, want 1", n)
	}

	// Degraded still accepts writes.
	err = s.WithTransaction(ctx, func(tx *sql.Tx) error {
		return insertGuild(tx, "g2", "!")
	})
	if err != nil {
		t.Errorf("WithTransaction while degraded: %v", err)
	}
}

func TestStore_CorruptStateRejectsWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// No backups exist, so a failed check cannot be repaired.
	s.pool.Drain()
	if err := os.WriteFile(s.Path(), []byte("shredded"), 0o644); err != nil {
		t.Fatal(err)
	}
	s.pool.Resume()

	ok, err := s.CheckIntegrity(ctx)
	if ok {
		t.Fatal("CheckIntegrity = true for a shredded store with no backups")
	}
	if !errors.Is(err, types.ErrStorageCorrupt) {
		t.Fatalf("CheckIntegrity error = %v, want ErrStorageCorrupt", err)
	}
	if s.State() != types.StateCorrupt {
		t.Errorf("state = %s, want corrupt", s.State())
	}

	err = s.WithTransaction(ctx, func(tx *sql.Tx) error { return nil })
	if !errors.Is(err, types.ErrStorageCorrupt) {
		t.Errorf("WithTransaction in corrupt state = %v, want ErrStorageCorrupt", err)
	}
}

func TestStore_OperationsAfterClose(t *testing.T) {
	s := newTestStore(t)
	s.Close()

	err := s.WithTransaction(context.Background(), func(tx *sql.Tx) error { return nil })
	if !errors.Is(err, types.ErrStoreClosed) {
		t.Errorf("WithTransaction after Close = %v, want ErrStoreClosed", err)
	}
	if _, err := s.CreateBackup(context.Background()); !errors.Is(err, types.ErrStoreClosed) {
		t.Errorf("CreateBackup after Close = %v, want ErrStoreClosed", err)
	}
}

func TestStore_RestoreLatestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTransaction(ctx, func(tx *sql.Tx) error {
		return insertGuild(tx, "kept", "!")
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateBackup(ctx); err != nil {
		t.Fatal(err)
	}

	// A write after the backup is rolled away by the restore.
	err = s.WithTransaction(ctx, func(tx *sql.Tx) error {
		return insertGuild(tx, "lost", "!")
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.RestoreLatest(); err != nil {
		t.Fatalf("RestoreLatest: %v", err)
	}

	if n := countGuilds(t, s); n != 1 {
		t.Errorf("row count = %d after restore, want 1", n)
	}
}
