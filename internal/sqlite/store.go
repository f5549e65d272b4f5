package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/strongbox-db/strongbox/pkg/types"
)

// Directory and file layout under Config.BaseDir.
const (
	dbDirName      = "db"
	backupsDirName = "backups"
	storeFileExt   = ".db"
	dirPermissions = 0o755
)

// UnitOfWork is a caller-supplied function run inside one transaction
// scope. Returning an error rolls the transaction back and the same error
// is returned to the caller unchanged.
type UnitOfWork func(tx *sql.Tx) error

// Store composes the pool, backup manager, integrity checker and migrator
// for one logical store. Each Store instance owns its resources outright;
// multiple stores coexist as independent instances.
type Store struct {
	config  types.Config
	path    string
	logger  *slog.Logger
	pool    *pool
	backups *backupManager
	checker *integrityChecker
	mig     *migrator

	// maintMu serializes maintenance operations (migrate, restore,
	// integrity repair), each of which drains the pool.
	maintMu sync.Mutex

	stateMu sync.Mutex
	state   types.StoreState
	warned  bool // degraded warning already surfaced
}

// Open creates or opens the store under cfg.BaseDir and brings it to
// Ready: directories are created, any existing file is snapshotted, the
// given schemas get their first-run DDL, and the pool is constructed
// (connections themselves are opened lazily).
//
// A nil logger falls back to slog.Default.
func Open(cfg types.Config, schemas []types.TableSchema, logger *slog.Logger) (*Store, error) {
	cfg = cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("store", cfg.Name)

	s := &Store{
		config: cfg,
		logger: logger,
		state:  types.StateInitializing,
	}

	dbDir := filepath.Join(cfg.BaseDir, dbDirName)
	backupsDir := filepath.Join(dbDir, backupsDirName)
	for _, dir := range []string{dbDir, backupsDir} {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return nil, fmt.Errorf("%w: creating %s: %v", types.ErrStorageUnavailable, dir, err)
		}
	}
	s.path = filepath.Join(dbDir, cfg.Name+storeFileExt)

	s.backups = newBackupManager(cfg, s.path, backupsDir, logger)
	s.checker = newIntegrityChecker(s.path, cfg.BusyTimeoutMS, logger)
	s.mig = newMigrator(s.path, cfg.BusyTimeoutMS, s.backups, s.checker, logger)

	// Snapshot whatever was there before we touch it. First run has no
	// file yet and skips this.
	if _, err := os.Stat(s.path); err == nil {
		if _, err := s.backups.Create(context.Background(), nil); err != nil {
			return nil, fmt.Errorf("startup backup: %w", err)
		}
	}

	if err := s.firstRunDDL(schemas); err != nil {
		return nil, err
	}

	s.pool = newPool(s.path, cfg)
	s.setState(types.StateReady)
	logger.Info("store ready", "path", s.path, "pool_size", cfg.PoolSize)
	return s, nil
}

// firstRunDDL creates any registered tables that do not exist yet. It also
// creates the store file itself on first run.
func (s *Store) firstRunDDL(schemas []types.TableSchema) error {
	conn, err := openConnection(s.path, s.config.BusyTimeoutMS)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx := context.Background()
	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, schema := range schemas {
		if err := schema.Validate(); err != nil {
			return err
		}
		exists, err := tableExists(ctx, tx, schema.Name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := createTable(ctx, tx, schema); err != nil {
			return err
		}
		s.logger.Info("table created", "table", schema.Name)
	}
	return tx.Commit()
}

// Acquire hands out an exclusively owned connection. Prefer
// WithTransaction; Acquire exists for callers that manage their own
// statement lifecycle. Release must be called exactly once.
func (s *Store) Acquire(ctx context.Context) (*Connection, error) {
	if err := s.writable(); err != nil {
		return nil, err
	}
	return s.pool.Acquire(ctx)
}

// Release returns a connection obtained from Acquire.
func (s *Store) Release(conn *Connection) {
	s.pool.Release(conn)
}

// WithTransaction runs fn inside one transaction scope: a connection is
// acquired, a transaction begun, and on any exit path — success, error,
// panic, or context cancellation — the transaction is resolved and the
// connection released. fn's error is returned to the caller unchanged
// after rollback.
func (s *Store) WithTransaction(ctx context.Context, fn UnitOfWork) error {
	if err := s.writable(); err != nil {
		return err
	}
	s.surfaceDegraded()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(conn)

	scope := newScopeID()
	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
			s.logger.Debug("transaction rolled back", "scope", scope)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction %s: %w", scope, err)
	}
	committed = true
	return nil
}

// WithReadTransaction is WithTransaction for read-only units of work. It
// stays available in the Corrupt state so callers can still read whatever
// the last restore left behind; writes made through it are rolled back.
func (s *Store) WithReadTransaction(ctx context.Context, fn UnitOfWork) error {
	if err := s.closedErr(); err != nil {
		return err
	}
	s.surfaceDegraded()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(conn)

	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	return fn(tx)
}

// CreateBackup snapshots the live store through a pooled connection, so it
// is consistent even while other transactions run.
func (s *Store) CreateBackup(ctx context.Context) (string, error) {
	if err := s.closedErr(); err != nil {
		return "", err
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer s.pool.Release(conn)
	return s.backups.Create(ctx, conn)
}

// RestoreLatest drains the pool, overwrites the live file with the newest
// backup, and resumes. In-flight transactions finish first; callers
// arriving during the drain queue behind the restore.
func (s *Store) RestoreLatest() error {
	if err := s.closedErr(); err != nil {
		return err
	}
	s.maintMu.Lock()
	defer s.maintMu.Unlock()

	s.pool.Drain()
	defer s.pool.Resume()

	return s.backups.RestoreLatest()
}

// Migrate evolves one table to the given schema under the documented
// column-intersection policy. Exclusive access is taken for the duration.
func (s *Store) Migrate(ctx context.Context, schema types.TableSchema) error {
	return s.runMigration(ctx, schema, s.mig.Migrate)
}

// MigrateStrict is Migrate, failing up front instead of silently dropping
// populated columns.
func (s *Store) MigrateStrict(ctx context.Context, schema types.TableSchema) error {
	return s.runMigration(ctx, schema, s.mig.MigrateStrict)
}

func (s *Store) runMigration(ctx context.Context, schema types.TableSchema, run func(context.Context, types.TableSchema) error) error {
	if err := s.writable(); err != nil {
		return err
	}
	s.maintMu.Lock()
	defer s.maintMu.Unlock()

	s.pool.Drain()
	defer s.pool.Resume()

	return run(ctx, schema)
}

// CheckIntegrity scans the store. On failure it drains the pool, restores
// the newest backup and scans once more; success leaves the store
// Degraded, a second failure marks it Corrupt and all further writes are
// rejected with types.ErrStorageCorrupt.
func (s *Store) CheckIntegrity(ctx context.Context) (bool, error) {
	if err := s.closedErr(); err != nil {
		return false, err
	}

	ok, err := s.checker.Check(ctx)
	if err != nil || ok {
		return ok, err
	}

	s.maintMu.Lock()
	defer s.maintMu.Unlock()

	s.pool.Drain()
	defer s.pool.Resume()

	s.logger.Warn("integrity check failed, restoring latest backup")
	if err := s.backups.RestoreLatest(); err != nil {
		s.setState(types.StateCorrupt)
		return false, fmt.Errorf("%w: restore failed: %v", types.ErrStorageCorrupt, err)
	}

	ok, err = s.checker.Check(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		s.setState(types.StateCorrupt)
		return false, fmt.Errorf("%w: integrity check failed after restore", types.ErrStorageCorrupt)
	}

	s.setState(types.StateDegraded)
	return true, nil
}

// State reports the current lifecycle state.
func (s *Store) State() types.StoreState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Path returns the store file location.
func (s *Store) Path() string {
	return s.path
}

// ListBackups returns the store's backup names in lexicographic order,
// oldest first.
func (s *Store) ListBackups() ([]string, error) {
	return s.backups.List()
}

// PoolStats reports open, idle, and queued connection counts.
func (s *Store) PoolStats() (open, idle, queued int) {
	return s.pool.Stats()
}

// Close drains and shuts the pool. Further operations fail with
// types.ErrStoreClosed.
func (s *Store) Close() error {
	s.maintMu.Lock()
	defer s.maintMu.Unlock()
	s.pool.Close()
	s.setState(types.StateUninitialized)
	s.logger.Info("store closed")
	return nil
}

func (s *Store) setState(state types.StoreState) {
	s.stateMu.Lock()
	if state == types.StateDegraded && s.state != types.StateDegraded {
		s.warned = false
	}
	s.state = state
	s.stateMu.Unlock()
}

// writable gates operations that modify the store.
func (s *Store) writable() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	switch s.state {
	case types.StateCorrupt:
		return types.ErrStorageCorrupt
	case types.StateUninitialized:
		return types.ErrStoreClosed
	default:
		return nil
	}
}

func (s *Store) closedErr() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state == types.StateUninitialized {
		return types.ErrStoreClosed
	}
	return nil
}

// surfaceDegraded logs the one-time warning promised for the first
// operation after the store enters Degraded.
func (s *Store) surfaceDegraded() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state == types.StateDegraded && !s.warned {
		s.warned = true
		s.logger.Warn("store is degraded: data was restored from the latest backup")
	}
}

// newScopeID tags a transaction scope for log correlation.
func newScopeID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
