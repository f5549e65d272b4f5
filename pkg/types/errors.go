package types

import "errors"

// Store operation errors. Transient errors (ErrPoolExhausted) may be
// retried by the caller with backoff; structural errors (ErrMigrationFailed,
// ErrStorageCorrupt) must surface to an operator and are never retried
// internally.
var (
	// ErrStorageUnavailable means the store file could not be created or
	// opened (permissions, disk full). Fatal to startup.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrPoolExhausted means no connection became free within the acquire
	// timeout. Transient; retry with backoff.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrMigrationFailed means a schema change was aborted and the
	// pre-migration backup restored. The schema change did not happen.
	ErrMigrationFailed = errors.New("schema migration failed")

	// ErrStorageCorrupt means the integrity check failed even after a
	// restore. All writes are rejected until manual recovery.
	ErrStorageCorrupt = errors.New("storage corrupt")

	// ErrNoBackupAvailable means a restore was requested with no retained
	// backups.
	ErrNoBackupAvailable = errors.New("no backup available")

	// ErrStoreClosed means the store was closed and no further operations
	// are accepted.
	ErrStoreClosed = errors.New("store closed")

	// ErrColumnsDropped is returned by strict migrations when the new
	// schema would discard populated columns.
	ErrColumnsDropped = errors.New("migration would drop populated columns")
)
