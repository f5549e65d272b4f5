// Package sqlite implements the Strongbox persistence core on a single-file
// SQLite database: a bounded connection pool, transactional scopes, schema
// migration, timestamped backups with retention, and integrity checking.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/strongbox-db/strongbox/pkg/types"
)

// pingTimeout bounds the connectivity probe when opening a connection.
const pingTimeout = 5 * time.Second

// Connection is an open handle to the store file, exclusively owned by one
// caller between acquire and release. It wraps a *sql.DB pinned to a single
// underlying connection so the pool, not database/sql, decides how many
// handles exist.
type Connection struct {
	db *sql.DB
}

// dsn builds the modernc.org/sqlite connection string. Every connection is
// configured identically: WAL journaling, NORMAL sync, in-memory temp
// storage, a bounded page cache, foreign keys, and a busy timeout so
// concurrent writers back off instead of erroring immediately.
func dsn(path string, busyTimeoutMS int) string {
	pragmas := []string{
		fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS),
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"cache_size(-2000)",
		"temp_store(MEMORY)",
		"foreign_keys(ON)",
	}
	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(path)
	for i, p := range pragmas {
		if i == 0 {
			b.WriteString("?_pragma=")
		} else {
			b.WriteString("&_pragma=")
		}
		b.WriteString(url.QueryEscape(p))
	}
	return b.String()
}

// openConnection opens and verifies one connection to the store file.
// Failures wrap types.ErrStorageUnavailable.
func openConnection(path string, busyTimeoutMS int) (*Connection, error) {
	db, err := sql.Open("sqlite", dsn(path, busyTimeoutMS))
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", types.ErrStorageUnavailable, path, err)
	}

	// One physical handle per Connection; pooling is ours.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: verifying %s: %v", types.ErrStorageUnavailable, path, err)
	}

	return &Connection{db: db}, nil
}

// BeginTx starts a transaction on this connection.
func (c *Connection) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}

// ExecContext executes a statement outside any transaction scope. Used by
// maintenance operations that own the connection exclusively.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query on this connection.
func (c *Connection) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// Close releases the underlying handle. Idempotent.
func (c *Connection) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
