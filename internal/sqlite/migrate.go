package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/strongbox-db/strongbox/pkg/types"
)

// migrator evolves one table at a time while preserving existing rows.
// Columns present in both the old and new schema are carried forward;
// columns added by the new schema take their declared default; columns
// dropped by the new schema are discarded. A migration therefore never
// fails on column set changes, it degrades by intersection.
//
// The caller (the store façade) is responsible for draining the pool
// first: the migrator owns the store file exclusively while it runs.
type migrator struct {
	storePath     string
	busyTimeoutMS int
	backups       *backupManager
	checker       *integrityChecker
	logger        *slog.Logger
}

func newMigrator(storePath string, busyTimeoutMS int, backups *backupManager, checker *integrityChecker, logger *slog.Logger) *migrator {
	return &migrator{
		storePath:     storePath,
		busyTimeoutMS: busyTimeoutMS,
		backups:       backups,
		checker:       checker,
		logger:        logger.With("component", "migrate"),
	}
}

// Migrate applies schema to its table. The store is snapshotted first; if
// the post-migration integrity scan fails, the snapshot is restored and
// types.ErrMigrationFailed returned, leaving the schema change as if it
// had never happened.
func (m *migrator) Migrate(ctx context.Context, schema types.TableSchema) error {
	return m.migrate(ctx, schema, false)
}

// MigrateStrict is Migrate with the silent-data-loss policy disabled: when
// the new schema drops columns from a table that still holds rows, it
// fails with types.ErrColumnsDropped before touching anything.
func (m *migrator) MigrateStrict(ctx context.Context, schema types.TableSchema) error {
	return m.migrate(ctx, schema, true)
}

func (m *migrator) migrate(ctx context.Context, schema types.TableSchema, strict bool) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	// Safety net before any destructive step.
	if _, err := m.backups.Create(ctx, nil); err != nil {
		return fmt.Errorf("pre-migration backup: %w", err)
	}

	conn, err := openConnection(m.storePath, m.busyTimeoutMS)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := m.apply(ctx, conn, schema, strict); err != nil {
		return err
	}

	ok, err := m.checker.Check(ctx)
	if err != nil {
		return err
	}
	if !ok {
		conn.Close() // release the handle before overwriting the file
		if rerr := m.backups.RestoreLatest(); rerr != nil {
			return fmt.Errorf("%w: restore after failed check: %v", types.ErrMigrationFailed, rerr)
		}
		m.logger.Error("migration rolled back to backup", "table", schema.Name)
		return fmt.Errorf("%w: integrity check failed after migrating %s", types.ErrMigrationFailed, schema.Name)
	}

	m.logger.Info("migration complete", "table", schema.Name)
	return nil
}

// apply performs the copy-forward migration inside a single transaction.
func (m *migrator) apply(ctx context.Context, conn *Connection, schema types.TableSchema, strict bool) error {
	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exists, err := tableExists(ctx, tx, schema.Name)
	if err != nil {
		return err
	}

	if !exists {
		if err := createTable(ctx, tx, schema); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing create of %s: %w", schema.Name, err)
		}
		m.logger.Info("table created", "table", schema.Name)
		return nil
	}

	oldCols, err := tableColumns(ctx, tx, schema.Name)
	if err != nil {
		return err
	}

	shared := make([]string, 0, len(oldCols))
	dropped := make([]string, 0)
	for _, col := range oldCols {
		if schema.HasColumn(col) {
			shared = append(shared, col)
		} else {
			dropped = append(dropped, col)
		}
	}

	if strict && len(dropped) > 0 {
		var rows int64
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+schema.Name).Scan(&rows); err != nil {
			return fmt.Errorf("counting rows in %s: %w", schema.Name, err)
		}
		if rows > 0 {
			return fmt.Errorf("%w: %s would lose %s", types.ErrColumnsDropped,
				schema.Name, strings.Join(dropped, ", "))
		}
	}

	// Rebuild under a temporary name, copy the column intersection, then
	// swap. The temporary table takes new-schema defaults for columns the
	// old table did not have.
	tmp := schema.Name + "__migrate_new"
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+tmp); err != nil {
		return fmt.Errorf("clearing stale temp table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schema.CreateSQL(tmp)); err != nil {
		return fmt.Errorf("creating temp table for %s: %w", schema.Name, err)
	}

	if len(shared) > 0 {
		cols := strings.Join(shared, ", ")
		copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", tmp, cols, cols, schema.Name)
		if _, err := tx.ExecContext(ctx, copySQL); err != nil {
			return fmt.Errorf("copying rows into %s: %w", tmp, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE "+schema.Name); err != nil {
		return fmt.Errorf("dropping old %s: %w", schema.Name, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmp, schema.Name)); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	for _, stmt := range schema.IndexSQL() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("recreating index: %w", err)
		}
	}
	for _, stmt := range schema.TriggerSQL() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("recreating trigger: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration of %s: %w", schema.Name, err)
	}

	m.logger.Debug("table rebuilt",
		"table", schema.Name, "carried", len(shared), "dropped", len(dropped))
	return nil
}

// createTable creates a table plus its indexes and triggers from a
// descriptor. Shared by migrations and first-run DDL.
func createTable(ctx context.Context, tx *sql.Tx, schema types.TableSchema) error {
	if _, err := tx.ExecContext(ctx, schema.CreateSQL(schema.Name)); err != nil {
		return fmt.Errorf("creating %s: %w", schema.Name, err)
	}
	for _, stmt := range schema.IndexSQL() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating index on %s: %w", schema.Name, err)
		}
	}
	for _, stmt := range schema.TriggerSQL() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating trigger on %s: %w", schema.Name, err)
		}
	}
	return nil
}

// tableExists checks sqlite_master for a table by name.
func tableExists(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking for table %s: %w", name, err)
	}
	return n > 0, nil
}

// tableColumns returns the column names of an existing table in
// declaration order.
func tableColumns(ctx context.Context, tx *sql.Tx, name string) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT name FROM pragma_table_info(?) ORDER BY cid", name)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", name, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scanning column of %s: %w", name, err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns of %s: %w", name, err)
	}
	return cols, nil
}
