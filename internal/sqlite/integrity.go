package sqlite

import (
	"context"
	"fmt"
	"log/slog"
)

// integrityChecker runs the engine's consistency scan against one store
// file on a dedicated short-lived connection, so a check never competes
// with pooled transactions for a handle.
type integrityChecker struct {
	storePath     string
	busyTimeoutMS int
	logger        *slog.Logger
}

func newIntegrityChecker(storePath string, busyTimeoutMS int, logger *slog.Logger) *integrityChecker {
	return &integrityChecker{
		storePath:     storePath,
		busyTimeoutMS: busyTimeoutMS,
		logger:        logger.With("component", "integrity"),
	}
}

// Check reports whether the store file is structurally sound. The scan
// returns a single row reading "ok" on a healthy database; anything else,
// including failure to open the file at all, counts as unsound.
func (c *integrityChecker) Check(ctx context.Context) (bool, error) {
	conn, err := openConnection(c.storePath, c.busyTimeoutMS)
	if err != nil {
		c.logger.Warn("integrity scan could not open store", "error", err)
		return false, nil
	}
	defer conn.Close()

	var result string
	if err := conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("integrity scan: %w", err)
		}
		c.logger.Warn("integrity scan failed to run", "error", err)
		return false, nil
	}

	if result != "ok" {
		c.logger.Warn("integrity scan found corruption", "detail", result)
		return false, nil
	}
	return true, nil
}
