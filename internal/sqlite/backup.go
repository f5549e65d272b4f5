package sqlite

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/strongbox-db/strongbox/pkg/types"
)

// backupTimeFormat yields names that sort lexicographically in creation
// order: <store>_YYYYMMDD_HHMMSS. Second-granularity ties get an
// incrementing zero-padded suffix.
const backupTimeFormat = "20060102_150405"

// backupStampRe matches the part of a backup name after the store prefix:
// the timestamp, optionally followed by a tie-break suffix. Anything else
// under the backup directory is not one of this store's backups, even if
// it happens to share the name prefix.
var backupStampRe = regexp.MustCompile(`^\d{8}_\d{6}(_\d+)?$`)

// backupManager creates timestamped snapshots of one store file and
// enforces the retention policy. It does not coordinate access: callers
// run RestoreLatest only with the pool drained.
type backupManager struct {
	storeName string
	storePath string
	dir       string
	retention int
	logger    *slog.Logger

	now func() time.Time // stubbed in tests
}

func newBackupManager(cfg types.Config, storePath, dir string, logger *slog.Logger) *backupManager {
	return &backupManager{
		storeName: cfg.Name,
		storePath: storePath,
		dir:       dir,
		retention: cfg.BackupRetention,
		logger:    logger.With("component", "backup"),
		now:       time.Now,
	}
}

// Create snapshots the live store file into the backup directory and
// prunes beyond the retention count. conn, when non-nil, is used to take a
// consistent snapshot with VACUUM INTO, which is correct under WAL; a nil
// conn falls back to a byte copy, which is only safe while no connection
// is open (startup, or after a drain).
func (m *backupManager) Create(ctx context.Context, conn *Connection) (string, error) {
	if _, err := os.Stat(m.storePath); err != nil {
		return "", fmt.Errorf("stat store file: %w", err)
	}

	dst, err := m.nextName()
	if err != nil {
		return "", err
	}

	if conn != nil {
		// VACUUM INTO takes a string literal, not a bind parameter.
		escaped := strings.ReplaceAll(dst, "'", "''")
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s';", escaped)); err != nil {
			return "", fmt.Errorf("vacuum into %s: %w", dst, err)
		}
	} else {
		if err := copyFile(m.storePath, dst); err != nil {
			return "", fmt.Errorf("copying store file: %w", err)
		}
	}

	m.logger.Info("backup created", "file", filepath.Base(dst))

	if err := m.prune(); err != nil {
		return "", err
	}
	return dst, nil
}

// RestoreLatest copies the newest retained backup over the live store
// file, discarding the write-ahead log and shared-memory side files so the
// restored image is read cleanly. Returns types.ErrNoBackupAvailable when
// no backups exist. The caller must hold exclusive access to the store.
func (m *backupManager) RestoreLatest() error {
	backups, err := m.List()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		return types.ErrNoBackupAvailable
	}

	latest := backups[len(backups)-1]
	if err := copyFile(latest, m.storePath); err != nil {
		return fmt.Errorf("restoring %s: %w", filepath.Base(latest), err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		os.Remove(m.storePath + suffix)
	}

	m.logger.Info("backup restored", "file", filepath.Base(latest))
	return nil
}

// List returns the retained backup paths for this store, oldest first.
// Filename ordering is monotonic with creation time by construction.
func (m *backupManager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup dir: %w", err)
	}

	prefix := m.storeName + "_"
	var backups []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stamp, ok := strings.CutPrefix(e.Name(), prefix)
		if !ok || !backupStampRe.MatchString(stamp) {
			continue
		}
		backups = append(backups, filepath.Join(m.dir, e.Name()))
	}
	sort.Strings(backups)
	return backups, nil
}

// nextName picks the snapshot filename for the current second. Same-second
// ties get a zero-padded suffix one past the highest suffix still on disk,
// so a name freed by pruning is never reused for a newer snapshot and
// ordering stays monotonic with creation time past ten ties.
func (m *backupManager) nextName() (string, error) {
	backups, err := m.List()
	if err != nil {
		return "", err
	}
	base := m.storeName + "_" + m.now().UTC().Format(backupTimeFormat)

	maxSuffix := -1
	for _, path := range backups {
		name := filepath.Base(path)
		if name == base {
			if maxSuffix < 0 {
				maxSuffix = 0
			}
			continue
		}
		rest, ok := strings.CutPrefix(name, base+"_")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		if n > maxSuffix {
			maxSuffix = n
		}
	}

	if maxSuffix < 0 {
		return filepath.Join(m.dir, base), nil
	}
	return filepath.Join(m.dir, fmt.Sprintf("%s_%03d", base, maxSuffix+1)), nil
}

// prune deletes backups beyond the retention count, oldest first.
func (m *backupManager) prune() error {
	backups, err := m.List()
	if err != nil {
		return err
	}
	for len(backups) > m.retention {
		victim := backups[0]
		backups = backups[1:]
		if err := os.Remove(victim); err != nil {
			return fmt.Errorf("pruning %s: %w", filepath.Base(victim), err)
		}
		m.logger.Debug("backup pruned", "file", filepath.Base(victim))
	}
	return nil
}

// copyFile writes src to dst, truncating dst, and syncs before close.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
