package types

import "errors"

// Default configuration values applied by Config.ApplyDefaults.
const (
	// DefaultPoolSize is the maximum number of physical connections a
	// store opens concurrently.
	DefaultPoolSize = 5

	// DefaultBackupRetention is the number of snapshot files kept per
	// store; older backups are pruned oldest-first.
	DefaultBackupRetention = 5

	// DefaultBusyTimeoutMS is how long a connection waits on a file lock
	// before surfacing an error, in milliseconds.
	DefaultBusyTimeoutMS = 5000

	// DefaultAcquireTimeoutMS bounds how long a caller blocks waiting for
	// a pooled connection before ErrPoolExhausted, in milliseconds.
	DefaultAcquireTimeoutMS = 30000
)

// Config holds the knobs for one logical store. BaseDir is required; the
// store file lives at <BaseDir>/db/<Name>.db and backups under
// <BaseDir>/db/backups.
type Config struct {
	// Name identifies the logical store and prefixes its backup files.
	Name string `json:"name" yaml:"name"`

	// BaseDir is the directory the db/ tree is created under.
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// PoolSize caps concurrent physical connections.
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// BackupRetention is how many backups are kept after pruning.
	BackupRetention int `json:"backup_retention" yaml:"backup_retention"`

	// BusyTimeoutMS is the SQLite busy_timeout pragma value.
	BusyTimeoutMS int `json:"busy_timeout_ms" yaml:"busy_timeout_ms"`

	// AcquireTimeoutMS bounds the wait for a pooled connection.
	AcquireTimeoutMS int `json:"acquire_timeout_ms" yaml:"acquire_timeout_ms"`
}

// Config validation errors.
var (
	ErrNameEmpty        = errors.New("store name must not be empty")
	ErrBaseDirEmpty     = errors.New("base directory must not be empty")
	ErrPoolSizeInvalid  = errors.New("pool size must be positive")
	ErrRetentionInvalid = errors.New("backup retention must be positive")
)

// ApplyDefaults fills zero-valued knobs with the package defaults.
// Name and BaseDir have no defaults and stay as given.
func (c Config) ApplyDefaults() Config {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.BackupRetention == 0 {
		c.BackupRetention = DefaultBackupRetention
	}
	if c.BusyTimeoutMS == 0 {
		c.BusyTimeoutMS = DefaultBusyTimeoutMS
	}
	if c.AcquireTimeoutMS == 0 {
		c.AcquireTimeoutMS = DefaultAcquireTimeoutMS
	}
	return c
}

// Validate checks that the Config is well-formed. It returns a sentinel
// error from this package on failure. Call ApplyDefaults first; Validate
// rejects zero knobs rather than guessing.
func (c Config) Validate() error {
	if c.Name == "" {
		return ErrNameEmpty
	}
	if !identRe.MatchString(c.Name) {
		return ErrInvalidIdentifier
	}
	if c.BaseDir == "" {
		return ErrBaseDirEmpty
	}
	if c.PoolSize <= 0 {
		return ErrPoolSizeInvalid
	}
	if c.BackupRetention <= 0 {
		return ErrRetentionInvalid
	}
	return nil
}
