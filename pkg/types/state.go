package types

// StoreState tracks the store lifecycle:
// Uninitialized -> Initializing -> Ready -> (Degraded | Corrupt).
type StoreState int

const (
	// StateUninitialized is the zero state before Open.
	StateUninitialized StoreState = iota

	// StateInitializing covers directory creation, the startup backup,
	// first-run DDL, and pool construction.
	StateInitializing

	// StateReady accepts transactions and maintenance operations.
	StateReady

	// StateDegraded means an integrity failure was repaired from backup.
	// Writes are allowed; a warning is surfaced on the next operation.
	StateDegraded

	// StateCorrupt means repair failed. Writes fail fast with
	// ErrStorageCorrupt until manual intervention.
	StateCorrupt
)

// String returns the lowercase state name.
func (s StoreState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}
