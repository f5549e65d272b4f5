// Package types defines the public contracts of the Strongbox persistence
// core: store configuration, typed table schema descriptors, store states,
// and the sentinel errors callers dispatch on.
//
// Everything engine-specific lives in internal/sqlite; callers depend only
// on this package and the Store façade.
package types
