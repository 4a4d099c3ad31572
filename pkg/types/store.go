package types

import "errors"

// Store is an externally owned key-value mapping from string keys to loosely
// typed values. Implementations persist and synchronize the data on their own
// schedule; callers only read, write, and listen.
//
// Supported value kinds are string, bool, int64, float64, []byte, []any and
// map[string]any. Backends normalize other Go integer and float types with
// NormalizeValue.
type Store interface {
	// Get returns the raw value stored under key.
	// Returns ErrNotFound if the key has no entry.
	Get(key string) (any, error)

	// Set stores value under key, replacing any previous entry.
	Set(key string, value any) error

	// Remove deletes the entry for key.
	// Returns ErrNotFound if the key has no entry.
	Remove(key string) error

	// Keys returns all keys with an entry, sorted.
	Keys() ([]string, error)

	// Snapshot returns a copy of every entry.
	Snapshot() (map[string]any, error)

	// Subscribe registers fn for changes made outside this store handle.
	// Notifications for the store's own writes are never delivered.
	// fn may be called from any goroutine. The returned cancel func is
	// idempotent.
	Subscribe(fn func(Change)) (cancel func())

	// Synchronize pulls pending external changes and delivers their
	// notifications before returning.
	Synchronize() error
}

// Backend is a Store with an explicit attach/detach lifecycle.
type Backend interface {
	Store

	// Attach connects the backend to the storage described by config.
	// Returns ErrAlreadyAttached if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent. After Detach, store
	// operations return ErrStoreDetached.
	Detach() error
}

// Store errors.
var (
	ErrNotFound        = errors.New("key not found")
	ErrInvalidKey      = errors.New("invalid key")
	ErrInvalidValue    = errors.New("unsupported value type")
	ErrQuotaExceeded   = errors.New("key quota exceeded")
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
)
