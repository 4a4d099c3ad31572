// Package kvsync opens key-value store backends by name.
//
// A typical program opens one backend and binds cells to it:
//
//	store, err := kvsync.Open(types.Config{Backend: types.BackendSQLite, DataDir: dir})
//	if err != nil {
//	    return err
//	}
//	defer store.Detach()
//
//	theme, err := cell.New(store, "theme", "light")
package kvsync

import (
	"fmt"
	"log/slog"

	"github.com/mesh-intelligence/kvsync/internal/memory"
	"github.com/mesh-intelligence/kvsync/pkg/sqlite"
	"github.com/mesh-intelligence/kvsync/pkg/types"
)

// Version is the kvsync release version.
const Version = "0.1.0"

// Option configures Open.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger handed to backends that log.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewBackend returns a detached backend for cfg.Backend. Memory backends
// share one process-wide key space.
func NewBackend(cfg types.Config, opts ...Option) (types.Backend, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	switch cfg.Backend {
	case types.BackendSQLite:
		return sqlite.NewBackend(sqlite.WithLogger(o.logger)), nil
	case types.BackendMemory:
		return memory.NewSharedBackend(), nil
	case "":
		return nil, types.ErrBackendEmpty
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrBackendUnknown, cfg.Backend)
	}
}

// Open creates the backend named by cfg.Backend and attaches it.
// The caller must Detach the returned backend.
func Open(cfg types.Config, opts ...Option) (types.Backend, error) {
	backend, err := NewBackend(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := backend.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attach %s backend: %w", cfg.Backend, err)
	}
	return backend, nil
}
