// Package sqlite exposes the SQLite store backend.
//
// Backends attached to the same data directory, in this process or another,
// share one database file. A write through one backend reaches the others
// as a types.ReasonServerChange notification.
package sqlite

import (
	"log/slog"

	"github.com/mesh-intelligence/kvsync/internal/sqlite"
	"github.com/mesh-intelligence/kvsync/pkg/types"
)

// DatabaseFile is the database file name inside the data directory.
const DatabaseFile = sqlite.DatabaseFile

// Option configures a backend.
type Option = sqlite.Option

// WithLogger sets the logger used for change watcher diagnostics.
func WithLogger(l *slog.Logger) Option {
	return sqlite.WithLogger(l)
}

// NewBackend creates a detached SQLite backend.
//
// Example:
//
//	backend := sqlite.NewBackend(sqlite.WithLogger(logger))
//	err := backend.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: "/var/lib/myapp/settings",
//	})
//	defer backend.Detach()
func NewBackend(opts ...Option) types.Backend {
	return sqlite.NewBackend(opts...)
}
