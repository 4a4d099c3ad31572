// Package sqlite implements the SQLite backend for the kvsync store.
//
// Every process attached to the same data directory shares one database
// file. Writes append to a change log tagged with the writer's identity; a
// watcher goroutine tails the log and reports rows written by anyone else as
// external changes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/kvsync/pkg/types"
)

// DatabaseFile is the database file name inside the data directory.
const DatabaseFile = "kvsync.db"

var _ types.Backend = (*Backend)(nil)

// Backend implements types.Backend using SQLite as shared storage.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	writerID string
	logger   *slog.Logger

	// Watcher state.
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	fsw       *fsnotify.Watcher
	pollMu    sync.Mutex
	lastSeq   int64
	inWatcher atomic.Bool // set while the watcher goroutine runs subscribers

	subsMu sync.Mutex
	subs   map[uint64]func(types.Change)
	nextID uint64
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used for watcher diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		logger: slog.Default(),
		subs:   make(map[uint64]func(types.Change)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WriterID returns the identity stamped on this attachment's writes.
// It is empty while detached.
func (b *Backend) WriterID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writerID
}

// Attach opens (or creates) the database in config.DataDir and starts the
// change watcher. Existing data is kept.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schemaDDL {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("schema: %w", err)
		}
	}

	if err := pruneChanges(db); err != nil {
		db.Close()
		return fmt.Errorf("prune change log: %w", err)
	}

	var lastSeq int64
	if err := db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM changes`).Scan(&lastSeq); err != nil {
		db.Close()
		return err
	}

	b.db = db
	b.config = config
	b.config.DataDir = dataDir
	b.writerID = generateUUID()
	b.lastSeq = lastSeq
	b.attached = true

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.fsw = b.newFileWatcher(dataDir)
	b.wg.Add(1)
	go b.watch(ctx, b.fsw, config.GetPollInterval())

	return nil
}

// Detach stops the watcher, drops subscribers and closes the database.
// After Detach, all operations return ErrStoreDetached. Detach is idempotent.
//
// Detach waits for the watcher goroutine to exit, except when a subscriber
// running on that goroutine calls it; the remaining subscribers of that
// delivery still run.
func (b *Backend) Detach() error {
	b.mu.Lock()
	if !b.attached {
		b.mu.Unlock()
		return nil
	}
	b.attached = false
	cancel, fsw, db := b.cancel, b.fsw, b.db
	b.cancel, b.fsw, b.db = nil, nil, nil
	b.writerID = ""
	b.mu.Unlock()

	cancel()
	if !b.inWatcher.Load() {
		b.wg.Wait()
	}

	b.subsMu.Lock()
	b.subs = make(map[uint64]func(types.Change))
	b.subsMu.Unlock()

	if fsw != nil {
		fsw.Close()
	}
	return db.Close()
}

// Subscribe registers fn for changes made by other writers.
func (b *Backend) Subscribe(fn func(types.Change)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	b.subsMu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.subsMu.Lock()
			delete(b.subs, id)
			b.subsMu.Unlock()
		})
	}
}

// deliver calls every subscriber with change. Callers must not hold b.mu.
func (b *Backend) deliver(change types.Change) {
	if len(change.Keys) == 0 {
		return
	}

	b.subsMu.Lock()
	fns := make([]func(types.Change), 0, len(b.subs))
	for _, id := range slices.Sorted(maps.Keys(b.subs)) {
		fns = append(fns, b.subs[id])
	}
	b.subsMu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

func pruneChanges(db *sql.DB) error {
	_, err := db.Exec(`DELETE FROM changes WHERE seq <= (SELECT MAX(seq) FROM changes) - ?`, changeLogRetain)
	return err
}

// generateUUID generates a new UUID v7.
func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
