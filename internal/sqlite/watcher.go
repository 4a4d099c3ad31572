// Change watcher: tails the change log for rows written by other writers.
package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mesh-intelligence/kvsync/pkg/types"
)

// newFileWatcher watches dataDir for writes to the database files. A nil
// return leaves the watcher on its poll ticker alone.
func (b *Backend) newFileWatcher(dataDir string) *fsnotify.Watcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		b.logger.Warn("file watcher unavailable, polling only", "error", err)
		return nil
	}
	if err := w.Add(dataDir); err != nil {
		b.logger.Warn("file watcher unavailable, polling only", "dir", dataDir, "error", err)
		w.Close()
		return nil
	}
	return w
}

// watch runs until ctx is cancelled, polling the change log on every
// database file event and on every tick.
func (b *Backend) watch(ctx context.Context, w *fsnotify.Watcher, interval time.Duration) {
	defer b.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if w != nil {
		events, errs = w.Events, w.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.pollAndDeliver(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if isDatabaseEvent(ev) {
				b.pollAndDeliver(ctx)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			b.logger.Debug("file watcher error", "error", err)
		}
	}
}

func isDatabaseEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	return strings.HasPrefix(filepath.Base(ev.Name), DatabaseFile)
}

// Synchronize pulls pending external changes now and delivers them before
// returning.
func (b *Backend) Synchronize() error {
	change, err := b.poll()
	if err != nil {
		return err
	}
	b.deliver(change)
	return nil
}

// pollAndDeliver runs on the watcher goroutine. Subscribers it calls may
// Detach the backend.
func (b *Backend) pollAndDeliver(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	change, err := b.poll()
	if err != nil {
		if !errors.Is(err, types.ErrStoreDetached) {
			b.logger.Warn("change log poll failed", "error", err)
		}
		return
	}

	b.inWatcher.Store(true)
	defer b.inWatcher.Store(false)
	b.deliver(change)
}

// poll reads change log rows past the last seen sequence and returns the
// keys written by other writers. When the log was pruned past the last seen
// sequence, every key is reported as an initial sync.
func (b *Backend) poll() (types.Change, error) {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.Change{}, types.ErrStoreDetached
	}

	var minSeq int64
	if err := b.db.QueryRow(`SELECT COALESCE(MIN(seq), 0) FROM changes`).Scan(&minSeq); err != nil {
		return types.Change{}, err
	}
	if minSeq > b.lastSeq+1 {
		return b.resyncLocked()
	}

	rows, err := b.db.Query(`SELECT seq, key, writer_id FROM changes WHERE seq > ? ORDER BY seq`, b.lastSeq)
	if err != nil {
		return types.Change{}, err
	}
	defer rows.Close()

	var keys []string
	last := b.lastSeq
	for rows.Next() {
		var seq int64
		var key, writer string
		if err := rows.Scan(&seq, &key, &writer); err != nil {
			return types.Change{}, err
		}
		last = seq
		if writer != b.writerID {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return types.Change{}, err
	}

	b.lastSeq = last
	return types.NewChange(types.ReasonServerChange, keys...), nil
}

func (b *Backend) resyncLocked() (types.Change, error) {
	var maxSeq int64
	if err := b.db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM changes`).Scan(&maxSeq); err != nil {
		return types.Change{}, err
	}

	rows, err := b.db.Query(`SELECT key FROM kv UNION SELECT key FROM changes`)
	if err != nil {
		return types.Change{}, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return types.Change{}, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return types.Change{}, err
	}

	b.logger.Info("change log pruned past last seen row, resyncing", "keys", len(keys))
	b.lastSeq = maxSeq
	return types.NewChange(types.ReasonInitialSyncChange, keys...), nil
}
