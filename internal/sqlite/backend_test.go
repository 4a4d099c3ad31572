package sqlite

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/kvsync/pkg/types"
)

type recorder struct {
	mu      sync.Mutex
	changes []types.Change
}

func (r *recorder) record(c types.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) all() []types.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Change(nil), r.changes...)
}

func (r *recorder) sawKey(key string) bool {
	for _, c := range r.all() {
		if c.Contains(key) {
			return true
		}
	}
	return false
}

func attach(t *testing.T, dir string, cfg types.Config) *Backend {
	t.Helper()
	cfg.Backend = types.BackendSQLite
	cfg.DataDir = dir
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 20 * time.Millisecond
	}
	b := NewBackend()
	require.NoError(t, b.Attach(cfg))
	t.Cleanup(func() { b.Detach() })
	return b
}

func TestBackend_GetSetRemove(t *testing.T) {
	b := attach(t, t.TempDir(), types.Config{})

	_, err := b.Get("theme")
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, b.Set("theme", "dark"))
	require.NoError(t, b.Set("theme", "light"))
	require.NoError(t, b.Set("count", 3))

	got, err := b.Get("theme")
	require.NoError(t, err)
	assert.Equal(t, "light", got)

	got, err = b.Get("count")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)

	keys, err := b.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"count", "theme"}, keys)

	require.NoError(t, b.Remove("count"))
	assert.ErrorIs(t, b.Remove("count"), types.ErrNotFound)

	assert.ErrorIs(t, b.Set("", "x"), types.ErrInvalidKey)
	assert.ErrorIs(t, b.Set("k", struct{}{}), types.ErrInvalidValue)
}

func TestBackend_ValueKinds(t *testing.T) {
	b := attach(t, t.TempDir(), types.Config{})

	values := map[string]any{
		"string": "dark",
		"bool":   true,
		"int":    int64(-7),
		"float":  2.5,
		"whole":  2.0,
		"data":   []byte{0, 1, 255},
		"array":  []any{"a", int64(1), 1.5},
		"dict":   map[string]any{"size": int64(12), "nested": map[string]any{"on": false}},
	}
	for k, v := range values {
		require.NoError(t, b.Set(k, v), k)
	}

	snap, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, values, snap)
}

func TestBackend_PersistsAcrossAttach(t *testing.T) {
	dir := t.TempDir()

	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
	require.NoError(t, b.Set("theme", "dark"))
	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach())

	_, err := b.Get("theme")
	assert.ErrorIs(t, err, types.ErrStoreDetached)
	assert.ErrorIs(t, b.Synchronize(), types.ErrStoreDetached)

	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
	defer b.Detach()
	assert.ErrorIs(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}), types.ErrAlreadyAttached)

	got, err := b.Get("theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", got)
	assert.FileExists(t, filepath.Join(dir, DatabaseFile))
}

func TestBackend_PeerWritesAreExternalChanges(t *testing.T) {
	if testing.Short() {
		t.Skip("watcher test")
	}
	dir := t.TempDir()
	a := attach(t, dir, types.Config{})
	b := attach(t, dir, types.Config{})
	require.NotEqual(t, a.WriterID(), b.WriterID())

	recA, recB := &recorder{}, &recorder{}
	a.Subscribe(recA.record)
	b.Subscribe(recB.record)

	require.NoError(t, a.Set("theme", "dark"))
	require.NoError(t, b.Synchronize())
	require.Eventually(t, func() bool { return recB.sawKey("theme") }, 5*time.Second, 10*time.Millisecond)

	got, err := b.Get("theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", got)

	// b's write is the marker: once a has seen it, a has tailed past its own
	// earlier write and must not have reported it.
	require.NoError(t, b.Set("marker", true))
	require.Eventually(t, func() bool { return recA.sawKey("marker") }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, recA.sawKey("theme"), "own writes must not be reported")
	assert.False(t, recB.sawKey("marker"), "own writes must not be reported")

	for _, c := range recB.all() {
		assert.Equal(t, types.ReasonServerChange, c.Reason)
	}
}

func TestBackend_PeerRemoveIsExternalChange(t *testing.T) {
	if testing.Short() {
		t.Skip("watcher test")
	}
	dir := t.TempDir()
	a := attach(t, dir, types.Config{})
	b := attach(t, dir, types.Config{})
	require.NoError(t, a.Set("theme", "dark"))

	rec := &recorder{}
	cancel := b.Subscribe(rec.record)
	defer cancel()

	require.NoError(t, a.Remove("theme"))
	require.Eventually(t, func() bool { return rec.sawKey("theme") }, 5*time.Second, 10*time.Millisecond)

	_, err := b.Get("theme")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestBackend_DetachFromSubscriber(t *testing.T) {
	if testing.Short() {
		t.Skip("watcher test")
	}
	dir := t.TempDir()
	a := attach(t, dir, types.Config{})
	b := attach(t, dir, types.Config{})

	var once sync.Once
	detached := make(chan error, 1)
	b.Subscribe(func(types.Change) {
		once.Do(func() { detached <- b.Detach() })
	})

	require.NoError(t, a.Set("theme", "dark"))
	select {
	case err := <-detached:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Detach called from a subscriber did not return")
	}

	_, err := b.Get("theme")
	assert.ErrorIs(t, err, types.ErrStoreDetached)
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
	got, err := b.Get("theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", got)
}

func TestBackend_Quota(t *testing.T) {
	b := attach(t, t.TempDir(), types.Config{MaxKeys: 1})
	rec := &recorder{}
	b.Subscribe(rec.record)

	require.NoError(t, b.Set("a", 1))
	require.NoError(t, b.Set("a", 2))
	assert.ErrorIs(t, b.Set("b", 1), types.ErrQuotaExceeded)

	_, err := b.Get("b")
	assert.ErrorIs(t, err, types.ErrNotFound)

	changes := rec.all()
	require.NotEmpty(t, changes)
	assert.Equal(t, types.ReasonQuotaViolationChange, changes[0].Reason)
	assert.Equal(t, []string{"b"}, changes[0].Keys)
}

func TestBackend_ResyncAfterPrunedLog(t *testing.T) {
	b := attach(t, t.TempDir(), types.Config{PollInterval: time.Hour})
	require.NoError(t, b.Set("x", 1))
	require.NoError(t, b.Set("y", 2))

	rec := &recorder{}
	b.Subscribe(rec.record)

	_, err := b.db.Exec(`DELETE FROM changes WHERE seq = (SELECT MIN(seq) FROM changes)`)
	require.NoError(t, err)
	b.pollMu.Lock()
	b.lastSeq = 0
	b.pollMu.Unlock()

	require.NoError(t, b.Synchronize())
	require.Eventually(t, func() bool {
		return slices.ContainsFunc(rec.all(), func(c types.Change) bool {
			return c.Reason == types.ReasonInitialSyncChange && c.Contains("x") && c.Contains("y")
		})
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBackend_ExportImport(t *testing.T) {
	src := attach(t, t.TempDir(), types.Config{})
	require.NoError(t, src.Set("theme", "dark"))
	require.NoError(t, src.Set("prefs", map[string]any{"size": int64(12)}))

	path := filepath.Join(t.TempDir(), "export.jsonl")
	n, err := src.Export(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n\n{\"key\":\"bad\",\"kind\":\"nope\",\"value\":1}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	dir := t.TempDir()
	dst := attach(t, dir, types.Config{})
	peer := attach(t, dir, types.Config{})
	rec := &recorder{}
	peer.Subscribe(rec.record)

	n, err = dst.Import(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap, err := dst.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"theme": "dark", "prefs": map[string]any{"size": int64(12)}}, snap)

	require.Eventually(t, func() bool { return rec.sawKey("theme") && rec.sawKey("prefs") }, 5*time.Second, 10*time.Millisecond)

	_, err = dst.Import(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}
