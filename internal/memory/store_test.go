package memory

import (
	"sync"
	"testing"

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

func TestStore_GetSetRemove(t *testing.T) {
	s := New()

	_, err := s.Get("theme")
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, s.Set("theme", "dark"))
	got, err := s.Get("theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", got)

	require.NoError(t, s.Set("count", 3))
	got, err = s.Get("count")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got, "integers are normalized to int64")

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"count", "theme"}, keys)

	require.NoError(t, s.Remove("theme"))
	assert.ErrorIs(t, s.Remove("theme"), types.ErrNotFound)

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": int64(3)}, snap)
}

func TestStore_SetRejectsInvalidInput(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.Set("", "x"), types.ErrInvalidKey)
	assert.ErrorIs(t, s.Set("k", struct{}{}), types.ErrInvalidValue)
}

func TestStore_OwnWritesAreNotNotified(t *testing.T) {
	s := New()
	rec := &recorder{}
	s.Subscribe(rec.record)

	require.NoError(t, s.Set("theme", "dark"))
	require.NoError(t, s.Remove("theme"))
	assert.Empty(t, rec.all())
}

func TestStore_PeerWritesAreNotified(t *testing.T) {
	a := New()
	b := a.Peer()

	rec := &recorder{}
	cancel := a.Subscribe(rec.record)

	require.NoError(t, b.Set("theme", "system"))
	got, err := a.Get("theme")
	require.NoError(t, err)
	assert.Equal(t, "system", got)

	changes := rec.all()
	require.Len(t, changes, 1)
	assert.Equal(t, types.ReasonServerChange, changes[0].Reason)
	assert.Equal(t, []string{"theme"}, changes[0].Keys)

	cancel()
	cancel()
	require.NoError(t, b.Set("theme", "light"))
	assert.Len(t, rec.all(), 1, "cancelled subscriber must not be called")
}

func TestStore_ApplyExternal(t *testing.T) {
	a := New()
	b := a.Peer()
	require.NoError(t, a.Set("gone", true))

	recA, recB := &recorder{}, &recorder{}
	a.Subscribe(recA.record)
	b.Subscribe(recB.record)

	err := a.ApplyExternal(types.ReasonAccountChange, map[string]any{"theme": "dark"}, "gone")
	require.NoError(t, err)

	for _, rec := range []*recorder{recA, recB} {
		changes := rec.all()
		require.Len(t, changes, 1)
		assert.Equal(t, types.ReasonAccountChange, changes[0].Reason)
		assert.Equal(t, []string{"gone", "theme"}, changes[0].Keys)
	}

	_, err = a.Get("gone")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestStore_Quota(t *testing.T) {
	s := NewBackend()
	require.NoError(t, s.Attach(types.Config{Backend: types.BackendMemory, MaxKeys: 1}))
	assert.ErrorIs(t, s.Attach(types.Config{Backend: types.BackendMemory}), types.ErrAlreadyAttached)

	rec := &recorder{}
	s.Subscribe(rec.record)

	require.NoError(t, s.Set("a", 1))
	require.NoError(t, s.Set("a", 2), "overwriting an existing key stays within quota")
	assert.ErrorIs(t, s.Set("b", 1), types.ErrQuotaExceeded)

	changes := rec.all()
	require.Len(t, changes, 1)
	assert.Equal(t, types.ReasonQuotaViolationChange, changes[0].Reason)
	assert.Equal(t, []string{"b"}, changes[0].Keys)
}

func TestStore_Detached(t *testing.T) {
	s := NewBackend()

	_, err := s.Get("k")
	assert.ErrorIs(t, err, types.ErrStoreDetached)
	assert.ErrorIs(t, s.Set("k", "v"), types.ErrStoreDetached)
	assert.ErrorIs(t, s.Synchronize(), types.ErrStoreDetached)

	require.NoError(t, s.Attach(types.Config{Backend: types.BackendMemory}))
	require.NoError(t, s.Synchronize())
	require.NoError(t, s.Detach())
	require.NoError(t, s.Detach())
	_, err = s.Keys()
	assert.ErrorIs(t, err, types.ErrStoreDetached)
}

func TestStore_ReturnsCopies(t *testing.T) {
	a := New()
	b := a.Peer()
	require.NoError(t, a.Set("prefs", map[string]any{"size": 12, "tags": []any{"a"}, "raw": []byte("x")}))

	rec := &recorder{}
	b.Subscribe(rec.record)

	got, err := a.Get("prefs")
	require.NoError(t, err)
	m := got.(map[string]any)
	m["size"] = 99
	m["tags"].([]any)[0] = "z"
	m["raw"].([]byte)[0] = 'y'

	snap, err := a.Snapshot()
	require.NoError(t, err)
	snap["prefs"].(map[string]any)["size"] = 7

	want := map[string]any{"size": int64(12), "tags": []any{"a"}, "raw": []byte("x")}
	got, err = b.Get("prefs")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Empty(t, rec.all())
}

func TestSharedBackend(t *testing.T) {
	assert.Same(t, Default(), Default())

	a := NewSharedBackend()
	_, err := a.Get("shared.theme")
	assert.ErrorIs(t, err, types.ErrStoreDetached)

	cfg := types.Config{Backend: types.BackendMemory}
	require.NoError(t, a.Attach(cfg))
	defer a.Detach()
	b := NewSharedBackend()
	require.NoError(t, b.Attach(cfg))

	rec := &recorder{}
	b.Subscribe(rec.record)

	require.NoError(t, a.Set("shared.theme", "dark"))
	got, err := Default().Get("shared.theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", got)
	require.Len(t, rec.all(), 1)

	require.NoError(t, b.Detach())
	require.NoError(t, a.Set("shared.theme", "light"))
	assert.Len(t, rec.all(), 1, "detached handles are not notified")
}
