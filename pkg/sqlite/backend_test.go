package sqlite

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/kvsync/pkg/types"
)

func TestNewBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: dir, PollInterval: 20 * time.Millisecond}

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	a := NewBackend(WithLogger(logger))
	_, err := a.Get("theme")
	assert.ErrorIs(t, err, types.ErrStoreDetached)

	require.NoError(t, a.Attach(cfg))
	defer a.Detach()
	b := NewBackend(WithLogger(nil))
	require.NoError(t, b.Attach(cfg))
	defer b.Detach()
	assert.FileExists(t, filepath.Join(dir, DatabaseFile))

	seen := make(chan types.Change, 8)
	b.Subscribe(func(c types.Change) { seen <- c })

	require.NoError(t, a.Set("theme", "dark"))
	require.NoError(t, b.Synchronize())

	select {
	case c := <-seen:
		assert.Equal(t, types.ReasonServerChange, c.Reason)
		assert.Equal(t, []string{"theme"}, c.Keys)
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
	}

	got, err := b.Get("theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", got)
}
