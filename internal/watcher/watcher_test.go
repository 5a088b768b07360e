package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDB(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "forge.db")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestWatcher_FiresOnDeletion(t *testing.T) {
	dir := t.TempDir()
	path := writeDB(t, dir)

	fired := make(chan struct{}, 1)
	w, err := New(path, func() { fired <- struct{}{} })
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond
	require.NoError(t, w.Start())
	t.Cleanup(func() { w.Stop() })

	require.NoError(t, os.Remove(path))

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("deletion callback never fired")
	}
}

func TestWatcher_QuickReplaceDoesNotFire(t *testing.T) {
	dir := t.TempDir()
	path := writeDB(t, dir)

	fired := make(chan struct{}, 1)
	w, err := New(path, func() { fired <- struct{}{} })
	require.NoError(t, err)
	w.debounce = 300 * time.Millisecond
	require.NoError(t, w.Start())
	t.Cleanup(func() { w.Stop() })

	require.NoError(t, os.Remove(path))
	writeDB(t, dir)

	select {
	case <-fired:
		t.Fatal("callback fired despite the file coming back")
	case <-time.After(600 * time.Millisecond):
	}
}

func TestWatcher_StartTwiceAndStop(t *testing.T) {
	dir := t.TempDir()
	path := writeDB(t, dir)

	w, err := New(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	assert.NoError(t, w.Start())
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}
