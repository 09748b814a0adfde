package sync

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/localfirst/crdtdoc/internal/actorid"
	"github.com/localfirst/crdtdoc/internal/document"
)

func newTestDoc(t *testing.T) *document.Document {
	t.Helper()
	actor, err := actorid.New()
	require.NoError(t, err)
	return document.New(actor)
}

func TestWatcherAppliesExistingFileAtStartup(t *testing.T) {
	source := newTestDoc(t)
	_, _, err := source.Set(document.Root, "greeting", "hello")
	require.NoError(t, err)
	blob, err := source.Save()
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "batch-1.bin"), blob, 0o600))

	target := newTestDoc(t)
	var mu sync.Mutex
	applied := make(chan string, 4)
	w, err := NewWatcher(target, dir, &mu, func(path string, err error) {
		require.NoError(t, err)
		applied <- path
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not apply pre-existing batch file")
	}

	mu.Lock()
	v, _, ok := target.Value(document.Root, "greeting")
	mu.Unlock()
	require.True(t, ok)
	require.Equal(t, "hello", v)
}

func TestWatcherAppliesNewlyWrittenFile(t *testing.T) {
	source := newTestDoc(t)
	_, _, err := source.Set(document.Root, "k", "v1")
	require.NoError(t, err)
	blob, err := source.Save()
	require.NoError(t, err)

	dir := t.TempDir()
	target := newTestDoc(t)
	var mu sync.Mutex
	applied := make(chan string, 4)
	w, err := NewWatcher(target, dir, &mu, func(path string, err error) {
		require.NoError(t, err)
		applied <- path
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "batch-2.bin"), blob, 0o600))

	select {
	case <-applied:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not apply newly written batch file")
	}

	mu.Lock()
	v, _, ok := target.Value(document.Root, "k")
	mu.Unlock()
	require.True(t, ok)
	require.Equal(t, "v1", v)
}

func TestReadWithBackoffSurfacesPermanentDecodeAfterSuccessfulRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a valid change log line"), 0o600))

	data, err := readWithBackoff(path)
	require.NoError(t, err)
	require.Equal(t, []byte("not a valid change log line"), data)
	require.Error(t, newTestDoc(t).LoadIncremental(data))
}
