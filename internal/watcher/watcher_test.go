package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prologbook/prologbook/internal/logging"
)

func newTestWatcher(t *testing.T) *FileWatcher {
	t.Helper()
	log := logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelError, Output: io.Discard})
	fw, err := NewFileWatcher(50*time.Millisecond, log)
	require.NoError(t, err)
	t.Cleanup(func() { fw.Stop() })
	return fw
}

// collectBatches subscribes a handler that records every debounced batch.
func collectBatches(fw *FileWatcher) (func() [][]ChangeEvent, *sync.Mutex) {
	var mu sync.Mutex
	var batches [][]ChangeEvent
	fw.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, events)
		return nil
	})
	return func() [][]ChangeEvent {
		mu.Lock()
		defer mu.Unlock()
		out := make([][]ChangeEvent, len(batches))
		copy(out, batches)
		return out
	}, &mu
}

func TestDebouncedBatch(t *testing.T) {
	dir := t.TempDir()
	fw := newTestWatcher(t)
	fw.AddFilter(ManifestFilter)
	snapshot, _ := collectBatches(fw)

	require.NoError(t, fw.AddPath(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	// two rapid writes to the same file collapse into one event
	path := filepath.Join(dir, "ch1.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("ab"), 0o644))

	require.Eventually(t, func() bool {
		return len(snapshot()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	// deduplicated by path within each debounced batch
	for _, batch := range snapshot() {
		require.Len(t, batch, 1)
		assert.Equal(t, path, batch[0].Path)
	}
}

func TestFiltersDropNonBookFiles(t *testing.T) {
	dir := t.TempDir()
	fw := newTestWatcher(t)
	fw.AddFilter(BookFilter)
	snapshot, _ := collectBatches(fw)

	require.NoError(t, fw.AddPath(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lists.pl"), []byte("a."), 0o644))

	require.Eventually(t, func() bool {
		return len(snapshot()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	batches := snapshot()
	for _, batch := range batches {
		for _, event := range batch {
			assert.Equal(t, ".pl", filepath.Ext(event.Path))
		}
	}
}

func TestAddRecursive(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "part1")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	fw := newTestWatcher(t)
	fw.AddFilter(ManifestFilter)
	snapshot, _ := collectBatches(fw)

	require.NoError(t, fw.AddRecursive(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(sub, "ch3.yaml"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		return len(snapshot()) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestValidatePathRejectsTraversal(t *testing.T) {
	_, err := validatePath("pages/../../etc")
	assert.Error(t, err)
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "created", EventTypeCreated.String())
	assert.Equal(t, "modified", EventTypeModified.String())
	assert.Equal(t, "deleted", EventTypeDeleted.String())
	assert.Equal(t, "renamed", EventTypeRenamed.String())
	assert.Equal(t, "unknown", EventType(42).String())
}

func TestFilterPredicates(t *testing.T) {
	assert.True(t, ManifestFilter("pages/ch1.yaml"))
	assert.True(t, ManifestFilter("pages/ch1.yml"))
	assert.False(t, ManifestFilter("pages/ch1.md"))

	assert.True(t, ContentFilter("exercises/2.1.md"))
	assert.True(t, ContentFilter("code/lists.pl"))
	assert.False(t, ContentFilter("notes.txt"))

	assert.False(t, NoHiddenFilter(".git/config.yaml"))
	assert.True(t, NoHiddenFilter("pages/ch1.yaml"))

	inBuild := NoOutputFilter("_build")
	assert.False(t, inBuild(filepath.Join("_build", "prolog_build_files", "a-merged.pl")))
	assert.True(t, inBuild(filepath.Join("pages", "ch1.yaml")))
}
