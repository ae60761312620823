package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)

	watcher.AddFilter(DataFileFilter)
	watcher.AddFilter(NoTempFilter)
	assert.Len(t, watcher.filters, 2)
}

func TestFileWatcherAddPath(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	tempDir := t.TempDir()
	assert.NoError(t, watcher.AddPath(tempDir))
	assert.Contains(t, watcher.WatchedPaths(), tempDir)

	assert.Error(t, watcher.AddPath("/non/existent/path"))
	assert.Error(t, watcher.AddPath(""))

	err = watcher.AddPath("../../../etc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "traversal")
}

func TestFileWatcherStartStop(t *testing.T) {
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)

	tempDir := t.TempDir()
	require.NoError(t, watcher.AddPath(tempDir))
	watcher.AddFilter(DataFileFilter)

	var mu sync.Mutex
	var received []ChangeEvent
	watcher.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		received = append(received, events...)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "ignored.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "data.json"), []byte(`{}`), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	for _, event := range received {
		assert.Equal(t, "data.json", filepath.Base(event.Path))
	}
	mu.Unlock()

	cancel()
	assert.NoError(t, watcher.Stop())
	assert.NoError(t, watcher.Stop())
}

func TestFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter FileFilter
		path   string
		want   bool
	}{
		{"json", DataFileFilter, "stores/app.json", true},
		{"yaml", DataFileFilter, "stores/app.yaml", true},
		{"yml upper", DataFileFilter, "stores/APP.YML", true},
		{"go", DataFileFilter, "main.go", false},
		{"plain", NoTempFilter, "app.json", true},
		{"tilde backup", NoTempFilter, "app.json~", false},
		{"vim swap", NoTempFilter, ".app.json.swp", false},
		{"emacs lock", NoTempFilter, ".#app.json", false},
		{"regular dir", NoGitFilter, "stores/app.json", true},
		{"git root", NoGitFilter, ".git/HEAD", false},
		{"nested git", NoGitFilter, "repo/.git/config", false},
		{"git dir", NoGitFilter, "repo/.git", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter(tt.path))
		})
	}
}

func TestDebouncer(t *testing.T) {
	debouncer := NewDebouncer(30 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go debouncer.start(ctx)

	debouncer.events <- ChangeEvent{Path: "a.json", Type: EventTypeCreated}
	debouncer.events <- ChangeEvent{Path: "b.json", Type: EventTypeModified}
	debouncer.events <- ChangeEvent{Path: "a.json", Type: EventTypeModified}

	select {
	case batch := <-debouncer.output:
		require.Len(t, batch, 2)
		assert.Equal(t, "a.json", batch[0].Path)
		assert.Equal(t, EventTypeModified, batch[0].Type)
		assert.Equal(t, "b.json", batch[1].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a debounced batch")
	}
}

func TestAddRecursive(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	tempDir := t.TempDir()
	subDir := filepath.Join(tempDir, "subdir")
	gitDir := filepath.Join(tempDir, ".git", "objects")
	require.NoError(t, os.MkdirAll(subDir, 0o755))
	require.NoError(t, os.MkdirAll(gitDir, 0o755))

	require.NoError(t, watcher.AddRecursive(tempDir))
	paths := watcher.WatchedPaths()
	assert.Contains(t, paths, tempDir)
	assert.Contains(t, paths, subDir)
	assert.NotContains(t, paths, gitDir)

	assert.Error(t, watcher.AddRecursive("../../../etc"))
}
