package maapipe

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/maapipe/internal/watch"
)

// writeProjectFile writes text to root/rel, creating directories.
func writeProjectFile(t *testing.T, root, rel, text string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

// newLiveInterface loads a project from disk with real file watching and a
// short debounce, so file edits flush on their own.
func newLiveInterface(t *testing.T, root string) *Interface {
	t.Helper()
	i := New(root, watch.OSLoader{}, watch.NewFSWatcher(nil), WithDebounce(20*time.Millisecond))
	t.Cleanup(func() { i.Close() })
	require.NoError(t, i.Load(context.Background()))
	require.NoError(t, i.Flush(context.Background()))
	return i
}

func diagTargets(i *Interface) []string {
	var out []string
	for _, d := range PerformDiagnostic(i) {
		out = append(out, d.Target)
	}
	return out
}

// TestIntegration_LiveEdits drives the whole stack through the file system:
// fsnotify events feed the content manager, the debounce timer flushes the
// bundle, and diagnostics follow the edits.
func TestIntegration_LiveEdits(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeProjectFile(t, root, "interface.json", testManifest)
	writeProjectFile(t, root, "resource/pipeline/a.json", `{"Start": {"next": "Mid"}}`)

	i := newLiveInterface(t, root)
	assert.Equal(t, []string{"Mid"}, diagTargets(i))

	var mu sync.Mutex
	var kinds []EventKind
	cancel := i.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, e.Kind)
	})
	defer cancel()

	// A new file declaring the missing task fixes the reference.
	writeProjectFile(t, root, "resource/pipeline/sub/b.json", `{"Mid": {}}`)
	require.Eventually(t, func() bool {
		return len(diagTargets(i)) == 0
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Contains(t, kinds, EventBundleReloaded)
	mu.Unlock()

	// Deleting it breaks the reference again.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "resource", "pipeline", "sub")))
	require.Eventually(t, func() bool {
		return slices.Equal(diagTargets(i), []string{"Mid"})
	}, 5*time.Second, 10*time.Millisecond)
}

func TestIntegration_ManifestSwitchesPaths(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeProjectFile(t, root, "interface.json", `{"resource": [{"name": "Main", "path": "{PROJECT_DIR}/one"}]}`)
	writeProjectFile(t, root, "one/pipeline/a.json", `{"One": {}}`)
	writeProjectFile(t, root, "two/pipeline/a.json", `{"Two": {}}`)

	i := newLiveInterface(t, root)
	assert.Equal(t, []string{"One"}, i.QueryTaskList())

	writeProjectFile(t, root, "interface.json", `{"resource": [{"name": "Main", "path": "{PROJECT_DIR}/two"}]}`)
	require.Eventually(t, func() bool {
		return slices.Equal(i.QueryTaskList(), []string{"Two"})
	}, 5*time.Second, 10*time.Millisecond)
}
