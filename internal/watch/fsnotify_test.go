package watch

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFile(t *testing.T, path, text string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
}

func TestOSLoader(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"), "{}")

	text, ok := OSLoader{}.Get(filepath.Join(dir, "a.json"))
	assert.True(t, ok)
	assert.Equal(t, "{}", text)

	_, ok = OSLoader{}.Get(filepath.Join(dir, "missing.json"))
	assert.False(t, ok)
}

func TestFSWatcher_ExistingAndLiveEvents(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pipeline", "a.json"), "{}")
	writeFile(t, filepath.Join(dir, ".hidden", "x.json"), "{}")

	var e events
	w, err := NewFSWatcher(nil).Watch(dir, jsonOnly(&e))
	require.NoError(t, err)
	defer w.Stop()

	a := "add " + filepath.ToSlash(filepath.Join(dir, "pipeline", "a.json"))
	assert.Equal(t, []string{a}, e.list())

	b := filepath.Join(dir, "pipeline", "sub", "b.json")
	writeFile(t, b, "{}")
	want := "add " + filepath.ToSlash(b)
	require.Eventually(t, func() bool {
		return slices.Contains(e.list(), want)
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(b))
	gone := "delete " + filepath.ToSlash(b)
	require.Eventually(t, func() bool {
		return slices.Contains(e.list(), gone)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestFSWatcher_MissingRootIsEmpty(t *testing.T) {
	t.Parallel()
	var e events
	w, err := NewFSWatcher(nil).Watch(filepath.Join(t.TempDir(), "absent"), jsonOnly(&e))
	require.NoError(t, err)
	w.Stop()
	assert.Empty(t, e.list())
}
