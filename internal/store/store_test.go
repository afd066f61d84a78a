package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

// sampleBatch holds one layer with two files: Start in a.json jumps to Mid
// in b.json.
func sampleBatch() *Batch {
	b := NewBatch()
	layer := b.AddLayer(Layer{Root: "/p/resource", Mode: "shadowing", Order: 1})
	a := b.AddFile(File{LayerID: layer, Path: "/p/resource/pipeline/a.json"})
	fb := b.AddFile(File{LayerID: layer, Path: "/p/resource/pipeline/b.json"})
	start := b.AddTask(Task{FileID: a, Name: "Start", Offset: 2, Length: 5})
	b.AddTask(Task{FileID: fb, Name: "Mid", Offset: 2, Length: 3})
	b.AddDecl(Decl{TaskID: start, Kind: "task.anchor", Name: "L", Owner: "Start", Offset: 30, Length: 1})
	b.AddRef(Ref{FileID: a, TaskID: ptr(start), Kind: "task.next", Target: "Mid", Field: "next", Offset: 20, Length: 3, JumpBack: true})
	b.AddRef(Ref{FileID: a, Kind: "interface.entry", Target: "Mid", Offset: 40, Length: 3})
	b.AddImage(Image{LayerID: layer, Path: "logo.png"})
	return b
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range tables {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestNewStore_BadPath(t *testing.T) {
	t.Parallel()
	_, err := NewStore(filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	require.Error(t, err)
}

// =============================================================================
// Batch & Commit
// =============================================================================

func TestBatch_FakeIDsDecrement(t *testing.T) {
	t.Parallel()
	b := NewBatch()
	assert.Equal(t, int64(-1), b.AddLayer(Layer{}))
	assert.Equal(t, int64(-2), b.AddFile(File{}))
	assert.Equal(t, int64(-3), b.AddTask(Task{}))
}

func TestCommit_RemapsIDs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Commit(sampleBatch()))

	counts, err := s.Counts()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"layers": 1, "files": 2, "tasks": 2, "decls": 1, "refs": 2, "images": 1,
	}, counts)

	tasks, err := s.TasksNamed("Start", "Mid")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Start", tasks[0].Name, "a.json sorts first")
	assert.Positive(t, tasks[0].ID)

	f, err := s.FileByID(tasks[0].FileID)
	require.NoError(t, err)
	assert.Equal(t, "/p/resource/pipeline/a.json", f.Path)

	refs, err := s.RefsTo("Mid")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	require.NotNil(t, refs[0].TaskID)
	assert.Equal(t, tasks[0].ID, *refs[0].TaskID)
	assert.Equal(t, "next", refs[0].Field)
	assert.True(t, refs[0].JumpBack)
	assert.Nil(t, refs[1].TaskID, "manifest refs have no task")
	assert.Empty(t, refs[1].Field)
}

func TestCommit_ReplacesPreviousExport(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Commit(sampleBatch()))

	b := NewBatch()
	layer := b.AddLayer(Layer{Root: "/p/resource", Mode: "shadowing"})
	f := b.AddFile(File{LayerID: layer, Path: "/p/resource/pipeline/c.json"})
	b.AddTask(Task{FileID: f, Name: "Other", Length: 5})
	require.NoError(t, s.Commit(b))

	counts, err := s.Counts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts["tasks"])
	assert.Equal(t, 0, counts["refs"])

	tasks, err := s.TasksNamed("Start")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCommit_DanglingIDRollsBack(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Commit(sampleBatch()))

	b := NewBatch()
	b.AddFile(File{LayerID: -42, Path: "x.json"})
	err := s.Commit(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dangling id -42")

	counts, err := s.Counts()
	require.NoError(t, err)
	assert.Equal(t, 2, counts["tasks"], "the earlier export survives")
}

func TestTasksNamed_NoNames(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	tasks, err := s.TasksNamed()
	require.NoError(t, err)
	assert.Nil(t, tasks)
}
