package maapipe

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jward/maapipe/internal/watch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ws joins parts under the fake workspace root.
func ws(parts ...string) string {
	return filepath.Join(append([]string{string(filepath.Separator), "ws"}, parts...)...)
}

const testManifest = `{
	"resource": [
		{"name": "Official", "path": ["{PROJECT_DIR}/resource"]},
		{"name": "Bilibili", "path": ["{PROJECT_DIR}/resource", "{PROJECT_DIR}/resource_bilibili"]}
	],
	"task": [{"name": "Daily", "entry": "Start"}]
}`

// newTestInterface loads an Interface over an in-memory tree. Automatic
// flushing is off, so tests call Flush after every write.
func newTestInterface(t *testing.T, files map[string]string, opts ...Option) (*Interface, *watch.Memory) {
	t.Helper()
	mem := watch.NewMemory(files)
	opts = append([]Option{WithDebounce(0)}, opts...)
	i := New(ws(), mem, mem, opts...)
	t.Cleanup(func() { _ = i.Close() })
	require.NoError(t, i.Load(context.Background()))
	require.NoError(t, i.Flush(context.Background()))
	return i, mem
}

func flush(t *testing.T, i *Interface) {
	t.Helper()
	require.NoError(t, i.Flush(context.Background()))
}

func TestInterface_EndToEndHasNoDiagnostics(t *testing.T) {
	t.Parallel()
	i, _ := newTestInterface(t, map[string]string{
		ws("interface.json"):                 testManifest,
		ws("resource", "pipeline", "a.json"): `{"Start": {"next": "Mid"}}`,
		ws("resource", "pipeline", "b.json"): `{"Mid": {"next": "End"}, "End": {}}`,
	})

	assert.Equal(t, "Official", i.Active())
	assert.Empty(t, PerformDiagnostic(i))
	assert.Equal(t, []string{"End", "Mid", "Start"}, i.QueryTaskList())
}

func TestInterface_TaskListIgnoresFileOrder(t *testing.T) {
	t.Parallel()
	// The same tasks split the other way round.
	i, _ := newTestInterface(t, map[string]string{
		ws("interface.json"):                 testManifest,
		ws("resource", "pipeline", "z.json"): `{"Start": {"next": "Mid"}}`,
		ws("resource", "pipeline", "a.json"): `{"Mid": {"next": "End"}, "End": {}}`,
	})
	assert.Equal(t, []string{"End", "Mid", "Start"}, i.QueryTaskList())
	assert.Empty(t, PerformDiagnostic(i))
}

func TestInterface_MissingManifestIsEmpty(t *testing.T) {
	t.Parallel()
	i, _ := newTestInterface(t, map[string]string{
		ws("resource", "pipeline", "a.json"): `{"Start": {}}`,
	})
	assert.Equal(t, "", i.Active())
	assert.Empty(t, i.QueryTaskList())
	assert.Empty(t, PerformDiagnostic(i))
}

func TestInterface_FlushIsIdempotent(t *testing.T) {
	t.Parallel()
	i, _ := newTestInterface(t, map[string]string{
		ws("interface.json"):                 testManifest,
		ws("resource", "pipeline", "a.json"): `{"Start": {"next": "Mid"}, "Mid": {}}`,
	})
	before := i.Snapshot()
	flush(t, i)
	after := i.Snapshot()

	assert.Equal(t, before.QueryTaskList(), after.QueryTaskList())
	assert.Equal(t, before.Diagnose(), after.Diagnose())
	assert.Same(t, before.Layers[0], after.Layers[0], "an empty flush republishes nothing")
}

func TestInterface_IncrementalEdits(t *testing.T) {
	t.Parallel()
	i, mem := newTestInterface(t, map[string]string{
		ws("interface.json"):                 testManifest,
		ws("resource", "pipeline", "a.json"): `{"Start": {"next": "Mid"}}`,
	})
	diags := PerformDiagnostic(i)
	require.Len(t, diags, 1)
	assert.Equal(t, TypeUnknownTask, diags[0].Type)

	mem.Write(ws("resource", "pipeline", "b.json"), `{"Mid": {}}`)
	flush(t, i)
	assert.Empty(t, PerformDiagnostic(i))

	mem.Remove(ws("resource", "pipeline", "a.json"))
	flush(t, i)
	assert.Equal(t, []string{"Mid"}, i.QueryTaskList())
	diags = PerformDiagnostic(i)
	require.Len(t, diags, 1)
	assert.Equal(t, TypeIntUnknownEntryTask, diags[0].Type)
	assert.Equal(t, "Start", diags[0].Target)
}

func TestInterface_SwitchActive(t *testing.T) {
	t.Parallel()
	i, _ := newTestInterface(t, map[string]string{
		ws("interface.json"):                          testManifest,
		ws("resource", "pipeline", "a.json"):          `{"Start": {"template": "logo.png"}}`,
		ws("resource", "image", "logo.png"):           "",
		ws("resource_bilibili", "pipeline", "a.json"): `{"Start": {"next": "Login"}, "Login": {}}`,
	})
	ctx := context.Background()
	assert.Equal(t, []string{"Start"}, i.QueryTaskList())

	require.NoError(t, i.SwitchActive(ctx, "Bilibili"))
	assert.Equal(t, "Bilibili", i.Active())
	assert.Equal(t, []string{"Login", "Start"}, i.QueryTaskList())

	// The first path declares Start, so it shadows the second.
	res := i.ResolveTask("Start")
	require.True(t, res.Found())
	assert.Equal(t, 0, res.Layer)
	assert.Equal(t, ws("resource", "pipeline", "a.json"), res.Decl.File)
	assert.Empty(t, PerformDiagnostic(i))

	// Layer indexes Snapshot.Layers, the pseudo-layer is not counted.
	login := i.ResolveTask("Login")
	require.True(t, login.Found())
	assert.Equal(t, 1, login.Layer)
	assert.Same(t, i.Snapshot().Layers[login.Layer].Tasks["Login"][0], login.Decl)
	assert.Equal(t, -1, i.ResolveTask("Missing").Layer)

	err := i.SwitchActive(ctx, "Nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownResource))
	assert.Equal(t, "Bilibili", i.Active())
}

func TestInterface_InitialResource(t *testing.T) {
	t.Parallel()
	i, _ := newTestInterface(t, map[string]string{
		ws("interface.json"): testManifest,
	}, WithResource("Bilibili"))
	assert.Equal(t, "Bilibili", i.Active())
	assert.Len(t, i.Snapshot().Layers, 2)
}

func TestInterface_ManifestEditRebuildsBundles(t *testing.T) {
	t.Parallel()
	i, mem := newTestInterface(t, map[string]string{
		ws("interface.json"):            `{"resource": [{"name": "Main", "path": "{PROJECT_DIR}/one"}]}`,
		ws("one", "pipeline", "a.json"): `{"One": {}}`,
		ws("two", "pipeline", "a.json"): `{"Two": {}}`,
	})
	assert.Equal(t, []string{"One"}, i.QueryTaskList())

	mem.Write(ws("interface.json"), `{"resource": [{"name": "Main", "path": "{PROJECT_DIR}/two"}]}`)
	flush(t, i)
	assert.Equal(t, []string{"Two"}, i.QueryTaskList())

	mem.Remove(ws("interface.json"))
	flush(t, i)
	assert.Empty(t, i.QueryTaskList())
	assert.Equal(t, "", i.Active())
}

func TestInterface_Events(t *testing.T) {
	t.Parallel()
	i, mem := newTestInterface(t, map[string]string{
		ws("interface.json"):                 testManifest,
		ws("resource", "pipeline", "a.json"): `{"Start": {}}`,
	})

	var mu sync.Mutex
	var kinds []EventKind
	cancel := i.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, e.Kind)
	})
	collected := func() []EventKind {
		mu.Lock()
		defer mu.Unlock()
		out := kinds
		kinds = nil
		return out
	}

	mem.Write(ws("resource", "pipeline", "b.json"), `{"Other": {}}`)
	flush(t, i)
	assert.Equal(t, []EventKind{EventBundleReloaded}, collected())

	require.NoError(t, i.SwitchActive(context.Background(), "Bilibili"))
	assert.Equal(t, []EventKind{EventBundleReloaded, EventPathChanged}, collected(),
		"only the bundle with files reports a reload")

	mem.Write(ws("interface.json"), strings.Replace(testManifest, `"Daily"`, `"Weekly"`, 1))
	flush(t, i)
	assert.Equal(t, []EventKind{EventInterfaceChanged}, collected(), "paths did not move")

	cancel()
	mem.Write(ws("resource", "pipeline", "c.json"), `{"Third": {}}`)
	flush(t, i)
	assert.Empty(t, collected())
}

func TestInterface_CloseIsFinal(t *testing.T) {
	t.Parallel()
	mem := watch.NewMemory(map[string]string{
		ws("interface.json"):                 testManifest,
		ws("resource", "pipeline", "a.json"): `{"Start": {}}`,
	})
	i := New(ws(), mem, mem, WithDebounce(0))
	ctx := context.Background()
	require.NoError(t, i.Load(ctx))
	assert.Positive(t, mem.Watches())

	require.NoError(t, i.Close())
	require.NoError(t, i.Close())
	assert.Zero(t, mem.Watches())
	assert.ErrorIs(t, i.Load(ctx), ErrClosed)
	assert.ErrorIs(t, i.Flush(ctx), ErrClosed)
	assert.ErrorIs(t, i.SwitchActive(ctx, "Official"), ErrClosed)
}

func TestInterface_LegacyLayout(t *testing.T) {
	t.Parallel()
	i, _ := newTestInterface(t, map[string]string{
		ws("interface.json"):                       `{"resource": [{"name": "Main", "path": "{PROJECT_DIR}/resource"}]}`,
		ws("resource", "tasks.json"):               `{"Start": {"next": ["Fight@Start", "#self"]}, "Fight": {"template": "Fight"}}`,
		ws("resource", "template", "Fight.png"):    "",
		ws("resource", "pipeline", "ignored.json"): `{"Ignored": {}}`,
	}, WithDialect(DialectLegacy))

	assert.Equal(t, DialectLegacy, i.Dialect())
	assert.Equal(t, []string{"Fight", "Start"}, i.QueryTaskList())
	diags := PerformDiagnostic(i)
	require.Len(t, diags, 1)
	assert.Equal(t, TypeImagePathMissingPNG, diags[0].Type)
	assert.Equal(t, "Fight.png", diags[0].Suggested)
}
