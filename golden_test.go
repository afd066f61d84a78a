package maapipe

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/jward/maapipe/internal/parser"
	"github.com/jward/maapipe/internal/watch"
)

// Golden test format. Files are relative to the project directory.
type goldenFile struct {
	Dialect     string              `json:"dialect,omitempty"`
	Tasks       []string            `json:"tasks"`
	Diagnostics []goldenDiag        `json:"diagnostics"`
	Successors  map[string][]string `json:"successors,omitempty"`
}

type goldenDiag struct {
	Level  string `json:"level"`
	Type   string `json:"type"`
	File   string `json:"file"`
	Target string `json:"target"`
}

// TestGolden walks testdata/{dialect}/{project}/ directories and checks each
// project against its golden.json.
func TestGolden(t *testing.T) {
	t.Parallel()
	dialects, err := os.ReadDir("testdata")
	if err != nil {
		t.Skip("no testdata directory found")
	}

	for _, dialect := range dialects {
		if !dialect.IsDir() {
			continue
		}
		projects, err := os.ReadDir(filepath.Join("testdata", dialect.Name()))
		require.NoError(t, err)
		for _, project := range projects {
			dir := filepath.Join("testdata", dialect.Name(), project.Name())
			if _, err := os.Stat(filepath.Join(dir, "golden.json")); err != nil {
				continue
			}
			t.Run(dialect.Name()+"/"+project.Name(), func(t *testing.T) {
				t.Parallel()
				runGoldenTest(t, dir)
			})
		}
	}
}

func runGoldenTest(t *testing.T, dir string) {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, "golden.json"))
	require.NoError(t, err)
	var golden goldenFile
	require.NoError(t, json.Unmarshal(data, &golden))
	dialect, ok := parser.ParseDialect(golden.Dialect)
	require.True(t, ok, "dialect %q", golden.Dialect)

	root, err := filepath.Abs(dir)
	require.NoError(t, err)
	i := New(root, watch.OSLoader{}, watch.NewFSWatcher(nil), WithDialect(dialect), WithDebounce(0))
	t.Cleanup(func() { i.Close() })
	ctx := context.Background()
	require.NoError(t, i.Load(ctx))
	require.NoError(t, i.Flush(ctx))
	snap := i.Snapshot()

	if diff := cmp.Diff(golden.Tasks, snap.QueryTaskList()); diff != "" {
		t.Errorf("tasks mismatch (-want +got):\n%s", diff)
	}

	got := []goldenDiag{}
	for _, d := range snap.Diagnose() {
		rel, err := filepath.Rel(root, d.File)
		require.NoError(t, err)
		got = append(got, goldenDiag{
			Level:  d.Level.String(),
			Type:   string(d.Type),
			File:   filepath.ToSlash(rel),
			Target: d.Target,
		})
	}
	if diff := cmp.Diff(golden.Diagnostics, got); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}

	for name, want := range golden.Successors {
		got := []string{}
		for _, e := range snap.Successors(name) {
			got = append(got, e.To)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("successors of %s mismatch (-want +got):\n%s", name, diff)
		}
	}
}
