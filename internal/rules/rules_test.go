package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var sampleInput = Input{
	Tasks: []Task{
		{
			Name: "Start", File: "/p/a.json", Offset: 2, Length: 5,
			Next:  []string{"Mid"},
			Props: map[string]any{"next": "Mid", "timeout": 20000.0},
		},
		{
			Name: "Mid", File: "/p/a.json", Offset: 40, Length: 3,
			Props: map[string]any{"recognition": "OCR", "expected": []any{"ok"}},
		},
	},
	Images:  []string{"logo.png"},
	Anchors: []Anchor{{Name: "L", Task: "Mid"}},
	Locales: []string{"title"},
}

const deadEndRule = `
for i := 0; i < len(tasks); i++ {
    t := tasks[i]
    if len(t["next"]) == 0 {
        name := t["name"]
        report({"file": t["file"], "offset": t["offset"], "length": t["length"], "message": 'task {name} has no successor'})
    }
}
`

func TestRunSource_ReportsFindings(t *testing.T) {
	t.Parallel()
	r := NewRunner("")

	findings, err := r.RunSource(context.Background(), "dead-end", deadEndRule, sampleInput)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, Finding{
		Rule:    "dead-end",
		File:    "/p/a.json",
		Offset:  40,
		Length:  3,
		Level:   "warning",
		Message: "task Mid has no successor",
	}, findings[0])
}

func TestRunSource_Globals(t *testing.T) {
	t.Parallel()
	script := `
assert(len(tasks) == 2, 'expected 2 tasks, got {len(tasks)}')
start := tasks[0]
assert(start["props"]["timeout"] == 20000, "whole numbers are ints")
assert(tasks[1]["props"]["expected"][0] == "ok", "nested lists convert")
assert(images[0] == "logo.png", "images")
assert(anchors[0]["task"] == "Mid", "anchors")
assert(locales[0] == "title", "locales")
`
	_, err := NewRunner("").RunSource(context.Background(), "globals", script, sampleInput)
	require.NoError(t, err)
}

func TestRunSource_ReportValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		script string
	}{
		{"missing message", `report({"file": "a.json"})`},
		{"bad level", `report({"message": "x", "level": "fatal"})`},
		{"not a map", `report("x")`},
		{"too many args", `report({"message": "x"}, 1)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewRunner("").RunSource(context.Background(), "bad", tt.script, Input{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "rules: script bad")
		})
	}
}

func TestRunSource_SyntaxError(t *testing.T) {
	t.Parallel()
	_, err := NewRunner("").RunSource(context.Background(), "broken", `for {`, Input{})
	require.Error(t, err)
}

func TestRunSource_LogUsesLogger(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zapcore.InfoLevel)
	r := NewRunner("", WithLogger(zap.New(core)))

	_, err := r.RunSource(context.Background(), "log", `log.Warn("careful")`, Input{})
	require.NoError(t, err)
	entries := logs.FilterMessage("careful").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestRunner_RunFromFS(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"b-dead-end.risor": {Data: []byte(deadEndRule)},
		"a-images.risor":   {Data: []byte(`if len(images) > 0 { report({"message": "has images", "level": "info"}) }`)},
		"notes.txt":        {Data: []byte("not a rule")},
	}
	r := NewRunner("", WithFS(fsys))

	names, err := r.Scripts()
	require.NoError(t, err)
	assert.Equal(t, []string{"a-images.risor", "b-dead-end.risor"}, names)

	findings, err := r.Run(context.Background(), sampleInput)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "a-images", findings[0].Rule)
	assert.Equal(t, "info", findings[0].Level)
	assert.Equal(t, "b-dead-end", findings[1].Rule)
}

func TestRunner_RunFromDirKeepsGoingAfterFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.risor"), []byte(`undefined_fn()`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.risor"), []byte(deadEndRule), 0o644))

	findings, err := NewRunner(dir).Run(context.Background(), sampleInput)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 script(s) failed")
	require.Len(t, findings, 1)
	assert.Equal(t, "b", findings[0].Rule)
}

func TestRunner_MissingDirHasNoScripts(t *testing.T) {
	t.Parallel()
	r := NewRunner(filepath.Join(t.TempDir(), "absent"))
	names, err := r.Scripts()
	require.NoError(t, err)
	assert.Empty(t, names)

	findings, err := r.Run(context.Background(), sampleInput)
	require.NoError(t, err)
	assert.Empty(t, findings)
}
