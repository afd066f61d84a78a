package maapipe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRules_CustomDiagnostics(t *testing.T) {
	t.Parallel()
	src := `{"Start": {"next": "Mid", "timeout": 100}, "Mid": {}}`
	file := ws("resource", "pipeline", "a.json")
	i, _ := newTestInterface(t, map[string]string{
		ws("interface.json"): singleResource,
		file:                 src,
	})

	dir := t.TempDir()
	rule := `
for i := 0; i < len(tasks); i++ {
    t := tasks[i]
    timeout := t["props"].get("timeout", 0)
    if timeout > 0 && timeout < 1000 {
        report({"file": t["file"], "offset": t["offset"], "length": t["length"], "level": "error", "message": "timeout too short"})
    }
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "timeout.risor"), []byte(rule), 0o644))

	diags, err := i.Snapshot().RunRules(context.Background(), dir, nil)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, Diagnostic{
		Level:   LevelError,
		Type:    TypeCustomRule,
		File:    file,
		Offset:  2,
		Length:  5,
		Target:  "timeout",
		Message: "timeout too short",
	}, diags[0])
}

func TestRuleInput_UsesEffectiveTasks(t *testing.T) {
	t.Parallel()
	i, _ := newTestInterface(t, map[string]string{
		ws("interface.json"): `{
			"resource": [{"name": "Main", "path": "{PROJECT_DIR}/resource"}],
			"task": [{"name": "Daily", "entry": "Start", "pipeline_override": {"Start": {"timeout": 5}}}]
		}`,
		ws("resource", "pipeline", "a.json"): `{"Start": {"next": "[Anchor]L", "timeout": 100}, "End": {"anchor": "L"}}`,
		ws("resource", "image", "a.png"):     "",
	})

	in := i.Snapshot().ruleInput()
	require.Len(t, in.Tasks, 2)
	start := in.Tasks[1]
	assert.Equal(t, "Start", start.Name)
	assert.Equal(t, []string{"End"}, start.Next)
	assert.Equal(t, 5.0, start.Props["timeout"], "the override wins")
	assert.Equal(t, []string{"a.png"}, in.Images)
	require.Len(t, in.Anchors, 1)
	assert.Equal(t, "End", in.Anchors[0].Task)
}
