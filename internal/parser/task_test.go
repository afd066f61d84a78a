package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/maapipe/internal/jsontree"
)

func parseBody(t *testing.T, src string) *jsontree.Node {
	t.Helper()
	n := jsontree.ParseString(context.Background(), src)
	require.NotNil(t, n)
	return n
}

func refsOf(info *TaskInfo, kind RefKind) []Ref {
	var out []Ref
	for _, r := range info.Refs {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func TestParseTask_NextPrefixAndObjectFormAgree(t *testing.T) {
	t.Parallel()
	prefixed := ParseTask("a.json", "A", parseBody(t, `{"next": ["[JumpBack][Anchor]B"]}`), DialectFramework)
	object := ParseTask("a.json", "A", parseBody(t, `{"next": [{"name": "B", "jump_back": true, "anchor": true}]}`), DialectFramework)

	require.Len(t, prefixed.Refs, 1)
	require.Len(t, object.Refs, 1)
	p, o := prefixed.Refs[0], object.Refs[0]
	assert.Equal(t, "B", p.Target)
	assert.Equal(t, p.Target, o.Target)
	assert.Equal(t, p.Kind, o.Kind)
	assert.True(t, p.JumpBack)
	assert.True(t, p.Anchor)
	assert.Equal(t, p.JumpBack, o.JumpBack)
	assert.Equal(t, p.Anchor, o.Anchor)
	assert.Equal(t, "A", p.Task)
}

func TestParseTask_NextPrefixLocationSkipsMarker(t *testing.T) {
	t.Parallel()
	src := `{"next": "[JumpBack]B"}`
	info := ParseTask("a.json", "A", parseBody(t, src), DialectFramework)
	require.Len(t, info.Refs, 1)
	loc := info.Refs[0].Loc
	assert.Equal(t, "B", src[loc.Offset:loc.Offset+loc.Length])
}

func TestParseTask_NextObjectUnknownAttrs(t *testing.T) {
	t.Parallel()
	info := ParseTask("a.json", "A", parseBody(t, `{"on_error": {"name": "B", "jmp_back": true}}`), DialectFramework)
	require.Len(t, info.Refs, 1)
	ref := info.Refs[0]
	assert.Equal(t, "on_error", ref.Field)
	require.Len(t, ref.UnknownAttrs, 1)
	assert.Equal(t, "jmp_back", ref.UnknownAttrs[0].Key)
}

func TestParseTask_NextNonStringEntriesIgnored(t *testing.T) {
	t.Parallel()
	info := ParseTask("a.json", "A", parseBody(t, `{"next": [1, null, "", "B", {"jump_back": true}]}`), DialectFramework)
	require.Len(t, info.Refs, 1)
	assert.Equal(t, "B", info.Refs[0].Target)
}

func TestParseTask_RoiScopeChain(t *testing.T) {
	t.Parallel()
	src := `{
		"recognition": "And",
		"all_of": [
			{"recognition": "TemplateMatch", "template": "a.png", "sub_name": "s1", "roi": "s1"},
			{"recognition": "OCR", "roi": "s1"}
		]
	}`
	info := ParseTask("a.json", "A", parseBody(t, src), DialectFramework)

	rois := refsOf(info, RefTaskRoi)
	require.Len(t, rois, 2)
	assert.False(t, rois[0].InScope(), "an element does not see its own sub_name")
	assert.True(t, rois[1].InScope())
	assert.Equal(t, []string{"s1"}, rois[1].Scope)

	require.Len(t, info.Decls, 1)
	assert.Equal(t, DeclTaskSubReco, info.Decls[0].Kind)
	assert.Equal(t, "s1", info.Decls[0].Name)

	tmpl := refsOf(info, RefTaskTemplate)
	require.Len(t, tmpl, 1)
	assert.Equal(t, "a.png", tmpl[0].Target)
}

func TestParseTask_RoiScopeChainInsideParam(t *testing.T) {
	t.Parallel()
	src := `{"recognition": {"type": "all_of", "param": {"all_of": [{"sub_name": "s1", "roi": "X"}, {"roi": "s1"}]}}}`
	info := ParseTask("a.json", "A", parseBody(t, src), DialectFramework)

	rois := refsOf(info, RefTaskRoi)
	require.Len(t, rois, 2)
	assert.Equal(t, "X", rois[0].Target)
	assert.False(t, rois[0].InScope())
	assert.Equal(t, "s1", rois[1].Target)
	assert.True(t, rois[1].InScope())
}

func TestParseTask_RecognitionParamObject(t *testing.T) {
	t.Parallel()
	src := `{
		"recognition": {"type": "TemplateMatch", "param": {"template": ["x.png", "y.png"], "roi": "Other"}},
		"action": {"type": "Click", "param": {"target": "Other", "begin": true}}
	}`
	info := ParseTask("a.json", "A", parseBody(t, src), DialectFramework)

	assert.Len(t, refsOf(info, RefTaskTemplate), 2)
	assert.Len(t, refsOf(info, RefTaskRoi), 1)
	targets := refsOf(info, RefTaskTarget)
	require.Len(t, targets, 1)
	assert.Equal(t, "target", targets[0].Field)
}

func TestParseTask_BucketsAndUnknownKeys(t *testing.T) {
	t.Parallel()
	info := ParseTask("a.json", "A", parseBody(t, `{"next": [], "threshold": 0.8, "duration": 200, "nxet": "B"}`), DialectFramework)
	require.Len(t, info.Base, 1)
	require.Len(t, info.Recognition, 1)
	require.Len(t, info.Action, 1)
	require.Len(t, info.Unknown, 1)
	assert.Equal(t, "nxet", info.Unknown[0].Key)
}

func TestParseTask_AnchorForms(t *testing.T) {
	t.Parallel()
	info := ParseTask("a.json", "A", parseBody(t, `{"anchor": ["X", "Y"]}`), DialectFramework)
	require.Len(t, info.Decls, 2)
	assert.Equal(t, "A", info.Decls[0].Task)

	info = ParseTask("a.json", "A", parseBody(t, `{"anchor": {"X": "B", "Y": ""}}`), DialectFramework)
	require.Len(t, info.Decls, 1)
	assert.Equal(t, "X", info.Decls[0].Name)
	assert.Equal(t, "B", info.Decls[0].Task)
	targets := refsOf(info, RefTaskTarget)
	require.Len(t, targets, 1)
	assert.Equal(t, "B", targets[0].Target)
}

func TestParseTask_WaitFreezesTarget(t *testing.T) {
	t.Parallel()
	info := ParseTask("a.json", "A", parseBody(t, `{"pre_wait_freezes": {"time": 100, "target": "B"}, "post_wait_freezes": 200}`), DialectFramework)
	targets := refsOf(info, RefTaskTarget)
	require.Len(t, targets, 1)
	assert.Equal(t, "pre_wait_freezes.target", targets[0].Field)
}

func TestParseTask_Locales(t *testing.T) {
	t.Parallel()
	src := `{"focus": {"start": "$focus.start", "end": "done"}, "expected": ["$ocr.key", ""]}`
	info := ParseTask("a.json", "A", parseBody(t, src), DialectFramework)

	locales := refsOf(info, RefTaskLocale)
	require.Len(t, locales, 2)
	assert.Equal(t, "focus.start", locales[0].Target)
	loc := locales[0].Loc
	assert.Equal(t, "focus.start", src[loc.Offset:loc.Offset+loc.Length])

	literal := refsOf(info, RefTaskCanLocale)
	require.Len(t, literal, 1)
	assert.Equal(t, "done", literal[0].Target)
}

func TestParseTask_Legacy(t *testing.T) {
	t.Parallel()
	src := `{"baseTask": "Base", "next": ["B", "C@D", "#self"], "sub": "S", "template": "t.png", "text": ["$hello"], "roi": [0, 0, 1, 1]}`
	info := ParseTask("a.json", "A", parseBody(t, src), DialectLegacy)

	base := refsOf(info, RefMaaBaseTask)
	require.Len(t, base, 1)
	assert.Equal(t, "Base", base[0].Target)

	assert.Len(t, refsOf(info, RefTaskNext), 2)
	exprs := refsOf(info, RefMaaExpr)
	require.Len(t, exprs, 2)
	assert.Equal(t, "C@D", exprs[0].Target)

	assert.Len(t, refsOf(info, RefTaskTemplate), 1)
	assert.Len(t, refsOf(info, RefTaskLocale), 1)
	assert.Empty(t, refsOf(info, RefTaskRoi))
}

func TestParseTask_LegacyIgnoresBracketSyntax(t *testing.T) {
	t.Parallel()
	info := ParseTask("a.json", "A", parseBody(t, `{"next": ["[JumpBack]B", {"name": "C"}]}`), DialectLegacy)
	require.Len(t, info.Refs, 1)
	assert.Equal(t, "[JumpBack]B", info.Refs[0].Target)
}

func TestParseTask_NonObjectBody(t *testing.T) {
	t.Parallel()
	info := ParseTask("a.json", "A", parseBody(t, `[1, 2]`), DialectFramework)
	assert.Equal(t, "A", info.Name)
	assert.Empty(t, info.Refs)
	assert.Empty(t, info.Decls)

	info = ParseTask("a.json", "A", nil, DialectFramework)
	assert.Empty(t, info.Refs)
}

func TestStripNextPrefix(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in       string
		name     string
		jumpBack bool
		anchor   bool
		skip     int
	}{
		{"B", "B", false, false, 0},
		{"[JumpBack]B", "B", true, false, 10},
		{"[Anchor]B", "B", false, true, 8},
		{"[Anchor][JumpBack]B", "B", true, true, 18},
		{"[Other]B", "[Other]B", false, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, jb, an, skip := StripNextPrefix(tt.in)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.jumpBack, jb)
			assert.Equal(t, tt.anchor, an)
			assert.Equal(t, tt.skip, skip)
		})
	}
}
