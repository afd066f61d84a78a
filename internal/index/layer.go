// Package index maintains per-directory task indexes and their merged views.
package index

import (
	"slices"
	"strings"

	"github.com/jward/maapipe/internal/jsontree"
	"github.com/jward/maapipe/internal/parser"
)

// MergeMode is how a layer's tasks combine with lower-precedence layers.
type MergeMode uint8

const (
	// Shadowing layers replace lower layers' declarations of the same name.
	Shadowing MergeMode = iota
	// Patching layers overlay the first real declaration below them.
	Patching
)

func (m MergeMode) String() string {
	if m == Patching {
		return "patching"
	}
	return "shadowing"
}

// LayerTask is one physical declaration of a task.
type LayerTask struct {
	File     string
	NameNode *jsontree.Node
	Body     *jsontree.Node
	Info     *parser.TaskInfo
	// Label names the manifest element of a patching entry.
	Label string
}

// Name returns the declared task name.
func (t *LayerTask) Name() string {
	return t.Info.Name
}

// Loc returns the location of the task's name.
func (t *LayerTask) Loc() parser.Location {
	return parser.LocationOf(t.File, t.NameNode)
}

// Anchor is a declared anchor with its owning task.
type Anchor struct {
	Name string
	Task string
	Loc  parser.Location
}

// Layer is an immutable snapshot of one precedence level.
type Layer struct {
	Mode MergeMode
	Root string
	// Tasks maps a name to every declaration in file then document order.
	Tasks map[string][]*LayerTask
	// Images holds image paths relative to the image directory.
	Images    map[string]struct{}
	ExtraRefs []parser.Ref
}

// NewLayer returns an empty layer.
func NewLayer(mode MergeMode, root string) *Layer {
	return &Layer{
		Mode:   mode,
		Root:   root,
		Tasks:  map[string][]*LayerTask{},
		Images: map[string]struct{}{},
	}
}

// Add appends one declaration.
func (l *Layer) Add(t *LayerTask) {
	if strings.HasPrefix(t.Name(), "$") {
		return
	}
	l.Tasks[t.Name()] = append(l.Tasks[t.Name()], t)
}

// Has reports whether name is declared in this layer.
func (l *Layer) Has(name string) bool {
	return len(l.Tasks[name]) > 0
}

// HasImage reports whether the image path exists in this layer.
func (l *Layer) HasImage(p string) bool {
	_, ok := l.Images[p]
	return ok
}

// Names returns the declared names, sorted.
func (l *Layer) Names() []string {
	names := make([]string, 0, len(l.Tasks))
	for name := range l.Tasks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// TaskListNotUnique returns one entry per declaration, so a name declared
// twice appears twice.
func (l *Layer) TaskListNotUnique() []string {
	var out []string
	for _, name := range l.Names() {
		for range l.Tasks[name] {
			out = append(out, name)
		}
	}
	return out
}

// AnchorList flattens the anchors declared by every declaration.
func (l *Layer) AnchorList() []Anchor {
	var out []Anchor
	for _, t := range l.All() {
		for _, d := range t.Info.Decls {
			if d.Kind == parser.DeclTaskAnchor {
				out = append(out, Anchor{Name: d.Name, Task: d.Task, Loc: d.Loc})
			}
		}
	}
	return out
}

// ImageListNotUnique returns the layer's images, sorted.
func (l *Layer) ImageListNotUnique() []string {
	out := make([]string, 0, len(l.Images))
	for p := range l.Images {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// All returns every declaration ordered by name.
func (l *Layer) All() []*LayerTask {
	var out []*LayerTask
	for _, name := range l.Names() {
		out = append(out, l.Tasks[name]...)
	}
	return out
}

// MergedRefs concatenates the refs of every declaration plus ExtraRefs.
func (l *Layer) MergedRefs() []parser.Ref {
	var out []parser.Ref
	for _, t := range l.All() {
		out = append(out, t.Info.Refs...)
	}
	return append(out, l.ExtraRefs...)
}

// MergedDecls concatenates the decls of every declaration.
func (l *Layer) MergedDecls() []parser.Decl {
	var out []parser.Decl
	for _, t := range l.All() {
		out = append(out, t.Info.Decls...)
	}
	return out
}

// Resolution is the outcome of looking a task up across layers.
type Resolution struct {
	// Decl is the winning real declaration, nil when only patches exist.
	Decl *LayerTask
	// Layer is the index of the layer that supplied Decl.
	Layer int
	// Patches are patching entries overlaid on Decl, highest precedence
	// first.
	Patches []*LayerTask
}

// Found reports whether any layer declares the name.
func (r Resolution) Found() bool {
	return r.Decl != nil
}

// Chain returns the declarations that contribute to the task, highest
// precedence first.
func (r Resolution) Chain() []*LayerTask {
	out := slices.Clone(r.Patches)
	if r.Decl != nil {
		out = append(out, r.Decl)
	}
	return out
}

// Resolve searches layers in precedence order. The first shadowing layer
// declaring name wins and hides every layer after it; patching layers met on
// the way contribute overlays and the search continues past them.
func Resolve(layers []*Layer, name string) Resolution {
	res := Resolution{Layer: -1}
	for i, l := range layers {
		decls := l.Tasks[name]
		if len(decls) == 0 {
			continue
		}
		switch l.Mode {
		case Patching:
			res.Patches = append(res.Patches, decls...)
		case Shadowing:
			res.Decl = decls[0]
			res.Layer = i
			return res
		}
	}
	return res
}

// Props returns the effective base, recognition and action properties of a
// resolved task. A patch's property replaces the same key of the layers
// below it.
func (r Resolution) Props() []parser.Prop {
	seen := map[string]bool{}
	var out []parser.Prop
	for _, t := range r.Chain() {
		for _, group := range [][]parser.Prop{t.Info.Base, t.Info.Recognition, t.Info.Action} {
			for _, p := range group {
				if seen[p.Key] {
					continue
				}
				seen[p.Key] = true
				out = append(out, p)
			}
		}
	}
	return out
}
