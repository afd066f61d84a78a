package maapipe

import (
	"slices"
	"strings"

	"github.com/jward/maapipe/internal/index"
	"github.com/jward/maapipe/internal/parser"
)

// Snapshot is a consistent, immutable view of an Interface. Queries and
// diagnostics run on snapshots so they never block or observe a flush in
// progress.
type Snapshot struct {
	Root     string
	Manifest string
	Dialect  Dialect
	Active   string
	Info     *InterfaceInfo
	// Pseudo is the patching layer of the manifest's pipeline_override
	// blocks.
	Pseudo *Layer
	// Layers are the active resource's layers in precedence order.
	Layers  []*Layer
	Locales *Locales
}

// Snapshot captures the current state. Call Flush first for a view that
// includes every event seen so far.
func (i *Interface) Snapshot() *Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := &Snapshot{
		Root:     i.root,
		Manifest: i.ManifestPath(),
		Dialect:  i.dialect,
		Active:   i.active,
		Info:     i.info,
		Pseudo:   i.pseudo,
	}
	for _, b := range i.bundles {
		s.Layers = append(s.Layers, b.Layer())
	}
	if i.lang != nil {
		s.Locales = i.lang.Locales()
	} else {
		s.Locales = index.EmptyLocales()
	}
	return s
}

// AllLayers returns the pseudo-layer followed by the real layers.
func (s *Snapshot) AllLayers() []*Layer {
	return append([]*Layer{s.Pseudo}, s.Layers...)
}

// ResolveTask finds the effective declaration of name. Layer of the result
// indexes Layers, not AllLayers; the pseudo-layer only ever patches.
func (s *Snapshot) ResolveTask(name string) Resolution {
	res := index.Resolve(s.AllLayers(), name)
	if res.Layer > 0 {
		res.Layer--
	}
	return res
}

// HasTask reports whether a real layer declares name.
func (s *Snapshot) HasTask(name string) bool {
	for _, l := range s.Layers {
		if l.Has(name) {
			return true
		}
	}
	return false
}

// QueryTaskList returns every task name declared by a real layer, sorted and
// without duplicates.
func (s *Snapshot) QueryTaskList() []string {
	return uniqueSorted(s.Layers, (*Layer).TaskListNotUnique)
}

// QueryImageList returns every image path, sorted and without duplicates.
func (s *Snapshot) QueryImageList() []string {
	return uniqueSorted(s.Layers, (*Layer).ImageListNotUnique)
}

// QueryAnchorList returns the anchors of every layer, pseudo-layer first.
func (s *Snapshot) QueryAnchorList() []Anchor {
	var out []Anchor
	for _, l := range s.AllLayers() {
		out = append(out, l.AnchorList()...)
	}
	return out
}

// QueryLocaleKeys returns every key defined by a language file.
func (s *Snapshot) QueryLocaleKeys() []string {
	return s.Locales.Keys()
}

// DefinitionsOf returns the locations of every declaration contributing to
// name, highest precedence first.
func (s *Snapshot) DefinitionsOf(name string) []Location {
	var out []Location
	for _, t := range s.ResolveTask(name).Chain() {
		out = append(out, t.Loc())
	}
	return out
}

// ReferencesTo returns every task-shaped reference naming name, including
// manifest entries.
func (s *Snapshot) ReferencesTo(name string) []Location {
	var out []Location
	for _, l := range s.AllLayers() {
		for _, r := range l.MergedRefs() {
			if r.Kind.IsTaskShaped() && !r.Anchor && refNames(r, name) {
				out = append(out, r.Loc)
			}
		}
	}
	return out
}

func refNames(r Ref, name string) bool {
	if r.Kind == parser.RefMaaExpr {
		return exprBase(r.Target) == name
	}
	return r.Target == name
}

// exprBase strips the virtual-task suffix of a legacy expression.
func exprBase(expr string) string {
	if idx := strings.Index(expr, "#"); idx >= 0 {
		return expr[:idx]
	}
	return expr
}

// resolveExpr reports whether a legacy task expression names something that
// exists. A@B exists when declared itself or when B resolves; a #virtual
// suffix is ignored and a bare #virtual always resolves.
func resolveExpr(has func(string) bool, expr string) bool {
	name := exprBase(expr)
	for {
		if name == "" || has(name) {
			return true
		}
		at := strings.Index(name, "@")
		if at < 0 {
			return false
		}
		name = name[at+1:]
	}
}

// The Interface methods below are shorthands over a fresh snapshot.

// ResolveTask finds the effective declaration of name.
func (i *Interface) ResolveTask(name string) Resolution {
	return i.Snapshot().ResolveTask(name)
}

// QueryTaskList returns every task name of the active resource.
func (i *Interface) QueryTaskList() []string {
	return i.Snapshot().QueryTaskList()
}

// QueryImageList returns every image path of the active resource.
func (i *Interface) QueryImageList() []string {
	return i.Snapshot().QueryImageList()
}

// QueryAnchorList returns every declared anchor.
func (i *Interface) QueryAnchorList() []Anchor {
	return i.Snapshot().QueryAnchorList()
}

// QueryLocaleKeys returns every locale key.
func (i *Interface) QueryLocaleKeys() []string {
	return i.Snapshot().QueryLocaleKeys()
}

// Layers returns the pseudo-layer followed by the real layers.
func (i *Interface) Layers() []*Layer {
	return i.Snapshot().AllLayers()
}

func uniqueSorted(layers []*Layer, list func(*Layer) []string) []string {
	var out []string
	for _, l := range layers {
		out = append(out, list(l)...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
