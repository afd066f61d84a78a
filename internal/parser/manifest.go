package parser

import (
	"regexp"
	"slices"
	"strings"

	"github.com/jward/maapipe/internal/jsontree"
)

// ProjectDirPrefix is the placeholder resource paths may start with.
const ProjectDirPrefix = "{PROJECT_DIR}"

// localizableKeys are the manifest properties whose values may be locale
// keys, wherever they appear in the document.
var localizableKeys = map[string]bool{
	"label":       true,
	"description": true,
	"title":       true,
	"welcome":     true,
	"contact":     true,
	"message":     true,
	"pattern_msg": true,
}

var inputPlaceholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Override is one task entry of a pipeline_override block.
type Override struct {
	Name    string
	KeyNode *jsontree.Node
	Body    *jsontree.Node
	Info    *TaskInfo
	// Label names the manifest element the block belongs to.
	Label string
}

// InterfaceInfo is everything extracted from the manifest.
type InterfaceInfo struct {
	File      string
	Decls     []Decl
	Refs      []Ref
	Overrides []Override
	// ExtraRefs are task refs validated against the merged task set rather
	// than the manifest itself (task entries).
	ExtraRefs []Ref
}

// DeclsOf returns the decls of one kind in document order.
func (info *InterfaceInfo) DeclsOf(kind DeclKind) []Decl {
	if info == nil {
		return nil
	}
	var out []Decl
	for _, d := range info.Decls {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// FirstDecl returns the first decl of kind named name.
func (info *InterfaceInfo) FirstDecl(kind DeclKind, name string) (Decl, bool) {
	if info == nil {
		return Decl{}, false
	}
	for _, d := range info.Decls {
		if d.Kind == kind && d.Name == name {
			return d, true
		}
	}
	return Decl{}, false
}

// ResourcePaths returns the root paths of the first resource named name.
func (info *InterfaceInfo) ResourcePaths(name string) ([]string, bool) {
	d, ok := info.FirstDecl(DeclResource, name)
	if !ok {
		return nil, false
	}
	return d.Paths, true
}

// Languages returns locale → file path for every language decl, first
// declaration wins.
func (info *InterfaceInfo) Languages() map[string]string {
	out := map[string]string{}
	for _, d := range info.DeclsOf(DeclLanguage) {
		if _, seen := out[d.Name]; !seen {
			out[d.Name] = d.Path
		}
	}
	return out
}

// ParseInterface extracts declarations and references from the manifest.
// A nil or non-object root yields an empty InterfaceInfo.
func ParseInterface(file string, root *jsontree.Node, dialect Dialect) *InterfaceInfo {
	p := &manifestParser{file: file, dialect: dialect, info: &InterfaceInfo{File: file}}
	obj, ok := root.AsObject()
	if !ok {
		return p.info
	}
	for m := range obj.Members() {
		switch m.Key {
		case "languages":
			p.languages(m.Value)
		case "controller":
			p.controllers(m.Value)
		case "resource":
			p.resources(m.Value)
		case "task":
			p.tasks(m.Value)
		case "option":
			p.options(m.Value)
		}
	}
	p.locales(obj)
	return p.info
}

type manifestParser struct {
	file    string
	dialect Dialect
	info    *InterfaceInfo
}

func (p *manifestParser) loc(n *jsontree.Node) Location {
	return LocationOf(p.file, n)
}

func (p *manifestParser) decl(d Decl) {
	p.info.Decls = append(p.info.Decls, d)
}

func (p *manifestParser) ref(r Ref) {
	p.info.Refs = append(p.info.Refs, r)
}

// refs records one ref per non-empty string of a one-or-many value.
func (p *manifestParser) refs(kind RefKind, field string, v *jsontree.Node) []string {
	var names []string
	for _, n := range v.OneOrMany() {
		s, ok := n.AsString()
		if !ok || s == "" {
			continue
		}
		p.ref(Ref{Kind: kind, Loc: p.loc(n), Target: s, Field: field})
		names = append(names, s)
	}
	return names
}

func (p *manifestParser) languages(v *jsontree.Node) {
	for m := range v.Members() {
		path, ok := m.Value.AsString()
		if !ok {
			continue
		}
		p.decl(Decl{Kind: DeclLanguage, Loc: p.loc(m.KeyNode), Name: m.Key, Path: path})
		if path != "" {
			p.ref(Ref{Kind: RefLanguagePath, Loc: p.loc(m.Value), Target: path, Field: "languages"})
		}
	}
}

func (p *manifestParser) controllers(v *jsontree.Node) {
	for _, elem := range v.Elements() {
		if name, node, ok := nameOf(elem); ok {
			p.decl(Decl{Kind: DeclController, Loc: p.loc(node), Name: name})
		}
	}
}

func (p *manifestParser) resources(v *jsontree.Node) {
	for _, elem := range v.Elements() {
		name, node, ok := nameOf(elem)
		if !ok {
			continue
		}
		d := Decl{Kind: DeclResource, Loc: p.loc(node), Name: name}
		if paths, ok := elem.Get("path"); ok {
			for _, n := range paths.OneOrMany() {
				raw, ok := n.AsString()
				if !ok {
					continue
				}
				path, skip := StripProjectDir(raw)
				d.Paths = append(d.Paths, path)
				loc := p.loc(n)
				loc.Offset += skip
				loc.Length -= skip
				p.ref(Ref{Kind: RefResourcePath, Loc: loc, Target: path, Field: "path"})
			}
		}
		if ctrl, ok := elem.Get("controller"); ok {
			d.Controllers = p.refs(RefController, "controller", ctrl)
		}
		p.decl(d)
	}
}

// StripProjectDir removes a leading {PROJECT_DIR} segment. skip is the number
// of bytes removed from the front of raw.
func StripProjectDir(raw string) (path string, skip int) {
	rest, found := strings.CutPrefix(raw, ProjectDirPrefix)
	if !found {
		return raw, 0
	}
	trimmed := strings.TrimLeft(rest, `/\`)
	skip = len(raw) - len(trimmed)
	if trimmed == "" {
		return ".", skip
	}
	return trimmed, skip
}

func (p *manifestParser) tasks(v *jsontree.Node) {
	for _, elem := range v.Elements() {
		name, node, ok := nameOf(elem)
		if !ok {
			continue
		}
		p.decl(Decl{Kind: DeclTask, Loc: p.loc(node), Name: name})
		for m := range elem.Members() {
			switch m.Key {
			case "entry":
				if entry, ok := m.Value.AsString(); ok && entry != "" {
					ref := Ref{Kind: RefTaskEntry, Loc: p.loc(m.Value), Target: entry, Field: "entry", Task: name}
					p.ref(ref)
					p.info.ExtraRefs = append(p.info.ExtraRefs, ref)
				}
			case "resource":
				p.refs(RefResource, "resource", m.Value)
			case "controller":
				p.refs(RefController, "controller", m.Value)
			case "option":
				p.refs(RefOption, "option", m.Value)
			case "pipeline_override":
				p.overrides([]string{"task", name, "pipeline_override"}, m.Value)
			}
		}
	}
}

func (p *manifestParser) options(v *jsontree.Node) {
	for m := range v.Members() {
		opt, ok := m.Value.AsObject()
		if !ok {
			continue
		}
		name := m.Key
		typ := "select"
		if t, ok := opt.Get("type"); ok {
			if s, ok := t.AsString(); ok {
				typ = s
			}
		}
		p.decl(Decl{Kind: DeclOption, Loc: p.loc(m.KeyNode), Name: name, OptionType: typ})

		for om := range opt.Members() {
			switch om.Key {
			case "cases":
				p.cases(name, om.Value)
			case "default_case":
				if s, ok := om.Value.AsString(); ok && s != "" {
					p.ref(Ref{Kind: RefCase, Loc: p.loc(om.Value), Target: s, Field: "default_case", Option: name})
				}
			case "inputs":
				p.inputs(name, om.Value)
			case "pipeline_override":
				p.overrides([]string{"option", name, "pipeline_override"}, om.Value)
				if typ == "input" {
					p.placeholders(name, om.Value)
				}
			}
		}
	}
}

func (p *manifestParser) cases(option string, v *jsontree.Node) {
	for _, elem := range v.Elements() {
		name, node, ok := nameOf(elem)
		if !ok {
			continue
		}
		p.decl(Decl{Kind: DeclCase, Loc: p.loc(node), Name: name, Option: option})
		if sub, ok := elem.Get("option"); ok {
			p.refs(RefOption, "option", sub)
		}
		if override, ok := elem.Get("pipeline_override"); ok {
			p.overrides([]string{"option", option, "cases", name, "pipeline_override"}, override)
		}
	}
}

func (p *manifestParser) inputs(option string, v *jsontree.Node) {
	for _, elem := range v.Elements() {
		name, node, ok := nameOf(elem)
		if !ok {
			continue
		}
		d := Decl{Kind: DeclInput, Loc: p.loc(node), Name: name, Option: option}
		if hint, ok := elem.Get("pipeline_type"); ok {
			d.CastHint, _ = hint.AsString()
		}
		p.decl(d)
	}
}

// placeholders records a ref for every {name} substitution point found in
// the string leaves of an input option's override. Matching runs on the raw
// literal so offsets stay exact when escapes precede a placeholder.
func (p *manifestParser) placeholders(option string, v *jsontree.Node) {
	switch v.Kind {
	case jsontree.KindString:
		off, _ := v.ContentRange()
		for _, idx := range inputPlaceholder.FindAllStringSubmatchIndex(v.Raw, -1) {
			p.ref(Ref{
				Kind:   RefInput,
				Loc:    Location{File: p.file, Offset: off + idx[2], Length: idx[3] - idx[2]},
				Target: v.Raw[idx[2]:idx[3]],
				Field:  "pipeline_override",
				Option: option,
			})
		}
	case jsontree.KindArray:
		for _, e := range v.Children {
			p.placeholders(option, e)
		}
	case jsontree.KindObject:
		for m := range v.Members() {
			p.placeholders(option, m.Value)
		}
	}
}

func (p *manifestParser) overrides(path []string, v *jsontree.Node) {
	for m := range v.Members() {
		if strings.HasPrefix(m.Key, "$") {
			continue
		}
		_, label := OverrideScope(append(slices.Clone(path), m.Key))
		p.info.Overrides = append(p.info.Overrides, Override{
			Name:    m.Key,
			KeyNode: m.KeyNode,
			Body:    m.Value,
			Info:    ParseTask(p.file, m.Key, m.Value, p.dialect),
			Label:   label,
		})
	}
}

// locales walks the whole document and records every $-prefixed string held
// by a localizable property, regardless of where it sits.
func (p *manifestParser) locales(n *jsontree.Node) {
	switch n.Kind {
	case jsontree.KindObject:
		for m := range n.Members() {
			if localizableKeys[m.Key] && m.Value.Kind == jsontree.KindString {
				if ref, ok := LocaleRef(p.file, m.Value); ok && ref.Kind == RefTaskLocale {
					ref.Kind = RefLocale
					ref.Field = m.Key
					p.ref(ref)
				}
				continue
			}
			p.locales(m.Value)
		}
	case jsontree.KindArray:
		for _, e := range n.Children {
			p.locales(e)
		}
	}
}

// OverrideScope splits a structural manifest path at its last
// pipeline_override segment. rest is the task-relative remainder and label
// describes the owning element, e.g. "option Server case CN".
func OverrideScope(path []string) (rest []string, label string) {
	idx := -1
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == "pipeline_override" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return path, ""
	}
	var parts []string
	prefix := path[:idx]
	for i := 0; i < len(prefix); i++ {
		switch prefix[i] {
		case "task", "option":
			if i+1 < len(prefix) {
				parts = append(parts, prefix[i]+" "+prefix[i+1])
				i++
			}
		case "cases":
			if i+1 < len(prefix) {
				parts = append(parts, "case "+prefix[i+1])
				i++
			}
		}
	}
	return slices.Clone(path[idx+1:]), strings.Join(parts, " ")
}

func nameOf(elem *jsontree.Node) (string, *jsontree.Node, bool) {
	n, ok := elem.Get("name")
	if !ok {
		return "", nil, false
	}
	s, ok := n.AsString()
	if !ok || s == "" {
		return "", nil, false
	}
	return s, n, true
}
