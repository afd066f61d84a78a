package parser

import (
	"slices"
	"strings"

	"github.com/jward/maapipe/internal/jsontree"
)

// ParseTask extracts declarations and references from one task body.
//
// Extraction is best-effort per property: a missing or malformed value yields
// nothing for that property and never affects the others. A body that is not
// an object produces a TaskInfo with no entries.
func ParseTask(file, name string, body *jsontree.Node, dialect Dialect) *TaskInfo {
	p := &taskParser{
		file:    file,
		dialect: dialect,
		keys:    keysFor(dialect),
		info:    &TaskInfo{Name: name},
	}
	if obj, ok := body.AsObject(); ok {
		p.object(obj, nil, true)
	}
	return p.info
}

type taskParser struct {
	file    string
	dialect Dialect
	keys    keyTable
	info    *TaskInfo
}

func (p *taskParser) loc(n *jsontree.Node) Location {
	return LocationOf(p.file, n)
}

func (p *taskParser) addRef(ref Ref) {
	ref.Task = p.info.Name
	p.info.Refs = append(p.info.Refs, ref)
}

func (p *taskParser) addDecl(decl Decl) {
	p.info.Decls = append(p.info.Decls, decl)
}

// object classifies every member of obj. record controls whether members are
// kept in the TaskInfo buckets; nested recognition objects are extracted but
// not recorded as task properties.
func (p *taskParser) object(obj *jsontree.Node, chain []string, record bool) {
	for m := range obj.Members() {
		spec, ok := p.keys[m.Key]
		prop := Prop{Key: m.Key, KeyNode: m.KeyNode, Value: m.Value}
		if !ok {
			if record {
				p.info.Unknown = append(p.info.Unknown, prop)
			}
			continue
		}
		if record {
			switch spec.bucket {
			case BucketBase:
				p.info.Base = append(p.info.Base, prop)
			case BucketRecognition:
				p.info.Recognition = append(p.info.Recognition, prop)
			case BucketAction:
				p.info.Action = append(p.info.Action, prop)
			}
		}
		p.property(m.Key, spec.field, m.Value, chain, record)
	}
}

func (p *taskParser) property(key string, f field, v *jsontree.Node, chain []string, record bool) {
	switch f {
	case fieldPlain, fieldSubName:
	case fieldNext:
		for _, entry := range v.OneOrMany() {
			p.nextEntry(key, entry)
		}
	case fieldAnchor:
		p.anchor(v)
	case fieldWaitFreezes:
		if target, ok := v.Get("target"); ok {
			p.taskRef(key+".target", target)
		}
	case fieldRecognition, fieldAction:
		// A bare string names the algorithm. The object form carries its
		// parameters under "param", classified against the same tables.
		if obj, ok := v.AsObject(); ok {
			if param, ok := obj.Get("param"); ok {
				if paramObj, ok := param.AsObject(); ok {
					p.object(paramObj, chain, record)
				}
			}
		}
	case fieldRoi:
		if s, ok := v.AsString(); ok && s != "" {
			p.addRef(Ref{
				Kind:   RefTaskRoi,
				Loc:    p.loc(v),
				Target: s,
				Field:  key,
				Scope:  slices.Clone(chain),
			})
		}
	case fieldTemplate:
		for _, n := range v.OneOrMany() {
			if s, ok := n.AsString(); ok {
				p.addRef(Ref{Kind: RefTaskTemplate, Loc: p.loc(n), Target: s, Field: key})
			}
		}
	case fieldComposite:
		p.composite(key, v, chain)
	case fieldLocalizable:
		p.localizable(key, v)
	case fieldTaskRef:
		p.taskRef(key, v)
	case fieldTaskRefs:
		for _, n := range v.OneOrMany() {
			p.taskRef(key, n)
		}
	case fieldSwipes:
		for _, swipe := range v.Elements() {
			if obj, ok := swipe.AsObject(); ok {
				p.object(obj, chain, false)
			}
		}
	case fieldBaseTask:
		if s, ok := v.AsString(); ok && s != "" {
			p.addRef(Ref{Kind: RefMaaBaseTask, Loc: p.loc(v), Target: s, Field: key})
		}
	}
}

// taskRef records a plain task reference when v is a non-empty string.
// Booleans and coordinate arrays are valid values for these keys and are
// skipped.
func (p *taskParser) taskRef(key string, v *jsontree.Node) {
	s, ok := v.AsString()
	if !ok || s == "" {
		return
	}
	p.addRef(Ref{Kind: RefTaskTarget, Loc: p.loc(v), Target: s, Field: key})
}

func (p *taskParser) nextEntry(key string, entry *jsontree.Node) {
	if p.dialect == DialectLegacy {
		s, ok := entry.AsString()
		if !ok || s == "" {
			return
		}
		kind := RefTaskNext
		if IsMaaExpr(s) {
			kind = RefMaaExpr
		}
		p.addRef(Ref{Kind: kind, Loc: p.loc(entry), Target: s, Field: key})
		return
	}

	switch entry.Kind {
	case jsontree.KindString:
		name, jumpBack, anchor, skip := StripNextPrefix(entry.Str)
		if name == "" {
			return
		}
		loc := p.loc(entry)
		loc.Offset += skip
		loc.Length -= skip
		p.addRef(Ref{
			Kind:     RefTaskNext,
			Loc:      loc,
			Target:   name,
			Field:    key,
			JumpBack: jumpBack,
			Anchor:   anchor,
		})
	case jsontree.KindObject:
		ref := Ref{Kind: RefTaskNext, Field: key}
		var nameNode *jsontree.Node
		for m := range entry.Members() {
			switch m.Key {
			case "name":
				nameNode = m.Value
			case "jump_back":
				ref.JumpBack, _ = m.Value.AsBool()
			case "anchor":
				ref.Anchor, _ = m.Value.AsBool()
			default:
				ref.UnknownAttrs = append(ref.UnknownAttrs, Attr{Key: m.Key, Loc: p.loc(m.KeyNode)})
			}
		}
		name, ok := nameNode.AsString()
		if !ok || name == "" {
			return
		}
		ref.Target = name
		ref.Loc = p.loc(nameNode)
		p.addRef(ref)
	}
}

// StripNextPrefix removes leading [JumpBack] and [Anchor] markers from a
// next entry. skip is the number of bytes removed.
func StripNextPrefix(s string) (name string, jumpBack, anchor bool, skip int) {
	name = s
	for {
		switch {
		case strings.HasPrefix(name, prefixJumpBack):
			jumpBack = true
			name = name[len(prefixJumpBack):]
			skip += len(prefixJumpBack)
		case strings.HasPrefix(name, prefixAnchor):
			anchor = true
			name = name[len(prefixAnchor):]
			skip += len(prefixAnchor)
		default:
			return name, jumpBack, anchor, skip
		}
	}
}

// IsMaaExpr reports whether a legacy task name is an expression rather than
// a plain name: a derived name (A@B) or a virtual task (#self, A#next).
func IsMaaExpr(s string) bool {
	return strings.ContainsAny(s, "@#")
}

func (p *taskParser) anchor(v *jsontree.Node) {
	switch v.Kind {
	case jsontree.KindString, jsontree.KindArray:
		for _, n := range v.OneOrMany() {
			if s, ok := n.AsString(); ok && s != "" {
				p.addDecl(Decl{Kind: DeclTaskAnchor, Loc: p.loc(n), Name: s, Task: p.info.Name})
			}
		}
	case jsontree.KindObject:
		// {"anchor_name": "target"}; an empty target clears the anchor.
		for m := range v.Members() {
			target, ok := m.Value.AsString()
			if !ok || target == "" || m.Key == "" {
				continue
			}
			p.addDecl(Decl{Kind: DeclTaskAnchor, Loc: p.loc(m.KeyNode), Name: m.Key, Task: target})
			p.taskRef("anchor", m.Value)
		}
	}
}

// composite extracts an all_of/any_of list. Each element sees the
// sub-recognition names declared by the elements before it.
func (p *taskParser) composite(key string, v *jsontree.Node, chain []string) {
	local := slices.Clone(chain)
	for _, elem := range v.Elements() {
		switch elem.Kind {
		case jsontree.KindString:
			p.taskRef(key, elem)
		case jsontree.KindObject:
			p.object(elem, local, false)
			sub, ok := elem.Get("sub_name")
			if !ok {
				continue
			}
			if name, ok := sub.AsString(); ok && name != "" {
				p.addDecl(Decl{Kind: DeclTaskSubReco, Loc: p.loc(sub), Name: name, Task: p.info.Name})
				local = append(slices.Clone(local), name)
			}
		}
	}
}

func (p *taskParser) localizable(key string, v *jsontree.Node) {
	switch v.Kind {
	case jsontree.KindString:
		if ref, ok := LocaleRef(p.file, v); ok {
			ref.Field = key
			p.addRef(ref)
		}
	case jsontree.KindArray:
		for _, e := range v.Children {
			p.localizable(key, e)
		}
	case jsontree.KindObject:
		for m := range v.Members() {
			p.localizable(key, m.Value)
		}
	}
}

// LocaleRef classifies a localizable string: a leading '$' makes it a
// locale-key ref, any other non-empty literal a can-be-localized ref.
func LocaleRef(file string, n *jsontree.Node) (Ref, bool) {
	s, ok := n.AsString()
	if !ok || s == "" {
		return Ref{}, false
	}
	loc := LocationOf(file, n)
	if key, found := strings.CutPrefix(s, "$"); found {
		if key == "" {
			return Ref{}, false
		}
		loc.Offset++
		loc.Length--
		return Ref{Kind: RefTaskLocale, Loc: loc, Target: key}, true
	}
	return Ref{Kind: RefTaskCanLocale, Loc: loc, Target: s}, true
}
