package maapipe

import (
	"cmp"
	"path"
	"slices"
	"strings"

	"github.com/jward/maapipe/internal/parser"
)

// Level is the severity of a Diagnostic.
type Level uint8

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelInfo:
		return "info"
	}
	return "error"
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// DiagnosticType names a finding.
type DiagnosticType string

const (
	TypeConflictTask        DiagnosticType = "conflict-task"
	TypeDuplicateNext       DiagnosticType = "duplicate-next"
	TypeUnknownTask         DiagnosticType = "unknown-task"
	TypeUnknownImage        DiagnosticType = "unknown-image"
	TypeImagePathBackslash  DiagnosticType = "image-path-backslash"
	TypeImagePathDotSlash   DiagnosticType = "image-path-dot-slash"
	TypeImagePathMissingPNG DiagnosticType = "image-path-missing-png"
	TypeUnknownAnchor       DiagnosticType = "unknown-anchor"
	TypeUnknownAttr         DiagnosticType = "unknown-attr"
	TypeUnknownLocale       DiagnosticType = "unknown-locale"
	TypeMissingLocale       DiagnosticType = "missing-locale"

	TypeIntConflictController DiagnosticType = "int-conflict-controller"
	TypeIntConflictResource   DiagnosticType = "int-conflict-resource"
	TypeIntConflictOption     DiagnosticType = "int-conflict-option"
	TypeIntConflictCase       DiagnosticType = "int-conflict-case"
	TypeIntConflictTask       DiagnosticType = "int-conflict-task"
	TypeIntUnknownController  DiagnosticType = "int-unknown-controller"
	TypeIntUnknownResource    DiagnosticType = "int-unknown-resource"
	TypeIntUnknownOption      DiagnosticType = "int-unknown-option"
	TypeIntUnknownCase        DiagnosticType = "int-unknown-case"
	TypeIntUnknownInput       DiagnosticType = "int-unknown-input"
	TypeIntSwitchNameInvalid  DiagnosticType = "int-switch-name-invalid"
	TypeIntSwitchShouldFixed  DiagnosticType = "int-switch-should-fixed"
	TypeIntSwitchMissing      DiagnosticType = "int-switch-missing"
	TypeIntUnknownEntryTask   DiagnosticType = "int-unknown-entry-task"
	TypeIntOverrideUnknown    DiagnosticType = "int-override-unknown-task"
	TypeIntUnknownLanguage    DiagnosticType = "int-unknown-language-file"

	TypeCustomRule DiagnosticType = "custom-rule"
)

// Diagnostic is one finding. Which of the optional fields are set depends
// on Type.
type Diagnostic struct {
	Level  Level          `json:"level"`
	Type   DiagnosticType `json:"type"`
	File   string         `json:"file"`
	Offset int            `json:"offset"`
	Length int            `json:"length"`

	// Target is the name the finding is about.
	Target string `json:"target,omitempty"`
	// Task is the declaring task of a task-level finding.
	Task string `json:"task,omitempty"`
	// Previous is the first declaration of a conflicting name.
	Previous *Location `json:"previous,omitempty"`
	// Missing lists the locales lacking a key.
	Missing []string `json:"missing,omitempty"`
	// Option owns the case or input of an interface finding.
	Option string `json:"option,omitempty"`
	// Suggested is the corrected spelling for path and switch warnings.
	Suggested  string `json:"suggested,omitempty"`
	MissingYes bool   `json:"missing_yes,omitempty"`
	MissingNo  bool   `json:"missing_no,omitempty"`
	// Message carries the text of a custom-rule finding.
	Message string `json:"message,omitempty"`
}

func at(level Level, typ DiagnosticType, loc Location) Diagnostic {
	return Diagnostic{Level: level, Type: typ, File: loc.File, Offset: loc.Offset, Length: loc.Length}
}

// PerformDiagnostic analyzes a snapshot of i. Flush i first so the result
// reflects every file event seen so far.
func PerformDiagnostic(i *Interface) []Diagnostic {
	return i.Snapshot().Diagnose()
}

// Diagnose analyzes the whole snapshot. The result is sorted by file and
// offset; the order carries no other meaning.
func (s *Snapshot) Diagnose() []Diagnostic {
	d := &diagnoser{snap: s}
	d.conflicts()
	if s.Dialect == parser.DialectLegacy {
		d.duplicateNext()
	}
	for n := range s.Layers {
		d.layerRefs(n)
	}
	d.pseudoRefs()
	d.manifest()

	slices.SortStableFunc(d.out, func(a, b Diagnostic) int {
		return cmp.Or(
			cmp.Compare(a.File, b.File),
			cmp.Compare(a.Offset, b.Offset),
			cmp.Compare(a.Type, b.Type),
		)
	})
	return d.out
}

type diagnoser struct {
	snap *Snapshot
	out  []Diagnostic
}

func (d *diagnoser) add(diag Diagnostic) {
	d.out = append(d.out, diag)
}

// conflicts flags every declaration after the first of a name within one
// real layer.
func (d *diagnoser) conflicts() {
	for _, l := range d.snap.Layers {
		for _, name := range l.Names() {
			decls := l.Tasks[name]
			if len(decls) < 2 {
				continue
			}
			first := decls[0].Loc()
			for _, t := range decls[1:] {
				diag := at(LevelError, TypeConflictTask, t.Loc())
				diag.Target = name
				diag.Previous = &first
				d.add(diag)
			}
		}
	}
}

// duplicateNext flags repeated targets inside one next-family list of one
// declaration.
func (d *diagnoser) duplicateNext() {
	for _, l := range d.snap.Layers {
		for _, t := range l.All() {
			seen := map[string]bool{}
			for _, r := range t.Info.Refs {
				if r.Anchor || (r.Kind != parser.RefTaskNext && r.Kind != parser.RefMaaExpr) {
					continue
				}
				key := r.Field + "\x00" + r.Target
				if seen[key] {
					diag := at(LevelWarning, TypeDuplicateNext, r.Loc)
					diag.Target = r.Target
					diag.Task = t.Name()
					d.add(diag)
					continue
				}
				seen[key] = true
			}
		}
	}
}

// scope is the set of names and images a group of refs is checked against.
type scope struct {
	tasks   func(string) bool
	anchors map[string]bool
	images  []string
}

// scopeFor returns the scope of real layer n: the layers from the highest
// precedence down to n.
func (d *diagnoser) scopeFor(n int) scope {
	layers := d.snap.Layers[:n+1]
	sc := scope{
		tasks: func(name string) bool {
			for _, l := range layers {
				if l.Has(name) {
					return true
				}
			}
			return false
		},
		anchors: map[string]bool{},
	}
	for _, l := range append([]*Layer{d.snap.Pseudo}, layers...) {
		for _, a := range l.AnchorList() {
			sc.anchors[a.Name] = true
		}
	}
	for _, l := range layers {
		sc.images = append(sc.images, l.ImageListNotUnique()...)
	}
	return sc
}

func (d *diagnoser) layerRefs(n int) {
	sc := d.scopeFor(n)
	for _, r := range d.snap.Layers[n].MergedRefs() {
		d.ref(r, sc)
	}
}

// pseudoRefs checks the refs inside pipeline_override blocks against every
// real layer plus the overrides themselves. Entry refs are checked by
// manifest.
func (d *diagnoser) pseudoRefs() {
	sc := scope{anchors: map[string]bool{}}
	if len(d.snap.Layers) > 0 {
		sc = d.scopeFor(len(d.snap.Layers) - 1)
	}
	inReal := sc.tasks
	sc.tasks = func(name string) bool {
		return d.snap.Pseudo.Has(name) || (inReal != nil && inReal(name))
	}
	for _, a := range d.snap.Pseudo.AnchorList() {
		sc.anchors[a.Name] = true
	}
	for _, t := range d.snap.Pseudo.All() {
		for _, r := range t.Info.Refs {
			d.ref(r, sc)
		}
	}
}

// ref checks one task-level reference.
func (d *diagnoser) ref(r Ref, sc scope) {
	for _, attr := range r.UnknownAttrs {
		diag := at(LevelWarning, TypeUnknownAttr, attr.Loc)
		diag.Target = attr.Key
		diag.Task = r.Task
		d.add(diag)
	}

	switch r.Kind {
	case parser.RefTaskNext:
		if r.Anchor {
			if !sc.anchors[r.Target] {
				d.unknown(TypeUnknownAnchor, r)
			}
			return
		}
		if !sc.tasks(r.Target) {
			d.unknown(TypeUnknownTask, r)
		}
	case parser.RefTaskTarget, parser.RefMaaBaseTask:
		if !sc.tasks(r.Target) {
			d.unknown(TypeUnknownTask, r)
		}
	case parser.RefTaskRoi:
		if !r.InScope() && !sc.tasks(r.Target) {
			d.unknown(TypeUnknownTask, r)
		}
	case parser.RefMaaExpr:
		if !resolveExpr(sc.tasks, r.Target) {
			d.unknown(TypeUnknownTask, r)
		}
	case parser.RefTaskTemplate:
		d.image(r, sc.images)
	case parser.RefTaskLocale:
		d.locale(r)
	}
}

func (d *diagnoser) unknown(typ DiagnosticType, r Ref) {
	diag := at(LevelError, typ, r.Loc)
	diag.Target = r.Target
	diag.Task = r.Task
	d.add(diag)
}

// image normalizes an image ref and checks it against images. Every
// normalization step that changes the literal is reported on its own.
func (d *diagnoser) image(r Ref, images []string) {
	norm := r.Target
	warn := func(typ DiagnosticType, fixed string) {
		diag := at(LevelWarning, typ, r.Loc)
		diag.Target = r.Target
		diag.Task = r.Task
		diag.Suggested = fixed
		d.add(diag)
	}
	if strings.Contains(norm, `\`) {
		norm = strings.ReplaceAll(norm, `\`, "/")
		warn(TypeImagePathBackslash, norm)
	}
	if strings.HasPrefix(norm, "./") {
		for strings.HasPrefix(norm, "./") {
			norm = norm[2:]
		}
		warn(TypeImagePathDotSlash, norm)
	}
	legacy := d.snap.Dialect == parser.DialectLegacy
	if legacy && !strings.HasSuffix(strings.ToLower(norm), ".png") {
		norm += ".png"
		warn(TypeImagePathMissingPNG, norm)
	}
	if !imageExists(images, norm, legacy) {
		d.unknown(TypeUnknownImage, r)
	}
}

// imageExists matches a normalized image path. In the framework dialect a
// path without the .png suffix names a directory of templates; the legacy
// dialect also accepts any image whose path ends with the name.
func imageExists(images []string, p string, legacy bool) bool {
	if p == "" {
		return false
	}
	isFile := strings.HasSuffix(strings.ToLower(p), ".png")
	dir := strings.TrimSuffix(p, "/") + "/"
	for _, img := range images {
		switch {
		case img == p:
			return true
		case !isFile && !legacy && strings.HasPrefix(img, dir):
			return true
		case legacy && (strings.HasSuffix(img, "/"+p) || path.Base(img) == p):
			return true
		}
	}
	return false
}

// locale checks a locale-key ref against the loaded languages. Without any
// language files there is nothing to check against.
func (d *diagnoser) locale(r Ref) {
	locales := d.snap.Locales
	loaded := false
	for _, l := range locales.Languages() {
		if locales.Loaded(l) {
			loaded = true
			break
		}
	}
	if !loaded {
		return
	}
	missing, found := locales.Missing(r.Target)
	switch {
	case !found:
		diag := at(LevelWarning, TypeUnknownLocale, r.Loc)
		diag.Target = r.Target
		diag.Task = r.Task
		d.add(diag)
	case len(missing) > 0:
		diag := at(LevelWarning, TypeMissingLocale, r.Loc)
		diag.Target = r.Target
		diag.Task = r.Task
		diag.Missing = missing
		d.add(diag)
	}
}
