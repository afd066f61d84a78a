package parser

import "github.com/jward/maapipe/internal/jsontree"

// Dialect selects the key tables and reference rules of a pipeline format.
type Dialect uint8

const (
	// DialectFramework is the current pipeline format.
	DialectFramework Dialect = iota
	// DialectLegacy is the older task format with baseTask inheritance and
	// @-expressions.
	DialectLegacy
)

func (d Dialect) String() string {
	if d == DialectLegacy {
		return "legacy"
	}
	return "framework"
}

// ParseDialect maps a config value to a Dialect.
func ParseDialect(s string) (Dialect, bool) {
	switch s {
	case "", "framework":
		return DialectFramework, true
	case "legacy", "maa":
		return DialectLegacy, true
	}
	return DialectFramework, false
}

// Location is a byte range inside one file.
type Location struct {
	File   string
	Offset int
	Length int
}

// LocationOf returns the location of n, excluding quotes for strings.
func LocationOf(file string, n *jsontree.Node) Location {
	off, length := n.ContentRange()
	return Location{File: file, Offset: off, Length: length}
}

// DeclKind tags a Decl.
type DeclKind string

const (
	DeclTaskAnchor  DeclKind = "task.anchor"
	DeclTaskSubReco DeclKind = "task.sub_reco"
	DeclController  DeclKind = "interface.controller"
	DeclResource    DeclKind = "interface.resource"
	DeclOption      DeclKind = "interface.option"
	DeclCase        DeclKind = "interface.case"
	DeclInput       DeclKind = "interface.input"
	DeclTask        DeclKind = "interface.task"
	DeclLanguage    DeclKind = "interface.language"
)

// Decl is a name-defining entry.
type Decl struct {
	Kind DeclKind
	Loc  Location
	Name string

	// Task is the owning task for anchors and sub-recognitions. For an
	// anchor declared in object form it is the task the anchor points at.
	Task string
	// Option is the owning option for cases and inputs.
	Option string
	// OptionType is the declared type of an option (select, switch, input).
	OptionType string
	// Paths are the resource root paths, relative to the manifest directory.
	Paths []string
	// Controllers restricts the controllers a resource may run with.
	Controllers []string
	// CastHint is the declared pipeline_type of an input.
	CastHint string
	// Path is the locale file of a language, relative to the manifest.
	Path string
}

// RefKind tags a Ref.
type RefKind string

const (
	RefTaskNext      RefKind = "task.next"
	RefTaskTarget    RefKind = "task.target"
	RefTaskRoi       RefKind = "task.roi"
	RefTaskTemplate  RefKind = "task.template"
	RefTaskEntry     RefKind = "task.entry"
	RefTaskLocale    RefKind = "task.locale"
	RefTaskCanLocale RefKind = "task.can_locale"
	RefMaaBaseTask   RefKind = "task.maa.base_task"
	RefMaaExpr       RefKind = "task.maa.expr"
	RefController    RefKind = "interface.controller"
	RefResource      RefKind = "interface.resource"
	RefOption        RefKind = "interface.option"
	RefCase          RefKind = "interface.case"
	RefInput         RefKind = "interface.input"
	RefLocale        RefKind = "interface.locale"
	RefResourcePath  RefKind = "interface.resource_path"
	RefLanguagePath  RefKind = "interface.language_path"
)

// IsTaskShaped reports whether refs of this kind name a task.
func (k RefKind) IsTaskShaped() bool {
	switch k {
	case RefTaskNext, RefTaskTarget, RefTaskRoi, RefTaskEntry, RefMaaBaseTask, RefMaaExpr:
		return true
	}
	return false
}

// IsLocale reports whether refs of this kind name a locale key.
func (k RefKind) IsLocale() bool {
	return k == RefTaskLocale || k == RefLocale
}

// Attr is a leftover key inside a next-entry object.
type Attr struct {
	Key string
	Loc Location
}

// Ref is a name-using entry.
type Ref struct {
	Kind   RefKind
	Loc    Location
	Target string

	// Task is the task the ref was found in, empty for manifest refs.
	Task string
	// Field is the property that produced the ref (next, on_error, roi...).
	Field string

	// Next-entry flags.
	JumpBack bool
	Anchor   bool
	// UnknownAttrs are unrecognized keys of a next-entry object.
	UnknownAttrs []Attr

	// Scope is the local sub-recognition chain visible to a roi ref.
	Scope []string

	// Option is the owning option of case and input refs.
	Option string
}

// InScope reports whether a roi ref names a sub-recognition in its chain.
func (r *Ref) InScope() bool {
	for _, s := range r.Scope {
		if s == r.Target {
			return true
		}
	}
	return false
}

// Bucket says which key table a property was classified against.
type Bucket uint8

const (
	BucketBase Bucket = iota
	BucketRecognition
	BucketAction
)

// Prop is one classified task property.
type Prop struct {
	Key     string
	KeyNode *jsontree.Node
	Value   *jsontree.Node
}

// TaskInfo is everything extracted from one task declaration occurrence.
// It is never mutated after ParseTask returns.
type TaskInfo struct {
	Name        string
	Base        []Prop
	Recognition []Prop
	Action      []Prop
	Unknown     []Prop
	Decls       []Decl
	Refs        []Ref
}
