package maapipe

import (
	"strings"

	"github.com/jward/maapipe/internal/parser"
)

var conflictTypes = map[parser.DeclKind]DiagnosticType{
	parser.DeclController: TypeIntConflictController,
	parser.DeclResource:   TypeIntConflictResource,
	parser.DeclOption:     TypeIntConflictOption,
	parser.DeclCase:       TypeIntConflictCase,
	parser.DeclTask:       TypeIntConflictTask,
}

// manifest runs the interface-level checks.
func (d *diagnoser) manifest() {
	info := d.snap.Info
	if info == nil {
		return
	}
	d.manifestConflicts(info)
	d.manifestRefs(info)
	d.switches(info)
	d.overrides()
	d.languages(info)
}

// manifestConflicts flags repeated names. Cases are scoped to their option.
func (d *diagnoser) manifestConflicts(info *InterfaceInfo) {
	first := map[string]Location{}
	for _, decl := range info.Decls {
		typ, ok := conflictTypes[decl.Kind]
		if !ok {
			continue
		}
		key := string(decl.Kind) + "\x00" + decl.Option + "\x00" + decl.Name
		prev, seen := first[key]
		if !seen {
			first[key] = decl.Loc
			continue
		}
		diag := at(LevelError, typ, decl.Loc)
		diag.Target = decl.Name
		diag.Option = decl.Option
		diag.Previous = &prev
		d.add(diag)
	}
}

func (d *diagnoser) manifestRefs(info *InterfaceInfo) {
	declared := func(kind parser.DeclKind, option, name string) bool {
		for _, decl := range info.Decls {
			if decl.Kind == kind && decl.Name == name && (option == "" || decl.Option == option) {
				return true
			}
		}
		return false
	}
	for _, r := range info.Refs {
		var typ DiagnosticType
		switch r.Kind {
		case parser.RefController:
			if !declared(parser.DeclController, "", r.Target) {
				typ = TypeIntUnknownController
			}
		case parser.RefResource:
			if !declared(parser.DeclResource, "", r.Target) {
				typ = TypeIntUnknownResource
			}
		case parser.RefOption:
			if !declared(parser.DeclOption, "", r.Target) {
				typ = TypeIntUnknownOption
			}
		case parser.RefCase:
			if !declared(parser.DeclCase, r.Option, r.Target) {
				typ = TypeIntUnknownCase
			}
		case parser.RefInput:
			if !declared(parser.DeclInput, r.Option, r.Target) {
				typ = TypeIntUnknownInput
			}
		case parser.RefTaskEntry:
			if !d.snap.HasTask(r.Target) {
				typ = TypeIntUnknownEntryTask
			}
		case parser.RefLocale:
			d.locale(r)
		}
		if typ == "" {
			continue
		}
		diag := at(LevelError, typ, r.Loc)
		diag.Target = r.Target
		diag.Option = r.Option
		d.add(diag)
	}
}

// switches validates switch options: exactly one Yes and one No case.
// A case-only mismatch is fixable and still counts as present.
func (d *diagnoser) switches(info *InterfaceInfo) {
	for _, opt := range info.DeclsOf(parser.DeclOption) {
		if opt.OptionType != "switch" {
			continue
		}
		var hasYes, hasNo bool
		for _, c := range info.DeclsOf(parser.DeclCase) {
			if c.Option != opt.Name {
				continue
			}
			var canonical string
			switch {
			case strings.EqualFold(c.Name, "Yes"):
				canonical, hasYes = "Yes", true
			case strings.EqualFold(c.Name, "No"):
				canonical, hasNo = "No", true
			default:
				diag := at(LevelError, TypeIntSwitchNameInvalid, c.Loc)
				diag.Target = c.Name
				diag.Option = opt.Name
				d.add(diag)
				continue
			}
			if c.Name != canonical {
				diag := at(LevelWarning, TypeIntSwitchShouldFixed, c.Loc)
				diag.Target = c.Name
				diag.Option = opt.Name
				diag.Suggested = canonical
				d.add(diag)
			}
		}
		if hasYes && hasNo {
			continue
		}
		diag := at(LevelError, TypeIntSwitchMissing, opt.Loc)
		diag.Target = opt.Name
		diag.Option = opt.Name
		diag.MissingYes = !hasYes
		diag.MissingNo = !hasNo
		d.add(diag)
	}
}

// overrides flags pipeline_override keys that patch no real task.
func (d *diagnoser) overrides() {
	for _, t := range d.snap.Pseudo.All() {
		if d.snap.HasTask(t.Name()) {
			continue
		}
		diag := at(LevelWarning, TypeIntOverrideUnknown, t.Loc())
		diag.Target = t.Name()
		diag.Message = t.Label
		d.add(diag)
	}
}

// languages flags language decls whose file could not be read.
func (d *diagnoser) languages(info *InterfaceInfo) {
	for _, r := range info.Refs {
		if r.Kind != parser.RefLanguagePath {
			continue
		}
		locale := ""
		for _, decl := range info.DeclsOf(parser.DeclLanguage) {
			if decl.Path == r.Target {
				locale = decl.Name
				break
			}
		}
		if locale != "" && d.snap.Locales.Loaded(locale) {
			continue
		}
		diag := at(LevelError, TypeIntUnknownLanguage, r.Loc)
		diag.Target = r.Target
		d.add(diag)
	}
}
