package maapipe

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jward/maapipe/internal/content"
	"github.com/jward/maapipe/internal/textpos"
)

// Position is a zero-based line and column.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// PosResolver maps a byte offset in file to a Position. Hosts own the live
// document text, so they supply the mapping.
type PosResolver func(file string, offset int) Position

// TextResolver returns a PosResolver over the text loader serves. Columns
// count UTF-16 code units. Each file is indexed once and unreadable files
// resolve to the origin.
func TextResolver(loader content.Loader) PosResolver {
	var mu sync.Mutex
	cache := map[string]*textpos.Index{}
	return func(file string, offset int) Position {
		mu.Lock()
		x, ok := cache[file]
		if !ok {
			text, _ := loader.Get(file)
			x = textpos.New(text)
			cache[file] = x
		}
		mu.Unlock()
		line, char := x.Position(offset)
		return Position{Line: line, Character: char}
	}
}

// BuildDiagnosticMessage renders diag for display. File names in the text
// are shown relative to root.
func BuildDiagnosticMessage(root string, diag Diagnostic, resolve PosResolver) (start, end Position, brief string) {
	start = resolve(diag.File, diag.Offset)
	end = resolve(diag.File, diag.Offset+diag.Length)

	where := func(loc *Location) string {
		if loc == nil {
			return ""
		}
		p := resolve(loc.File, loc.Offset)
		return fmt.Sprintf("%s:%d:%d", relTo(root, loc.File), p.Line+1, p.Character+1)
	}

	switch diag.Type {
	case TypeConflictTask:
		brief = fmt.Sprintf("Task %s is already declared at %s", diag.Target, where(diag.Previous))
	case TypeDuplicateNext:
		brief = fmt.Sprintf("Task %s appears more than once in this list", diag.Target)
	case TypeUnknownTask:
		brief = fmt.Sprintf("Unknown task %s", diag.Target)
	case TypeUnknownImage:
		brief = fmt.Sprintf("Unknown image %s", diag.Target)
	case TypeImagePathBackslash:
		brief = fmt.Sprintf("Image path uses backslashes, use %s", diag.Suggested)
	case TypeImagePathDotSlash:
		brief = fmt.Sprintf("Image path starts with ./, use %s", diag.Suggested)
	case TypeImagePathMissingPNG:
		brief = fmt.Sprintf("Image path lacks the .png suffix, use %s", diag.Suggested)
	case TypeUnknownAnchor:
		brief = fmt.Sprintf("Unknown anchor %s", diag.Target)
	case TypeUnknownAttr:
		brief = fmt.Sprintf("Unknown attribute %s", diag.Target)
	case TypeUnknownLocale:
		brief = fmt.Sprintf("Locale key %s is not defined in any language", diag.Target)
	case TypeMissingLocale:
		brief = fmt.Sprintf("Locale key %s is missing in %s", diag.Target, strings.Join(diag.Missing, ", "))
	case TypeIntConflictController, TypeIntConflictResource, TypeIntConflictOption, TypeIntConflictTask:
		brief = fmt.Sprintf("%s %s is already declared at %s", entityOf(diag.Type), diag.Target, where(diag.Previous))
	case TypeIntConflictCase:
		brief = fmt.Sprintf("Case %s of option %s is already declared at %s", diag.Target, diag.Option, where(diag.Previous))
	case TypeIntUnknownController, TypeIntUnknownResource, TypeIntUnknownOption:
		brief = fmt.Sprintf("Unknown %s %s", strings.ToLower(entityOf(diag.Type)), diag.Target)
	case TypeIntUnknownCase:
		brief = fmt.Sprintf("Option %s has no case %s", diag.Option, diag.Target)
	case TypeIntUnknownInput:
		brief = fmt.Sprintf("Option %s has no input %s", diag.Option, diag.Target)
	case TypeIntSwitchNameInvalid:
		brief = fmt.Sprintf("Switch option %s may only have cases Yes and No, got %s", diag.Option, diag.Target)
	case TypeIntSwitchShouldFixed:
		brief = fmt.Sprintf("Switch case %s should be spelled %s", diag.Target, diag.Suggested)
	case TypeIntSwitchMissing:
		var missing []string
		if diag.MissingYes {
			missing = append(missing, "Yes")
		}
		if diag.MissingNo {
			missing = append(missing, "No")
		}
		brief = fmt.Sprintf("Switch option %s is missing case %s", diag.Option, strings.Join(missing, " and "))
	case TypeIntUnknownEntryTask:
		brief = fmt.Sprintf("Entry task %s is not declared by the active resource", diag.Target)
	case TypeIntOverrideUnknown:
		brief = fmt.Sprintf("Override of %s patches no declared task", diag.Target)
		if diag.Message != "" {
			brief += " (" + diag.Message + ")"
		}
	case TypeIntUnknownLanguage:
		brief = fmt.Sprintf("Language file %s cannot be read", diag.Target)
	case TypeCustomRule:
		brief = diag.Message
	default:
		brief = string(diag.Type)
	}
	return start, end, brief
}

func entityOf(t DiagnosticType) string {
	name := string(t)
	if i := strings.LastIndexByte(name, '-'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func relTo(root, file string) string {
	if rel, err := filepath.Rel(root, file); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return file
}
