package rules

import (
	"context"
	"fmt"
	"slices"

	"github.com/risor-io/risor/object"
	"go.uber.org/zap"
)

var levels = []string{"error", "warning", "info"}

// buildGlobals constructs the globals exposed to a rule script.
func (r *Runner) buildGlobals(in Input, report func(Finding)) map[string]any {
	return map[string]any{
		"tasks":   tasksToList(in.Tasks),
		"images":  stringsToList(in.Images),
		"anchors": anchorsToList(in.Anchors),
		"locales": stringsToList(in.Locales),
		"report":  makeReportFn(report),
		"log":     mustProxy(&logObject{logger: r.logger}),
	}
}

// makeReportFn creates the "report" builtin.
//
// report({file, offset, length, level, message})
func makeReportFn(report func(Finding)) *object.Builtin {
	return object.NewBuiltin("report", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("report", 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("report: %v", err)
		}
		f := Finding{
			File:    getString(m, "file"),
			Offset:  getInt(m, "offset"),
			Length:  getInt(m, "length"),
			Level:   getStringDefault(m, "level", "warning"),
			Message: getString(m, "message"),
		}
		if f.Message == "" {
			return object.Errorf("report: message is required")
		}
		if !slices.Contains(levels, f.Level) {
			return object.Errorf("report: level must be one of error, warning, info, got %q", f.Level)
		}
		report(f)
		return object.Nil
	})
}

func tasksToList(tasks []Task) object.Object {
	results := make([]object.Object, 0, len(tasks))
	for _, t := range tasks {
		results = append(results, object.NewMap(map[string]object.Object{
			"name":   object.NewString(t.Name),
			"file":   object.NewString(t.File),
			"offset": object.NewInt(int64(t.Offset)),
			"length": object.NewInt(int64(t.Length)),
			"next":   stringsToList(t.Next),
			"props":  toObject(t.Props),
		}))
	}
	return object.NewList(results)
}

func anchorsToList(anchors []Anchor) object.Object {
	results := make([]object.Object, 0, len(anchors))
	for _, a := range anchors {
		results = append(results, object.NewMap(map[string]object.Object{
			"name": object.NewString(a.Name),
			"task": object.NewString(a.Task),
		}))
	}
	return object.NewList(results)
}

func stringsToList(values []string) object.Object {
	results := make([]object.Object, 0, len(values))
	for _, v := range values {
		results = append(results, object.NewString(v))
	}
	return object.NewList(results)
}

// toObject converts plain JSON values to Risor objects. Whole numbers
// become ints so scripts can compare them with integer literals.
func toObject(v any) object.Object {
	switch val := v.(type) {
	case nil:
		return object.Nil
	case string:
		return object.NewString(val)
	case bool:
		return object.NewBool(val)
	case float64:
		if val == float64(int64(val)) {
			return object.NewInt(int64(val))
		}
		return object.NewFloat(val)
	case []any:
		items := make([]object.Object, 0, len(val))
		for _, item := range val {
			items = append(items, toObject(item))
		}
		return object.NewList(items)
	case map[string]any:
		m := make(map[string]object.Object, len(val))
		for k, item := range val {
			m[k] = toObject(item)
		}
		return object.NewMap(m)
	default:
		return object.NewString(fmt.Sprintf("%v", val))
	}
}

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	if s, ok := m[key].(*object.String); ok {
		return s.Value()
	}
	return ""
}

func getStringDefault(m map[string]object.Object, key, def string) string {
	if v := getString(m, key); v != "" {
		return v
	}
	return def
}

func getInt(m map[string]object.Object, key string) int {
	switch v := m[key].(type) {
	case *object.Int:
		return int(v.Value())
	case *object.Float:
		return int(v.Value())
	}
	return 0
}

// logObject provides log.Info/Warn/Error methods for scripts.
type logObject struct {
	logger *zap.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg, zap.String("source", "rules"))
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg, zap.String("source", "rules"))
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg, zap.String("source", "rules"))
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("rules: proxy error: %v", err))
	}
	return p
}
