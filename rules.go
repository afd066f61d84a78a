package maapipe

import (
	"context"

	"go.uber.org/zap"

	"github.com/jward/maapipe/internal/rules"
)

// RunRules runs the rule scripts in dir against the snapshot. Each finding
// becomes a custom-rule diagnostic. Findings of scripts that succeeded are
// returned even when another script failed.
func (s *Snapshot) RunRules(ctx context.Context, dir string, logger *zap.Logger) ([]Diagnostic, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runner := rules.NewRunner(dir, rules.WithLogger(logger))
	findings, err := runner.Run(ctx, s.ruleInput())

	out := make([]Diagnostic, 0, len(findings))
	for _, f := range findings {
		out = append(out, Diagnostic{
			Level:   ruleLevel(f.Level),
			Type:    TypeCustomRule,
			File:    f.File,
			Offset:  f.Offset,
			Length:  f.Length,
			Target:  f.Rule,
			Message: f.Message,
		})
	}
	return out, err
}

func ruleLevel(s string) Level {
	switch s {
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	}
	return LevelWarning
}

// ruleInput flattens the snapshot into the view rule scripts see. Tasks use
// their effective declaration, overrides applied.
func (s *Snapshot) ruleInput() rules.Input {
	in := rules.Input{
		Images:  s.QueryImageList(),
		Locales: s.QueryLocaleKeys(),
	}
	anchors := s.anchorOwners()
	for _, name := range s.QueryTaskList() {
		res := s.ResolveTask(name)
		loc := res.Decl.Loc()
		task := rules.Task{
			Name:   name,
			File:   loc.File,
			Offset: loc.Offset,
			Length: loc.Length,
			Props:  map[string]any{},
		}
		for _, e := range s.successors(name, anchors) {
			task.Next = append(task.Next, e.To)
		}
		for _, p := range res.Props() {
			task.Props[p.Key] = p.Value.Value()
		}
		in.Tasks = append(in.Tasks, task)
	}
	for _, a := range s.QueryAnchorList() {
		in.Anchors = append(in.Anchors, rules.Anchor{Name: a.Name, Task: a.Task})
	}
	return in
}
