// Package rules runs project-specific lint rules written as Risor scripts
// against an indexed pipeline.
package rules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"go.uber.org/zap"
)

// Extension is the file suffix of rule scripts.
const Extension = ".risor"

// Task is the view of one resolved task handed to scripts.
type Task struct {
	Name   string
	File   string
	Offset int
	Length int
	// Next lists the targets of the task's outgoing transitions.
	Next []string
	// Props are the effective properties as plain JSON values.
	Props map[string]any
}

// Anchor pairs an anchor with the task that declares it.
type Anchor struct {
	Name string
	Task string
}

// Input is everything a rule can inspect.
type Input struct {
	Tasks   []Task
	Images  []string
	Anchors []Anchor
	Locales []string
}

// Finding is one problem reported by a rule through report().
type Finding struct {
	Rule    string
	File    string
	Offset  int
	Length  int
	Level   string
	Message string
}

// Runner loads rule scripts from a directory or an fs.FS.
type Runner struct {
	dir    string
	fsys   fs.FS
	logger *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithFS loads scripts from fsys instead of the directory. Imports resolve
// inside fsys as well.
func WithFS(fsys fs.FS) Option {
	return func(r *Runner) {
		r.fsys = fsys
	}
}

// WithLogger sets the logger behind the scripts' log object.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a Runner for the scripts in dir.
func NewRunner(dir string, opts ...Option) *Runner {
	r := &Runner{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Scripts lists the rule scripts, sorted. A missing directory has none.
func (r *Runner) Scripts() ([]string, error) {
	var names []string
	if r.fsys != nil {
		entries, err := fs.ReadDir(r.fsys, ".")
		if err != nil {
			return nil, fmt.Errorf("rules: listing scripts: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() && path.Ext(e.Name()) == Extension {
				names = append(names, e.Name())
			}
		}
		return names, nil
	}

	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rules: listing scripts in %s: %w", r.dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == Extension {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Run executes every script against in. Scripts run in name order and all
// of them run even when one fails; the error then reports how many failed.
func (r *Runner) Run(ctx context.Context, in Input) ([]Finding, error) {
	names, err := r.Scripts()
	if err != nil {
		return nil, err
	}
	var findings []Finding
	var errs []error
	for _, name := range names {
		src, err := r.load(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		found, err := r.RunSource(ctx, strings.TrimSuffix(name, Extension), src, in)
		findings = append(findings, found...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return findings, fmt.Errorf("rules: %d of %d script(s) failed: %w", len(errs), len(names), errs[0])
	}
	return findings, nil
}

// RunSource executes one script. rule names the findings it reports.
func (r *Runner) RunSource(ctx context.Context, rule, source string, in Input) ([]Finding, error) {
	var mu sync.Mutex
	var findings []Finding
	report := func(f Finding) {
		mu.Lock()
		defer mu.Unlock()
		f.Rule = rule
		findings = append(findings, f)
	}

	globals := r.buildGlobals(in, report)
	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, source, opts...); err != nil {
		return findings, fmt.Errorf("rules: script %s: %w", rule, err)
	}
	return findings, nil
}

func (r *Runner) load(name string) (string, error) {
	if r.fsys != nil {
		data, err := fs.ReadFile(r.fsys, name)
		if err != nil {
			return "", fmt.Errorf("rules: loading script %s from fs: %w", name, err)
		}
		return string(data), nil
	}
	full := filepath.Join(r.dir, name)
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("rules: loading script %s: %w", full, err)
	}
	return string(data), nil
}

// buildImporter lets scripts import shared helpers from the rules directory.
func (r *Runner) buildImporter(globals map[string]any) importer.Importer {
	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}
	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: names,
			SourceFS:    r.fsys,
			Extensions:  []string{Extension},
		})
	}
	if r.dir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: names,
			SourceDir:   r.dir,
			Extensions:  []string{Extension},
		})
	}
	return nil
}
