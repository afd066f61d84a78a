package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jward/maapipe"
	"github.com/jward/maapipe/internal/config"
	"github.com/jward/maapipe/internal/watch"
)

// project is one loaded project directory.
type project struct {
	root  string
	cfg   *config.Config
	iface *maapipe.Interface
}

// openProject loads the project in the directory named by args (default
// ".") with .maapipe.yaml merged under the command-line flags. live keeps
// the configured debounce so file events flush on their own; otherwise the
// returned project is flushed once and never again.
func openProject(ctx context.Context, args []string, live bool) (*project, error) {
	root, err := resolveTargetDir(args)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}

	debounce := cfg.GetDebounce()
	if !live {
		debounce = 0
	}
	opts := []maapipe.Option{
		maapipe.WithLogger(logger),
		maapipe.WithDialect(cfg.GetDialect()),
		maapipe.WithDebounce(debounce),
		maapipe.WithIgnore(cfg.Ignore...),
	}
	if cfg.Manifest != "" {
		opts = append(opts, maapipe.WithManifest(cfg.Manifest))
	}
	if cfg.Resource != "" {
		opts = append(opts, maapipe.WithResource(cfg.Resource))
	}

	iface := maapipe.New(root, watch.OSLoader{}, watch.NewFSWatcher(logger), opts...)
	if err := iface.Load(ctx); err != nil {
		_ = iface.Close()
		return nil, err
	}
	if err := iface.Flush(ctx); err != nil {
		_ = iface.Close()
		return nil, err
	}
	return &project{root: root, cfg: cfg, iface: iface}, nil
}

func (p *project) Close() error {
	return p.iface.Close()
}

// rulesDir is the rule directory from --rules or the config, "" for none.
func (p *project) rulesDir() string {
	return p.cfg.RulesDir(p.root)
}

// diagnose runs the built-in checks plus the configured rule scripts.
func (p *project) diagnose(ctx context.Context) ([]maapipe.Diagnostic, error) {
	snap := p.iface.Snapshot()
	diags := snap.Diagnose()
	if dir := p.rulesDir(); dir != "" {
		custom, err := snap.RunRules(ctx, dir, logger)
		diags = append(diags, custom...)
		if err != nil {
			return diags, err
		}
	}
	return diags, nil
}

// loadConfig reads .maapipe.yaml in root and applies the flags over it.
func loadConfig(root string) (*config.Config, error) {
	cfg, err := config.LoadDir(root)
	if err != nil {
		return nil, err
	}
	if flagDialect != "" {
		cfg.Dialect = flagDialect
	}
	if flagManifest != "" {
		cfg.Manifest = flagManifest
	}
	if flagResource != "" {
		cfg.Resource = flagResource
	}
	if flagRules != "" {
		abs, err := filepath.Abs(flagRules)
		if err != nil {
			return nil, fmt.Errorf("resolving --rules %q: %w", flagRules, err)
		}
		cfg.Rules = abs
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// resolveTargetDir returns the absolute path of the project directory.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}
