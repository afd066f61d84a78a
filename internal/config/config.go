// Package config reads the optional per-project .maapipe.yaml file.
package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jward/maapipe/internal/parser"
)

// FileName is the config file looked up next to the manifest.
const FileName = ".maapipe.yaml"

// DefaultDebounce is the flush delay used when the file sets none.
const DefaultDebounce = 200 * time.Millisecond

// Config holds the project settings. Empty fields keep the engine defaults.
type Config struct {
	// Dialect is "framework" or "legacy".
	Dialect string `yaml:"dialect"`
	// Debounce is the flush delay after file events, as a duration string.
	Debounce string `yaml:"debounce"`
	// Manifest is the manifest file name inside the project root.
	Manifest string `yaml:"manifest"`
	// Resource is the resource made active on load.
	Resource string `yaml:"resource"`
	// Rules is the rule script directory, relative to the project root.
	Rules string `yaml:"rules"`
	// Ignore lists glob patterns of pipeline files to skip.
	Ignore []string `yaml:"ignore"`
}

// Load reads the config at path. A missing file yields an empty Config.
// MAAPIPE_RESOURCE and MAAPIPE_RULES override the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDir reads FileName inside root.
func LoadDir(root string) (*Config, error) {
	return Load(filepath.Join(root, FileName))
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MAAPIPE_RESOURCE"); v != "" {
		c.Resource = v
	}
	if v := os.Getenv("MAAPIPE_RULES"); v != "" {
		c.Rules = v
	}
}

// Validate checks the fields that have a fixed syntax.
func (c *Config) Validate() error {
	if c.Dialect != "" {
		if _, ok := parser.ParseDialect(c.Dialect); !ok {
			return fmt.Errorf("unknown dialect %q", c.Dialect)
		}
	}
	if c.Debounce != "" {
		d, err := time.ParseDuration(c.Debounce)
		if err != nil {
			return fmt.Errorf("debounce: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("debounce must not be negative, got %s", d)
		}
	}
	for _, glob := range c.Ignore {
		if _, err := path.Match(glob, ""); err != nil {
			return fmt.Errorf("ignore %q: %w", glob, err)
		}
	}
	return nil
}

// GetDialect returns the configured dialect, framework when unset.
func (c *Config) GetDialect() parser.Dialect {
	d, _ := parser.ParseDialect(c.Dialect)
	return d
}

// GetDebounce returns the configured flush delay.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Debounce)
	if err != nil {
		return DefaultDebounce
	}
	return d
}

// RulesDir returns the rule directory resolved against root, or "" when
// none is configured.
func (c *Config) RulesDir(root string) string {
	if c.Rules == "" || filepath.IsAbs(c.Rules) {
		return c.Rules
	}
	return filepath.Join(root, c.Rules)
}
