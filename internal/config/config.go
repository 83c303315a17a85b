// Package config defines the parsed configuration shape the sync core
// consumes. Discovery of the config file on disk and environment
// interpolation are kept here only because the CLI entrypoint needs
// somewhere to load from; the core itself only ever sees an already
// loaded *SyncConfig value (spec.md §1 Non-goals).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConflictStrategy selects how the engine resolves a spec/remote conflict.
type ConflictStrategy string

const (
	ConflictManual      ConflictStrategy = "manual"
	ConflictTheirs      ConflictStrategy = "theirs"
	ConflictOurs        ConflictStrategy = "ours"
	ConflictInteractive ConflictStrategy = "interactive"
)

// Platform selects which adapter family a SyncConfig targets.
type Platform string

const (
	PlatformGitHub Platform = "github"
	PlatformJira   Platform = "jira"
	PlatformAsana  Platform = "asana"
)

// AuthMode selects how the reference GitHub adapter authenticates.
type AuthMode string

const (
	AuthCLI   AuthMode = "cli"
	AuthToken AuthMode = "token"
	AuthApp   AuthMode = "app"
)

// SyncConfig is the tracker-neutral shape described in spec.md §6.
// The loader populates it once per command; the engine treats it as
// immutable thereafter.
type SyncConfig struct {
	Platform         Platform         `yaml:"platform"`
	AutoSync         bool             `yaml:"autoSync"`
	ConflictStrategy ConflictStrategy `yaml:"conflictStrategy"`
	GitHub           GitHubConfig     `yaml:"github"`
}

// GitHubConfig is the per-platform block for the reference adapter.
type GitHubConfig struct {
	Owner       string              `yaml:"owner"`
	Repo        string              `yaml:"repo"`
	Auth        AuthMode            `yaml:"auth"`
	Token       string              `yaml:"token"`
	Labels      map[string]LabelSet `yaml:"labels"`
	Assignees   []string            `yaml:"assignees"`
	Milestone   int                 `yaml:"milestone"`
	Concurrency int                 `yaml:"concurrency"`
}

// LabelSet accepts either a single label string or an ordered list in
// YAML (spec.md §3 SyncConfig.labels) and always normalizes to a slice.
type LabelSet []string

func (l *LabelSet) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = LabelSet{s}
		return nil
	case yaml.SequenceNode:
		var s []string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = LabelSet(s)
		return nil
	default:
		return fmt.Errorf("labels: unsupported YAML node kind %v", value.Kind)
	}
}

// DefaultConfig returns a SyncConfig with spec.md's documented defaults.
func DefaultConfig() *SyncConfig {
	return &SyncConfig{
		Platform:         PlatformGitHub,
		AutoSync:         true,
		ConflictStrategy: ConflictManual,
		GitHub: GitHubConfig{
			Auth:        AuthCLI,
			Concurrency: 5,
		},
	}
}

// Load loads configuration using the real environment. An empty path
// falls back to the XDG-style default location.
func Load(path string) (*SyncConfig, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment lookup
// function, so tests can inject isolated values without mutating the
// real process environment.
func LoadWithEnv(path string, getenv func(string) string) (*SyncConfig, error) {
	cfg := DefaultConfig()

	resolved := path
	if resolved == "" {
		resolved = defaultConfigPathWithEnv(getenv)
	}

	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case path != "":
		// An explicitly requested path that doesn't exist is an error;
		// falling back to defaults is only acceptable for the implicit path.
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	if token := getenv("GH_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	} else if token := getenv("GITHUB_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	}

	if cfg.GitHub.Concurrency <= 0 {
		cfg.GitHub.Concurrency = 5
	}

	return cfg, nil
}

func defaultConfigPathWithEnv(getenv func(string) string) string {
	if xdgConfig := getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "specsync", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "specsync", "config.yaml")
}
