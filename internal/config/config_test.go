package config

import (
	"os"
	"path/filepath"
	"testing"
)

// mockEnv creates an environment lookup function from a map.
func mockEnv(env map[string]string) func(string) string {
	return func(key string) string {
		return env[key]
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig() returned nil")
	}
	if cfg.Platform != PlatformGitHub {
		t.Errorf("DefaultConfig() Platform = %q, want %q", cfg.Platform, PlatformGitHub)
	}
	if cfg.ConflictStrategy != ConflictManual {
		t.Errorf("DefaultConfig() ConflictStrategy = %q, want %q", cfg.ConflictStrategy, ConflictManual)
	}
	if !cfg.AutoSync {
		t.Error("DefaultConfig() AutoSync should be true")
	}
	if cfg.GitHub.Concurrency != 5 {
		t.Errorf("DefaultConfig() GitHub.Concurrency = %d, want 5", cfg.GitHub.Concurrency)
	}
	if cfg.GitHub.Auth != AuthCLI {
		t.Errorf("DefaultConfig() GitHub.Auth = %q, want %q", cfg.GitHub.Auth, AuthCLI)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
platform: github
autoSync: false
conflictStrategy: theirs
github:
  owner: acme
  repo: widgets
  auth: token
  labels:
    spec: "type:spec"
    plan: ["type:plan", "needs-review"]
    common: "synced"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadWithEnv(configPath, mockEnv(nil))
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}

	if cfg.AutoSync {
		t.Error("LoadWithEnv() AutoSync should be false")
	}
	if cfg.ConflictStrategy != ConflictTheirs {
		t.Errorf("LoadWithEnv() ConflictStrategy = %q, want %q", cfg.ConflictStrategy, ConflictTheirs)
	}
	if cfg.GitHub.Owner != "acme" || cfg.GitHub.Repo != "widgets" {
		t.Errorf("LoadWithEnv() GitHub = %+v, want owner=acme repo=widgets", cfg.GitHub)
	}
	if got := cfg.GitHub.Labels["spec"]; len(got) != 1 || got[0] != "type:spec" {
		t.Errorf("LoadWithEnv() Labels[spec] = %v, want [type:spec]", got)
	}
	if got := cfg.GitHub.Labels["plan"]; len(got) != 2 || got[0] != "type:plan" || got[1] != "needs-review" {
		t.Errorf("LoadWithEnv() Labels[plan] = %v, want [type:plan needs-review]", got)
	}
	// Concurrency wasn't set in the file; LoadWithEnv should fill in the default.
	if cfg.GitHub.Concurrency != 5 {
		t.Errorf("LoadWithEnv() GitHub.Concurrency = %d, want default 5", cfg.GitHub.Concurrency)
	}
}

func TestLoadEnvOverridesToken(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(`github:
  token: "file_token"
`), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	env := mockEnv(map[string]string{"GH_TOKEN": "env_token"})
	cfg, err := LoadWithEnv(configPath, env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}
	if cfg.GitHub.Token != "env_token" {
		t.Errorf("LoadWithEnv() Token = %q, want %q (env override)", cfg.GitHub.Token, "env_token")
	}
}

func TestLoadFallsBackToGithubToken(t *testing.T) {
	t.Parallel()
	env := mockEnv(map[string]string{
		"GITHUB_TOKEN":    "fallback_token",
		"XDG_CONFIG_HOME": t.TempDir(),
	})
	cfg, err := LoadWithEnv("", env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}
	if cfg.GitHub.Token != "fallback_token" {
		t.Errorf("Token = %q, want %q", cfg.GitHub.Token, "fallback_token")
	}
}

func TestLoadNoConfigFileUsesDefaults(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	cfg, err := LoadWithEnv("", mockEnv(map[string]string{"XDG_CONFIG_HOME": tmpDir}))
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}
	if cfg.ConflictStrategy != ConflictManual {
		t.Errorf("LoadWithEnv() without file should use default ConflictStrategy, got %q", cfg.ConflictStrategy)
	}
	if cfg.GitHub.Concurrency != 5 {
		t.Errorf("LoadWithEnv() without file should use default Concurrency, got %d", cfg.GitHub.Concurrency)
	}
}

func TestLoadExplicitMissingPathErrors(t *testing.T) {
	t.Parallel()
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "does-not-exist.yaml"), mockEnv(nil))
	if err == nil {
		t.Error("LoadWithEnv() with an explicit missing path should error")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	invalidContent := `
platform: [this is invalid
`
	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := LoadWithEnv(configPath, mockEnv(nil))
	if err == nil {
		t.Error("LoadWithEnv() with invalid YAML should return error")
	}
}

func TestGetConfigPathXDG(t *testing.T) {
	t.Parallel()
	tmpDir := "/custom/config/path"

	path := defaultConfigPathWithEnv(mockEnv(map[string]string{"XDG_CONFIG_HOME": tmpDir}))
	expected := filepath.Join(tmpDir, "specsync", "config.yaml")
	if path != expected {
		t.Errorf("defaultConfigPathWithEnv() = %q, want %q", path, expected)
	}
}

func TestGetConfigPathFallback(t *testing.T) {
	t.Parallel()
	path := defaultConfigPathWithEnv(mockEnv(nil))
	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".config", "specsync", "config.yaml")
	if path != expected {
		t.Errorf("defaultConfigPathWithEnv() = %q, want %q", path, expected)
	}
}
