package commands

import (
	"fmt"

	"github.com/jra3/specsync/internal/config"
	"github.com/jra3/specsync/internal/engine"
	"github.com/jra3/specsync/internal/github"
	"github.com/jra3/specsync/internal/spec"
	"github.com/jra3/specsync/internal/tracker"
)

// buildEngine loads configuration and constructs the scanner, adapter,
// and engine for one command invocation (spec.md §9 "the process
// entrypoint creates them once").
func buildEngine() (*engine.Engine, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	scanner := spec.New(specRoot)

	var adapter tracker.Adapter
	switch cfg.Platform {
	case config.PlatformGitHub:
		adapter = github.New(cfg.GitHub)
	default:
		return nil, fmt.Errorf("platform %q has no adapter implementation in this build", cfg.Platform)
	}

	return engine.New(scanner, adapter, cfg), nil
}
