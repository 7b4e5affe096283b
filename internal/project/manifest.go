// Package project loads the kernel manifest quill.toml: host-level
// settings for the REPL, evaluator and caches. Compiler options live in
// quill.json and are handled by the option resolver, not here.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ManifestName is the kernel manifest file, searched upward from the
// working directory. Absence is fine: defaults apply.
const ManifestName = "quill.toml"

type Manifest struct {
	Path   string // "" when defaults are in use
	Config Config
}

type Config struct {
	Kernel KernelConfig `toml:"kernel"`
	Cache  CacheConfig  `toml:"cache"`
	Eval   EvalConfig   `toml:"eval"`
}

type KernelConfig struct {
	Prompt     string `toml:"prompt"`
	ShowSource bool   `toml:"show_source"`
}

type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type EvalConfig struct {
	TimeoutMS int `toml:"timeout_ms"`
}

// DefaultConfig returns the manifest defaults used when no quill.toml
// exists.
func DefaultConfig() Config {
	return Config{
		Kernel: KernelConfig{Prompt: "In", ShowSource: true},
	}
}

// Load finds and parses the manifest. The bool reports whether a file was
// found; parse failures of a found file are real errors.
func Load(startDir string) (*Manifest, bool, error) {
	path, found, err := findManifest(startDir)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return &Manifest{Config: DefaultConfig()}, false, nil
	}
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, true, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	return &Manifest{Path: path, Config: cfg}, true, nil
}

func findManifest(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}
