// Package config loads the process-wide EngineConfig: the timeouts, caps,
// and thresholds every component treats as an immutable, initialization-time
// knob bundle (SPEC_FULL.md §9 "Global configuration").
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// StringList accepts either a single YAML scalar or a sequence, the same
// scalar-or-list convenience the teacher's wing.yaml fields use for
// single-or-multiple settings.
type StringList []string

// UnmarshalYAML accepts a bare scalar ("go") or a sequence (["go", "json"]).
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*l = StringList{value.Value}
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*l = list
	return nil
}

// EngineConfig bundles every process-wide knob named across SPEC_FULL.md's
// component sections. It is loaded once at startup and never mutated
// afterward; every component takes a copy (or the relevant sub-struct) at
// construction time rather than reading a package-level global.
type EngineConfig struct {
	// Shell Engine (C3)
	Cols           int           `yaml:"cols"`
	Rows           int           `yaml:"rows"`
	Scrollback     int           `yaml:"scrollback"`
	OutputCapBytes int           `yaml:"output_cap_bytes"`
	PendingAfter   time.Duration `yaml:"pending_after"`
	SoftCancelWait time.Duration `yaml:"soft_cancel_wait"`
	HardCancelWait time.Duration `yaml:"hard_cancel_wait"`

	// File I/O & Cache (C4)
	MmapThresholdBytes int64 `yaml:"mmap_threshold_bytes"`
	MaxFileSizeBytes   int64 `yaml:"max_file_size_bytes"`
	MaxImageSizeBytes  int64 `yaml:"max_image_size_bytes"`
	CacheCapacity      int   `yaml:"cache_capacity"`

	// Edit Engine (C5)
	FuzzyThreshold float64    `yaml:"fuzzy_threshold"`
	CheckSyntax    bool       `yaml:"check_syntax"`
	SyntaxLangs    StringList `yaml:"syntax_langs"`

	// Ambient
	LogLevel   string `yaml:"log_level"`
	StateDir   string `yaml:"state_dir"`
	AuditDB    string `yaml:"audit_db"`
	RepoTreeCap int   `yaml:"repo_tree_cap"`
}

// Default returns the built-in knob values, the same defaults named
// throughout SPEC_FULL.md's component sections (80x24, ~5s pending wait,
// 10MB/file, 0.85 fuzzy threshold, etc).
func Default() EngineConfig {
	return EngineConfig{
		Cols:               80,
		Rows:               24,
		Scrollback:         50000,
		OutputCapBytes:     1 << 20,
		PendingAfter:       5 * time.Second,
		SoftCancelWait:     200 * time.Millisecond,
		HardCancelWait:     1 * time.Second,
		MmapThresholdBytes: 256 * 1024,
		MaxFileSizeBytes:   10 * 1024 * 1024,
		MaxImageSizeBytes:  10 * 1024 * 1024,
		CacheCapacity:      64,
		FuzzyThreshold:     0.85,
		CheckSyntax:        true,
		SyntaxLangs:        StringList{"go", "json"},
		LogLevel:           "info",
		RepoTreeCap:        4000,
	}
}

// Load reads an EngineConfig from path (YAML), starting from Default() so a
// partial file only overrides the fields it sets, then applies the
// WCGW_LOG_LEVEL / WCGW_STATE_DIR / WCGW_TIMEOUT_SECONDS environment
// overrides named in SPEC_FULL.md §2. A missing path is not an error — the
// defaults (plus env overrides) are returned as-is.
func Load(path string) (EngineConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return EngineConfig{}, err
			}
		} else if !os.IsNotExist(err) {
			return EngineConfig{}, err
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *EngineConfig) {
	if lvl := os.Getenv("WCGW_LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if dir := os.Getenv("WCGW_STATE_DIR"); dir != "" {
		cfg.StateDir = dir
	}
	if secs := os.Getenv("WCGW_TIMEOUT_SECONDS"); secs != "" {
		if n, err := strconv.Atoi(secs); err == nil {
			cfg.PendingAfter = time.Duration(n) * time.Second
		}
	}
}

// StateDirOrDefault resolves the configured state dir, or
// $XDG_STATE_HOME/wcgw/bash_state / ~/.wcgw/bash_state when unset, mirroring
// the teacher's GetUserConfigDir home-relative dotdir pattern generalized to
// respect XDG when present (SPEC_FULL.md §6).
func (c EngineConfig) StateDirOrDefault() (string, error) {
	if c.StateDir != "" {
		return c.StateDir, nil
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "wcgw", "bash_state"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".wcgw", "bash_state"), nil
}
