// Package config loads the daemon configuration and external pattern
// category files from TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/AsabiAlgo/masterdashboard/internal/status"
)

// ConfigFileName is the default daemon configuration file.
const ConfigFileName = "dashd.toml"

// Config is the daemon's TOML configuration.
type Config struct {
	Engine  EngineConfig  `toml:"engine"`
	Web     WebConfig     `toml:"web"`
	Logging LoggingConfig `toml:"logging"`
	History HistoryConfig `toml:"history"`

	// PatternDir holds extra pattern category files (*.toml), one category
	// per file. Watched for hot reload.
	PatternDir string `toml:"pattern_dir"`
}

// EngineConfig tunes the classification engine.
type EngineConfig struct {
	// IdleTimeoutSecs before a silent working session reverts to idle.
	IdleTimeoutSecs int `toml:"idle_timeout_secs"`

	// WindowBytes is the per-session match window capacity.
	WindowBytes int `toml:"window_bytes"`

	// EvalIntervalMS is the minimum spacing between evaluations per session.
	EvalIntervalMS int `toml:"eval_interval_ms"`

	// EvalMinBytes forces an evaluation after this many buffered bytes.
	EvalMinBytes int `toml:"eval_min_bytes"`

	// EvalBudgetMS bounds one evaluation round across all rules.
	EvalBudgetMS int `toml:"eval_budget_ms"`
}

// WebConfig tunes the HTTP/WebSocket surface.
type WebConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// LoggingConfig mirrors logging.Config in TOML form.
type LoggingConfig struct {
	Dir       string `toml:"dir"`
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	MaxSizeMB int    `toml:"max_size_mb"`
	PprofAddr string `toml:"pprof_addr"`
}

// HistoryConfig controls the optional transition history sink.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	DBPath  string `toml:"db_path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			IdleTimeoutSecs: 30,
			WindowBytes:     8 * 1024,
			EvalIntervalMS:  100,
			EvalMinBytes:    2 * 1024,
			EvalBudgetMS:    20,
		},
		Web:     WebConfig{ListenAddr: "127.0.0.1:8431"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads path and overlays it on the defaults. A missing file returns
// the defaults without error; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.History.Enabled && cfg.History.DBPath == "" {
		cfg.History.DBPath = filepath.Join(filepath.Dir(path), "history.db")
	}
	return cfg, nil
}

// EngineSettings converts the TOML engine section to status.EngineConfig.
func (c *Config) EngineSettings() status.EngineConfig {
	return status.EngineConfig{
		IdleTimeout: time.Duration(c.Engine.IdleTimeoutSecs) * time.Second,
		Matcher: status.MatcherConfig{
			WindowBytes:     c.Engine.WindowBytes,
			MinEvalInterval: time.Duration(c.Engine.EvalIntervalMS) * time.Millisecond,
			MinEvalBytes:    c.Engine.EvalMinBytes,
			EvalBudget:      time.Duration(c.Engine.EvalBudgetMS) * time.Millisecond,
		},
	}
}

// patternFile is the TOML shape of an external category file:
//
//	name = "my-tools"
//	version = 1
//
//	[[rule]]
//	id = "my-tools/build-start"
//	pattern = "^Build started"
//	shell = "all"
//	status = "working"
//	priority = 20
//	enabled = true
type patternFile struct {
	Name    string                 `toml:"name"`
	Version int                    `toml:"version"`
	Rules   []status.StatusPattern `toml:"rule"`
}

// LoadPatternFile parses one category file. The category name defaults to
// the file's base name without extension, and every rule id must be
// namespaced under it.
func LoadPatternFile(path string) (status.Category, error) {
	var pf patternFile
	data, err := os.ReadFile(path)
	if err != nil {
		return status.Category{}, fmt.Errorf("read pattern file: %w", err)
	}
	if err := toml.Unmarshal(data, &pf); err != nil {
		return status.Category{}, fmt.Errorf("parse pattern file %s: %w", path, err)
	}
	if pf.Name == "" {
		pf.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	for _, r := range pf.Rules {
		if !strings.HasPrefix(r.ID, pf.Name+"/") {
			return status.Category{}, fmt.Errorf("pattern file %s: rule id %q must start with %q", path, r.ID, pf.Name+"/")
		}
	}
	return status.Category{Name: pf.Name, Version: pf.Version, Rules: pf.Rules}, nil
}

// LoadPatternDir parses every *.toml category file in dir, sorted by name.
// A missing directory yields no categories.
func LoadPatternDir(dir string) ([]status.Category, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pattern dir: %w", err)
	}
	var cats []status.Category
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		cat, err := LoadPatternFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		cats = append(cats, cat)
	}
	return cats, nil
}
