package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AsabiAlgo/masterdashboard/internal/status"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Engine.IdleTimeoutSecs)
	assert.Equal(t, "127.0.0.1:8431", cfg.Web.ListenAddr)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dashd.toml", `
pattern_dir = "/etc/dashd/patterns"

[engine]
idle_timeout_secs = 45
eval_interval_ms = 250

[web]
listen_addr = "0.0.0.0:9000"

[history]
enabled = true
db_path = "/var/lib/dashd/history.db"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.Engine.IdleTimeoutSecs)
	assert.Equal(t, "0.0.0.0:9000", cfg.Web.ListenAddr)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "/etc/dashd/patterns", cfg.PatternDir)
	// Untouched sections keep their defaults.
	assert.Equal(t, 8*1024, cfg.Engine.WindowBytes)

	settings := cfg.EngineSettings()
	assert.Equal(t, 45*time.Second, settings.IdleTimeout)
	assert.Equal(t, 250*time.Millisecond, settings.Matcher.MinEvalInterval)
}

func TestLoadDefaultsHistoryPathNextToConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "dashd.toml", `
[history]
enabled = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, filepath.Join(dir, "history.db"), cfg.History.DBPath)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dashd.toml", "[engine\nbroken")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadPatternFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "my-tools.toml", `
version = 2

[[rule]]
id = "my-tools/deploy-start"
name = "deploy started"
shell = "all"
pattern = "Deploying to [a-z-]+"
status = "working"
priority = 20
enabled = true

[[rule]]
id = "my-tools/deploy-failed"
shell = "all"
pattern = "Deploy failed"
status = "error"
priority = 60
enabled = true
`)
	cat, err := LoadPatternFile(path)
	require.NoError(t, err)
	assert.Equal(t, "my-tools", cat.Name)
	assert.Equal(t, 2, cat.Version)
	require.Len(t, cat.Rules, 2)
	assert.Equal(t, status.StatusWorking, cat.Rules[0].Status)
	assert.Equal(t, 60, cat.Rules[1].Priority)

	// The parsed category loads into a registry as-is.
	r := status.NewRegistry()
	require.NoError(t, r.LoadCategory(cat.Name, cat.Rules))
	assert.Equal(t, 2, r.Len())
}

func TestLoadPatternFileRejectsForeignIDs(t *testing.T) {
	path := writeFile(t, t.TempDir(), "my-tools.toml", `
[[rule]]
id = "other/rule"
shell = "all"
pattern = "x"
status = "working"
priority = 1
enabled = true
`)
	_, err := LoadPatternFile(path)
	assert.Error(t, err)
}

func TestLoadPatternDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "alpha.toml", `
[[rule]]
id = "alpha/one"
shell = "all"
pattern = "one"
status = "working"
priority = 1
enabled = true
`)
	writeFile(t, dir, "ignored.txt", "not a pattern file")

	cats, err := LoadPatternDir(dir)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "alpha", cats[0].Name)

	// Missing directory is not an error.
	cats, err = LoadPatternDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, cats)
}
