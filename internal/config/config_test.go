package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "promptbook", RunE: func(*cobra.Command, []string) error { return nil }}
	AddFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

// isolate keeps the developer's own config files out of the test.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	// t.Chdir requires Go 1.24; equivalent chdir-with-restore for older toolchains.
	prevWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prevWD) })
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load(newCommand(t))
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Empty(t, cfg.Model)
	assert.True(t, cfg.PullMissing)
	assert.True(t, cfg.Watch)
	assert.False(t, cfg.NoAltScreen)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.File)
}

func TestLoadPrecedence(t *testing.T) {
	isolate(t)
	dir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "promptbook.yaml"), []byte(
		"model: from-file\ndata-dir: file-data\nlog-level: debug\nwatch: false\n"), 0o644))
	t.Setenv("PROMPTBOOK_MODEL", "from-env")
	t.Setenv("PROMPTBOOK_PULL_MISSING", "false")

	cfg, err := Load(newCommand(t, "--data-dir", "flag-data"))
	require.NoError(t, err)

	assert.Equal(t, "flag-data", cfg.DataDir)
	assert.Equal(t, "from-env", cfg.Model)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.PullMissing)
	assert.False(t, cfg.Watch)
	assert.Equal(t, "promptbook.yaml", filepath.Base(cfg.File))
}

func TestLoadExplicitConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: openai\napi-key: secret\n"), 0o644))

	cfg, err := Load(newCommand(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "secret", cfg.APIKey)
}

func TestLoadRejectsBadValues(t *testing.T) {
	isolate(t)
	_, err := Load(newCommand(t, "--provider", "gemini"))
	assert.ErrorContains(t, err, "unknown provider")

	_, err = Load(newCommand(t, "--log-level", "loud"))
	assert.ErrorContains(t, err, "unknown log level")

	_, err = Load(newCommand(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}
