package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/committer/internal/config"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	app.ErrWriter = &buf
	err := app.Run(context.Background(), append([]string{"committer"}, args...))
	return buf.String(), err
}

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvAPIKey, "")
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func printedSettings(t *testing.T, out string) config.Settings {
	t.Helper()
	var s config.Settings
	require.NoError(t, yaml.Unmarshal([]byte(out), &s), out)
	return s
}

func TestConfigCommandFileValues(t *testing.T) {
	path := writeSettings(t, "api_key: sk-ant-abcdef123456\nmodel: claude-test\nscopes: [api, cli]\nlocal:\n  temperature: 0.5\n")

	out, err := runApp(t, "--config", path, "config")
	require.NoError(t, err)
	s := printedSettings(t, out)

	assert.Equal(t, "sk-a****", config.String(s.APIKey))
	assert.NotContains(t, out, "abcdef123456")
	assert.Equal(t, "claude-test", config.String(s.Model))
	assert.Equal(t, []string{"api", "cli"}, s.Scopes)
	require.NotNil(t, s.MaxTokens)
	assert.Equal(t, 1000, *s.MaxTokens)
	require.NotNil(t, s.Local.Temperature)
	assert.InDelta(t, 0.5, *s.Local.Temperature, 1e-9)
}

func TestConfigCommandFlagsWin(t *testing.T) {
	path := writeSettings(t, "model: claude-test\nscopes: [api]\nuse_local: false\n")

	out, err := runApp(t, "--config", path,
		"--model", "claude-flag",
		"--scope", "docs", "--scope", "deps",
		"--local",
		"--max-length", "42",
		"--no-cache",
		"config")
	require.NoError(t, err)
	s := printedSettings(t, out)

	assert.Equal(t, "claude-flag", config.String(s.Model))
	assert.Equal(t, []string{"docs", "deps"}, s.Scopes)
	require.NotNil(t, s.UseLocal)
	assert.True(t, *s.UseLocal)
	require.NotNil(t, s.Local.MaxLength)
	assert.Equal(t, 42, *s.Local.MaxLength)
	require.NotNil(t, s.Local.UseCache)
	assert.False(t, *s.Local.UseCache)
}

func TestConfigCommandRejectsUnknownKeys(t *testing.T) {
	path := writeSettings(t, "modle: typo\n")

	_, err := runApp(t, "--config", path, "config")
	require.Error(t, err)
}

func TestBadLogFormat(t *testing.T) {
	path := writeSettings(t, "")

	_, err := runApp(t, "--config", path, "--log-format", "xml", "config")
	require.ErrorContains(t, err, "xml")
}

func TestVersionCommand(t *testing.T) {
	path := writeSettings(t, "")

	out, err := runApp(t, "--config", path, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "version:    "), out)
}
