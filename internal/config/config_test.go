package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path)

	require.NoError(t, cfg.Load())

	_, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultGroupSize, cfg.GroupSize)
	assert.Equal(t, DefaultGroupTimeout, cfg.GroupTimeout)
	assert.Empty(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"endpoint": "http://localhost:8080/generation",
		"model": "qwen-turbo",
		"group_size": 5,
		"group_timeout_sec": 30,
		"port": 9000,
		"cookie": "a=1; b=2"
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := New(path)
	require.NoError(t, cfg.Load())

	assert.Equal(t, "http://localhost:8080/generation", cfg.Endpoint)
	assert.Equal(t, "qwen-turbo", cfg.Model)
	assert.Equal(t, 5, cfg.GroupSize)
	assert.Equal(t, 30*time.Second, cfg.GroupTimeout)
	assert.Equal(t, DefaultBatchTimeout, cfg.BatchTimeout)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "a=1; b=2", cfg.Cookie)
	assert.Equal(t, DefaultSystemPrompt, cfg.SystemPrompt)
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	assert.Error(t, New(path).Load())
}

func TestUpdateCookiePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path)
	require.NoError(t, cfg.UpdateCookie("sid=xyz"))

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, "sid=xyz", reloaded.Cookie)
}

func TestUpdateCookieKeepsChromePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"chrome_binary_path": "/opt/mychrome/chrome"}`), 0o600))

	cfg := New(path)
	require.NoError(t, cfg.Load())
	require.NoError(t, cfg.UpdateCookie("a=b"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"chrome_binary_path": "/opt/mychrome/chrome"`)

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, "/opt/mychrome/chrome", reloaded.ChromeBinaryPath)
	assert.Equal(t, "a=b", reloaded.Cookie)
}

func TestSaveSkipsDetectedChromePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := New(path)
	cfg.ChromeBinaryPath = "/usr/bin/detected-chrome"
	require.NoError(t, cfg.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "chrome_binary_path")
}

func TestValidate(t *testing.T) {
	cfg := New(filepath.Join(t.TempDir(), "config.json"))
	cfg.Endpoint = ""
	cfg.GroupSize = 0
	cfg.BatchTimeout = time.Second
	cfg.Port = 70000

	errs := cfg.Validate()
	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"endpoint", "group_size", "batch_timeout_sec", "port"}, fields)
}
