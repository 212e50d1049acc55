package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// chdir runs the test from an empty directory so no stray .env or
// cve-watch.toml is picked up
func chdir(t *testing.T) string {
	dir := t.TempDir()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)
	t.Setenv("SCKEY", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7.0, cfg.Threshold)
	assert.Equal(t, time.Hour, cfg.Window)
	assert.Equal(t, models.StoreSQLite, cfg.Store.Driver)
	assert.Equal(t, "vulns.db", cfg.Store.Path)
	assert.Equal(t, "new_vulns.flag", cfg.SignalFile)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
threshold = 8.5
window = "2h"
output = "json"

[store]
driver = "bolt"
path = "/var/lib/cve-watch/vulns.bolt"

[notify]
slack_webhook = "https://hooks.slack.example/T0"
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8.5, cfg.Threshold)
	assert.Equal(t, 2*time.Hour, cfg.Window)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, models.StoreBolt, cfg.Store.Driver)
	assert.Equal(t, "https://hooks.slack.example/T0", cfg.Notify.SlackWebhook)
	assert.Equal(t, 15*time.Second, cfg.Timeout, "unset keys keep defaults")
}

func TestLoad_DefaultFilePickedUp(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte("threshold = 9.0\n"), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9.0, cfg.Threshold)
}

func TestLoad_MissingNamedFile(t *testing.T) {
	chdir(t)
	_, err := Load("does-not-exist.toml")
	assert.Error(t, err)
}

func TestLoad_Env(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte("threshold = 9.0\n"), 0644))

	t.Setenv("CVEWATCH_THRESHOLD", "6.5")
	t.Setenv("CVEWATCH_WINDOW", "90m")
	t.Setenv("CVEWATCH_TRANSLATE", "false")
	t.Setenv("SCKEY", "SCT-from-env")
	t.Setenv("CVEWATCH_KEV", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 6.5, cfg.Threshold, "environment overrides the file")
	assert.Equal(t, 90*time.Minute, cfg.Window)
	assert.False(t, cfg.Translate.Enabled)
	assert.Equal(t, "SCT-from-env", cfg.Notify.ServerChanKey)
	assert.True(t, cfg.KEV.Enabled)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CVEWATCH_STORE_PATH=from-dotenv.db\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("CVEWATCH_STORE_PATH") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.db", cfg.Store.Path)
}

func TestLoad_InvalidEnv(t *testing.T) {
	chdir(t)
	t.Setenv("CVEWATCH_WINDOW", "soon")

	_, err := Load("")
	assert.ErrorContains(t, err, "CVEWATCH_WINDOW")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *models.Config)
	}{
		{"threshold too high", func(c *models.Config) { c.Threshold = 11 }},
		{"negative threshold", func(c *models.Config) { c.Threshold = -1 }},
		{"zero window", func(c *models.Config) { c.Window = 0 }},
		{"zero timeout", func(c *models.Config) { c.Timeout = 0 }},
		{"no feed", func(c *models.Config) { c.FeedBaseURL = "" }},
		{"unknown driver", func(c *models.Config) { c.Store.Driver = "mysql" }},
		{"no store path", func(c *models.Config) { c.Store.Path = "" }},
		{"unknown output", func(c *models.Config) { c.OutputFormat = "xml" }},
		{"kev without url", func(c *models.Config) { c.KEV.Enabled = true; c.KEV.URL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := models.DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
