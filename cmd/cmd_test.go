package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

func TestApplyRunFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().AddFlagSet(runCmd.Flags())
	require.NoError(t, cmd.Flags().Parse([]string{
		"--threshold", "8.5",
		"--window", "30m",
		"--store-driver", "bolt",
		"--no-translate",
	}))
	t.Cleanup(func() {
		for _, name := range []string{"threshold", "window", "store-driver", "no-translate"} {
			f := runCmd.Flags().Lookup(name)
			f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})

	cfg := models.DefaultConfig()
	cfg.Store.Path = "from-config.db"
	applyRunFlags(cmd, cfg)

	assert.Equal(t, 8.5, cfg.Threshold)
	assert.Equal(t, 30*time.Minute, cfg.Window)
	assert.Equal(t, models.StoreBolt, cfg.Store.Driver)
	assert.False(t, cfg.Translate.Enabled)
	assert.Equal(t, "from-config.db", cfg.Store.Path, "unset flags keep configured values")
	assert.Equal(t, "terminal", cfg.OutputFormat)
}

func TestRunRequiresNotifier(t *testing.T) {
	testChdir(t, t.TempDir())
	for _, key := range []string{"SCKEY", "CVEWATCH_SERVERCHAN_KEY", "CVEWATCH_SLACK_WEBHOOK", "CVEWATCH_DISCORD_WEBHOOK"} {
		t.Setenv(key, "")
	}

	rootCmd.SetArgs([]string{"run"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	assert.ErrorIs(t, err, ErrNoNotifier)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	testChdir(t, t.TempDir())
	t.Setenv("CVEWATCH_THRESHOLD", "11")

	rootCmd.SetArgs([]string{"run"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold")
}

func TestOpenFeedCache(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	logger := zaptest.NewLogger(t)
	cfg := models.DefaultConfig()

	c := openFeedCache(cfg, false, logger)
	require.NotNil(t, c)
	assert.Equal(t, "cve-watch", filepath.Base(c.Dir))
	require.NoError(t, c.Set("https://feeds.example/recent", []byte("cached")))

	c = openFeedCache(cfg, false, logger)
	_, ok := c.Get("https://feeds.example/recent")
	assert.True(t, ok, "kept without --clear-cache")

	c = openFeedCache(cfg, true, logger)
	_, ok = c.Get("https://feeds.example/recent")
	assert.False(t, ok, "emptied with --clear-cache")
	entries, err := os.ReadDir(c.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	cfg.NoCache = true
	assert.Nil(t, openFeedCache(cfg, true, logger))
}

// testChdir changes the working directory for the duration of the test
func testChdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
