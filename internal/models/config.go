package models

import (
	"fmt"
	"time"
)

// Store drivers
const (
	StoreSQLite   = "sqlite"
	StoreBolt     = "bolt"
	StorePostgres = "postgres"
)

// Config holds configuration for a pipeline run
type Config struct {
	// Filtering settings
	Threshold float64       `toml:"threshold"` // Minimum CVSS base score to alert on
	Window    time.Duration `toml:"window"`    // Maximum age of a published entry

	// Feed settings
	FeedBaseURL string        `toml:"feed_base_url"`
	Timeout     time.Duration `toml:"timeout"` // Bound for every external call
	CacheTTL    time.Duration `toml:"cache_ttl"`
	NoCache     bool          `toml:"no_cache"`

	Store     StoreConfig     `toml:"store"`
	Notify    NotifyConfig    `toml:"notify"`
	Translate TranslateConfig `toml:"translate"`
	KEV       KEVConfig       `toml:"kev"`

	// Output settings
	OutputFormat string `toml:"output"`      // "terminal", "json", "sarif"
	SignalFile   string `toml:"signal_file"` // Written only when new records exist
	MetricsFile  string `toml:"metrics_file"`

	// Logging settings
	Debug   bool   `toml:"debug"`
	LogFile string `toml:"log_file"`
}

// StoreConfig selects the dedup store backend
type StoreConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"` // File path, or connection URL for postgres
}

// NotifyConfig holds delivery credentials; an empty value disables the channel
type NotifyConfig struct {
	ServerChanKey  string `toml:"serverchan_key"`
	SlackWebhook   string `toml:"slack_webhook"`
	DiscordWebhook string `toml:"discord_webhook"`
}

// TranslateConfig configures description translation
type TranslateConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Target  string `toml:"target"`
}

// KEVConfig configures marking of new records found in the CISA KEV catalog
type KEVConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Threshold:   7.0,
		Window:      time.Hour,
		FeedBaseURL: "https://nvd.nist.gov/feeds/json/cve/2.0",
		Timeout:     15 * time.Second,
		CacheTTL:    10 * time.Minute,
		Store: StoreConfig{
			Driver: StoreSQLite,
			Path:   "vulns.db",
		},
		Translate: TranslateConfig{
			Enabled: true,
			URL:     "https://aidemo.youdao.com/trans",
			Target:  "zh-CHS",
		},
		KEV: KEVConfig{
			URL: "https://raw.githubusercontent.com/cisagov/kev-data/main/known_exploited_vulnerabilities.json",
		},
		OutputFormat: "terminal",
		SignalFile:   "new_vulns.flag",
	}
}

// Validate reports configuration that makes a run impossible
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 10 {
		return fmt.Errorf("threshold must be within [0, 10], got %v", c.Threshold)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.FeedBaseURL == "" {
		return fmt.Errorf("feed base URL is not configured")
	}
	switch c.Store.Driver {
	case StoreSQLite, StoreBolt, StorePostgres:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store location is not configured")
	}
	if c.KEV.Enabled && c.KEV.URL == "" {
		return fmt.Errorf("KEV catalog URL is not configured")
	}
	switch c.OutputFormat {
	case "terminal", "json", "sarif":
	default:
		return fmt.Errorf("unknown output format %q", c.OutputFormat)
	}
	return nil
}
