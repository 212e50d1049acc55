package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// DefaultFile is read when present and no file is named explicitly
const DefaultFile = "cve-watch.toml"

// EnvPrefix prefixes every environment override
const EnvPrefix = "CVEWATCH_"

// Load builds the configuration from defaults, an optional TOML file, a
// .env file and the process environment, in increasing precedence.
// A named file that cannot be read is an error; the default file is optional.
func Load(cfgFile string) (*models.Config, error) {
	config := models.DefaultConfig()

	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	path := cfgFile
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, config); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := applyEnv(config); err != nil {
		return nil, err
	}

	return config, nil
}

type envSetter func(c *models.Config, v string) error

var envOverrides = []struct {
	key string
	set envSetter
}{
	{"THRESHOLD", floatVar(func(c *models.Config) *float64 { return &c.Threshold })},
	{"WINDOW", durationVar(func(c *models.Config) *time.Duration { return &c.Window })},
	{"TIMEOUT", durationVar(func(c *models.Config) *time.Duration { return &c.Timeout })},
	{"FEED_BASE_URL", stringVar(func(c *models.Config) *string { return &c.FeedBaseURL })},
	{"CACHE_TTL", durationVar(func(c *models.Config) *time.Duration { return &c.CacheTTL })},
	{"NO_CACHE", boolVar(func(c *models.Config) *bool { return &c.NoCache })},
	{"STORE_DRIVER", stringVar(func(c *models.Config) *string { return &c.Store.Driver })},
	{"STORE_PATH", stringVar(func(c *models.Config) *string { return &c.Store.Path })},
	{"SERVERCHAN_KEY", stringVar(func(c *models.Config) *string { return &c.Notify.ServerChanKey })},
	{"SLACK_WEBHOOK", stringVar(func(c *models.Config) *string { return &c.Notify.SlackWebhook })},
	{"DISCORD_WEBHOOK", stringVar(func(c *models.Config) *string { return &c.Notify.DiscordWebhook })},
	{"TRANSLATE", boolVar(func(c *models.Config) *bool { return &c.Translate.Enabled })},
	{"TRANSLATE_URL", stringVar(func(c *models.Config) *string { return &c.Translate.URL })},
	{"TRANSLATE_TARGET", stringVar(func(c *models.Config) *string { return &c.Translate.Target })},
	{"KEV", boolVar(func(c *models.Config) *bool { return &c.KEV.Enabled })},
	{"KEV_URL", stringVar(func(c *models.Config) *string { return &c.KEV.URL })},
	{"OUTPUT", stringVar(func(c *models.Config) *string { return &c.OutputFormat })},
	{"SIGNAL_FILE", stringVar(func(c *models.Config) *string { return &c.SignalFile })},
	{"METRICS_FILE", stringVar(func(c *models.Config) *string { return &c.MetricsFile })},
	{"DEBUG", boolVar(func(c *models.Config) *bool { return &c.Debug })},
	{"LOG_FILE", stringVar(func(c *models.Config) *string { return &c.LogFile })},
}

func applyEnv(config *models.Config) error {
	// SCKEY is the variable name ServerChan documents for its send key
	if v, ok := lookupEnv("SCKEY"); ok {
		config.Notify.ServerChanKey = v
	}

	for _, o := range envOverrides {
		v, ok := lookupEnv(EnvPrefix + o.key)
		if !ok {
			continue
		}
		if err := o.set(config, v); err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, o.key, err)
		}
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, true
	}
	return "", false
}

func stringVar(field func(*models.Config) *string) envSetter {
	return func(c *models.Config, v string) error {
		*field(c) = v
		return nil
	}
}

func floatVar(field func(*models.Config) *float64) envSetter {
	return func(c *models.Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func boolVar(field func(*models.Config) *bool) envSetter {
	return func(c *models.Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationVar(field func(*models.Config) *time.Duration) envSetter {
	return func(c *models.Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}
