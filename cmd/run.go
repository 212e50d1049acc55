package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ethanolivertroy/cve-watch/internal/cache"
	"github.com/ethanolivertroy/cve-watch/internal/clients"
	"github.com/ethanolivertroy/cve-watch/internal/logging"
	"github.com/ethanolivertroy/cve-watch/internal/metrics"
	"github.com/ethanolivertroy/cve-watch/internal/models"
	"github.com/ethanolivertroy/cve-watch/internal/notify"
	"github.com/ethanolivertroy/cve-watch/internal/pipeline"
	"github.com/ethanolivertroy/cve-watch/internal/reporter"
	"github.com/ethanolivertroy/cve-watch/internal/store"
)

var (
	flagThreshold   float64
	flagWindow      time.Duration
	flagStore       string
	flagStoreDriver string
	flagFormat      string
	flagOutput      string
	flagNoCache     bool
	flagNoTranslate bool
	flagTimeout     time.Duration
	flagSignalFile  string
	flagMetricsFile string
	flagKEV         bool
	flagClearCache  bool
)

// ErrNoNotifier is returned when no push channel is configured
var ErrNoNotifier = errors.New("no notification channel configured: set SCKEY, notify.slack_webhook or notify.discord_webhook")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch the feed once and alert on new high-severity CVEs",
	Long: `run performs a single monitoring pass: fetch the recent NVD feed (falling
back to the current year's feed), keep entries published within the window
whose score meets the threshold, skip IDs already in the store, persist and
alert the rest, then write the signal file when anything was new.

Schedule it at least as often as the window (hourly for the default 1h) or
entries published in the gap are never alerted.

Exit status is 0 on a completed pass, including one where the feed could not
be fetched, and 2 when configuration is missing or the store fails.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	runCmd.Flags().Float64Var(&flagThreshold, "threshold", 7.0, "Minimum CVSS base score to alert on (0-10)")
	runCmd.Flags().DurationVar(&flagWindow, "window", time.Hour, "Maximum age of a published entry")
	runCmd.Flags().StringVar(&flagStore, "store", "vulns.db", "Store file path, or connection URL for postgres")
	runCmd.Flags().StringVar(&flagStoreDriver, "store-driver", models.StoreSQLite, "Store backend: sqlite, bolt, postgres")
	runCmd.Flags().StringVarP(&flagFormat, "format", "f", "terminal", "Output format: terminal, json, sarif")
	runCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output file path (default: stdout)")
	runCmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "Disable feed caching")
	runCmd.Flags().BoolVar(&flagNoTranslate, "no-translate", false, "Send descriptions untranslated")
	runCmd.Flags().DurationVar(&flagTimeout, "timeout", 15*time.Second, "Timeout for every external call")
	runCmd.Flags().StringVar(&flagSignalFile, "signal-file", "new_vulns.flag", "Signal file written when new vulnerabilities are found")
	runCmd.Flags().StringVar(&flagMetricsFile, "metrics-file", "", "Write Prometheus textfile metrics to this path")
	runCmd.Flags().BoolVar(&flagClearCache, "clear-cache", false, "Remove cached feed downloads before fetching")
	runCmd.Flags().BoolVar(&flagKEV, "kev", false, "Mark alerts for CVEs listed in the CISA KEV catalog")

	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overrides configuration with the flags set on the command line
func applyRunFlags(cmd *cobra.Command, cfg *models.Config) {
	flags := cmd.Flags()
	if flags.Changed("threshold") {
		cfg.Threshold = flagThreshold
	}
	if flags.Changed("window") {
		cfg.Window = flagWindow
	}
	if flags.Changed("store") {
		cfg.Store.Path = flagStore
	}
	if flags.Changed("store-driver") {
		cfg.Store.Driver = flagStoreDriver
	}
	if flags.Changed("format") {
		cfg.OutputFormat = flagFormat
	}
	if flags.Changed("no-cache") {
		cfg.NoCache = flagNoCache
	}
	if flags.Changed("no-translate") {
		cfg.Translate.Enabled = !flagNoTranslate
	}
	if flags.Changed("timeout") {
		cfg.Timeout = flagTimeout
	}
	if flags.Changed("signal-file") {
		cfg.SignalFile = flagSignalFile
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = flagMetricsFile
	}
	if flags.Changed("kev") {
		cfg.KEV.Enabled = flagKEV
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	notifier := notify.FromConfig(cfg)
	if len(notifier.Notifiers) == 0 {
		return ErrNoNotifier
	}

	logger, err := logging.New(cfg.Debug, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting vulnerability monitoring",
		zap.Float64("threshold", cfg.Threshold),
		zap.Duration("window", cfg.Window),
		zap.String("notifier", notifier.Name()),
	)

	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open dedup store", zap.Error(err))
		return err
	}
	defer st.Close()

	feedCache := openFeedCache(cfg, flagClearCache, logger)

	deps := pipeline.Deps{
		Feed:       clients.NewFeedClient(cfg, feedCache),
		Store:      st,
		Translator: clients.NewTranslateClient(cfg),
		Notifier:   notifier,
		Metrics:    metrics.NewMetrics(),
	}
	if cfg.KEV.Enabled {
		deps.KEV = clients.NewKEVClient(cfg, feedCache)
	}

	p := pipeline.New(cfg, logger, deps)

	summary, runErr := p.Run(ctx)
	if summary != nil {
		output, err := reporter.Get(cfg.OutputFormat).Report(summary)
		if err != nil {
			return fmt.Errorf("failed to generate report: %w", err)
		}
		if err := writeOutput(flagOutput, output); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("run aborted: %w", runErr)
	}
	return nil
}

// openFeedCache returns the feed cache, or nil when caching is disabled or
// the cache directory is unusable. reset empties it first.
func openFeedCache(cfg *models.Config, reset bool, logger *zap.Logger) *cache.Cache {
	if cfg.NoCache {
		return nil
	}

	c, err := cache.New("cve-watch", cfg.CacheTTL)
	if err != nil {
		logger.Warn("Feed cache unavailable", zap.Error(err))
		return nil
	}

	if reset {
		if err := c.Clear(); err != nil {
			logger.Warn("Failed to clear feed cache", zap.String("dir", c.Dir), zap.Error(err))
		} else {
			logger.Info("Cleared feed cache", zap.String("dir", c.Dir))
		}
	}
	return c
}
