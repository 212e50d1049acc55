package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ethanolivertroy/cve-watch/internal/config"
	"github.com/ethanolivertroy/cve-watch/internal/models"
)

var (
	flagConfig  string
	flagDebug   bool
	flagLogFile string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cve-watch",
	Short: "Alert on newly published high-severity CVEs from the NVD feed",
	Long: `cve-watch polls the NVD CVE 2.0 JSON feed and pushes an alert for every
vulnerability published within the recency window whose CVSS base score is at
or above the threshold. Each vulnerability is alerted at most once: alerted
IDs are kept in a durable store shared by every run.

Configuration is read from cve-watch.toml (or --config), a .env file and
CVEWATCH_* environment variables, in increasing precedence. Flags override
all of them.

Examples:
  # One monitoring pass, pushing to ServerChan
  SCKEY=SCT123 cve-watch run

  # Lower the threshold and emit a JSON summary
  cve-watch run --threshold 6.5 --format json

  # Show what has been alerted so far
  cve-watch list --limit 20`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: ./cve-watch.toml if present)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Also append log lines to this file")
}

// loadConfig resolves configuration and applies the persistent flags
func loadConfig(cmd *cobra.Command) (*models.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Debug = flagDebug
	}
	if flags.Changed("log-file") {
		cfg.LogFile = flagLogFile
	}
	return cfg, nil
}

func writeOutput(path string, output []byte) error {
	if path == "" {
		fmt.Print(string(output))
		return nil
	}
	if err := os.WriteFile(path, output, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Report written to %s\n", path)
	return nil
}
