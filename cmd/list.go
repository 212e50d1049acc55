package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethanolivertroy/cve-watch/internal/logging"
	"github.com/ethanolivertroy/cve-watch/internal/reporter"
	"github.com/ethanolivertroy/cve-watch/internal/store"
)

var (
	flagListLimit  int
	flagListFormat string
	flagListStore  string
	flagListDriver string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List vulnerabilities that have already been alerted",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVarP(&flagListLimit, "limit", "n", 50, "Maximum records to show (0 for all)")
	listCmd.Flags().StringVarP(&flagListFormat, "format", "f", "terminal", "Output format: terminal, json")
	listCmd.Flags().StringVar(&flagListStore, "store", "vulns.db", "Store file path, or connection URL for postgres")
	listCmd.Flags().StringVar(&flagListDriver, "store-driver", "sqlite", "Store backend: sqlite, bolt, postgres")

	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("store") {
		cfg.Store.Path = flagListStore
	}
	if cmd.Flags().Changed("store-driver") {
		cfg.Store.Driver = flagListDriver
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Debug, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := context.Background()
	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	vulns, err := st.List(ctx, flagListLimit)
	if err != nil {
		return fmt.Errorf("failed to list stored vulnerabilities: %w", err)
	}

	output, err := reporter.RenderList(flagListFormat, vulns)
	if err != nil {
		return err
	}
	return writeOutput("", output)
}
