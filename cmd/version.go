package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethanolivertroy/cve-watch/internal/reporter"
)

// Set at build time with -ldflags "-X github.com/ethanolivertroy/cve-watch/cmd.version=..."
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cve-watch %s\n", version)
	},
}

func init() {
	reporter.Version = version
	rootCmd.AddCommand(versionCmd)
}
