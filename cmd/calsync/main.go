// Command calsync keeps a local date-partitioned document store in sync
// with Google Calendar events and Google Tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "calsync",
	Short: "Two-way sync between a local document store and remote calendars",
	Long: `calsync keeps a local date-partitioned document store in sync with
Google Calendar events and Google Tasks.

Records live as JSON files under date directories (one per day). Each
synced record is linked to its remote counterpart through a metadata
database, and remote records carry a back-link so lost metadata can be
recovered. Conflicting edits are surfaced for explicit resolution, never
merged automatically.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default ~/.config/calsync/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
