package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pilotd",
	Short: "BLE pairing and UWB ranging controller",
	Long: `pilotd advertises over Bluetooth Low Energy, pairs with peer devices
and coordinates Ultra-Wideband ranging sessions against them:

- Advertise and accept pairings from up to 8 peers simultaneously
- Track each peer through connection, session and ranging states
- Classify link quality from ranging measurement stability
- Detect silent peers via heartbeats and retry connections a bounded
  number of times before parking a device in the error state
- Report per-device status snapshots on a fixed interval`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
