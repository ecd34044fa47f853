package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/srg/pilotd/pkg/config"
	"github.com/srg/pilotd/pkg/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last published device status",
	Long: `Reads the snapshot the run command publishes to the status file and
prints it. The run command refreshes the file at the configured status
update interval.`,
	RunE: showStatus,
}

func init() {
	statusCmd.Flags().Bool("json", false, "Print the snapshot as JSON")
}

func showStatus(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.StatusFile == "" {
		return fmt.Errorf("status_file is disabled in the configuration")
	}

	snap, err := status.ReadFile(cfg.StatusFile)
	if err != nil {
		return fmt.Errorf("no status snapshot at %s (is pilotd running?): %w", cfg.StatusFile, err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	snap.Render(os.Stdout, true)
	return nil
}
