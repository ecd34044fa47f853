package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/srg/pilotd/pkg/config"
	"github.com/srg/pilotd/pkg/controller"
	"github.com/srg/pilotd/pkg/radio"
	"github.com/srg/pilotd/pkg/radio/goble"
	"github.com/srg/pilotd/pkg/status"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pairing and ranging control loop",
	Long: `Starts BLE advertising and scanning, then runs the control loop until
interrupted. Device status is printed at the configured interval.`,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().Bool("json", false, "Print status snapshots as JSON")
	runCmd.Flags().Bool("no-radio", false, "Run without radio hardware (log-only stacks)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	noRadio, _ := cmd.Flags().GetBool("no-radio")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		ctl       *controller.Controller
		transport *goble.Transport
	)

	uwb := radio.UWB(&radio.NopUWB{Logger: logger})

	if noRadio {
		ctl = controller.New(cfg, &radio.NopBLE{Logger: logger}, uwb, logger)
	} else {
		transport, err = goble.NewTransport(func(ev radio.Event) { ctl.Emit(ev) }, logger)
		if err != nil {
			return err
		}
		ctl = controller.New(cfg, transport, uwb, logger)
	}

	ctl.OnSnapshot(func(snap status.Snapshot) {
		if cfg.StatusFile != "" {
			if err := snap.WriteFile(cfg.StatusFile); err != nil {
				logger.WithError(err).Warn("Failed to publish status snapshot")
			}
		}
		if asJSON {
			if data, err := json.Marshal(snap); err == nil {
				fmt.Println(string(data))
			}
			return
		}
		snap.Render(os.Stdout, true)
	})

	if transport != nil {
		go func() {
			if err := transport.Advertise(ctx, cfg.DeviceName, cfg.AdvertisingInterval); err != nil {
				logger.WithError(err).Error("Advertising stopped")
			}
		}()
		go func() {
			if err := transport.Scan(ctx); err != nil {
				logger.WithError(err).Error("Scanning stopped")
			}
		}()
	}

	err = ctl.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
