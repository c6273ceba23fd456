package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fbgallet/calsync/internal/daemon"
	"github.com/fbgallet/calsync/internal/dashboard"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync daemon",
	Long: `Run calsync as a long-lived daemon.

The daemon runs a full sync cycle on the configured interval, watches the
local store for edits and pushes them to the remote calendar, and runs the
deduplication pass once its 24h cooldown has elapsed.

With --dashboard-port a WebSocket dashboard broadcasts sync results,
surfaced conflicts, and deduplication reports to connected clients.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("dashboard-port")
		interval, _ := cmd.Flags().GetDuration("interval")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := newApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		logger := a.logger
		if a.cfg.LogFile != "" {
			logger = daemon.FileLogger(a.cfg.LogFile)
		}

		if port == 0 {
			port = a.cfg.DashboardPort
		}
		var handler *dashboard.Handler
		if port > 0 {
			server := dashboard.NewServer(&dashboard.Config{Port: port, Logger: logger})
			if err := server.Start(); err != nil {
				return err
			}
			defer server.Stop()
			handler = dashboard.NewHandler(server, logger)
			fmt.Printf("Dashboard: ws://localhost:%d/ws\n", port)
		}

		d, err := daemon.New(a.cfg, a.runner, a.dedups, &daemon.Options{
			SyncInterval: interval,
			Logger:       logger,
			Dashboard:    handler,
		})
		if err != nil {
			return err
		}

		fmt.Println("Daemon running. Press Ctrl+C to stop.")
		return d.Start(ctx)
	},
}

func init() {
	daemonCmd.Flags().Int("dashboard-port", 0, "Serve the WebSocket dashboard on this port (0 = config value)")
	daemonCmd.Flags().Duration("interval", 0, "Full sync interval (0 = config value)")
	rootCmd.AddCommand(daemonCmd)
}
