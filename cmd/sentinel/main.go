// Command sentinel is the trail-matching network sensor's single
// entry point: it loads configuration, opens the monitored interface,
// starts the background trail updater, and runs the capture loop
// until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sentineltrail/sentinel/internal/capture"
	"github.com/sentineltrail/sentinel/internal/config"
	"github.com/sentineltrail/sentinel/internal/sink"
	"github.com/sentineltrail/sentinel/internal/trail"
	"github.com/sentineltrail/sentinel/internal/update"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Passive network trail-matching sensor",
		Long:  "sentinel watches a network interface and alerts when traffic matches a threat-intel trail snapshot",
		RunE:  run,
	}
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "path to a YAML config file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sentinel: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := sink.EnsureLogDir(cfg.LogDir); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	es := &sink.Sink{Dir: cfg.LogDir, Log: log}
	defer es.Close()

	store := trail.NewStore()
	updater := &update.Updater{
		Store:     store,
		Fetcher:   &update.HTTPFetcher{},
		Server:    cfg.ServerUpdate,
		Period:    time.Duration(cfg.UpdatePeriodSec) * time.Second,
		CachePath: cfg.LogDir + "/trails.json",
		Log:       log,
	}

	loop := &capture.Loop{
		Cfg: capture.Config{
			Interface:  cfg.MonitorInterface,
			Filter:     cfg.CaptureFilter,
			SnapLen:    cfg.SnapLen,
			UseWorkers: cfg.UseMultiprocessing,
			RingSlots:  cfg.BufferLength,
			LogDir:     cfg.LogDir,
		},
		Store: store,
		Sink:  es,
		Log:   log,
	}

	if err := loop.Open(); err != nil {
		return fmt.Errorf("opening capture: %w", err)
	}
	defer loop.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go updater.Run(ctx)

	log.WithField("interface", cfg.MonitorInterface).Info("sentinel: capture started")
	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("capture loop: %w", err)
	}
	log.Info("sentinel: shutdown complete")
	return nil
}
