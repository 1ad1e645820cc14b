// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"os"

	"grimm.is/synguard/internal/blacklist"
	"grimm.is/synguard/internal/brand"
	"grimm.is/synguard/internal/config"
	"grimm.is/synguard/internal/daemon"
	"grimm.is/synguard/internal/errors"
	"grimm.is/synguard/internal/geoip"
	"grimm.is/synguard/internal/install"
	"grimm.is/synguard/internal/logging"
	"grimm.is/synguard/internal/metrics"
	"grimm.is/synguard/internal/procnet"
	"grimm.is/synguard/internal/state"
)

// NewLogger builds the process logger from the configuration.
func NewLogger(cfg *config.Config) *logging.Logger {
	level, _ := logging.ParseLevel(cfg.LogLevel)
	return logging.New(logging.Config{
		Level:  level,
		Output: os.Stderr,
		File:   cfg.LogFile,
		JSON:   cfg.LogJSON,
	})
}

// RunDaemon runs the detection loop in the foreground until SIGTERM or
// SIGINT. Errors returned here are startup failures.
func RunDaemon(cfg *config.Config, pidPath string) error {
	logger := NewLogger(cfg)
	logging.SetDefault(logger)
	defer logger.Close()

	if pidPath == "" {
		pidPath = install.PIDFile()
	}
	if err := SetProcessName(brand.BinaryName); err != nil {
		logger.Debug("Failed to set process name", "error", err)
	}

	pid, err := AcquirePIDFile(pidPath)
	if err != nil {
		logger.Error("Failed to acquire run lock", errors.LogArgs(err)...)
		return err
	}
	defer func() {
		if err := pid.Release(); err != nil {
			logger.Warn("Failed to remove PID file", "path", pid.Path(), "error", err)
		}
	}()

	for _, w := range cfg.Warnings() {
		logger.Warn("Configuration warning: " + w)
	}

	gateway, err := blacklist.New(*cfg.Blacklist, logger.WithComponent("blacklist"))
	if err != nil {
		logger.Error("Failed to set up blacklist", errors.LogArgs(err)...)
		return err
	}

	opts := daemon.Options{
		Config:  cfg,
		Source:  procnet.NewFileSource(cfg.ConnectionTable),
		Gateway: gateway,
		Store:   state.NewStore(cfg.StateFile),
		Metrics: metrics.New(cfg.MetricsFile),
		Logger:  logger.WithComponent("daemon"),
	}
	if cfg.GeoIPDB != "" {
		db, err := geoip.Open(cfg.GeoIPDB)
		if err != nil {
			logger.Warn("GeoIP database unavailable, bans will not carry a country", errors.LogArgs(err)...)
		} else {
			defer db.Close()
			opts.Countries = db
		}
	}

	d, err := daemon.New(opts)
	if err != nil {
		return err
	}
	if err := d.Restore(); err != nil {
		logger.Error("Failed to load state", errors.LogArgs(err)...)
		return err
	}

	logger.Info("Starting "+brand.Name, "version", brand.Version, "pid", os.Getpid(), "run_id", d.RunID())

	ctx := context.Background()
	stop := d.ForwardSignals(ctx)
	defer stop()

	if err := d.Run(ctx); err != nil {
		return err
	}
	logger.Info(brand.Name + " stopped")
	return nil
}
