// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command synguard watches the kernel TCP table for half-open connection
// floods and keeps offending IPv4 sources in a blacklist set.
package main

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"grimm.is/synguard/cmd"
	"grimm.is/synguard/internal/brand"
	"grimm.is/synguard/internal/config"
	"grimm.is/synguard/internal/daemon"
	"grimm.is/synguard/internal/errors"
	"grimm.is/synguard/internal/install"
)

var (
	configFile string
	pidFile    string

	rootCmd = &cobra.Command{
		Use:           brand.BinaryName,
		Short:         "SYN flood mitigation daemon",
		Version:       brand.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, args []string) error {
			return c.Help()
		},
	}
)

// tunableFlags are the run/start/check flags that override file values.
type tunableFlags struct {
	pollInterval    string
	floodMin        int
	banTimeout      string
	synnerMaxTime   string
	forgetFactor    float64
	connectionTable string
	stateFile       string
	logFile         string
	logLevel        string
	logJSON         bool
	metricsFile     string
	geoipDB         string
	backend         string
	tool            string
	set             string
}

func (f *tunableFlags) register(c *cobra.Command) {
	fs := c.Flags()
	fs.StringVar(&f.pollInterval, "poll-interval", "", "seconds between connection table snapshots (e.g. 30s)")
	fs.IntVar(&f.floodMin, "flood-min", 0, "half-open connections in one snapshot that trigger an immediate ban")
	fs.StringVar(&f.banTimeout, "ban-timeout", "", "how long a ban lasts without renewed detection")
	fs.StringVar(&f.synnerMaxTime, "synner-max-time", "", "tolerated duration of steady half-open activity")
	fs.Float64Var(&f.forgetFactor, "forget-factor", 0, "decay rate of synner weight, in (0,1)")
	fs.StringVar(&f.connectionTable, "connection-table", "", "connection table to read")
	fs.StringVar(&f.stateFile, "state-file", "", "state file")
	fs.StringVar(&f.logFile, "log-file", "", "log file (default stderr)")
	fs.StringVar(&f.logLevel, "log-level", "", "trace, debug, info, warn or error")
	fs.BoolVar(&f.logJSON, "log-json", false, "log in JSON")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "Prometheus textfile to write after every cycle")
	fs.StringVar(&f.geoipDB, "geoip-db", "", "MaxMind country database for annotating bans")
	fs.StringVar(&f.backend, "backend", "", "blacklist backend: ipset or nftables")
	fs.StringVar(&f.tool, "ipset", "", "ipset command, e.g. \"sudo -n ipset\"")
	fs.StringVar(&f.set, "set", "", "blacklist set name")
}

// apply copies every flag the user set onto cfg.
func (f *tunableFlags) apply(c *cobra.Command, cfg *config.Config) {
	changed := c.Flags().Changed
	if changed("poll-interval") {
		cfg.PollInterval = f.pollInterval
	}
	if changed("flood-min") {
		cfg.FloodMin = f.floodMin
	}
	if changed("ban-timeout") {
		cfg.BanTimeout = f.banTimeout
	}
	if changed("synner-max-time") {
		cfg.SynnerMaxTime = f.synnerMaxTime
	}
	if changed("forget-factor") {
		cfg.ForgetFactor = f.forgetFactor
	}
	if changed("connection-table") {
		cfg.ConnectionTable = f.connectionTable
	}
	if changed("state-file") {
		cfg.StateFile = f.stateFile
	}
	if changed("log-file") {
		cfg.LogFile = f.logFile
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-json") {
		cfg.LogJSON = f.logJSON
	}
	if changed("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
	if changed("geoip-db") {
		cfg.GeoIPDB = f.geoipDB
	}
	if changed("backend") {
		cfg.Blacklist.Backend = f.backend
	}
	if changed("ipset") {
		cfg.Blacklist.Tool = f.tool
	}
	if changed("set") {
		cfg.Blacklist.Set = f.set
	}
}

// loadConfig reads --config, or the default config file when present,
// and applies flag overrides. It returns the file actually used.
func (f *tunableFlags) loadConfig(c *cobra.Command) (*config.Config, string, error) {
	path := configFile
	if path == "" {
		if _, err := os.Stat(install.ConfigFile()); err == nil {
			path = install.ConfigFile()
		}
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, path, err
	}
	f.apply(c, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func newRunCmd() *cobra.Command {
	var flags tunableFlags
	c := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, _, err := flags.loadConfig(c)
			if err != nil {
				return err
			}
			return cmd.RunDaemon(cfg, pidFile)
		},
	}
	flags.register(c)
	return c
}

func newStartCmd() *cobra.Command {
	var flags tunableFlags
	c := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, path, err := flags.loadConfig(c)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			// Pass the original flags through rather than the merged config.
			var pass []string
			if path != "" {
				pass = append(pass, "--config", path)
			}
			c.LocalNonPersistentFlags().Visit(func(fl *pflag.Flag) {
				pass = append(pass, "--"+fl.Name+"="+fl.Value.String())
			})
			return cmd.RunStart(pidFile, cfg.LogFile, pass)
		},
	}
	flags.register(c)
	return c
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.RunStop(pidFile)
		},
	}
}

func newSignalCmd(use, short string, command daemon.Command) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.RunSignal(pidFile, command)
		},
	}
}

func newStateCmd() *cobra.Command {
	var flags tunableFlags
	c := &cobra.Command{
		Use:   "state",
		Short: "Print the persisted ledgers as YAML",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, _, err := flags.loadConfig(c)
			if err != nil {
				return err
			}
			return cmd.RunState(cfg.StateFile, c.OutOrStdout())
		},
	}
	flags.register(c)
	return c
}

func newCheckCmd() *cobra.Command {
	var flags tunableFlags
	c := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and show derived values",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, path, err := flags.loadConfig(c)
			if err != nil {
				return err
			}
			return cmd.RunCheck(cfg, path, c.OutOrStdout())
		},
	}
	flags.register(c)
	return c
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "configuration file (default "+install.ConfigFile()+" if present)")
	pf.StringVar(&pidFile, "pid-file", "", "PID file and run lock (default "+install.PIDFile()+")")

	rootCmd.AddCommand(
		newRunCmd(),
		newStartCmd(),
		newStopCmd(),
		newSignalCmd("reopen", "Make the daemon reopen its log file", daemon.CommandReopenLog),
		newSignalCmd("trace", "Toggle trace logging on the daemon", daemon.CommandToggleTrace),
		newSignalCmd("dump", "Make the daemon log its ledgers", daemon.CommandDump),
		newStateCmd(),
		newCheckCmd(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", brand.BinaryName, err)
		attrs := errors.GetAttributes(err)
		for _, k := range slices.Sorted(maps.Keys(attrs)) {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", k, attrs[k])
		}
		os.Exit(1)
	}
}
