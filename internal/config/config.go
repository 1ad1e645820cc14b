// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the daemon tunables from an HCL (or JSON) file.
//
// Example:
//
//	poll_interval   = "30s"
//	flood_min       = 10
//	ban_timeout     = "1h"
//	synner_max_time = "15m"
//	forget_factor   = 0.5
//
//	blacklist {
//	  backend = "ipset"
//	  tool    = "/usr/sbin/ipset"
//	  set     = "synflood"
//	}
package config

import (
	"time"

	"grimm.is/synguard/internal/install"
	"grimm.is/synguard/internal/ledger"
	"grimm.is/synguard/internal/procnet"
)

// Blacklist backends.
const (
	BackendIPSet    = "ipset"
	BackendNFTables = "nftables"
)

// Defaults for every tunable.
const (
	DefaultPollInterval      = 30 * time.Second
	DefaultFloodMin          = 10
	DefaultBanTimeout        = time.Hour
	DefaultSynnerMaxTime     = 15 * time.Minute
	DefaultForgetFactor      = 0.5
	DefaultTool              = "ipset"
	DefaultSet               = "synflood"
	DefaultToolTimeout       = 5 * time.Second
	DefaultNotMemberExitCode = 1
	DefaultNFTFamily         = "inet"
	DefaultNFTTable          = "filter"
	DefaultLogLevel          = "info"
)

// Config holds the tunables. They are fixed for the process lifetime.
type Config struct {
	PollInterval    string  `hcl:"poll_interval,optional"`
	FloodMin        int     `hcl:"flood_min,optional"`
	BanTimeout      string  `hcl:"ban_timeout,optional"`
	SynnerMaxTime   string  `hcl:"synner_max_time,optional"`
	ForgetFactor    float64 `hcl:"forget_factor,optional"`
	ConnectionTable string  `hcl:"connection_table,optional"`
	StateFile       string  `hcl:"state_file,optional"`

	LogFile  string `hcl:"log_file,optional"`
	LogLevel string `hcl:"log_level,optional"`
	LogJSON  bool   `hcl:"log_json,optional"`

	// MetricsFile, if set, receives Prometheus text-format metrics after
	// every cycle (node_exporter textfile collector).
	MetricsFile string `hcl:"metrics_file,optional"`

	// GeoIPDB, if set, is a MaxMind country database used to add the
	// source country to ban and dump log lines.
	GeoIPDB string `hcl:"geoip_db,optional"`

	Blacklist *Blacklist `hcl:"blacklist,block"`

	poll, ban, synnerMax time.Duration
}

// Blacklist configures the enforcement set.
type Blacklist struct {
	Backend string `hcl:"backend,optional"`
	Set     string `hcl:"set,optional"`

	// ipset backend
	Tool              string `hcl:"tool,optional"`
	Timeout           string `hcl:"timeout,optional"`
	NotMemberExitCode int    `hcl:"not_member_exit_code,optional"`
	CreateSet         bool   `hcl:"create_set,optional"`

	// nftables backend
	NFTFamily string `hcl:"nft_family,optional"`
	NFTTable  string `hcl:"nft_table,optional"`

	timeout time.Duration
}

// Defaults returns a configuration with every tunable at its default.
func Defaults() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	_ = cfg.resolve()
	return cfg
}

// ApplyDefaults fills every zero field. Parse decodes onto Defaults()
// instead, so explicit zeros in a file are kept and rejected.
func (c *Config) ApplyDefaults() {
	if c.PollInterval == "" {
		c.PollInterval = DefaultPollInterval.String()
	}
	if c.FloodMin == 0 {
		c.FloodMin = DefaultFloodMin
	}
	if c.BanTimeout == "" {
		c.BanTimeout = DefaultBanTimeout.String()
	}
	if c.SynnerMaxTime == "" {
		c.SynnerMaxTime = DefaultSynnerMaxTime.String()
	}
	if c.ForgetFactor == 0 {
		c.ForgetFactor = DefaultForgetFactor
	}
	if c.ConnectionTable == "" {
		c.ConnectionTable = procnet.DefaultTable
	}
	if c.StateFile == "" {
		c.StateFile = install.StateFile()
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Blacklist == nil {
		c.Blacklist = &Blacklist{}
	}
	b := c.Blacklist
	if b.Backend == "" {
		b.Backend = BackendIPSet
	}
	if b.Set == "" {
		b.Set = DefaultSet
	}
	if b.Tool == "" {
		b.Tool = DefaultTool
	}
	if b.Timeout == "" {
		b.Timeout = DefaultToolTimeout.String()
	}
	if b.NotMemberExitCode == 0 {
		b.NotMemberExitCode = DefaultNotMemberExitCode
	}
	if b.NFTFamily == "" {
		b.NFTFamily = DefaultNFTFamily
	}
	if b.NFTTable == "" {
		b.NFTTable = DefaultNFTTable
	}
}

// resolve parses duration strings; errors are reported by Validate.
func (c *Config) resolve() error {
	var err error
	if c.poll, err = time.ParseDuration(c.PollInterval); err != nil {
		return err
	}
	if c.ban, err = time.ParseDuration(c.BanTimeout); err != nil {
		return err
	}
	if c.synnerMax, err = time.ParseDuration(c.SynnerMaxTime); err != nil {
		return err
	}
	if c.Blacklist != nil {
		if c.Blacklist.timeout, err = time.ParseDuration(c.Blacklist.Timeout); err != nil {
			return err
		}
	}
	return nil
}

// Poll returns the poll interval.
func (c *Config) Poll() time.Duration { return c.poll }

// BanDuration returns how long a ban lasts without renewed detection.
func (c *Config) BanDuration() time.Duration { return c.ban }

// SynnerMax returns the tolerated duration of steady half-open activity.
func (c *Config) SynnerMax() time.Duration { return c.synnerMax }

// TimeoutDuration returns the per-invocation tool timeout.
func (b *Blacklist) TimeoutDuration() time.Duration { return b.timeout }

// Quantum returns the synner weight added per observed cycle.
func (c *Config) Quantum() float64 { return ledger.Quantum(c.poll, c.synnerMax) }
