// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"io"
	"math"
	"time"

	"gopkg.in/yaml.v3"

	"grimm.is/synguard/internal/config"
	"grimm.is/synguard/internal/geoip"
	"grimm.is/synguard/internal/state"
)

// RunState prints the persisted state as YAML.
func RunState(path string, w io.Writer) error {
	snap, err := state.NewStore(path).Load()
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return err
	}
	return enc.Close()
}

// RunCheck reports the effective configuration and its derived values.
func RunCheck(cfg *config.Config, source string, w io.Writer) error {
	if source == "" {
		source = "built-in defaults"
	}
	q := cfg.Quantum()

	Printer.Fprintf(w, "Configuration OK (%s)\n", source)
	Printer.Fprintf(w, "  poll_interval    %s\n", cfg.Poll())
	Printer.Fprintf(w, "  flood_min        %d\n", cfg.FloodMin)
	Printer.Fprintf(w, "  ban_timeout      %s\n", cfg.BanDuration())
	Printer.Fprintf(w, "  synner_max_time  %s\n", cfg.SynnerMax())
	Printer.Fprintf(w, "  forget_factor    %g\n", cfg.ForgetFactor)
	Printer.Fprintf(w, "  quantum          %.6f\n", q)
	if q > 0 {
		polls := int(math.Floor(1/q+1e-9)) + 1
		Printer.Fprintf(w, "  a steady synner is banned on poll %d (after %s)\n", polls, cfg.Poll()*time.Duration(polls))
	}
	Printer.Fprintf(w, "  blacklist        %s set %q\n", cfg.Blacklist.Backend, cfg.Blacklist.Set)
	Printer.Fprintf(w, "  state_file       %s\n", cfg.StateFile)
	if cfg.GeoIPDB != "" {
		if db, err := geoip.Open(cfg.GeoIPDB); err != nil {
			Printer.Fprintf(w, "Warning: geoip_db: %v\n", err)
		} else {
			db.Close()
			Printer.Fprintf(w, "  geoip_db         %s\n", db.Path())
		}
	}
	for _, warn := range cfg.Warnings() {
		Printer.Fprintf(w, "Warning: %s\n", warn)
	}
	return nil
}
