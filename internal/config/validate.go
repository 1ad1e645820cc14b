// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"grimm.is/synguard/internal/errors"
	"grimm.is/synguard/internal/logging"
	"grimm.is/synguard/internal/validation"
)

var nftFamilies = []string{"inet", "ip", "bridge", "netdev"}

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func positiveDuration(errs *multierror.Error, field, value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return appendField(errs, field, fmt.Sprintf("invalid duration %q", value))
	}
	if d <= 0 {
		return appendField(errs, field, "must be positive")
	}
	return d
}

func appendField(errs *multierror.Error, field, msg string) time.Duration {
	errs.Errors = append(errs.Errors, ValidationError{Field: field, Message: msg})
	return 0
}

// Validate checks every field and reports all problems at once. On success
// the parsed durations become available through the accessors.
func (c *Config) Validate() error {
	errs := new(multierror.Error)

	positiveDuration(errs, "poll_interval", c.PollInterval)
	positiveDuration(errs, "ban_timeout", c.BanTimeout)
	positiveDuration(errs, "synner_max_time", c.SynnerMaxTime)

	if c.FloodMin < 1 {
		appendField(errs, "flood_min", "must be at least 1")
	}
	if c.ForgetFactor <= 0 || c.ForgetFactor >= 1 {
		appendField(errs, "forget_factor", "must be strictly between 0 and 1")
	}
	if c.ConnectionTable == "" {
		appendField(errs, "connection_table", "must not be empty")
	}
	if c.StateFile == "" {
		appendField(errs, "state_file", "must not be empty")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		appendField(errs, "log_level", err.Error())
	}

	if b := c.Blacklist; b == nil {
		appendField(errs, "blacklist", "block is required")
	} else {
		switch b.Backend {
		case BackendIPSet:
			if b.Tool == "" {
				appendField(errs, "blacklist.tool", "must not be empty")
			}
			if b.NotMemberExitCode <= 0 || b.NotMemberExitCode > 255 {
				appendField(errs, "blacklist.not_member_exit_code", "must be between 1 and 255")
			}
		case BackendNFTables:
			if err := validation.ValidateTableName(b.NFTTable); err != nil {
				appendField(errs, "blacklist.nft_table", err.Error())
			}
			if err := validation.ValidateAllowlist(b.NFTFamily, nftFamilies); err != nil {
				appendField(errs, "blacklist.nft_family", err.Error())
			}
		default:
			appendField(errs, "blacklist.backend", fmt.Sprintf("unknown backend %q (want %s or %s)", b.Backend, BackendIPSet, BackendNFTables))
		}
		if err := validation.ValidateSetName(b.Set); err != nil {
			appendField(errs, "blacklist.set", err.Error())
		}
		positiveDuration(errs, "blacklist.timeout", b.Timeout)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return errors.Wrap(err, errors.KindValidation, "invalid configuration")
	}
	return c.resolve()
}

// Warnings reports settings that are valid but probably unintended.
func (c *Config) Warnings() []string {
	var out []string
	if c.synnerMax > 0 && c.poll > c.synnerMax {
		out = append(out, fmt.Sprintf("synner_max_time (%s) is shorter than poll_interval (%s): a single half-open connection triggers a ban", c.synnerMax, c.poll))
	}
	if c.ban > 0 && c.ban < c.poll {
		out = append(out, fmt.Sprintf("ban_timeout (%s) is shorter than poll_interval (%s): bans expire on the next cycle", c.ban, c.poll))
	}
	return out
}
