// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package blacklist is the only place that talks to the enforcement set.
// Two backends exist: IPSet shells out to the ipset tool, NFTables edits
// an nftables set over netlink.
package blacklist

import (
	"context"

	"grimm.is/synguard/internal/config"
	"grimm.is/synguard/internal/errors"
	"grimm.is/synguard/internal/logging"
	"grimm.is/synguard/internal/netutil"
)

// Gateway manipulates one named blacklist set.
//
// Add must tolerate an already-present address. Test distinguishes
// absent (false, nil) from failure (false, err).
type Gateway interface {
	Add(ctx context.Context, addr netutil.IPv4) error
	Remove(ctx context.Context, addr netutil.IPv4) error
	Test(ctx context.Context, addr netutil.IPv4) (bool, error)
	// Ensure prepares the set at startup, where the backend supports it.
	Ensure(ctx context.Context) error
	String() string
}

// New builds the gateway selected by cfg.Backend.
func New(cfg config.Blacklist, logger *logging.Logger) (Gateway, error) {
	if logger == nil {
		logger = logging.WithComponent("blacklist")
	}
	switch cfg.Backend {
	case config.BackendIPSet, "":
		g, err := NewIPSet(IPSetConfig{
			Command:           cfg.Tool,
			Set:               cfg.Set,
			Timeout:           cfg.TimeoutDuration(),
			NotMemberExitCode: cfg.NotMemberExitCode,
			CreateSet:         cfg.CreateSet,
		}, logger)
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.BackendNFTables:
		g, err := NewNFTables(NFTablesConfig{
			Family: cfg.NFTFamily,
			Table:  cfg.NFTTable,
			Set:    cfg.Set,
		}, logger)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	return nil, errors.Errorf(errors.KindValidation, "unknown blacklist backend %q", cfg.Backend)
}
