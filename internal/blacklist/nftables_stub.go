// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package blacklist

import (
	"grimm.is/synguard/internal/errors"
	"grimm.is/synguard/internal/logging"
)

// NFTablesConfig configures the nftables backend (Linux only).
type NFTablesConfig struct {
	Family string
	Table  string
	Set    string
}

// NewNFTables is a stub for non-Linux platforms.
func NewNFTables(cfg NFTablesConfig, logger *logging.Logger) (Gateway, error) {
	return nil, errors.New(errors.KindUnavailable, "nftables backend is only supported on linux")
}
