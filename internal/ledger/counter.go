// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ledger holds the detection state: the per-cycle half-open counts,
// the decaying synner weights and the set of enforced bans.
package ledger

import (
	"context"
	"slices"

	"grimm.is/synguard/internal/netutil"
	"grimm.is/synguard/internal/procnet"
)

// Counts maps a remote address to the number of half-open connections seen
// from it in one snapshot.
type Counts map[netutil.IPv4]int

// Count reads one snapshot from src and tallies SYN_RECV connections per
// remote address. Other states are ignored. On error no counts are returned.
func Count(ctx context.Context, src procnet.Source) (Counts, error) {
	counts := make(Counts)
	err := src.Scan(ctx, func(rec procnet.Record) bool {
		if rec.State.HalfOpen() {
			counts[rec.Remote.Addr]++
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Floods returns, in ascending order, the addresses whose count reaches min.
func (c Counts) Floods(min int) []netutil.IPv4 {
	var out []netutil.IPv4
	for addr, n := range c {
		if n >= min {
			out = append(out, addr)
		}
	}
	slices.Sort(out)
	return out
}

// Total returns the number of half-open connections in the snapshot.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
