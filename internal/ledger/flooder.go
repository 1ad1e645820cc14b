// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ledger

import (
	"context"
	"iter"
	"maps"
	"slices"
	"time"

	"grimm.is/synguard/internal/netutil"
)

// Enforcer is the external blacklist the ledger keeps in step with.
type Enforcer interface {
	Add(ctx context.Context, addr netutil.IPv4) error
	Remove(ctx context.Context, addr netutil.IPv4) error
	Test(ctx context.Context, addr netutil.IPv4) (bool, error)
}

// Reason says which rule declared an address a flooder.
type Reason string

const (
	ReasonBurst  Reason = "burst"
	ReasonSynner Reason = "synner"
)

// Outcome of a flood declaration.
type Outcome int

const (
	// OutcomeBanned: the address was added to the blacklist and recorded.
	OutcomeBanned Outcome = iota
	// OutcomeExtended: the address was already banned; only the timestamp moved.
	OutcomeExtended
	// OutcomeFailed: the blacklist add failed; nothing was recorded.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBanned:
		return "banned"
	case OutcomeExtended:
		return "extended"
	default:
		return "failed"
	}
}

// FlooderLedger owns the bans believed to be enforced and their freshness.
// A record's presence only means "no need to call Add again"; the external
// set remains the enforcement point.
type FlooderLedger struct {
	enforcer   Enforcer
	banTimeout time.Duration
	bans       map[netutil.IPv4]time.Time
}

// NewFlooderLedger creates an empty ledger.
func NewFlooderLedger(enforcer Enforcer, banTimeout time.Duration) *FlooderLedger {
	return &FlooderLedger{
		enforcer:   enforcer,
		banTimeout: banTimeout,
		bans:       make(map[netutil.IPv4]time.Time),
	}
}

// Declare handles a flood declaration for addr at now. A new flooder is
// added to the blacklist and recorded only if the add succeeds; a known
// flooder just has its ban refreshed.
func (l *FlooderLedger) Declare(ctx context.Context, addr netutil.IPv4, now time.Time) (Outcome, error) {
	if _, ok := l.bans[addr]; ok {
		l.bans[addr] = now
		return OutcomeExtended, nil
	}
	if err := l.enforcer.Add(ctx, addr); err != nil {
		return OutcomeFailed, err
	}
	l.bans[addr] = now
	return OutcomeBanned, nil
}

// Release is the result of expiring one ban.
type Release struct {
	Addr        netutil.IPv4
	BannedSince time.Time
	// Removed is true when a removal was issued and succeeded.
	Removed bool
	// Absent is true when the address had already left the blacklist.
	Absent bool
	// Err is set when the record was retained because the blacklist could
	// not be queried or updated.
	Err error
}

// Dropped reports whether the record left the ledger.
func (r Release) Dropped() bool {
	return r.Err == nil
}

// Expire reconciles every ban older than the ban timeout with the
// blacklist: it tests membership, removes present addresses, and drops the
// record once the address is confirmed gone. Records whose test or removal
// fails are kept for the next sweep.
func (l *FlooderLedger) Expire(ctx context.Context, now time.Time) []Release {
	var out []Release
	for _, addr := range slices.Sorted(maps.Keys(l.bans)) {
		since := l.bans[addr]
		if now.Sub(since) <= l.banTimeout {
			continue
		}

		rel := Release{Addr: addr, BannedSince: since}
		present, err := l.enforcer.Test(ctx, addr)
		switch {
		case err != nil:
			rel.Err = err
		case !present:
			rel.Absent = true
		default:
			if err := l.enforcer.Remove(ctx, addr); err != nil {
				rel.Err = err
			} else {
				rel.Removed = true
			}
		}

		if rel.Dropped() {
			delete(l.bans, addr)
		}
		out = append(out, rel)
	}
	return out
}

// BannedSince returns the ban timestamp of addr.
func (l *FlooderLedger) BannedSince(addr netutil.IPv4) (time.Time, bool) {
	t, ok := l.bans[addr]
	return t, ok
}

func (l *FlooderLedger) Len() int {
	return len(l.bans)
}

// BanTimeout returns the configured ban duration.
func (l *FlooderLedger) BanTimeout() time.Duration {
	return l.banTimeout
}

// All yields every ban in ascending address order.
func (l *FlooderLedger) All() iter.Seq2[netutil.IPv4, time.Time] {
	return func(yield func(netutil.IPv4, time.Time) bool) {
		for _, addr := range slices.Sorted(maps.Keys(l.bans)) {
			if !yield(addr, l.bans[addr]) {
				return
			}
		}
	}
}

// Snapshot returns a copy of the bans.
func (l *FlooderLedger) Snapshot() map[netutil.IPv4]time.Time {
	return maps.Clone(l.bans)
}

// Restore replaces the bans with a persisted copy.
func (l *FlooderLedger) Restore(bans map[netutil.IPv4]time.Time) {
	l.bans = make(map[netutil.IPv4]time.Time, len(bans))
	maps.Copy(l.bans, bans)
}
