// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package ledger

import (
	"iter"
	"maps"
	"math"
	"slices"
	"time"

	"grimm.is/synguard/internal/netutil"
)

// FloodWeight is the weight above which a synner is treated as a flooder.
const FloodWeight = 1.0

// Quantum is the share of the tolerated synner duration consumed by one poll.
func Quantum(pollInterval, maxSynnerTime time.Duration) float64 {
	if maxSynnerTime <= 0 {
		return 0
	}
	return float64(pollInterval) / float64(maxSynnerTime)
}

// weightTolerance bounds the rounding error of adding quantum until it
// reaches FloodWeight: one ulp of 2.0 per addition, capped at half a
// quantum. n quanta of 1/n then compare equal to 1, and fully decayed
// weights compare equal to 0.
func weightTolerance(quantum float64) float64 {
	if quantum <= 0 {
		return 0
	}
	steps := math.Ceil(FloodWeight/quantum) + 1
	return math.Min(steps*0x1p-51, quantum/2)
}

// SynnerLedger tracks a decaying suspicion weight per address.
// Observed addresses gain one quantum per cycle; unobserved ones lose
// quantum*forget. Weight is not capped.
type SynnerLedger struct {
	quantum float64
	forget  float64
	tol     float64
	weights map[netutil.IPv4]float64
}

// NewSynnerLedger creates an empty ledger.
func NewSynnerLedger(quantum, forgetFactor float64) *SynnerLedger {
	return &SynnerLedger{
		quantum: quantum,
		forget:  forgetFactor,
		tol:     weightTolerance(quantum),
		weights: make(map[netutil.IPv4]float64),
	}
}

// SynnerUpdate summarises one Update call.
type SynnerUpdate struct {
	// Annoying lists, in ascending order, observed addresses whose weight now exceeds FloodWeight.
	Annoying  []netutil.IPv4
	Forgotten []netutil.IPv4
}

// Update applies one cycle of observations.
func (l *SynnerLedger) Update(counts Counts) SynnerUpdate {
	var res SynnerUpdate

	for addr, w := range l.weights {
		if counts[addr] > 0 {
			continue
		}
		w -= l.quantum * l.forget
		if w <= l.tol {
			delete(l.weights, addr)
			res.Forgotten = append(res.Forgotten, addr)
			continue
		}
		l.weights[addr] = w
	}

	for addr, n := range counts {
		if n <= 0 {
			continue
		}
		w := l.weights[addr] + l.quantum
		l.weights[addr] = w
		if w > FloodWeight+l.tol {
			res.Annoying = append(res.Annoying, addr)
		}
	}

	slices.Sort(res.Annoying)
	slices.Sort(res.Forgotten)
	return res
}

// Weight returns the current weight of addr.
func (l *SynnerLedger) Weight(addr netutil.IPv4) (float64, bool) {
	w, ok := l.weights[addr]
	return w, ok
}

func (l *SynnerLedger) Len() int {
	return len(l.weights)
}

// Quantum returns the per-cycle increment.
func (l *SynnerLedger) Quantum() float64 {
	return l.quantum
}

// All yields every tracked address in ascending order.
func (l *SynnerLedger) All() iter.Seq2[netutil.IPv4, float64] {
	return func(yield func(netutil.IPv4, float64) bool) {
		for _, addr := range slices.Sorted(maps.Keys(l.weights)) {
			if !yield(addr, l.weights[addr]) {
				return
			}
		}
	}
}

// Snapshot returns a copy of the weights.
func (l *SynnerLedger) Snapshot() map[netutil.IPv4]float64 {
	return maps.Clone(l.weights)
}

// Restore replaces the weights with a persisted copy. Non-positive
// weights are dropped.
func (l *SynnerLedger) Restore(weights map[netutil.IPv4]float64) {
	l.weights = make(map[netutil.IPv4]float64, len(weights))
	for addr, w := range weights {
		if w > l.tol {
			l.weights[addr] = w
		}
	}
}
