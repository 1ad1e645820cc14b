// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package daemon runs the detection loop. A Daemon owns both ledgers and
// is only ever driven from one goroutine; operator requests arrive on its
// command channel and are handled between cycles.
package daemon

import (
	"context"
	"time"

	"github.com/google/uuid"

	"grimm.is/synguard/internal/clock"
	"grimm.is/synguard/internal/config"
	"grimm.is/synguard/internal/errors"
	"grimm.is/synguard/internal/ledger"
	"grimm.is/synguard/internal/logging"
	"grimm.is/synguard/internal/metrics"
	"grimm.is/synguard/internal/netutil"
	"grimm.is/synguard/internal/procnet"
	"grimm.is/synguard/internal/state"
)

const commandQueue = 16

// Gateway is the blacklist the daemon enforces bans through.
type Gateway interface {
	ledger.Enforcer
	Ensure(ctx context.Context) error
	String() string
}

// CountryLookup maps an address to a country code, "" when unknown.
type CountryLookup interface {
	Country(addr netutil.IPv4) string
}

// Options wires a Daemon. Config, Source, Gateway and Store are required.
// Countries is optional.
type Options struct {
	Config    *config.Config
	Source    procnet.Source
	Gateway   Gateway
	Store     *state.Store
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
	Clock     clock.Clock
	Countries CountryLookup
}

// Daemon is the detection context: tunables, collaborators and the two
// ledgers.
type Daemon struct {
	cfg     *config.Config
	source  procnet.Source
	gateway Gateway
	store   *state.Store
	metrics *metrics.Metrics
	logger  *logging.Logger
	clock   clock.Clock
	geo     CountryLookup
	runID   string

	synners  *ledger.SynnerLedger
	flooders *ledger.FlooderLedger

	commands chan Command
}

// New builds a Daemon with empty ledgers. Call Restore to load the
// persisted state.
func New(opts Options) (*Daemon, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New(errors.KindInternal, "daemon: config is required")
	case opts.Source == nil:
		return nil, errors.New(errors.KindInternal, "daemon: connection table source is required")
	case opts.Gateway == nil:
		return nil, errors.New(errors.KindInternal, "daemon: blacklist gateway is required")
	case opts.Store == nil:
		return nil, errors.New(errors.KindInternal, "daemon: state store is required")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(opts.Config.MetricsFile)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("daemon")
	}

	runID := uuid.NewString()
	gw := instrumented{Gateway: opts.Gateway, m: opts.Metrics}
	return &Daemon{
		cfg:      opts.Config,
		source:   opts.Source,
		gateway:  gw,
		store:    opts.Store,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With("run_id", runID),
		clock:    opts.Clock,
		geo:      opts.Countries,
		runID:    runID,
		synners:  ledger.NewSynnerLedger(opts.Config.Quantum(), opts.Config.ForgetFactor),
		flooders: ledger.NewFlooderLedger(gw, opts.Config.BanDuration()),
		commands: make(chan Command, commandQueue),
	}, nil
}

// RunID identifies this daemon instance in logs.
func (d *Daemon) RunID() string { return d.runID }

// Synners exposes the synner ledger.
func (d *Daemon) Synners() *ledger.SynnerLedger { return d.synners }

// Flooders exposes the flooder ledger.
func (d *Daemon) Flooders() *ledger.FlooderLedger { return d.flooders }

// Restore loads the persisted ledgers. A missing state file starts empty;
// an unreadable or corrupt one is an error and the ledgers stay untouched.
func (d *Daemon) Restore() error {
	snap, err := d.store.Load()
	if err != nil {
		return err
	}
	d.flooders.Restore(snap.Flooders)
	d.synners.Restore(snap.Synners)
	d.refreshGauges()
	d.logger.Info("Restored state",
		"path", d.store.Path(), "flooders", d.flooders.Len(), "synners", d.synners.Len())
	return nil
}

// Declaration records one flood declaration made during a cycle.
type Declaration struct {
	Addr    netutil.IPv4
	Reason  ledger.Reason
	Outcome ledger.Outcome
	Err     error
}

// CycleReport summarizes one cycle.
type CycleReport struct {
	// Skipped is set when the connection table could not be read; Err
	// then holds the cause and nothing else happened.
	Skipped bool
	Err     error

	HalfOpen     int
	Declarations []Declaration
	Forgotten    []netutil.IPv4
	Releases     []ledger.Release
	SaveErr      error
}

// RunCycle runs one detection cycle to completion: count, score, declare,
// expire, persist.
func (d *Daemon) RunCycle(ctx context.Context) CycleReport {
	started := time.Now()
	now := d.clock.Now()

	counts, err := ledger.Count(ctx, d.source)
	if err != nil {
		if errors.IsTransient(err) {
			d.logger.Warn("Skipping cycle, connection table unreadable", errors.LogArgs(err)...)
		} else {
			d.logger.Error("Skipping cycle, connection table unusable", errors.LogArgs(err)...)
		}
		d.metrics.Cycles.WithLabelValues(metrics.CycleSkipped).Inc()
		d.finishCycle(started)
		return CycleReport{Skipped: true, Err: err}
	}

	report := CycleReport{HalfOpen: counts.Total()}
	d.logger.Trace("Counted half-open connections", "total", report.HalfOpen, "sources", len(counts))

	burst := counts.Floods(d.cfg.FloodMin)
	update := d.synners.Update(counts)
	for _, addr := range update.Forgotten {
		d.logger.Debug("Synner forgotten", "addr", addr.String())
	}
	report.Forgotten = update.Forgotten

	declared := make(map[netutil.IPv4]bool, len(burst))
	for _, addr := range burst {
		declared[addr] = true
		report.Declarations = append(report.Declarations,
			d.declare(ctx, addr, ledger.ReasonBurst, now, "count", counts[addr]))
	}
	for _, addr := range update.Annoying {
		if declared[addr] {
			continue
		}
		w, _ := d.synners.Weight(addr)
		report.Declarations = append(report.Declarations,
			d.declare(ctx, addr, ledger.ReasonSynner, now, "weight", w))
	}

	report.Releases = d.expire(ctx, now)
	report.SaveErr = d.Save()

	d.metrics.Cycles.WithLabelValues(metrics.CycleOK).Inc()
	d.metrics.HalfOpen.Set(float64(report.HalfOpen))
	d.finishCycle(started)
	return report
}

func (d *Daemon) finishCycle(started time.Time) {
	d.metrics.CycleDuration.Observe(time.Since(started).Seconds())
	d.refreshGauges()
	d.writeMetrics()
	d.logger.Trace("Cycle complete", logging.Since(started))
}

func (d *Daemon) declare(ctx context.Context, addr netutil.IPv4, reason ledger.Reason, now time.Time, detail ...any) Declaration {
	outcome, err := d.flooders.Declare(ctx, addr, now)
	d.metrics.Declarations.WithLabelValues(string(reason)).Inc()

	args := append([]any{"addr", addr.String(), "reason", string(reason)}, detail...)
	switch outcome {
	case ledger.OutcomeBanned:
		d.logger.Info("Flooder banned", d.withCountry(args, addr)...)
	case ledger.OutcomeExtended:
		d.logger.Debug("Flooder ban extended", args...)
	default:
		d.logger.Error("Failed to ban flooder, retrying next cycle", append(args, errors.LogArgs(err)...)...)
	}
	return Declaration{Addr: addr, Reason: reason, Outcome: outcome, Err: err}
}

func (d *Daemon) withCountry(args []any, addr netutil.IPv4) []any {
	if d.geo == nil {
		return args
	}
	if cc := d.geo.Country(addr); cc != "" {
		return append(args, "country", cc)
	}
	return args
}

func (d *Daemon) expire(ctx context.Context, now time.Time) []ledger.Release {
	releases := d.flooders.Expire(ctx, now)
	for _, r := range releases {
		args := []any{"addr", r.Addr.String(), "age", now.Sub(r.BannedSince).Round(time.Second)}
		outcome := "removed"
		switch {
		case r.Err != nil:
			outcome = "failed"
			d.logger.Error("Failed to release expired ban, retrying next cycle", append(args, errors.LogArgs(r.Err)...)...)
		case r.Absent:
			outcome = "absent"
			d.logger.Info("Expired ban already gone from blacklist", args...)
		default:
			d.logger.Info("Released expired ban", args...)
		}
		d.metrics.Releases.WithLabelValues(outcome).Inc()
	}
	return releases
}

// Save persists both ledgers. Failures are logged and returned; the
// in-memory ledgers are unaffected.
func (d *Daemon) Save() error {
	err := d.store.Save(&state.Snapshot{
		SavedAt:  d.clock.Now(),
		Flooders: d.flooders.Snapshot(),
		Synners:  d.synners.Snapshot(),
	})
	d.metrics.StateWrites.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		d.logger.Error("Failed to persist state, keeping in-memory ledgers", errors.LogArgs(err)...)
		return err
	}
	d.logger.Trace("State saved", "path", d.store.Path())
	return nil
}

func (d *Daemon) refreshGauges() {
	d.metrics.Flooders.Set(float64(d.flooders.Len()))
	d.metrics.Synners.Set(float64(d.synners.Len()))
}

func (d *Daemon) writeMetrics() {
	if err := d.metrics.Write(); err != nil {
		d.logger.Warn("Failed to write metrics", errors.LogArgs(err)...)
	}
}

// Dump logs every ledger record at info level.
func (d *Daemon) Dump() {
	now := d.clock.Now()
	d.logger.Info("Ledger dump", "flooders", d.flooders.Len(), "synners", d.synners.Len())
	for addr, since := range d.flooders.All() {
		d.logger.Info("Flooder", d.withCountry([]any{
			"addr", addr.String(),
			"banned_since", since.Format(time.RFC3339),
			"age", now.Sub(since).Round(time.Second),
		}, addr)...)
	}
	for addr, w := range d.synners.All() {
		d.logger.Info("Synner", "addr", addr.String(), "weight", w)
	}
}

// handle applies one command and reports whether the loop should stop.
func (d *Daemon) handle(cmd Command) (stop bool) {
	switch cmd {
	case CommandTerminate:
		return true
	case CommandReopenLog:
		if err := d.logger.Reopen(); err != nil {
			d.logger.Error("Failed to reopen log file", "error", err)
		} else {
			d.logger.Info("Log file reopened")
		}
	case CommandToggleTrace:
		lvl := d.logger.ToggleTrace()
		d.logger.Info("Log level toggled", "trace", lvl == logging.LevelTrace)
	case CommandDump:
		d.Dump()
	default:
		d.logger.Warn("Ignoring unknown command", "command", int(cmd))
	}
	return false
}

// Run drives cycles until ctx is cancelled or a terminate command arrives.
// The first cycle starts immediately; each following one starts a poll
// interval after the previous one finished. Cycles are not interrupted by
// cancellation. State is flushed before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.gateway.Ensure(ctx); err != nil {
		d.logger.Warn("Blacklist set not ready", append([]any{"blacklist", d.gateway.String()}, errors.LogArgs(err)...)...)
	}
	d.logger.Info("Detection loop started",
		"poll_interval", d.cfg.Poll(),
		"flood_min", d.cfg.FloodMin,
		"ban_timeout", d.cfg.BanDuration(),
		"quantum", d.synners.Quantum(),
		"forget_factor", d.cfg.ForgetFactor,
		"blacklist", d.gateway.String())

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			d.shutdown("context")
			return nil
		case cmd := <-d.commands:
			if d.handle(cmd) {
				d.shutdown(cmd.String())
				return nil
			}
		case <-timer.C:
			d.RunCycle(context.WithoutCancel(ctx))
			timer.Reset(d.cfg.Poll())
		}
	}
}

func (d *Daemon) shutdown(reason string) {
	d.logger.Info("Detection loop stopping", "reason", reason)
	d.Save()
	d.refreshGauges()
	d.writeMetrics()
}
