// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes daemon counters in Prometheus text format. The
// daemon listens on no socket, so the registry is written to a file for the
// node_exporter textfile collector after every cycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/synguard/internal/brand"
	"grimm.is/synguard/internal/errors"
)

// Cycle results.
const (
	CycleOK      = "ok"
	CycleSkipped = "skipped"
)

// Call results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds all daemon metrics and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry
	path     string

	Cycles        *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	HalfOpen      prometheus.Gauge

	Declarations *prometheus.CounterVec
	Releases     *prometheus.CounterVec
	GatewayCalls *prometheus.CounterVec
	StateWrites  *prometheus.CounterVec

	Flooders prometheus.Gauge
	Synners  prometheus.Gauge
}

func name(s string) string {
	return brand.MetricsPrefix + "_" + s
}

// New creates the metrics. path is the textfile target; empty disables Write.
func New(path string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		path:     path,

		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name("cycles_total"),
			Help: "Detection cycles run, by result (skipped when the connection table could not be read)",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    name("cycle_duration_seconds"),
			Help:    "Wall time spent in one detection cycle",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		HalfOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: name("halfopen_observed"),
			Help: "Half-open inbound connections seen in the last snapshot",
		}),

		Declarations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name("flood_declarations_total"),
			Help: "Flooder declarations, by reason (burst or synner)",
		}, []string{"reason"}),
		Releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name("releases_total"),
			Help: "Expired bans, by outcome (removed, absent or failed)",
		}, []string{"outcome"}),
		GatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name("gateway_calls_total"),
			Help: "Blacklist operations, by operation and result",
		}, []string{"op", "result"}),
		StateWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name("state_writes_total"),
			Help: "State file writes, by result",
		}, []string{"result"}),

		Flooders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: name("flooders"),
			Help: "Addresses currently banned",
		}),
		Synners: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: name("synners"),
			Help: "Addresses currently carrying synner weight",
		}),
	}

	m.registry.MustRegister(
		m.Cycles, m.CycleDuration, m.HalfOpen,
		m.Declarations, m.Releases, m.GatewayCalls, m.StateWrites,
		m.Flooders, m.Synners,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Path returns the textfile target.
func (m *Metrics) Path() string {
	return m.path
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// Write dumps the registry to the textfile. The file is replaced
// atomically so the collector never reads a partial file.
func (m *Metrics) Write() error {
	if m.path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.path, m.registry); err != nil {
		return errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to write metrics file"), "path", m.path)
	}
	return nil
}
