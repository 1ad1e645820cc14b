// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package daemon

import (
	"context"

	"grimm.is/synguard/internal/metrics"
	"grimm.is/synguard/internal/netutil"
)

// instrumented counts blacklist calls by operation and result.
type instrumented struct {
	Gateway
	m *metrics.Metrics
}

func (g instrumented) Add(ctx context.Context, addr netutil.IPv4) error {
	err := g.Gateway.Add(ctx, addr)
	g.m.GatewayCalls.WithLabelValues("add", metrics.Result(err)).Inc()
	return err
}

func (g instrumented) Remove(ctx context.Context, addr netutil.IPv4) error {
	err := g.Gateway.Remove(ctx, addr)
	g.m.GatewayCalls.WithLabelValues("remove", metrics.Result(err)).Inc()
	return err
}

func (g instrumented) Test(ctx context.Context, addr netutil.IPv4) (bool, error) {
	present, err := g.Gateway.Test(ctx, addr)
	g.m.GatewayCalls.WithLabelValues("test", metrics.Result(err)).Inc()
	return present, err
}
