// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New("")

	m.Cycles.WithLabelValues(CycleOK).Inc()
	m.Cycles.WithLabelValues(CycleOK).Inc()
	m.Cycles.WithLabelValues(CycleSkipped).Inc()
	m.GatewayCalls.WithLabelValues("add", Result(nil)).Inc()
	m.GatewayCalls.WithLabelValues("add", Result(fmt.Errorf("boom"))).Inc()
	m.Flooders.Set(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Cycles.WithLabelValues(CycleOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues(CycleSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayCalls.WithLabelValues("add", ResultError)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Flooders))

	expected := `
# HELP synguard_flooders Addresses currently banned
# TYPE synguard_flooders gauge
synguard_flooders 3
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "synguard_flooders"))
}

func TestMetrics_WriteDisabled(t *testing.T) {
	assert.NoError(t, New("").Write())
}

func TestMetrics_WriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synguard.prom")
	m := New(path)
	m.Declarations.WithLabelValues("burst").Add(2)
	m.Synners.Set(5)

	require.NoError(t, m.Write())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `synguard_flood_declarations_total{reason="burst"} 2`)
	assert.Contains(t, string(data), "synguard_synners 5")
}

func TestMetrics_WriteFailure(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "missing", "dir", "synguard.prom"))
	assert.Error(t, m.Write())
}
