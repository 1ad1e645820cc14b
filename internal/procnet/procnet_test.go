// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package procnet

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/synguard/internal/errors"
	"grimm.is/synguard/internal/netutil"
)

// procAddr renders an address the way the kernel prints it on this host.
func procAddr(ip string) string {
	b := netutil.MustParseIPv4(ip).As4()
	return fmt.Sprintf("%08X", binary.NativeEndian.Uint32(b[:]))
}

func procLine(slot int, local string, lport uint16, remote string, rport uint16, st State) string {
	return fmt.Sprintf("%4d: %s:%04X %s:%04X %02X 00000000:00000000 00:00000000 00000000     0        0 %d 1 0000000000000000 100 0 0 10 0",
		slot, procAddr(local), lport, procAddr(remote), rport, uint8(st), 1000+slot)
}

const header = "  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode"

func TestParseLine(t *testing.T) {
	rec, ok := ParseLine(procLine(0, "10.0.0.1", 80, "198.51.100.7", 54321, StateSynRecv))
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", rec.Local.Addr.String())
	assert.Equal(t, uint16(80), rec.Local.Port)
	assert.Equal(t, "198.51.100.7", rec.Remote.Addr.String())
	assert.Equal(t, uint16(54321), rec.Remote.Port)
	assert.Equal(t, StateSynRecv, rec.State)
	assert.True(t, rec.State.HalfOpen())
}

func TestParseLine_Malformed(t *testing.T) {
	lines := []string{
		"",
		header,
		"garbage",
		"0: ZZZZZZZZ:0050 0100007F:0050 03",
		"0: 0100007F:0050 0100007F:0050 3",
		"0: 0100007F:50 0100007F:0050 03",
		"0: 00007F:0050 0100007F:0050 03",
		"0: 0100007F0050 0100007F:0050 03",
		"0: 0100007F:0050 0100007F:0050",
	}
	for _, line := range lines {
		_, ok := ParseLine(line)
		assert.False(t, ok, "line %q should be rejected", line)
	}
}

func TestRecords_SkipsMalformedLazily(t *testing.T) {
	table := strings.Join([]string{
		header,
		procLine(0, "10.0.0.1", 22, "0.0.0.0", 0, StateListen),
		"this line is broken",
		procLine(1, "10.0.0.1", 80, "203.0.113.5", 40000, StateSynRecv),
		procLine(2, "10.0.0.1", 80, "203.0.113.6", 40001, StateEstablished),
	}, "\n")

	var states []State
	for rec := range Records(strings.NewReader(table)) {
		states = append(states, rec.State)
		if len(states) == 2 {
			break
		}
	}
	assert.Equal(t, []State{StateListen, StateSynRecv}, states)

	all := slices.Collect(Records(strings.NewReader(table)))
	assert.Len(t, all, 3)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "SYN_RECV", StateSynRecv.String())
	assert.Equal(t, "LISTEN", StateListen.String())
	assert.Equal(t, "0x1f", State(0x1F).String())
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tcp")
	content := header + "\n" + procLine(0, "10.0.0.1", 80, "203.0.113.5", 40000, StateSynRecv) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	var got []Record
	err := NewFileSource(path).Scan(context.Background(), func(r Record) bool {
		got = append(got, r)
		return true
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "203.0.113.5", got[0].Remote.Addr.String())
}

func TestFileSource_MissingIsTransient(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "missing"))
	err := src.Scan(context.Background(), func(Record) bool { return true })
	require.Error(t, err)
	assert.Equal(t, errors.KindUnavailable, errors.GetKind(err))
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, src.Path, errors.GetAttributes(err)["path"])
}

func TestFileSource_PermissionIsNotTransient(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores file modes")
	}
	path := filepath.Join(t.TempDir(), "tcp")
	require.NoError(t, os.WriteFile(path, []byte(header+"\n"), 0))

	err := NewFileSource(path).Scan(context.Background(), func(Record) bool { return true })
	require.Error(t, err)
	assert.Equal(t, errors.KindPermission, errors.GetKind(err))
	assert.False(t, errors.IsTransient(err))
}

func TestFileSource_Default(t *testing.T) {
	assert.Equal(t, DefaultTable, NewFileSource("").Path)
}

func TestFileSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewFileSource("/nonexistent").Scan(ctx, func(Record) bool { return true })
	assert.ErrorIs(t, err, context.Canceled)
}
