// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package blacklist

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/synguard/internal/errors"
	"grimm.is/synguard/internal/logging"
	"grimm.is/synguard/internal/netutil"
	"grimm.is/synguard/internal/testutil"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	exit  map[string]int
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, argv []string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), argv...))
	if f.err != nil {
		return Result{}, f.err
	}
	if _, ok := ctx.Deadline(); !ok {
		return Result{}, errors.New(errors.KindInternal, "runner called without deadline")
	}
	for _, a := range argv {
		if code, ok := f.exit[a]; ok {
			return Result{ExitCode: code, Output: []byte("fake output\n")}, nil
		}
	}
	return Result{}, nil
}

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard, NoColor: true})
}

func newTestIPSet(t *testing.T, r Runner, cmd string) *IPSet {
	t.Helper()
	g, err := NewIPSet(IPSetConfig{Command: cmd, Set: "synflood", Runner: r}, quietLogger())
	require.NoError(t, err)
	return g
}

var testAddr = netutil.MustParseIPv4("203.0.113.7")

func TestIPSet_Argv(t *testing.T) {
	r := &fakeRunner{}
	g := newTestIPSet(t, r, "sudo -n '/usr/local/sbin/ipset'")
	ctx := context.Background()

	require.NoError(t, g.Add(ctx, testAddr))
	require.NoError(t, g.Remove(ctx, testAddr))
	present, err := g.Test(ctx, testAddr)
	require.NoError(t, err)
	assert.True(t, present)

	assert.Equal(t, [][]string{
		{"sudo", "-n", "/usr/local/sbin/ipset", "add", "synflood", "203.0.113.7", "-exist"},
		{"sudo", "-n", "/usr/local/sbin/ipset", "del", "synflood", "203.0.113.7", "-exist"},
		{"sudo", "-n", "/usr/local/sbin/ipset", "test", "synflood", "203.0.113.7"},
	}, r.calls)
	assert.Equal(t, "ipset:synflood", g.String())
}

func TestIPSet_TestExitCodes(t *testing.T) {
	ctx := context.Background()

	g := newTestIPSet(t, &fakeRunner{exit: map[string]int{"test": 1}}, "ipset")
	present, err := g.Test(ctx, testAddr)
	require.NoError(t, err)
	assert.False(t, present)

	g = newTestIPSet(t, &fakeRunner{exit: map[string]int{"test": 2}}, "ipset")
	present, err = g.Test(ctx, testAddr)
	require.Error(t, err)
	assert.False(t, present)
	assert.Equal(t, errors.KindExternal, errors.GetKind(err))
	assert.Equal(t, 2, errors.GetAttributes(err)["exit_code"])
}

func TestIPSet_CustomNotMemberCode(t *testing.T) {
	r := &fakeRunner{exit: map[string]int{"test": 3}}
	g, err := NewIPSet(IPSetConfig{Command: "ipset", Set: "s", NotMemberExitCode: 3, Runner: r}, quietLogger())
	require.NoError(t, err)

	present, err := g.Test(context.Background(), testAddr)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestIPSet_Failures(t *testing.T) {
	ctx := context.Background()

	g := newTestIPSet(t, &fakeRunner{exit: map[string]int{"add": 1}}, "ipset")
	err := g.Add(ctx, testAddr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 1")
	assert.Equal(t, "fake output", errors.GetAttributes(err)["output"])

	g = newTestIPSet(t, &fakeRunner{exit: map[string]int{"del": 1}}, "ipset")
	assert.Error(t, g.Remove(ctx, testAddr))

	g = newTestIPSet(t, &fakeRunner{err: errors.New(errors.KindTimeout, "killed")}, "ipset")
	err = g.Add(ctx, testAddr)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, "ipset add synflood 203.0.113.7 -exist", errors.GetAttributes(err)["command"])
}

func TestIPSet_Ensure(t *testing.T) {
	ctx := context.Background()

	r := &fakeRunner{}
	g := newTestIPSet(t, r, "ipset")
	require.NoError(t, g.Ensure(ctx))
	assert.Empty(t, r.calls, "ensure is a no-op unless create_set is on")

	g, err := NewIPSet(IPSetConfig{Command: "ipset", Set: "synflood", CreateSet: true, Runner: r}, quietLogger())
	require.NoError(t, err)
	require.NoError(t, g.Ensure(ctx))
	require.Len(t, r.calls, 1)
	assert.Equal(t, []string{"ipset", "create", "synflood", "hash:ip", "-exist"}, r.calls[0])
}

func TestNewIPSet_Validation(t *testing.T) {
	_, err := NewIPSet(IPSetConfig{Command: "", Set: "s"}, nil)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	_, err = NewIPSet(IPSetConfig{Command: "ipset 'unterminated", Set: "s"}, nil)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	_, err = NewIPSet(IPSetConfig{Command: "ipset"}, nil)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

// fakeIPSetScript keeps set members one per line next to the script.
const fakeIPSetScript = `db="$(dirname "$0")/members"
touch "$db"
case "$1" in
  create) exit 0 ;;
  add) grep -Fqx "$3" "$db" || echo "$3" >> "$db"; exit 0 ;;
  del) grep -Fvx "$3" "$db" > "$db.tmp"; mv "$db.tmp" "$db"; exit 0 ;;
  test)
    if grep -Fqx "$3" "$db"; then exit 0; fi
    echo "Warning: $3 is NOT in set $2." >&2
    exit 1 ;;
esac
echo "unknown command $1" >&2
exit 2
`

func TestIPSet_ExecRunner(t *testing.T) {
	script := testutil.WriteScript(t, "ipset", fakeIPSetScript)
	g, err := NewIPSet(IPSetConfig{Command: script, Set: "synflood", CreateSet: true}, quietLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, g.Ensure(ctx))

	present, err := g.Test(ctx, testAddr)
	require.NoError(t, err)
	assert.False(t, present)

	require.NoError(t, g.Add(ctx, testAddr))
	require.NoError(t, g.Add(ctx, testAddr))
	present, err = g.Test(ctx, testAddr)
	require.NoError(t, err)
	assert.True(t, present)

	require.NoError(t, g.Remove(ctx, testAddr))
	present, err = g.Test(ctx, testAddr)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestExecRunner_Timeout(t *testing.T) {
	script := testutil.WriteScript(t, "slow", "exec sleep 5\n")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := ExecRunner{}.Run(ctx, []string{script})
	require.Error(t, err)
	assert.Equal(t, errors.KindTimeout, errors.GetKind(err))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestExecRunner_ExitCode(t *testing.T) {
	script := testutil.WriteScript(t, "fails", "echo nope; exit 7\n")
	res, err := ExecRunner{}.Run(context.Background(), []string{script})
	require.NoError(t, err)
	assert.Equal(t, 7, res.ExitCode)
	assert.Equal(t, "nope", strings.TrimSpace(string(res.Output)))
}

func TestExecRunner_Missing(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), []string{"/nonexistent/ipset"})
	require.Error(t, err)
	assert.Equal(t, errors.KindExternal, errors.GetKind(err))
}
