// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"trace":   LevelTrace,
		"DEBUG":   LevelDebug,
		"":        LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestToggleTrace(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf, JSON: true})
	child := l.WithComponent("cycle")

	child.Trace("hidden")
	assert.Empty(t, buf.String())

	assert.Equal(t, LevelTrace, l.ToggleTrace())
	child.Trace("visible", "addr", "192.0.2.1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "TRACE", rec["level"])
	assert.Equal(t, "cycle", rec["component"])
	assert.Equal(t, "192.0.2.1", rec["addr"])

	assert.Equal(t, LevelWarn, child.ToggleTrace())
	buf.Reset()
	child.Info("hidden again")
	assert.Empty(t, buf.String())
}

func TestReopen_FollowsRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synguard.log")

	l, err := Open(Config{Level: LevelInfo, File: path, JSON: true})
	require.NoError(t, err)
	defer l.Close()

	l.Info("before rotation")
	require.NoError(t, os.Rename(path, path+".1"))

	l.Info("still old file")
	require.NoError(t, l.Reopen())
	l.Info("after rotation")

	rotated, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(rotated), "before rotation"))
	assert.True(t, strings.Contains(string(rotated), "still old file"))

	fresh, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(fresh), "after rotation"))
	assert.False(t, strings.Contains(string(fresh), "before rotation"))
}

func TestReopen_StreamIsNoop(t *testing.T) {
	l := New(Config{Level: LevelInfo, Output: &bytes.Buffer{}})
	assert.NoError(t, l.Reopen())
	assert.NoError(t, l.Close())
}

func TestNew_FallsBackOnBadFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	// A path below a regular file cannot be created.
	l := New(Config{Level: LevelInfo, File: filepath.Join(blocker, "sub", "x.log")})
	require.NotNil(t, l)
	assert.Nil(t, l.file)
}

func TestConsole_TraceLevelName(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelTrace, Output: &buf})

	l.Trace("cycle complete", "sources", 3)
	l.Debug("synner forgotten")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], " TRC cycle complete sources=3")
	assert.NotContains(t, lines[0], "DBG-4")
	assert.Contains(t, lines[1], " DBG synner forgotten")
}
