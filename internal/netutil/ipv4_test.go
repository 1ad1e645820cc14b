// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIPv4(t *testing.T) {
	ip, err := ParseIPv4("192.0.2.10")
	require.NoError(t, err)
	assert.Equal(t, IPv4(0xC000020A), ip)
	assert.Equal(t, "192.0.2.10", ip.String())
	assert.Equal(t, [4]byte{192, 0, 2, 10}, ip.As4())
	assert.True(t, ip.Addr().Is4())

	_, err = ParseIPv4("2001:db8::1")
	assert.Error(t, err)
	_, err = ParseIPv4("not-an-ip")
	assert.Error(t, err)
}

func TestIPv4_MapKeyJSON(t *testing.T) {
	in := map[IPv4]float64{MustParseIPv4("10.0.0.1"): 0.5}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"10.0.0.1":0.5}`, string(data))

	var out map[IPv4]float64
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
