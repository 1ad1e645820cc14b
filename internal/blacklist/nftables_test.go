// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package blacklist

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/google/nftables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/synguard/internal/errors"
	"grimm.is/synguard/internal/netutil"
	"grimm.is/synguard/internal/testutil"
)

// fakeConn applies queued edits on Flush, like netlink batching.
type fakeConn struct {
	table    *nftables.Table
	elements [][]byte
	pending  []func()
	missing  bool
	flushErr error
	flushes  int
}

func (c *fakeConn) GetSetByName(t *nftables.Table, name string) (*nftables.Set, error) {
	c.table = t
	if c.missing {
		return nil, fmt.Errorf("no such file or directory")
	}
	return &nftables.Set{Table: t, Name: name, KeyType: nftables.TypeIPAddr}, nil
}

func (c *fakeConn) GetSetElements(s *nftables.Set) ([]nftables.SetElement, error) {
	out := make([]nftables.SetElement, 0, len(c.elements))
	for _, k := range c.elements {
		out = append(out, nftables.SetElement{Key: k})
	}
	return out, nil
}

func (c *fakeConn) SetAddElements(s *nftables.Set, vals []nftables.SetElement) error {
	c.pending = append(c.pending, func() {
		for _, v := range vals {
			if c.index(v.Key) < 0 {
				c.elements = append(c.elements, v.Key)
			}
		}
	})
	return nil
}

func (c *fakeConn) SetDeleteElements(s *nftables.Set, vals []nftables.SetElement) error {
	c.pending = append(c.pending, func() {
		for _, v := range vals {
			if i := c.index(v.Key); i >= 0 {
				c.elements = append(c.elements[:i], c.elements[i+1:]...)
			}
		}
	})
	return nil
}

func (c *fakeConn) Flush() error {
	c.flushes++
	if c.flushErr != nil {
		c.pending = nil
		return c.flushErr
	}
	for _, f := range c.pending {
		f()
	}
	c.pending = nil
	return nil
}

func (c *fakeConn) index(key []byte) int {
	for i, k := range c.elements {
		if bytes.Equal(k, key) {
			return i
		}
	}
	return -1
}

func TestNFTables_AddTestRemove(t *testing.T) {
	conn := &fakeConn{}
	g, err := NewNFTables(NFTablesConfig{Family: "ip", Table: "filter", Set: "synflood", Conn: conn}, quietLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, g.Ensure(ctx))
	assert.Equal(t, nftables.TableFamilyIPv4, conn.table.Family)
	assert.Equal(t, "nftables:filter/synflood", g.String())

	present, err := g.Test(ctx, testAddr)
	require.NoError(t, err)
	assert.False(t, present)

	require.NoError(t, g.Add(ctx, testAddr))
	require.NoError(t, g.Add(ctx, testAddr))
	assert.Len(t, conn.elements, 1)
	assert.Equal(t, []byte{203, 0, 113, 7}, conn.elements[0])

	present, err = g.Test(ctx, testAddr)
	require.NoError(t, err)
	assert.True(t, present)

	other := netutil.MustParseIPv4("198.51.100.1")
	present, err = g.Test(ctx, other)
	require.NoError(t, err)
	assert.False(t, present)

	require.NoError(t, g.Remove(ctx, testAddr))
	assert.Empty(t, conn.elements)
}

func TestNFTables_Failures(t *testing.T) {
	ctx := context.Background()

	conn := &fakeConn{missing: true}
	g, err := NewNFTables(NFTablesConfig{Table: "filter", Set: "synflood", Conn: conn}, quietLogger())
	require.NoError(t, err)
	err = g.Ensure(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.KindExternal, errors.GetKind(err))
	_, err = g.Test(ctx, testAddr)
	assert.Error(t, err)

	conn = &fakeConn{flushErr: fmt.Errorf("operation not permitted")}
	g, err = NewNFTables(NFTablesConfig{Table: "filter", Set: "synflood", Conn: conn}, quietLogger())
	require.NoError(t, err)
	err = g.Add(ctx, testAddr)
	require.Error(t, err)
	assert.Equal(t, "203.0.113.7", errors.GetAttributes(err)["addr"])
	assert.Empty(t, conn.elements)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, g.Add(cancelled, testAddr), context.Canceled)
}

func TestNFTables_Config(t *testing.T) {
	_, err := NewNFTables(NFTablesConfig{Family: "arp", Table: "filter", Set: "s", Conn: &fakeConn{}}, nil)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	_, err = NewNFTables(NFTablesConfig{Table: "", Set: "s", Conn: &fakeConn{}}, nil)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func TestNFTables_Kernel(t *testing.T) {
	testutil.RequireVM(t)

	g, err := NewNFTables(NFTablesConfig{Family: "inet", Table: "filter", Set: "synflood"}, quietLogger())
	require.NoError(t, err)
	require.NoError(t, g.Ensure(context.Background()))
}
