// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package blacklist

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/nftables"

	"grimm.is/synguard/internal/errors"
	"grimm.is/synguard/internal/logging"
	"grimm.is/synguard/internal/netutil"
)

// NFTablesConn is the subset of *nftables.Conn used by the backend.
type NFTablesConn interface {
	GetSetByName(t *nftables.Table, name string) (*nftables.Set, error)
	GetSetElements(s *nftables.Set) ([]nftables.SetElement, error)
	SetAddElements(s *nftables.Set, vals []nftables.SetElement) error
	SetDeleteElements(s *nftables.Set, vals []nftables.SetElement) error
	Flush() error
}

// NFTablesConfig configures the nftables backend. The set must already
// exist with an ipv4_addr key, e.g.
//
//	nft add set inet filter synflood '{ type ipv4_addr; }'
type NFTablesConfig struct {
	Family string
	Table  string
	Set    string
	Conn   NFTablesConn
}

// NFTables edits an nftables set over netlink.
type NFTables struct {
	mu     sync.Mutex
	conn   NFTablesConn
	table  *nftables.Table
	set    string
	logger *logging.Logger
}

// NewNFTables validates cfg and connects to netlink unless cfg.Conn is set.
func NewNFTables(cfg NFTablesConfig, logger *logging.Logger) (*NFTables, error) {
	family, err := parseFamily(cfg.Family)
	if err != nil {
		return nil, err
	}
	if cfg.Table == "" || cfg.Set == "" {
		return nil, errors.New(errors.KindValidation, "nftables backend needs table and set names")
	}
	if logger == nil {
		logger = logging.WithComponent("blacklist")
	}

	conn := cfg.Conn
	if conn == nil {
		c, err := nftables.New()
		if err != nil {
			return nil, errors.Wrap(err, errors.KindUnavailable, "failed to open nftables connection")
		}
		conn = c
	}

	return &NFTables{
		conn:   conn,
		table:  &nftables.Table{Name: cfg.Table, Family: family},
		set:    cfg.Set,
		logger: logger,
	}, nil
}

func parseFamily(s string) (nftables.TableFamily, error) {
	switch s {
	case "", "inet":
		return nftables.TableFamilyINet, nil
	case "ip":
		return nftables.TableFamilyIPv4, nil
	case "bridge":
		return nftables.TableFamilyBridge, nil
	case "netdev":
		return nftables.TableFamilyNetdev, nil
	}
	return 0, errors.Errorf(errors.KindValidation, "unsupported nftables family %q", s)
}

func (g *NFTables) String() string {
	return fmt.Sprintf("nftables:%s/%s", g.table.Name, g.set)
}

func (g *NFTables) lookup() (*nftables.Set, error) {
	s, err := g.conn.GetSetByName(g.table, g.set)
	if err != nil {
		return nil, errors.Attr(errors.Wrap(err, errors.KindExternal, "nftables set lookup failed"), "set", g.String())
	}
	return s, nil
}

func (g *NFTables) apply(op string, addr netutil.IPv4, edit func(*nftables.Set, []nftables.SetElement) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, err := g.lookup()
	if err != nil {
		g.logger.Warn("Blacklist update failed", "op", op, "addr", addr.String(), "error", err)
		return err
	}
	key := addr.As4()
	if err := edit(s, []nftables.SetElement{{Key: key[:]}}); err != nil {
		g.logger.Warn("Blacklist update failed", "op", op, "addr", addr.String(), "error", err)
		return errors.Attr(errors.Wrapf(err, errors.KindExternal, "nftables %s", op), "addr", addr.String())
	}
	if err := g.conn.Flush(); err != nil {
		g.logger.Warn("Blacklist update failed", "op", op, "addr", addr.String(), "error", err)
		return errors.Attr(errors.Wrapf(err, errors.KindExternal, "nftables %s flush", op), "addr", addr.String())
	}
	return nil
}

// Add inserts addr. Re-adding an existing element is accepted by the kernel.
func (g *NFTables) Add(ctx context.Context, addr netutil.IPv4) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := g.apply("add", addr, g.conn.SetAddElements); err != nil {
		return err
	}
	g.logger.Info("Added to blacklist", "set", g.String(), "addr", addr.String())
	return nil
}

// Remove deletes addr.
func (g *NFTables) Remove(ctx context.Context, addr netutil.IPv4) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := g.apply("delete", addr, g.conn.SetDeleteElements); err != nil {
		return err
	}
	g.logger.Info("Removed from blacklist", "set", g.String(), "addr", addr.String())
	return nil
}

// Test reports whether addr is an element of the set.
func (g *NFTables) Test(ctx context.Context, addr netutil.IPv4) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	s, err := g.lookup()
	if err != nil {
		g.logger.Warn("Blacklist membership test failed", "addr", addr.String(), "error", err)
		return false, err
	}
	elems, err := g.conn.GetSetElements(s)
	if err != nil {
		g.logger.Warn("Blacklist membership test failed", "addr", addr.String(), "error", err)
		return false, errors.Attr(errors.Wrap(err, errors.KindExternal, "nftables list elements"), "set", g.String())
	}

	key := addr.As4()
	for _, e := range elems {
		if bytes.Equal(e.Key, key[:]) {
			g.logger.Debug("Blacklist membership tested", "addr", addr.String(), "present", true)
			return true, nil
		}
	}
	g.logger.Debug("Blacklist membership tested", "addr", addr.String(), "present", false)
	return false, nil
}

// Ensure verifies the set exists. Creating tables and sets is left to the
// operator's ruleset.
func (g *NFTables) Ensure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.lookup()
	return err
}
