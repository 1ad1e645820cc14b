// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netutil

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// IPv4 is an IPv4 address held as its 32-bit big-endian value.
// Its text form is the dotted quad, so it can key JSON and YAML maps.
type IPv4 uint32

// IPv4From4 builds an address from its four octets in network order.
func IPv4From4(b [4]byte) IPv4 {
	return IPv4(binary.BigEndian.Uint32(b[:]))
}

// ParseIPv4 parses a dotted-quad address.
func ParseIPv4(s string) (IPv4, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return 0, err
	}
	if !addr.Is4() {
		return 0, fmt.Errorf("not an IPv4 address: %s", s)
	}
	return IPv4From4(addr.As4()), nil
}

// MustParseIPv4 is ParseIPv4 that panics on error. Intended for tests and constants.
func MustParseIPv4(s string) IPv4 {
	ip, err := ParseIPv4(s)
	if err != nil {
		panic(err)
	}
	return ip
}

// As4 returns the four octets in network order.
func (ip IPv4) As4() [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(ip))
	return b
}

// Addr converts to netip.Addr.
func (ip IPv4) Addr() netip.Addr {
	return netip.AddrFrom4(ip.As4())
}

func (ip IPv4) String() string {
	b := ip.As4()
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

func (ip IPv4) MarshalText() ([]byte, error) {
	return []byte(ip.String()), nil
}

func (ip *IPv4) UnmarshalText(text []byte) error {
	parsed, err := ParseIPv4(string(text))
	if err != nil {
		return err
	}
	*ip = parsed
	return nil
}
