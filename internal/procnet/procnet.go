// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package procnet reads the kernel TCP connection table in the textual
// /proc/net/tcp format.
//
// Each data line looks like
//
//	sl  local_address rem_address   st tx_queue rx_queue ...
//	 0: 0100007F:0277 0A00020F:D431 03 00000000:00000000 ...
//
// Addresses are 8 hex digits holding the kernel's in-memory (network order)
// bytes printed as a host-order word; ports are 4 hex digits, the state is
// 2 hex digits. Lines that do not match are skipped.
package procnet

import (
	"bufio"
	"encoding/binary"
	"io"
	"iter"
	"strconv"
	"strings"

	"grimm.is/synguard/internal/netutil"
)

// DefaultTable is the IPv4 TCP connection table.
const DefaultTable = "/proc/net/tcp"

// State is a TCP state code as printed in the st column.
type State uint8

// TCP states from include/net/tcp_states.h.
const (
	StateEstablished State = 0x01
	StateSynSent     State = 0x02
	StateSynRecv     State = 0x03
	StateFinWait1    State = 0x04
	StateFinWait2    State = 0x05
	StateTimeWait    State = 0x06
	StateClose       State = 0x07
	StateCloseWait   State = 0x08
	StateLastAck     State = 0x09
	StateListen      State = 0x0A
	StateClosing     State = 0x0B
)

func (s State) String() string {
	switch s {
	case StateEstablished:
		return "ESTABLISHED"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynRecv:
		return "SYN_RECV"
	case StateFinWait1:
		return "FIN_WAIT1"
	case StateFinWait2:
		return "FIN_WAIT2"
	case StateTimeWait:
		return "TIME_WAIT"
	case StateClose:
		return "CLOSE"
	case StateCloseWait:
		return "CLOSE_WAIT"
	case StateLastAck:
		return "LAST_ACK"
	case StateListen:
		return "LISTEN"
	case StateClosing:
		return "CLOSING"
	}
	return "0x" + strconv.FormatUint(uint64(s), 16)
}

// HalfOpen reports whether the state is SYN received.
func (s State) HalfOpen() bool {
	return s == StateSynRecv
}

// Endpoint is one side of a connection.
type Endpoint struct {
	Addr netutil.IPv4
	Port uint16
}

// Record is one connection from the table.
type Record struct {
	Local  Endpoint
	Remote Endpoint
	State  State
}

const (
	fieldLocal  = 1
	fieldRemote = 2
	fieldState  = 3
)

// ParseLine parses a single table line. The header and malformed lines
// return ok=false.
func ParseLine(line string) (rec Record, ok bool) {
	fields := strings.Fields(line)
	if len(fields) <= fieldState {
		return Record{}, false
	}

	local, ok := parseEndpoint(fields[fieldLocal])
	if !ok {
		return Record{}, false
	}
	remote, ok := parseEndpoint(fields[fieldRemote])
	if !ok {
		return Record{}, false
	}
	st := fields[fieldState]
	if len(st) != 2 {
		return Record{}, false
	}
	state, err := strconv.ParseUint(st, 16, 8)
	if err != nil {
		return Record{}, false
	}

	return Record{Local: local, Remote: remote, State: State(state)}, true
}

func parseEndpoint(s string) (Endpoint, bool) {
	addrHex, portHex, found := strings.Cut(s, ":")
	if !found || len(addrHex) != 8 || len(portHex) != 4 {
		return Endpoint{}, false
	}
	word, err := strconv.ParseUint(addrHex, 16, 32)
	if err != nil {
		return Endpoint{}, false
	}
	port, err := strconv.ParseUint(portHex, 16, 16)
	if err != nil {
		return Endpoint{}, false
	}

	// The kernel prints the network-order bytes as a native-endian word.
	var b [4]byte
	binary.NativeEndian.PutUint32(b[:], uint32(word))
	return Endpoint{Addr: netutil.IPv4From4(b), Port: uint16(port)}, true
}

// Scan reads r line by line, calling fn for every well-formed record until
// fn returns false. It returns the first read error, if any.
func Scan(r io.Reader, fn func(Record) bool) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		rec, ok := ParseLine(scanner.Text())
		if !ok {
			continue
		}
		if !fn(rec) {
			return nil
		}
	}
	return scanner.Err()
}

// Records returns a lazy sequence over the records in r. A read error ends
// the sequence early; callers needing the error should use Scan.
func Records(r io.Reader) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		_ = Scan(r, yield)
	}
}
