// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tcam

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/cidr"
)

// Prefix is an IPv4 prefix, Addr holds the address in host byte order.
// Prefixes built by this package are canonical, the host bits are zero.
type Prefix struct {
	Addr uint32
	Len  uint8
}

// NewPrefix returns the canonical prefix addr/bits.
func NewPrefix(addr uint32, bits int) (Prefix, error) {
	if bits < 0 || bits > cidr.MaxBits {
		return Prefix{}, errors.Wrapf(ErrValidation, "prefix length %d out of range 0..%d", bits, cidr.MaxBits)
	}
	return Prefix{Addr: addr & cidr.Mask(uint8(bits)), Len: uint8(bits)}, nil
}

// MustPrefix is like [NewPrefix] but panics on error.
func MustPrefix(addr uint32, bits int) Prefix {
	p, err := NewPrefix(addr, bits)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePrefix parses "a.b.c.d/n". The host bits are masked off,
// "10.1.2.3/8" is 10.0.0.0/8.
func ParsePrefix(s string) (Prefix, error) {
	addrStr, lenStr, found := strings.Cut(s, "/")
	if !found {
		return Prefix{}, errors.Wrapf(ErrParse, "prefix %q: missing '/'", s)
	}

	addr, err := parseIPv4(addrStr)
	if err != nil {
		return Prefix{}, errors.Wrapf(err, "prefix %q", s)
	}

	bits, ok := parseLen(lenStr)
	if !ok {
		return Prefix{}, errors.Wrapf(ErrParse, "prefix %q: bad length %q", s, lenStr)
	}

	p, err := NewPrefix(addr, bits)
	if err != nil {
		return Prefix{}, errors.Wrapf(err, "prefix %q", s)
	}
	return p, nil
}

// parseLen accepts plain decimal digits, no sign and no leading zeros.
func parseLen(s string) (int, bool) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// MustParsePrefix is like [ParsePrefix] but panics on error.
func MustParsePrefix(s string) Prefix {
	p, err := ParsePrefix(s)
	if err != nil {
		panic(err)
	}
	return p
}

// PrefixFrom converts a netip.Prefix, only IPv4 is accepted.
func PrefixFrom(pfx netip.Prefix) (Prefix, error) {
	if !pfx.IsValid() {
		return Prefix{}, errors.Wrapf(ErrValidation, "invalid prefix %s", pfx)
	}
	a := pfx.Addr().Unmap()
	if !a.Is4() {
		return Prefix{}, errors.Wrapf(ErrValidation, "prefix %s is not IPv4", pfx)
	}
	return NewPrefix(addrToUint32(a), pfx.Bits())
}

// ParseAddr parses a dotted quad or a decimal 32-bit integer.
func ParseAddr(s string) (uint32, error) {
	if s != "" && !strings.Contains(s, ".") {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return 0, errors.Wrapf(ErrParse, "address %q", s)
		}
		return uint32(n), nil
	}
	return parseIPv4(s)
}

func parseIPv4(s string) (uint32, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return 0, errors.Wrapf(ErrParse, "address %q", s)
	}
	if !a.Is4() {
		return 0, errors.Wrapf(ErrParse, "address %q is not IPv4", s)
	}
	return addrToUint32(a), nil
}

func addrToUint32(a netip.Addr) uint32 {
	b := a.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// AddrString formats addr as dotted quad.
func AddrString(addr uint32) string {
	return netip.AddrFrom4([4]byte{byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr)}).String()
}

// IsValid reports whether p is canonical with a length in 0..32.
func (p Prefix) IsValid() bool {
	return p.Len <= cidr.MaxBits && p.Addr&^cidr.Mask(p.Len) == 0
}

// Mask returns the netmask of p.
func (p Prefix) Mask() uint32 {
	return cidr.Mask(p.Len)
}

// Contains reports whether addr matches p. The default route matches all.
func (p Prefix) Contains(addr uint32) bool {
	return cidr.Covers(p.Addr, p.Len, addr)
}

// Overlaps reports whether p and q share any address.
func (p Prefix) Overlaps(q Prefix) bool {
	minLen := min(p.Len, q.Len)
	return cidr.Covers(p.Addr, minLen, q.Addr)
}

// Netip converts p to a netip.Prefix.
func (p Prefix) Netip() netip.Prefix {
	b := [4]byte{byte(p.Addr >> 24), byte(p.Addr >> 16), byte(p.Addr >> 8), byte(p.Addr)}
	return netip.PrefixFrom(netip.AddrFrom4(b), int(p.Len))
}

// String returns the CIDR notation.
func (p Prefix) String() string {
	return AddrString(p.Addr) + "/" + strconv.Itoa(int(p.Len))
}

// Route is the value stored for a prefix.
type Route struct {
	Prefix  Prefix
	NextHop string
	Metric  uint32

	// Version is unique and increasing over all writes of a table,
	// every re-insert of the prefix gets a larger one.
	Version uint64
}

// String, for debugging and the CLI.
func (r Route) String() string {
	return fmt.Sprintf("%s via %s metric %d (v%d)", r.Prefix, r.NextHop, r.Metric, r.Version)
}

// RouteSpec is the input of a batch insert.
type RouteSpec struct {
	Prefix  Prefix
	NextHop string
	Metric  uint32
}

// ParseRouteSpec parses "cidr next-hop [metric]", separated by whitespace,
// the metric defaults to 0.
func ParseRouteSpec(line string) (RouteSpec, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 3 {
		return RouteSpec{}, errors.Wrapf(ErrParse, "route %q: want 'cidr next-hop [metric]'", line)
	}

	pfx, err := ParsePrefix(fields[0])
	if err != nil {
		return RouteSpec{}, err
	}

	var metric uint64
	if len(fields) == 3 {
		if metric, err = strconv.ParseUint(fields[2], 10, 32); err != nil {
			return RouteSpec{}, errors.Wrapf(ErrParse, "route %q: bad metric %q", line, fields[2])
		}
	}
	return RouteSpec{Prefix: pfx, NextHop: fields[1], Metric: uint32(metric)}, nil
}

// canonical masks the host bits, only a length above 32 is invalid.
func (p Prefix) canonical() (Prefix, error) {
	if p.Len > cidr.MaxBits {
		return p, errors.Wrapf(ErrValidation, "prefix %s/%d: length above %d", AddrString(p.Addr), p.Len, cidr.MaxBits)
	}
	p.Addr &= cidr.Mask(p.Len)
	return p, nil
}

func (rs RouteSpec) canonical() (RouteSpec, error) {
	var err error
	if rs.Prefix, err = rs.Prefix.canonical(); err != nil {
		return rs, err
	}
	if rs.NextHop == "" {
		return rs, errors.Wrapf(ErrValidation, "prefix %s: empty next hop", rs.Prefix)
	}
	return rs, nil
}
