// Package addrmap implements the address-mapping engine: the stateless
// client embedding (spec §4.1), the static and dynamic substitute mappers
// (§4.2-§4.3), and the coordinator that owns them (§4.4). Grounded
// method-for-method on original_source/src/get4for6/addr_mapper/**.
package addrmap

import (
	"net/netip"

	"github.com/vitlabuda/get4for6-go/internal/xlaterr"
)

// ClientMapper statelessly embeds authorized client IPv4 addresses into an
// IPv6 /96 prefix and back. Grounded on
// addr_mapper/client/ClientAddressMapper.py.
type ClientMapper struct {
	allowedSubnets []netip.Prefix
	prefix         netip.Prefix // always exactly /96
}

// NewClientMapper builds a ClientMapper. prefix must be an IPv6 /96; callers
// are expected to have already validated it (see internal/config).
func NewClientMapper(allowedSubnets []netip.Prefix, prefix netip.Prefix) *ClientMapper {
	if prefix.Bits() != 96 {
		xlaterr.Crash(xlaterr.NewFault("client prefix %s is not a /96", prefix))
	}

	return &ClientMapper{
		allowedSubnets: allowedSubnets,
		prefix:         prefix.Masked(),
	}
}

// IsClientAllowed reports whether v4 belongs to the client allow-list.
func (m *ClientMapper) IsClientAllowed(v4 netip.Addr) bool {
	return ContainsStrict(v4, m.allowedSubnets)
}

// Map4to6 embeds an authorized client v4 address into the configured
// prefix, failing with [xlaterr.ErrClientNotAllowed] otherwise.
func (m *ClientMapper) Map4to6(v4 netip.Addr) (netip.Addr, error) {
	if !m.IsClientAllowed(v4) {
		return netip.Addr{}, xlaterr.ErrClientNotAllowed
	}

	prefixBytes := m.prefix.Addr().As16()
	v4Bytes := v4.As4()

	var out [16]byte
	copy(out[:12], prefixBytes[:12])
	copy(out[12:], v4Bytes[:])

	return netip.AddrFrom16(out), nil
}

// Map6to4 extracts the embedded client v4 address from v6, failing with
// [xlaterr.ErrScopeIDPresent], [xlaterr.ErrWrongPrefix], or
// [xlaterr.ErrClientNotAllowed] as appropriate.
func (m *ClientMapper) Map6to4(v6 netip.Addr) (netip.Addr, error) {
	if v6.Zone() != "" {
		return netip.Addr{}, xlaterr.ErrScopeIDPresent
	}

	bytes16 := v6.As16()

	prefixBytes := m.prefix.Addr().As16()
	var candidate [12]byte
	copy(candidate[:], bytes16[:12])
	var want [12]byte
	copy(want[:], prefixBytes[:12])
	if candidate != want {
		return netip.Addr{}, xlaterr.ErrWrongPrefix
	}

	var v4Bytes [4]byte
	copy(v4Bytes[:], bytes16[12:])
	v4 := netip.AddrFrom4(v4Bytes)

	if !m.IsClientAllowed(v4) {
		return netip.Addr{}, xlaterr.ErrClientNotAllowed
	}

	return v4, nil
}
