package addrmap

import "net/netip"

// IsIPv6Substitutable reports whether addr is eligible to receive a
// substitute IPv4 address: a native IPv6 address (not IPv4 or IPv4-mapped),
// not unspecified, not loopback, not multicast, and carrying no zone/scope
// id. Grounded on
// IPHelpers.is_ipv6_address_substitutable.
func IsIPv6Substitutable(addr netip.Addr) bool {
	return addr.Is6() && !addr.Is4In6() &&
		!addr.IsUnspecified() && !addr.IsLoopback() && !addr.IsMulticast() &&
		addr.Zone() == ""
}

// isNetworkOrBroadcast reports whether addr is the network or broadcast
// address of prefix, for prefixes of length <= 30 (/31 and /32 prefixes have
// no distinguished network/broadcast address worth excluding). Grounded on
// IPHelpers.is_ipv4_address_the_network_or_broadcast_address_of_subnet.
func isNetworkOrBroadcast(addr netip.Addr, prefix netip.Prefix) bool {
	if prefix.Bits() > 30 {
		return false
	}
	return addr == prefix.Masked().Addr() || addr == lastAddr(prefix)
}

// lastAddr returns the broadcast (highest) address of an IPv4 prefix.
func lastAddr(prefix netip.Prefix) netip.Addr {
	base := prefix.Masked().Addr().As4()
	bits := prefix.Bits()
	hostBits := 32 - bits

	var mask uint32
	if hostBits > 0 {
		mask = (uint32(1) << uint(hostBits)) - 1
	}

	v := uint32(base[0])<<24 | uint32(base[1])<<16 | uint32(base[2])<<8 | uint32(base[3])
	v |= mask

	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// ContainsStrict reports whether addr is part of any of subnets, excluding
// network/broadcast addresses. Grounded on
// IPHelpers.is_ipv4_address_part_of_any_subnet.
func ContainsStrict(addr netip.Addr, subnets []netip.Prefix) bool {
	for _, subnet := range subnets {
		if subnet.Contains(addr) {
			return !isNetworkOrBroadcast(addr, subnet)
		}
	}
	return false
}

// ContainsLoose reports whether addr is part of any of subnets, including
// network/broadcast addresses. Grounded on
// IPHelpers.is_ipv4_address_part_of_any_subnet_loose.
func ContainsLoose(addr netip.Addr, subnets []netip.Prefix) bool {
	for _, subnet := range subnets {
		if subnet.Contains(addr) {
			return true
		}
	}
	return false
}
