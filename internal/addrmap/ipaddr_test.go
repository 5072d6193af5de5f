package addrmap

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsIPv6Substitutable(t *testing.T) {
	require.True(t, IsIPv6Substitutable(netip.MustParseAddr("2001:db8::1")))
	require.False(t, IsIPv6Substitutable(netip.MustParseAddr("::")))
	require.False(t, IsIPv6Substitutable(netip.MustParseAddr("::1")))
	require.False(t, IsIPv6Substitutable(netip.MustParseAddr("ff02::1")))
	require.False(t, IsIPv6Substitutable(netip.MustParseAddr("2001:db8::1").WithZone("eth0")))
}

func TestLastAddr(t *testing.T) {
	require.Equal(t, netip.MustParseAddr("192.0.2.255"), lastAddr(netip.MustParsePrefix("192.0.2.0/24")))
	require.Equal(t, netip.MustParseAddr("198.51.100.3"), lastAddr(netip.MustParsePrefix("198.51.100.0/30")))
}

func TestContainsStrictExcludesNetworkAndBroadcast(t *testing.T) {
	subnets := []netip.Prefix{netip.MustParsePrefix("198.51.100.0/30")}

	require.False(t, ContainsStrict(netip.MustParseAddr("198.51.100.0"), subnets))
	require.False(t, ContainsStrict(netip.MustParseAddr("198.51.100.3"), subnets))
	require.True(t, ContainsStrict(netip.MustParseAddr("198.51.100.1"), subnets))
	require.True(t, ContainsStrict(netip.MustParseAddr("198.51.100.2"), subnets))
}

func TestContainsLooseIncludesNetworkAndBroadcast(t *testing.T) {
	subnets := []netip.Prefix{netip.MustParsePrefix("198.51.100.0/30")}

	require.True(t, ContainsLoose(netip.MustParseAddr("198.51.100.0"), subnets))
	require.True(t, ContainsLoose(netip.MustParseAddr("198.51.100.3"), subnets))
}
