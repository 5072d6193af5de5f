package addrmap

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vitlabuda/get4for6-go/internal/xlaterr"
)

func TestDynamicMapperRoundTrip(t *testing.T) {
	subnets := []netip.Prefix{netip.MustParsePrefix("198.51.100.0/24")}
	m := NewDynamicMapper(subnets, nil, 60*time.Second)

	v6 := netip.MustParseAddr("2001:db8::1")
	v4, err := m.FindOrCreate6to4(v6, true)
	require.NoError(t, err)
	require.True(t, ContainsStrict(v4, subnets))

	gotV6, err := m.Find4to6(v4)
	require.NoError(t, err)
	require.Equal(t, v6, gotV6)

	again, err := m.FindOrCreate6to4(v6, true)
	require.NoError(t, err)
	require.Equal(t, v4, again)
}

func TestDynamicMapperMissWithoutCreation(t *testing.T) {
	subnets := []netip.Prefix{netip.MustParsePrefix("198.51.100.0/24")}
	m := NewDynamicMapper(subnets, nil, 60*time.Second)

	_, err := m.FindOrCreate6to4(netip.MustParseAddr("2001:db8::1"), false)
	require.ErrorIs(t, err, xlaterr.ErrAssignmentNotFound)

	_, err = m.Find4to6(netip.MustParseAddr("198.51.100.5"))
	require.ErrorIs(t, err, xlaterr.ErrAssignmentNotFound)
}

func TestDynamicMapperSpaceFullThenEvicts(t *testing.T) {
	// /30: usable host count 2 after excluding network and broadcast.
	subnets := []netip.Prefix{netip.MustParsePrefix("198.51.100.0/30")}
	m := NewDynamicMapper(subnets, nil, 0)

	v6a := netip.MustParseAddr("2001:db8::1")
	v6b := netip.MustParseAddr("2001:db8::2")
	v6c := netip.MustParseAddr("2001:db8::3")

	v4a, err := m.FindOrCreate6to4(v6a, true)
	require.NoError(t, err)
	v4b, err := m.FindOrCreate6to4(v6b, true)
	require.NoError(t, err)
	require.NotEqual(t, v4a, v4b)

	// min lifetime 0 means eviction is immediately permitted; bump it to
	// exercise SubstituteSpaceFull deterministically instead.
	m2 := NewDynamicMapper(subnets, nil, time.Hour)
	_, err = m2.FindOrCreate6to4(v6a, true)
	require.NoError(t, err)
	_, err = m2.FindOrCreate6to4(v6b, true)
	require.NoError(t, err)

	_, err = m2.FindOrCreate6to4(v6c, true)
	require.ErrorIs(t, err, xlaterr.ErrSubstituteSpaceFull)

	_, err = m.FindOrCreate6to4(v6c, true)
	require.NoError(t, err)
}

func TestDynamicMapperExcludesStaticAndNetworkBroadcast(t *testing.T) {
	subnets := []netip.Prefix{netip.MustParsePrefix("198.51.100.0/30")}
	doNotAssign := map[netip.Addr]bool{
		netip.MustParseAddr("198.51.100.1"): true,
	}
	m := NewDynamicMapper(subnets, doNotAssign, time.Hour)

	v4, err := m.FindOrCreate6to4(netip.MustParseAddr("2001:db8::1"), true)
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddr("198.51.100.2"), v4)
}

func TestExternalCacheLifetimeClampedToTen(t *testing.T) {
	m := NewDynamicMapper(nil, nil, time.Hour)
	require.Equal(t, 10*time.Second, m.ExternalCacheLifetime())
}

func TestExternalCacheLifetimeFormula(t *testing.T) {
	// 60s/3 - 1s = 19s, clamped to the 10s limit.
	m := NewDynamicMapper(nil, nil, 60*time.Second)
	require.Equal(t, 10*time.Second, m.ExternalCacheLifetime())
}

func TestIterAssignmentsAscendingOrder(t *testing.T) {
	subnets := []netip.Prefix{netip.MustParsePrefix("198.51.100.0/24")}
	m := NewDynamicMapper(subnets, nil, time.Minute)

	_, err := m.FindOrCreate6to4(netip.MustParseAddr("2001:db8::1"), true)
	require.NoError(t, err)
	_, err = m.FindOrCreate6to4(netip.MustParseAddr("2001:db8::2"), true)
	require.NoError(t, err)

	// Re-hitting the first assignment should move it to the back.
	_, err = m.Find4to6(netip.MustParseAddr("198.51.100.1"))
	require.NoError(t, err)

	var order []netip.Addr
	for a := range m.IterAssignments() {
		order = append(order, a.V6)
	}

	require.Equal(t, []netip.Addr{
		netip.MustParseAddr("2001:db8::2"),
		netip.MustParseAddr("2001:db8::1"),
	}, order)
}
