package addrmap

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vitlabuda/get4for6-go/internal/xlaterr"
)

func testSubstituteMapper(t *testing.T, dynamic *DynamicOptions) *SubstituteMapper {
	t.Helper()
	clientSubnets := []netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")}
	substituteSubnets := []netip.Prefix{netip.MustParsePrefix("198.51.100.0/24")}
	static := []StaticAssignment{
		{V4: netip.MustParseAddr("198.51.100.1"), V6: netip.MustParseAddr("2001:db8::1")},
	}
	return NewSubstituteMapper(clientSubnets, substituteSubnets, static, dynamic)
}

func TestSubstituteMapperStaticHit(t *testing.T) {
	m := testSubstituteMapper(t, nil)
	client := netip.MustParseAddr("192.0.2.5")

	v6, lifetime, err := m.Map4to6(netip.MustParseAddr("198.51.100.1"), client)
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddr("2001:db8::1"), v6)
	require.Equal(t, 15*time.Second, lifetime)

	v4, _, err := m.Map6to4(netip.MustParseAddr("2001:db8::1"), client, false)
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddr("198.51.100.1"), v4)
}

func TestSubstituteMapperDynamicFallback(t *testing.T) {
	m := testSubstituteMapper(t, &DynamicOptions{MinLifetimeAfterLastHit: time.Minute})
	client := netip.MustParseAddr("192.0.2.5")

	v4, lifetime, err := m.Map6to4(netip.MustParseAddr("2001:db8::2"), client, true)
	require.NoError(t, err)
	require.NotEqual(t, netip.MustParseAddr("198.51.100.1"), v4)
	require.Equal(t, 10*time.Second, lifetime)

	v6, _, err := m.Map4to6(v4, client)
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddr("2001:db8::2"), v6)
}

func TestSubstituteMapperNoDynamicMeansNotFound(t *testing.T) {
	m := testSubstituteMapper(t, nil)
	client := netip.MustParseAddr("192.0.2.5")

	_, _, err := m.Map6to4(netip.MustParseAddr("2001:db8::2"), client, true)
	require.ErrorIs(t, err, xlaterr.ErrAssignmentNotFound)
}

func TestSubstituteMapperRejectsV4OutsidePools(t *testing.T) {
	m := testSubstituteMapper(t, nil)
	client := netip.MustParseAddr("192.0.2.5")

	_, _, err := m.Map4to6(netip.MustParseAddr("203.0.113.9"), client)
	require.ErrorIs(t, err, xlaterr.ErrSubstituteIPv4NotAllowed)
}

func TestSubstituteMapperPerClientIsolation(t *testing.T) {
	m := testSubstituteMapper(t, &DynamicOptions{MinLifetimeAfterLastHit: time.Minute})
	clientA := netip.MustParseAddr("192.0.2.5")
	clientB := netip.MustParseAddr("192.0.2.6")

	v6 := netip.MustParseAddr("2001:db8::2")
	v4a, _, err := m.Map6to4(v6, clientA, true)
	require.NoError(t, err)
	v4b, _, err := m.Map6to4(v6, clientB, true)
	require.NoError(t, err)

	require.Equal(t, v4a, v4b) // same fresh-iterator order for each independent mapper
	require.Len(t, m.dynamicByClient, 2)
}
