package addrmap

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vitlabuda/get4for6-go/internal/xlaterr"
)

func testClientMapper(t *testing.T) *ClientMapper {
	t.Helper()
	allowed := []netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")}
	prefix := netip.MustParsePrefix("64:ff9b::/96")
	return NewClientMapper(allowed, prefix)
}

func TestClientMapperRoundTrip(t *testing.T) {
	m := testClientMapper(t)

	v4 := netip.MustParseAddr("192.0.2.5")
	v6, err := m.Map4to6(v4)
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddr("64:ff9b::192.0.2.5"), v6)

	back, err := m.Map6to4(v6)
	require.NoError(t, err)
	require.Equal(t, v4, back)
}

func TestClientMapperRejectsDisallowedV4(t *testing.T) {
	m := testClientMapper(t)

	_, err := m.Map4to6(netip.MustParseAddr("203.0.113.1"))
	require.ErrorIs(t, err, xlaterr.ErrClientNotAllowed)
}

func TestClientMapperRejectsWrongPrefix(t *testing.T) {
	m := testClientMapper(t)

	_, err := m.Map6to4(netip.MustParseAddr("2001:db8::192.0.2.5"))
	require.ErrorIs(t, err, xlaterr.ErrWrongPrefix)
}

func TestClientMapperRejectsScopeID(t *testing.T) {
	m := testClientMapper(t)

	withZone := netip.MustParseAddr("64:ff9b::192.0.2.5").WithZone("eth0")
	_, err := m.Map6to4(withZone)
	require.ErrorIs(t, err, xlaterr.ErrScopeIDPresent)
}

func TestClientMapperExcludesNetworkAndBroadcast(t *testing.T) {
	allowed := []netip.Prefix{netip.MustParsePrefix("192.0.2.0/29")}
	m := NewClientMapper(allowed, netip.MustParsePrefix("64:ff9b::/96"))

	_, err := m.Map4to6(netip.MustParseAddr("192.0.2.0"))
	require.ErrorIs(t, err, xlaterr.ErrClientNotAllowed)

	_, err = m.Map4to6(netip.MustParseAddr("192.0.2.7"))
	require.ErrorIs(t, err, xlaterr.ErrClientNotAllowed)

	_, err = m.Map4to6(netip.MustParseAddr("192.0.2.3"))
	require.NoError(t, err)
}
