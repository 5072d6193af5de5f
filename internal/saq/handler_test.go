package saq

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vitlabuda/get4for6-go/internal/addrmap"
)

func testHandler(t *testing.T) *Handler {
	t.Helper()
	clientSubnets := []netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")}
	substituteSubnets := []netip.Prefix{netip.MustParsePrefix("198.51.100.0/24")}

	return &Handler{
		SubstituteMapper: addrmap.NewSubstituteMapper(
			clientSubnets,
			substituteSubnets,
			[]addrmap.StaticAssignment{
				{V4: netip.MustParseAddr("198.51.100.9"), V6: netip.MustParseAddr("2001:db8::9")},
			},
			&addrmap.DynamicOptions{MinLifetimeAfterLastHit: time.Minute},
		),
	}
}

func TestHandleBinary4to6(t *testing.T) {
	h := testHandler(t)
	client := netip.MustParseAddr("192.0.2.5")

	resp := h.HandleBinary(netip.MustParseAddr("198.51.100.9").AsSlice(), client)
	require.NotNil(t, resp)
	require.Len(t, resp, 16)

	addr := netip.AddrFrom16([16]byte(resp))
	require.True(t, addr.Is6())
}

func TestHandleBinary6to4(t *testing.T) {
	h := testHandler(t)
	client := netip.MustParseAddr("192.0.2.5")

	v6, _, err := h.SubstituteMapper.Map4to6(netip.MustParseAddr("198.51.100.9"), client)
	require.NoError(t, err)

	resp := h.HandleBinary(v6.AsSlice(), client)
	require.NotNil(t, resp)
	require.Equal(t, net4(198, 51, 100, 9), resp)
}

func net4(a, b, c, d byte) []byte {
	return []byte{a, b, c, d}
}

func TestHandleBinaryRejectsWrongLength(t *testing.T) {
	h := testHandler(t)
	client := netip.MustParseAddr("192.0.2.5")

	resp := h.HandleBinary([]byte{1, 2, 3}, client)
	require.Nil(t, resp)
}

func TestHandlePlaintextRoundTrip(t *testing.T) {
	h := testHandler(t)
	client := netip.MustParseAddr("192.0.2.5")

	resp := h.HandlePlaintext([]byte("198.51.100.9\n"), client)
	require.NotNil(t, resp)

	v6, err := netip.ParseAddr(string(resp))
	require.NoError(t, err)
	require.True(t, v6.Is6())
}

func TestHandlePlaintextRejectsGarbage(t *testing.T) {
	h := testHandler(t)
	client := netip.MustParseAddr("192.0.2.5")

	resp := h.HandlePlaintext([]byte("not an ip"), client)
	require.Nil(t, resp)
}

func TestHandleRejectsUnsubstitutableAddress(t *testing.T) {
	h := testHandler(t)
	client := netip.MustParseAddr("192.0.2.5")

	// Outside the configured substitute pool -> Map4to6 fails -> silent drop.
	resp := h.HandleBinary(netip.MustParseAddr("203.0.113.9").AsSlice(), client)
	require.Nil(t, resp)
}
