package dnsproto

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddrFromReverseNameIPv4(t *testing.T) {
	addr, err := addrFromReverseName("1.100.51.198.in-addr.arpa.")
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddr("198.51.100.1"), addr)
}

func TestAddrFromReverseNameIPv6(t *testing.T) {
	addr, err := addrFromReverseName("1.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.8.b.d.0.1.0.0.2.ip6.arpa.")
	require.NoError(t, err)
	require.Equal(t, netip.MustParseAddr("2001:db8::1"), addr)
}

func TestAddrFromReverseNameRejectsMalformed(t *testing.T) {
	_, err := addrFromReverseName("not-a-reverse-name.example.com.")
	require.Error(t, err)
}

func TestAddrFromReverseNameRejectsWrongLabelCount(t *testing.T) {
	_, err := addrFromReverseName("1.100.51.in-addr.arpa.")
	require.Error(t, err)
}
