package dnsproto

import (
	"net/netip"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestSubdomainLabelsApex(t *testing.T) {
	labels, err := subdomainLabels("example.com.", "example.com.")
	require.NoError(t, err)
	require.Empty(t, labels)
}

func TestSubdomainLabelsForward(t *testing.T) {
	labels, err := subdomainLabels("198-51-100-1.r.example.com.", "example.com.")
	require.NoError(t, err)
	require.Equal(t, []string{"198-51-100-1", "r"}, labels)
}

func TestSubdomainLabelsNS(t *testing.T) {
	labels, err := subdomainLabels("ns.example.com.", "example.com.")
	require.NoError(t, err)
	require.Equal(t, []string{"ns"}, labels)
}

func TestSubdomainLabelsRejectsNameOutsideDomain(t *testing.T) {
	_, err := subdomainLabels("com.", "example.com.")
	require.Error(t, err)
}

func TestExplodeIPv6Dashed(t *testing.T) {
	got := explodeIPv6Dashed(netip.MustParseAddr("2001:db8::1"))
	require.Equal(t, "2001-0db8-0000-0000-0000-0000-0000-0001", got)
}

func TestGenerateIPv6PTRName(t *testing.T) {
	name := generateIPv6PTRName(netip.MustParseAddr("2001:db8::1"), "example.com.")
	require.Equal(t, dns.CanonicalName("2001-0db8-0000-0000-0000-0000-0000-0001.example.com."), name)
}
