package dnsproto

import (
	"net/netip"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
	"github.com/vitlabuda/get4for6-go/internal/addrmap"
)

func TestHandleQueryRejectsANYWithServfail(t *testing.T) {
	clientSubnets := []netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")}
	mapper := addrmap.NewClientMapper(clientSubnets, netip.MustParsePrefix("64:ff9b::/96"))
	r := &Resolver{ClientMapper: mapper}

	query := new(dns.Msg)
	query.SetQuestion("example.com.", dns.TypeANY)

	resp := r.HandleQuery(query, netip.MustParseAddr("192.0.2.5"), false)
	require.Equal(t, dns.RcodeServerFailure, resp.Rcode)
}

func TestHandleQueryRejectsNonQueryOpcodeWithServfail(t *testing.T) {
	r := &Resolver{}

	query := new(dns.Msg)
	query.SetQuestion("example.com.", dns.TypeA)
	query.Opcode = dns.OpcodeNotify

	resp := r.HandleQuery(query, netip.MustParseAddr("192.0.2.5"), false)
	require.Equal(t, dns.RcodeServerFailure, resp.Rcode)
}

func TestHandleQueryRejectsWrongClassWithServfail(t *testing.T) {
	r := &Resolver{}

	query := new(dns.Msg)
	query.SetQuestion("example.com.", dns.TypeA)
	query.Question[0].Qclass = dns.ClassCHAOS

	resp := r.HandleQuery(query, netip.MustParseAddr("192.0.2.5"), false)
	require.Equal(t, dns.RcodeServerFailure, resp.Rcode)
}
