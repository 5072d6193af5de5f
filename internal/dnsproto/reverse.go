package dnsproto

import (
	"net/netip"
	"strings"

	"github.com/miekg/dns"

	"github.com/vitlabuda/get4for6-go/internal/addrmap"
)

// resolveReverse implements spec §4.7: PTR queries for addresses inside
// the substitute pool are answered either from the auxiliary zone or by
// chasing the real IPv6's PTR record upstream; everything else is proxied
// as-is. Grounded on _DNSReverseQueryResolver.resolve_reverse_query.
func (r *Resolver) resolveReverse(query *dns.Msg, validClientV4 netip.Addr, overTCP bool) (*dns.Msg, error) {
	reverseAddr, err := addrFromReverseName(query.Question[0].Name)
	if err != nil {
		return nil, err
	}

	if reverseAddr.Is4() && addrmap.ContainsLoose(reverseAddr, r.substituteSubnetsHint()) {
		return r.reverseSubstituted(query, reverseAddr, validClientV4, overTCP)
	}

	return r.queryUpstream(query, overTCP)
}

// substituteSubnetsHint exposes the substitute subnets the reverse resolver
// needs to decide whether a PTR question names an address in the
// substitute pool, without requiring dnsproto to duplicate
// SubstituteMapper's internal bookkeeping.
func (r *Resolver) substituteSubnetsHint() []netip.Prefix {
	return r.SubstituteMapper.SubstituteSubnets()
}

func addrFromReverseName(name string) (netip.Addr, error) {
	name = dns.CanonicalName(name)

	if strings.HasSuffix(name, ".in-addr.arpa.") {
		return parseInAddrArpa(name)
	}
	if strings.HasSuffix(name, ".ip6.arpa.") {
		return parseIP6Arpa(name)
	}
	return netip.Addr{}, fail("reverse query name is not in-addr.arpa or ip6.arpa")
}

func parseInAddrArpa(name string) (netip.Addr, error) {
	labels := dns.SplitDomainName(strings.TrimSuffix(name, ".in-addr.arpa."))
	if len(labels) != 4 {
		return netip.Addr{}, fail("malformed in-addr.arpa name")
	}
	// Labels are octets in reverse order.
	text := labels[3] + "." + labels[2] + "." + labels[1] + "." + labels[0]
	addr, err := netip.ParseAddr(text)
	if err != nil {
		return netip.Addr{}, fail("malformed in-addr.arpa octets")
	}
	return addr, nil
}

func parseIP6Arpa(name string) (netip.Addr, error) {
	labels := dns.SplitDomainName(strings.TrimSuffix(name, ".ip6.arpa."))
	if len(labels) != 32 {
		return netip.Addr{}, fail("malformed ip6.arpa name")
	}

	var b [16]byte
	for i := 0; i < 32; i++ {
		nibble, err := parseHexNibble(labels[31-i])
		if err != nil {
			return netip.Addr{}, fail("malformed ip6.arpa nibble")
		}
		if i%2 == 0 {
			b[i/2] |= nibble << 4
		} else {
			b[i/2] |= nibble
		}
	}
	return netip.AddrFrom16(b), nil
}

func parseHexNibble(label string) (byte, error) {
	if len(label) != 1 {
		return 0, fail("ip6.arpa label must be a single hex digit")
	}
	c := label[0]
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, fail("invalid hex digit in ip6.arpa label")
	}
}

// reverseSubstituted answers a PTR query for a substitute IPv4 address,
// either authoritatively from the auxiliary zone or by proxying a PTR
// lookup for the real IPv6 address upstream. Grounded on
// _DNSReverseQueryResolver._perform_reverse_query_for_substituted_ipv6_address.
func (r *Resolver) reverseSubstituted(query *dns.Msg, substituteV4 netip.Addr, validClientV4 netip.Addr, overTCP bool) (*dns.Msg, error) {
	substitutedV6, lifetime, err := r.SubstituteMapper.Map4to6(substituteV4, validClientV4)
	if err != nil {
		return nil, fail("reverse lookup of substitute address failed: " + err.Error())
	}

	var ptrNames []string
	ttl := uint32(lifetime.Seconds())
	authoritative := false

	if r.Auxiliary != nil && r.Auxiliary.UseForRDNS {
		ptrNames = []string{generateIPv6PTRName(substitutedV6, r.Auxiliary.Domain)}
		authoritative = true
	} else {
		realName, err := dns.ReverseAddr(substitutedV6.String())
		if err != nil {
			return nil, fail("could not build reverse name for real ipv6 address")
		}

		substituteQuery := new(dns.Msg)
		substituteQuery.SetQuestion(realName, dns.TypePTR)
		substituteQuery.RecursionDesired = query.RecursionDesired

		upstreamResp, err := r.queryUpstream(substituteQuery, overTCP)
		if err != nil {
			return nil, err
		}
		if upstreamResp.Rcode != dns.RcodeSuccess {
			return nil, fail("upstream ptr lookup for real address did not return NOERROR")
		}

		var ptrRRset []*dns.PTR
		for _, rr := range upstreamResp.Answer {
			if ptr, ok := rr.(*dns.PTR); ok && rr.Header().Class == dns.ClassINET {
				ptrRRset = append(ptrRRset, ptr)
			}
		}
		if len(ptrRRset) == 0 {
			return nil, fail("upstream ptr response had no PTR records")
		}

		if ptrRRset[0].Header().Ttl < ttl {
			ttl = ptrRRset[0].Header().Ttl
		}
		for _, ptr := range ptrRRset {
			ptrNames = append(ptrNames, ptr.Ptr)
		}
	}

	out := new(dns.Msg)
	out.SetReply(query)
	out.Rcode = dns.RcodeSuccess
	out.RecursionAvailable = true
	if authoritative {
		out.Authoritative = true
	}

	for _, target := range ptrNames {
		out.Answer = append(out.Answer, &dns.PTR{
			Hdr: dns.RR_Header{Name: query.Question[0].Name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: ttl},
			Ptr: target,
		})
	}

	return out, nil
}
