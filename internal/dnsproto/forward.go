package dnsproto

import (
	"net/netip"

	"github.com/miekg/dns"
)

// resolveForwardA implements spec §4.5's A-record branch: forward
// verbatim, and only if the target has no A records of its own, synthesize
// one from its AAAA records via the substitute mapper. Grounded on
// _DNSForwardQueryResolver._resolve_ipv4_query.
func (r *Resolver) resolveForwardA(query *dns.Msg, validClientV4 netip.Addr, overTCP bool) (*dns.Msg, error) {
	resp, err := r.queryUpstream(query, overTCP)
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return resp, nil
	}

	for _, rr := range resp.Answer {
		if rr.Header().Class == dns.ClassINET && rr.Header().Rrtype == dns.TypeA {
			return resp, nil
		}
	}

	aaaaQuery := new(dns.Msg)
	aaaaQuery.SetQuestion(query.Question[0].Name, dns.TypeAAAA)
	aaaaQuery.RecursionDesired = query.RecursionDesired

	aaaaResp, err := r.queryUpstream(aaaaQuery, overTCP)
	if err != nil {
		return nil, err
	}
	if aaaaResp.Rcode != dns.RcodeSuccess {
		return nil, fail("aaaa lookup for confirmed name failed")
	}

	var aaaaRRs []*dns.AAAA
	for _, rr := range aaaaResp.Answer {
		if aaaa, ok := rr.(*dns.AAAA); ok && rr.Header().Class == dns.ClassINET {
			aaaaRRs = append(aaaaRRs, aaaa)
		}
	}
	if len(aaaaRRs) == 0 {
		return resp, nil
	}

	synthName := aaaaRRs[0].Header().Name
	synthTTL := aaaaRRs[0].Header().Ttl

	aRRset, err := r.substituteAAAARRset(aaaaRRs, validClientV4)
	if err != nil {
		return nil, err
	}

	out := new(dns.Msg)
	out.SetReply(query)
	out.Rcode = dns.RcodeSuccess
	out.RecursionAvailable = resp.RecursionAvailable
	out.Answer = resp.Answer
	out.AuthenticatedData = false

	ttl := minTTL(synthTTL, aRRset.lifetimeSeconds)
	for _, v4 := range aRRset.addrs {
		out.Answer = append(out.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: synthName, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
			A:   v4.AsSlice(),
		})
	}

	out.Ns = filterOutSOA(resp.Ns)

	return out, nil
}

func filterOutSOA(rrs []dns.RR) []dns.RR {
	out := make([]dns.RR, 0, len(rrs))
	for _, rr := range rrs {
		if rr.Header().Class == dns.ClassINET && rr.Header().Rrtype == dns.TypeSOA {
			continue
		}
		out = append(out, rr)
	}
	return out
}

func minTTL(ttl uint32, lifetimeSeconds uint32) uint32 {
	if lifetimeSeconds < ttl {
		return lifetimeSeconds
	}
	return ttl
}

type substitutedAddrs struct {
	addrs           []netip.Addr
	lifetimeSeconds uint32
}

// substituteAAAARRset performs the two-pass substitution spec §4.5
// describes: first pass without creation (preserving scarce space for
// already-assigned addresses), second pass with creation bounded by
// max_newly_assigned_substitute_addrs_per_response. Grounded on
// _DNSForwardQueryResolver._generate_ipv4_rrset_by_substituting_ipv6_rrset.
func (r *Resolver) substituteAAAARRset(aaaaRRs []*dns.AAAA, validClientV4 netip.Addr) (*substitutedAddrs, error) {
	var ipv6s []netip.Addr
	for _, rr := range aaaaRRs {
		addr, ok := netip.AddrFromSlice(rr.AAAA)
		if !ok {
			continue
		}
		ipv6s = append(ipv6s, addr)
	}

	var v4s []netip.Addr
	minLifetime := uint32(aaaaRRs[0].Header().Ttl)

	var unsubstituted []netip.Addr
	for _, v6 := range ipv6s {
		v4, lifetime, err := r.SubstituteMapper.Map6to4(v6, validClientV4, false)
		if err != nil {
			unsubstituted = append(unsubstituted, v6)
			continue
		}
		v4s = append(v4s, v4)
		if s := uint32(lifetime.Seconds()); s < minLifetime {
			minLifetime = s
		}
	}

	remaining := r.MaxNewlyAssignedSubstituteAddrsPerResponse
	for i := 0; i < remaining && i < len(unsubstituted); i++ {
		v4, lifetime, err := r.SubstituteMapper.Map6to4(unsubstituted[i], validClientV4, true)
		if err != nil {
			continue
		}
		v4s = append(v4s, v4)
		if s := uint32(lifetime.Seconds()); s < minLifetime {
			minLifetime = s
		}
	}

	if len(v4s) == 0 {
		return nil, fail("no substitute ipv4 addresses could be acquired")
	}

	return &substitutedAddrs{addrs: v4s, lifetimeSeconds: minLifetime}, nil
}
