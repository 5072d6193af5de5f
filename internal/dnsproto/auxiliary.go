package dnsproto

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// Fixed shape of the synthetic auxiliary zone, grounded on
// _DNSAuxiliaryNameQueryResolver's module-level constants.
const (
	auxiliary4to6Subdomain  = "r"
	auxiliaryNSSubdomain    = "ns"
	auxiliarySOAEmailLocal  = "nobody"
	auxiliarySOASerial      = 1
	auxiliarySOARefresh     = 5
	auxiliarySOARetry       = 3
	auxiliarySOAExpire      = 10
	auxiliarySOANegativeTTL = 0
)

// resolveAuxiliary answers queries under the configured auxiliary domain:
// SOA/NS at the apex, A/AAAA for the "ns" label, AAAA for dashed-IPv4
// 2-label names (forward translation), A for dashed-IPv6 1-label names
// (reverse-style lookup used by PTR delegation). Grounded on
// _DNSAuxiliaryNameQueryResolver.resolve_auxiliary_name_query.
func (r *Resolver) resolveAuxiliary(query *dns.Msg, validClientV4 netip.Addr) (*dns.Msg, error) {
	question := query.Question[0]

	labels, err := subdomainLabels(question.Name, r.Auxiliary.Domain)
	if err != nil {
		return nil, err
	}

	var rrs []dns.RR
	nxdomain := false

	switch len(labels) {
	case 0:
		switch question.Qtype {
		case dns.TypeSOA:
			rrs = []dns.RR{r.auxiliarySOA(question.Name)}
		case dns.TypeNS:
			rrs = []dns.RR{&dns.NS{
				Hdr: dns.RR_Header{Name: question.Name, Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: 60},
				Ns:  dns.CanonicalName(auxiliaryNSSubdomain + "." + r.Auxiliary.Domain),
			}}
		}

	case 1:
		if strings.EqualFold(labels[0], auxiliaryNSSubdomain) {
			rrs = r.auxiliaryNSAddrRRs(question.Name, question.Qtype)
		} else if question.Qtype == dns.TypeA {
			// The label is a dashed IPv6 address, as produced by
			// generateIPv6PTRName for rdns delegation; resolve it back to
			// the client's substitute IPv4 address.
			rrs, err = r.auxiliary6to4RRs(question.Name, labels[0], validClientV4)
			if err != nil {
				return nil, err
			}
		}

	case 2:
		// labels[0] is the dashed IPv4 (farthest from the domain apex),
		// labels[1] must be "r" (closest to the apex) for this to be a
		// forward-translation name.
		if !strings.EqualFold(labels[1], auxiliary4to6Subdomain) {
			nxdomain = true
			break
		}
		if question.Qtype == dns.TypeAAAA {
			rrs, err = r.auxiliary4to6RRs(question.Name, labels[0], validClientV4)
			if err != nil {
				return nil, err
			}
		}

	default:
		nxdomain = true
	}

	out := new(dns.Msg)
	out.SetReply(query)
	out.Authoritative = true

	if nxdomain {
		out.Rcode = dns.RcodeNameError
		out.Ns = []dns.RR{r.auxiliarySOA(r.Auxiliary.Domain)}
		return out, nil
	}

	out.Rcode = dns.RcodeSuccess
	if len(rrs) == 0 {
		out.Ns = []dns.RR{r.auxiliarySOA(r.Auxiliary.Domain)}
		return out, nil
	}

	out.Answer = rrs
	return out, nil
}

// subdomainLabels splits qname's labels lying strictly below the configured
// domain off of it, in the same left-to-right (leaf-first) order they
// appear in the name text, so for "1-2-3-4.r.<domain>" it returns
// ["1-2-3-4", "r"]. Returns an internal failure if qname is not actually
// under domain, which should never happen since the caller already checked
// that.
func subdomainLabels(qname, domain string) ([]string, error) {
	qname = dns.CanonicalName(qname)
	domain = dns.CanonicalName(domain)

	if qname == domain {
		return nil, nil
	}

	qLabels := dns.SplitDomainName(qname)
	dLabels := dns.SplitDomainName(domain)
	if len(qLabels) <= len(dLabels) {
		return nil, fail("auxiliary query name shorter than domain")
	}

	return qLabels[:len(qLabels)-len(dLabels)], nil
}

func (r *Resolver) auxiliarySOA(name string) *dns.SOA {
	domain := dns.CanonicalName(r.Auxiliary.Domain)
	return &dns.SOA{
		Hdr:     dns.RR_Header{Name: dns.CanonicalName(name), Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: auxiliarySOANegativeTTL},
		Ns:      dns.CanonicalName(auxiliaryNSSubdomain + "." + domain),
		Mbox:    dns.CanonicalName(auxiliarySOAEmailLocal + "." + domain),
		Serial:  auxiliarySOASerial,
		Refresh: auxiliarySOARefresh,
		Retry:   auxiliarySOARetry,
		Expire:  auxiliarySOAExpire,
		Minttl:  auxiliarySOANegativeTTL,
	}
}

func (r *Resolver) auxiliaryNSAddrRRs(name string, qtype uint16) []dns.RR {
	var rrs []dns.RR
	for _, ip := range r.Auxiliary.ZoneNSIPs {
		switch {
		case ip.Is4() && qtype == dns.TypeA:
			rrs = append(rrs, &dns.A{
				Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   ip.AsSlice(),
			})
		case ip.Is6() && qtype == dns.TypeAAAA:
			rrs = append(rrs, &dns.AAAA{
				Hdr:  dns.RR_Header{Name: name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: 60},
				AAAA: ip.AsSlice(),
			})
		}
	}
	return rrs
}

// auxiliary4to6RRs resolves a "<dashed-ipv4>.r.<domain>" name to an AAAA
// record holding the client's translated address.
func (r *Resolver) auxiliary4to6RRs(name, dashedV4 string, validClientV4 netip.Addr) ([]dns.RR, error) {
	v4, err := netip.ParseAddr(strings.ReplaceAll(dashedV4, "-", "."))
	if err != nil {
		return nil, nil
	}

	v6, lifetime, err := r.SubstituteMapper.Map4to6(v4, validClientV4)
	if err != nil {
		return nil, fail("auxiliary 4to6 lookup failed: " + err.Error())
	}

	return []dns.RR{&dns.AAAA{
		Hdr:  dns.RR_Header{Name: name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: uint32(lifetime.Seconds())},
		AAAA: v6.AsSlice(),
	}}, nil
}

// auxiliary6to4RRs resolves a "<dashed-ipv6>.<domain>" name, used as the
// PTR target when rdns delegates into this zone.
func (r *Resolver) auxiliary6to4RRs(name, dashedV6 string, validClientV4 netip.Addr) ([]dns.RR, error) {
	v6, err := netip.ParseAddr(strings.ReplaceAll(dashedV6, "-", ":"))
	if err != nil {
		return nil, nil
	}

	v4, lifetime, err := r.SubstituteMapper.Map6to4(v6, validClientV4, true)
	if err != nil {
		return nil, fail("auxiliary 6to4 lookup failed: " + err.Error())
	}

	return []dns.RR{&dns.A{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: uint32(lifetime.Seconds())},
		A:   v4.AsSlice(),
	}}, nil
}

// generateIPv6PTRName builds the single-label auxiliary-zone name used as a
// PTR target for a substituted IPv6 address, e.g.
// "2001-0db8-0000-0000-0000-0000-0000-0001.example.". Grounded on
// _DNSAuxiliaryNameQueryResolver.generate_ipv6_ptr_name.
func generateIPv6PTRName(v6 netip.Addr, domain string) string {
	return dns.CanonicalName(explodeIPv6Dashed(v6) + "." + domain)
}

// explodeIPv6Dashed renders the fully expanded, zero-padded hextets of an
// IPv6 address joined with hyphens instead of colons, mirroring Python's
// ipaddress.IPv6Address.exploded.
func explodeIPv6Dashed(v6 netip.Addr) string {
	b := v6.As16()
	groups := make([]string, 8)
	for i := 0; i < 8; i++ {
		groups[i] = strconv.FormatUint(uint64(b[i*2])<<8|uint64(b[i*2+1]), 16)
		for len(groups[i]) < 4 {
			groups[i] = "0" + groups[i]
		}
	}
	return strings.Join(groups, "-")
}
