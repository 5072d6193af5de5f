// Package dnsproto implements the DNS-facing half of the translator: the
// forward A/AAAA resolver (spec §4.5), the synthetic auxiliary zone (§4.6),
// the reverse PTR resolver (§4.7), the upstream querier (§4.8), and the
// UDP/TCP listener with admission control (§5, §6). Grounded
// message-for-message on original_source/src/get4for6/modules/m_dns/**, and
// on the teacher's internal/dnsforward/dns64.go for the miekg/dns idiom of
// building and filtering dns.RR slices.
package dnsproto

import (
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"github.com/vitlabuda/get4for6-go/internal/addrmap"
)

// Resolver holds everything a query handler needs: the address-mapping
// engine and the DNS-specific configuration. One Resolver is shared by
// every connection; all mutation happens inside addrmap, which owns its own
// locking.
type Resolver struct {
	ClientMapper     *addrmap.ClientMapper
	SubstituteMapper *addrmap.SubstituteMapper

	Upstreams                              []Endpoint
	UpstreamQueryTimeout                    time.Duration
	MaxNewlyAssignedSubstituteAddrsPerResponse int
	Auxiliary                               *AuxiliaryConfig
}

// Endpoint is a resolvable host/port pair, mirroring internal/config's type
// without importing it (dnsproto must not depend on the config package's
// YAML concerns).
type Endpoint struct {
	Host string
	Port uint16
}

// AuxiliaryConfig is the validated dns.auxiliary_names section.
type AuxiliaryConfig struct {
	Domain     string // fully-qualified, trailing dot
	UseForRDNS bool
	ZoneNSIPs  []netip.Addr
}

// resolutionFailure marks a condition the caller must turn into SERVFAIL,
// mirroring _DNSResolutionFailureInternalExc: every one of these is a
// transient condition from the client's perspective, never NXDOMAIN.
type resolutionFailure struct{ reason string }

func (e *resolutionFailure) Error() string { return e.reason }

func fail(reason string) error { return &resolutionFailure{reason: reason} }

// HandleQuery dispatches a single, already-structurally-validated query
// (exactly one question, no QR/AA/TC/RA, rcode 0, not AXFR/IXFR) on behalf
// of validClientV4. Grounded on _DNSForwardQueryResolver.resolve_forward_query
// / _DNSReverseQueryResolver.resolve_reverse_query and, for the checks below,
// on _resolve_dns_query's own preconditions: an opcode other than QUERY, a
// question class other than IN, or the ANY query type are all answered with
// SERVFAIL rather than being resolved.
func (r *Resolver) HandleQuery(query *dns.Msg, validClientV4 netip.Addr, overTCP bool) *dns.Msg {
	question := query.Question[0]

	var resp *dns.Msg
	var err error

	switch {
	case query.Opcode != dns.OpcodeQuery:
		err = fail("opcode is not QUERY")
	case question.Qclass != dns.ClassINET:
		err = fail("question class is not IN")
	case question.Qtype == dns.TypeANY:
		err = fail("ANY queries are not resolved")
	case question.Qtype == dns.TypePTR:
		resp, err = r.resolveReverse(query, validClientV4, overTCP)
	default:
		if r.Auxiliary != nil && underAuxiliaryDomain(question.Name, r.Auxiliary.Domain) {
			resp, err = r.resolveAuxiliary(query, validClientV4)
		} else if question.Qtype == dns.TypeA {
			resp, err = r.resolveForwardA(query, validClientV4, overTCP)
		} else {
			resp, err = r.queryUpstream(query, overTCP)
		}
	}

	if err != nil {
		resp = new(dns.Msg)
		resp.SetRcode(query, dns.RcodeServerFailure)
	}

	return resp
}

func underAuxiliaryDomain(qname, domain string) bool {
	qname = dns.CanonicalName(qname)
	domain = dns.CanonicalName(domain)
	return qname == domain || dns.IsSubDomain(domain, qname)
}
