package dnsproto

import (
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// queryUpstream tries each configured upstream in order until one returns a
// structurally valid response, per spec §4.8. Grounded on
// _DNSUpstreamQuerier.perform_upstream_query /
// _DNSUpstreamQuerier._perform_upstream_query.
func (r *Resolver) queryUpstream(query *dns.Msg, overTCP bool) (*dns.Msg, error) {
	if !query.RecursionDesired {
		return nil, fail("outgoing upstream query must have RD set")
	}

	for _, upstream := range r.Upstreams {
		resp, err := r.exchangeWithOne(query, upstream, overTCP)
		if err != nil {
			continue
		}
		if !isStructurallyValid(query, resp) {
			continue
		}

		resp.Authoritative = false // no longer authoritative once forwarded

		return resp, nil
	}

	return nil, fail("all upstreams exhausted")
}

func (r *Resolver) exchangeWithOne(query *dns.Msg, upstream Endpoint, overTCP bool) (*dns.Msg, error) {
	addr := net.JoinHostPort(upstream.Host, fmt.Sprintf("%d", upstream.Port))

	if overTCP {
		client := &dns.Client{Net: "tcp", Timeout: r.UpstreamQueryTimeout}
		resp, _, err := client.Exchange(query, addr)
		return resp, err
	}

	udpClient := &dns.Client{Net: "udp", Timeout: r.UpstreamQueryTimeout}
	resp, _, err := udpClient.Exchange(query, addr)
	if err != nil {
		return nil, err
	}

	if resp.Truncated {
		tcpClient := &dns.Client{Net: "tcp", Timeout: r.UpstreamQueryTimeout}
		resp, _, err = tcpClient.Exchange(query, addr)
	}

	return resp, err
}

// isStructurallyValid mirrors the checklist in
// _DNSUpstreamQuerier._perform_upstream_query: rcode NOERROR or NXDOMAIN,
// id/opcode/question-count match, QR set, TC clear, RA set, RD echoes the
// query, xfr (AXFR/IXFR question type) unchanged.
func isStructurallyValid(query, resp *dns.Msg) bool {
	if resp == nil {
		return false
	}
	if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
		return false
	}
	if resp.Id != query.Id {
		return false
	}
	if resp.Opcode != query.Opcode {
		return false
	}
	if !resp.Response {
		return false
	}
	if resp.Truncated {
		return false
	}
	if resp.RecursionDesired != query.RecursionDesired {
		return false
	}
	if !resp.RecursionAvailable {
		return false
	}
	if len(resp.Question) != len(query.Question) {
		return false
	}
	if isTransferType(query) != isTransferType(resp) {
		return false
	}

	return true
}

func isTransferType(m *dns.Msg) bool {
	for _, q := range m.Question {
		if q.Qtype == dns.TypeAXFR || q.Qtype == dns.TypeIXFR {
			return true
		}
	}
	return false
}
