package dnsproto

import (
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func baseQuery() *dns.Msg {
	q := new(dns.Msg)
	q.SetQuestion("example.com.", dns.TypeA)
	q.RecursionDesired = true
	return q
}

func TestIsStructurallyValidAcceptsWellFormedResponse(t *testing.T) {
	query := baseQuery()
	resp := new(dns.Msg)
	resp.SetReply(query)
	resp.RecursionAvailable = true

	require.True(t, isStructurallyValid(query, resp))
}

func TestIsStructurallyValidRejectsTruncated(t *testing.T) {
	query := baseQuery()
	resp := new(dns.Msg)
	resp.SetReply(query)
	resp.RecursionAvailable = true
	resp.Truncated = true

	require.False(t, isStructurallyValid(query, resp))
}

func TestIsStructurallyValidRejectsMismatchedID(t *testing.T) {
	query := baseQuery()
	resp := new(dns.Msg)
	resp.SetReply(query)
	resp.RecursionAvailable = true
	resp.Id = query.Id + 1

	require.False(t, isStructurallyValid(query, resp))
}

func TestIsStructurallyValidRejectsUnsetRecursionAvailable(t *testing.T) {
	query := baseQuery()
	resp := new(dns.Msg)
	resp.SetReply(query)

	require.False(t, isStructurallyValid(query, resp))
}

func TestIsStructurallyValidRejectsNilResponse(t *testing.T) {
	require.False(t, isStructurallyValid(baseQuery(), nil))
}

func TestQueryUpstreamRejectsQueryWithoutRD(t *testing.T) {
	r := &Resolver{Upstreams: []Endpoint{{Host: "127.0.0.1", Port: 53}}}

	query := new(dns.Msg)
	query.SetQuestion("example.com.", dns.TypeA)
	query.RecursionDesired = false

	_, err := r.queryUpstream(query, false)
	require.Error(t, err)
}
