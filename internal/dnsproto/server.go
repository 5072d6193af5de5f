package dnsproto

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"github.com/miekg/dns"
	"golang.org/x/sync/semaphore"

	"github.com/vitlabuda/get4for6-go/internal/applog"
	"github.com/vitlabuda/get4for6-go/internal/xlaterr"
)

// Server runs a UDP and TCP listener per configured endpoint, admission
// controlled by a single max_simultaneous_queries semaphore shared across
// all of them, per spec §5/§6. Grounded on DNSModule.py's pairing of one
// UDP and one TCP server per listen_on entry, both guarded by the same
// threading.BoundedSemaphore.
type Server struct {
	Resolver   *Resolver
	Endpoints  []Endpoint
	MaxQueries int
	TCPTimeout time.Duration

	sem     *semaphore.Weighted
	servers []*dns.Server
}

// Start binds every configured endpoint's UDP and TCP sockets. On any
// failure it tears down whatever was already started and returns an error.
func (s *Server) Start() error {
	s.sem = semaphore.NewWeighted(int64(s.MaxQueries))

	for _, ep := range s.Endpoints {
		addr := net.JoinHostPort(ep.Host, fmt.Sprintf("%d", ep.Port))

		udp := &dns.Server{Addr: addr, Net: "udp", Handler: dns.HandlerFunc(s.serveUDP)}
		if err := s.listenAndServeAsync(udp); err != nil {
			s.Stop()
			return fmt.Errorf("dns udp listener on %s: %w", addr, err)
		}
		s.servers = append(s.servers, udp)

		tcp := &dns.Server{
			Addr:         addr,
			Net:          "tcp",
			Handler:      dns.HandlerFunc(s.serveTCP),
			ReadTimeout:  s.TCPTimeout,
			WriteTimeout: s.TCPTimeout,
		}
		if err := s.listenAndServeAsync(tcp); err != nil {
			s.Stop()
			return fmt.Errorf("dns tcp listener on %s: %w", addr, err)
		}
		s.servers = append(s.servers, tcp)

		applog.Debugf(applog.FacilityDNS, "dns server listening on %s (udp+tcp)", addr)
	}

	return nil
}

// listenAndServeAsync blocks only until the listener is actually bound,
// then hands off to a background goroutine, mirroring miekg/dns's own
// NotifyStartedFunc hook.
func (s *Server) listenAndServeAsync(srv *dns.Server) error {
	started := make(chan error, 1)
	srv.NotifyStartedFunc = func() { started <- nil }

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			select {
			case started <- err:
			default:
				log.Error("dns %s server on %s stopped: %s", srv.Net, srv.Addr, err)
			}
		}
	}()

	return <-started
}

// Stop shuts down every listener this Server started.
func (s *Server) Stop() {
	for _, srv := range s.servers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.ShutdownContext(ctx)
		cancel()
	}
	s.servers = nil
}

func (s *Server) serveUDP(w dns.ResponseWriter, req *dns.Msg) {
	s.serve(w, req, false)
}

func (s *Server) serveTCP(w dns.ResponseWriter, req *dns.Msg) {
	s.serve(w, req, true)
}

func (s *Server) serve(w dns.ResponseWriter, req *dns.Msg, overTCP bool) {
	defer xlaterr.Recover()

	validClientV4, ok := validClientFromRemoteAddr(w.RemoteAddr(), s.Resolver.ClientMapper)
	if !ok {
		applog.Debugf(applog.FacilityDNS, "%s is not a valid client IPv4 address", w.RemoteAddr())
		return
	}

	if !isAcceptableQuery(req) {
		return
	}

	if !s.sem.TryAcquire(1) {
		applog.Debugf(applog.FacilityDNS, "maximum simultaneous DNS query limit reached, dropping client")
		return
	}
	defer s.sem.Release(1)

	resp := s.Resolver.HandleQuery(req, validClientV4, overTCP)

	if err := w.WriteMsg(resp); err != nil {
		applog.Debugf(applog.FacilityDNS, "failed to write dns response to %s: %s", w.RemoteAddr(), err)
	}
}

// isAcceptableQuery mirrors _parse_and_validate_query's structural
// precondition: a query with the QR/AA/TC/RA flags set, a non-zero rcode,
// anything other than exactly one question, a non-empty answer/authority/
// additional section, or an AXFR/IXFR question is silently dropped rather
// than answered with FORMERR, matching the original's "malformed message ->
// no response" posture. Opcode, question class, and the ANY query type are
// validated separately by Resolver.HandleQuery, which answers those with
// SERVFAIL instead of dropping them.
func isAcceptableQuery(req *dns.Msg) bool {
	if req.Response || req.Authoritative || req.Truncated || req.RecursionAvailable {
		return false
	}
	if req.Rcode != dns.RcodeSuccess {
		return false
	}
	if len(req.Question) != 1 || len(req.Answer) != 0 || len(req.Ns) != 0 || len(req.Extra) != 0 {
		return false
	}

	qtype := req.Question[0].Qtype
	return qtype != dns.TypeAXFR && qtype != dns.TypeIXFR
}

func validClientFromRemoteAddr(remote net.Addr, clientMapper interface {
	IsClientAllowed(netip.Addr) bool
}) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		return netip.Addr{}, false
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	addr = addr.Unmap()

	if !addr.Is4() || !clientMapper.IsClientAllowed(addr) {
		return netip.Addr{}, false
	}

	return addr, true
}
