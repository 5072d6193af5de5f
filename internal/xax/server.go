package xax

import (
	"fmt"
	"net"

	"golang.org/x/sync/semaphore"

	"github.com/vitlabuda/get4for6-go/internal/applog"
	"github.com/vitlabuda/get4for6-go/internal/xlaterr"
)

// Server accepts XAX connections on Unix and TCP endpoints, admission
// controlled by a single max_simultaneous_connections semaphore shared
// across every listener, per spec §5. Grounded on DNSModule.py's listener
// lifecycle shape and _TundraXAXClientHandler's per-connection semaphore
// acquire/release.
type Server struct {
	Handler        *Handler
	UnixPaths      []string
	TCPEndpoints   []Endpoint
	MaxConnections int

	sem       *semaphore.Weighted
	listeners []net.Listener
	done      chan struct{}
}

// Endpoint is a resolvable host/port pair.
type Endpoint struct {
	Host string
	Port uint16
}

// Start binds every configured Unix and TCP listener.
func (s *Server) Start() error {
	s.sem = semaphore.NewWeighted(int64(s.MaxConnections))
	s.done = make(chan struct{})

	for _, path := range s.UnixPaths {
		ln, err := net.Listen("unix", path)
		if err != nil {
			s.Stop()
			return fmt.Errorf("xax unix listener on %s: %w", path, err)
		}
		s.listeners = append(s.listeners, ln)
		go s.accept(ln)
		applog.Debugf(applog.FacilityXAX, "xax server listening on unix:%s", path)
	}

	for _, ep := range s.TCPEndpoints {
		addr := net.JoinHostPort(ep.Host, fmt.Sprintf("%d", ep.Port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.Stop()
			return fmt.Errorf("xax tcp listener on %s: %w", addr, err)
		}
		s.listeners = append(s.listeners, ln)
		go s.accept(ln)
		applog.Debugf(applog.FacilityXAX, "xax server listening on tcp:%s", addr)
	}

	return nil
}

// Stop closes every listener this Server started.
func (s *Server) Stop() {
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
	s.listeners = nil
}

func (s *Server) accept(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

// handleConn mirrors _TundraXAXClientHandler.handle_client: a non-blocking
// semaphore acquire (disconnect immediately if the connection limit is
// reached), then a loop reading one fixed-size frame per iteration until
// the peer disconnects or sends malformed data.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	defer xlaterr.Recover()

	if !s.sem.TryAcquire(1) {
		applog.Debugf(applog.FacilityXAX, "maximum simultaneous xax connection limit reached, dropping client")
		return
	}
	defer s.sem.Release(1)

	for {
		buf := make([]byte, WireMessageSize)
		if _, err := readFull(conn, buf); err != nil {
			return
		}

		req, err := DecodeRequest(buf)
		if err != nil {
			applog.Debugf(applog.FacilityXAX, "invalid xax request frame from %s: %s", conn.RemoteAddr(), err)
			return
		}

		resp := s.Handler.Handle(req)
		if _, err := conn.Write(resp.Encode(req.MessageType)); err != nil {
			return
		}
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
