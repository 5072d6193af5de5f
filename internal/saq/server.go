package saq

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/vitlabuda/get4for6-go/internal/addrmap"
	"github.com/vitlabuda/get4for6-go/internal/applog"
	"github.com/vitlabuda/get4for6-go/internal/xlaterr"
)

// Endpoint is a resolvable host/port pair.
type Endpoint struct {
	Host string
	Port uint16
}

// Server runs one UDP socket per configured binary and plaintext endpoint.
// Per spec §5, SAQ has no admission bound: it is synchronous and cheap, so
// every datagram is handled inline on its listener's goroutine rather than
// being dispatched to a worker pool.
type Server struct {
	Handler      *Handler
	ClientMapper *addrmap.ClientMapper
	BinaryEPs    []Endpoint
	PlaintextEPs []Endpoint

	conns []*net.UDPConn
}

// Start binds every configured binary and plaintext UDP socket.
func (s *Server) Start() error {
	for _, ep := range s.BinaryEPs {
		conn, err := s.listen(ep)
		if err != nil {
			s.Stop()
			return fmt.Errorf("saq binary listener on %s:%d: %w", ep.Host, ep.Port, err)
		}
		s.conns = append(s.conns, conn)
		go s.serve(conn, s.Handler.HandleBinary)
		applog.Debugf(applog.FacilitySAQ, "saq binary listener started on %s:%d", ep.Host, ep.Port)
	}

	for _, ep := range s.PlaintextEPs {
		conn, err := s.listen(ep)
		if err != nil {
			s.Stop()
			return fmt.Errorf("saq plaintext listener on %s:%d: %w", ep.Host, ep.Port, err)
		}
		s.conns = append(s.conns, conn)
		go s.serve(conn, s.Handler.HandlePlaintext)
		applog.Debugf(applog.FacilitySAQ, "saq plaintext listener started on %s:%d", ep.Host, ep.Port)
	}

	return nil
}

func (s *Server) listen(ep Endpoint) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(ep.Host, fmt.Sprintf("%d", ep.Port)))
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", addr)
}

// Stop closes every listener this Server started.
func (s *Server) Stop() {
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
}

const maxDatagramSize = 65535

func (s *Server) serve(conn *net.UDPConn, handle func(data []byte, validClientV4 netip.Addr) []byte) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}

		validClientV4, ok := validClientIPv4(remote, s.ClientMapper)
		if !ok {
			applog.Debugf(applog.FacilitySAQ, "%s is not a valid client ipv4 address", remote)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		s.handleDatagram(conn, remote, data, validClientV4, handle)
	}
}

// handleDatagram processes one already-authorized datagram on its own
// recover scope, so a Fault raised by the mapping engine during one
// datagram's translation can't take an earlier deferred cleanup in serve's
// loop frame with it before the crash handler installed via
// xlaterr.SetCrashHandler runs.
func (s *Server) handleDatagram(conn *net.UDPConn, remote *net.UDPAddr, data []byte, validClientV4 netip.Addr, handle func(data []byte, validClientV4 netip.Addr) []byte) {
	defer xlaterr.Recover()

	response := handle(data, validClientV4)
	if response == nil {
		return
	}

	if _, err := conn.WriteToUDP(response, remote); err != nil {
		applog.Debugf(applog.FacilitySAQ, "failed to write saq response to %s: %s", remote, err)
	}
}

func validClientIPv4(remote *net.UDPAddr, clientMapper *addrmap.ClientMapper) (netip.Addr, bool) {
	addr, ok := netip.AddrFromSlice(remote.IP)
	if !ok {
		return netip.Addr{}, false
	}
	addr = addr.Unmap()

	if !addr.Is4() || !clientMapper.IsClientAllowed(addr) {
		return netip.Addr{}, false
	}
	return addr, true
}
