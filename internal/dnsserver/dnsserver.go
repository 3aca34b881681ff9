// Package dnsserver implements the UDP DNS responder: it answers a
// configured set of domains from a local zone and forwards everything
// else upstream with source-tuple spoof checking.
package dnsserver

import (
	"context"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"sptth/internal/config"
)

const (
	recvBufSize    = 4096
	upstreamWindow = 2 * time.Second
)

// Server is a single-socket UDP DNS responder with a fan-out worker
// model: one goroutine reads packets, each packet is handled in its own
// goroutine.
type Server struct {
	conn     *net.UDPConn
	records  map[string]config.DomainAddrs
	upstream []string
	ttl      uint32
	log      *logrus.Entry
}

// New binds the configured listen address and prepares a Server. The
// records map and upstream list are captured by reference and treated
// as immutable for the Server's lifetime.
func New(listen string, records map[string]config.DomainAddrs, upstream []string, ttlSeconds uint32, log *logrus.Entry) (*Server, error) {
	addr, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		conn:     conn,
		records:  records,
		upstream: upstream,
		ttl:      ttlSeconds,
		log:      log,
	}, nil
}

// Addr returns the bound local address.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Close releases the listening socket.
func (s *Server) Close() error {
	return s.conn.Close()
}

// Serve runs the receive loop until ctx is cancelled. The loop is
// strictly single-reader; each received packet is copied into a
// per-goroutine buffer before the goroutine is spawned, so the shared
// receive buffer can be reused on the next iteration.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, recvBufSize)
	for {
		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		go s.handle(packet, peer)
	}
}

func (s *Server) handle(packet []byte, peer *net.UDPAddr) {
	var req dns.Msg
	if err := req.Unpack(packet); err != nil {
		s.log.Debugf("dropping malformed packet from %s: %v", peer, err)
		return
	}
	if len(req.Question) == 0 {
		return
	}
	q := req.Question[0]
	qname := config.NormalizeDomain(q.Name)

	if addrs, ok := s.records[qname]; ok && isLocalQtype(q.Qtype) {
		resp := buildLocalAnswer(&req, addrs, s.ttl)
		out, err := resp.Pack()
		if err != nil {
			s.log.Errorf("failed to pack local answer for %s: %v", qname, err)
			return
		}
		if _, err := s.conn.WriteToUDP(out, peer); err != nil {
			s.log.Errorf("failed to send local answer to %s: %v", peer, err)
		}
		return
	}

	reply, err := s.forward(packet)
	if err != nil {
		s.log.Debugf("forwarding %s failed: %v", qname, err)
		return
	}
	if reply == nil {
		s.log.Debugf("no upstream answered for %s", qname)
		return
	}
	if _, err := s.conn.WriteToUDP(reply, peer); err != nil {
		s.log.Errorf("failed to relay forwarded answer to %s: %v", peer, err)
	}
}

func isLocalQtype(qtype uint16) bool {
	switch qtype {
	case dns.TypeA, dns.TypeAAAA, dns.TypeANY:
		return true
	default:
		return false
	}
}

// buildLocalAnswer constructs the local-zone response for a request
// whose qname matched a configured record.
func buildLocalAnswer(req *dns.Msg, addrs config.DomainAddrs, ttl uint32) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true
	resp.RecursionAvailable = true
	resp.Rcode = dns.RcodeSuccess

	q := req.Question[0]
	switch q.Qtype {
	case dns.TypeA:
		for _, ip := range addrs.IPv4 {
			resp.Answer = append(resp.Answer, aRecord(q.Name, ip, ttl))
		}
	case dns.TypeAAAA:
		for _, ip := range addrs.IPv6 {
			resp.Answer = append(resp.Answer, aaaaRecord(q.Name, ip, ttl))
		}
	case dns.TypeANY:
		for _, ip := range addrs.IPv4 {
			resp.Answer = append(resp.Answer, aRecord(q.Name, ip, ttl))
		}
		for _, ip := range addrs.IPv6 {
			resp.Answer = append(resp.Answer, aaaaRecord(q.Name, ip, ttl))
		}
	}
	return resp
}

func aRecord(name string, ip net.IP, ttl uint32) *dns.A {
	return &dns.A{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
		A:   ip,
	}
}

func aaaaRecord(name string, ip net.IP, ttl uint32) *dns.AAAA {
	return &dns.AAAA{
		Hdr:  dns.RR_Header{Name: name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: ttl},
		AAAA: ip,
	}
}

// forward tries each configured upstream in order over its own
// ephemeral socket, accepting only a reply whose source tuple exactly
// matches that upstream. It returns nil, nil if every upstream is
// exhausted without an accepted reply.
func (s *Server) forward(packet []byte) ([]byte, error) {
	for _, upstream := range s.upstream {
		reply, err := forwardToUpstream(packet, upstream)
		if err != nil {
			s.log.Debugf("upstream %s: %v", upstream, err)
			continue
		}
		if reply != nil {
			return reply, nil
		}
	}
	return nil, nil
}

func forwardToUpstream(packet []byte, upstream string) ([]byte, error) {
	upstreamAddr, err := net.ResolveUDPAddr("udp", upstream)
	if err != nil {
		return nil, err
	}

	sock, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, err
	}
	defer sock.Close()

	if _, err := sock.WriteToUDP(packet, upstreamAddr); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(upstreamWindow)
	buf := make([]byte, recvBufSize)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if err := sock.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		n, from, err := sock.ReadFromUDP(buf)
		if err != nil {
			if netErrTimeout(err) {
				return nil, nil
			}
			return nil, err
		}
		if !isValidSource(from, upstreamAddr) {
			continue
		}
		reply := make([]byte, n)
		copy(reply, buf[:n])
		return reply, nil
	}
}

// isValidSource reports whether a received packet's source address is
// exactly the expected upstream, by IP and port.
func isValidSource(from, expected *net.UDPAddr) bool {
	return from.IP.Equal(expected.IP) && from.Port == expected.Port
}

func netErrTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
