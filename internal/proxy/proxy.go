// Package proxy implements the host-multiplexed HTTPS reverse proxy: one
// TLS listener, routing by the inbound request's Host header, forwarding
// to the plaintext upstream bound to that host.
package proxy

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// hopByHop is the exact set of headers stripped in both directions.
// Host is stripped separately; it is not considered hop-by-hop but is
// never forwarded verbatim either.
var hopByHop = map[string]bool{
	"connection":        true,
	"proxy-connection":  true,
	"keep-alive":        true,
	"te":                true,
	"trailer":           true,
	"upgrade":           true,
	"transfer-encoding": true,
}

// Route is one host's forwarding target.
type Route struct {
	Upstream string // "host:port"
}

// Server is the TCP accept loop plus TLS termination and Host-routed
// HTTP/1.1 forwarding.
type Server struct {
	listener net.Listener
	tlsConf  *tls.Config
	routes   map[string]Route
	client   *http.Client
	log      *logrus.Entry
}

// New binds listen with the given TLS configuration and prepares a
// Server over the given normalized-host→Route routing table.
func New(listen string, tlsConf *tls.Config, routes map[string]Route, log *logrus.Entry) (*Server, error) {
	ln, err := tls.Listen("tcp", listen, tlsConf)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: ln,
		tlsConf:  tlsConf,
		routes:   routes,
		client: &http.Client{
			Transport: &http.Transport{
				DisableCompression: true,
			},
		},
		log: log,
	}, nil
}

// Addr returns the bound local address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Serve runs the accept loop until ctx is cancelled: each accepted
// connection is handled in its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	httpSrv := &http.Server{
		Handler: http.HandlerFunc(s.handle),
	}
	err := httpSrv.Serve(s.listener)
	if err != nil {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		return err
	}
	return nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	host := normalizeHost(r.Host)
	route, ok := s.routes[host]
	if !ok {
		http.Error(w, "no upstream configured for host", http.StatusBadGateway)
		return
	}

	targetURL := buildTargetURL(route.Upstream, r.URL.RequestURI())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "proxy request failed", http.StatusBadGateway)
		return
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, bytes.NewReader(body))
	if err != nil {
		http.Error(w, "proxy request failed", http.StatusBadGateway)
		return
	}
	copyHeaders(outReq.Header, r.Header)

	resp, err := s.client.Do(outReq)
	if err != nil {
		s.log.Errorf("upstream request to %s failed: %v", route.Upstream, err)
		http.Error(w, "proxy request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// copyHeaders copies every header from src to dst except Host and the
// hop-by-hop set.
func copyHeaders(dst, src http.Header) {
	for k, values := range src {
		if strings.EqualFold(k, "host") || hopByHop[strings.ToLower(k)] {
			continue
		}
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}

// buildTargetURL concatenates "http://" + upstream + pathAndQuery with
// at most one "/" between the base and the path.
func buildTargetURL(upstream, pathAndQuery string) string {
	base := strings.TrimSuffix("http://"+upstream, "/")
	if !strings.HasPrefix(pathAndQuery, "/") {
		pathAndQuery = "/" + pathAndQuery
	}
	return base + pathAndQuery
}

// normalizeHost strips an optional port, optional IPv6 brackets, a
// trailing dot, and lowercases, matching the domain normalization rule
// used across the DNS responder and TLS resolver.
func normalizeHost(host string) string {
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end != -1 {
			host = host[1:end]
		}
	} else if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	return strings.ToLower(host)
}
