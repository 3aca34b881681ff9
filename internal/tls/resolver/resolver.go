// Package resolver builds the server-side TLS configuration that selects a
// leaf certificate per incoming ClientHello via SNI.
package resolver

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Resolver maps normalized SNI server names to certified keys and falls
// back to a fixed default so a handshake never aborts for missing or
// unrecognized SNI.
type Resolver struct {
	certs       map[string]*tls.Certificate
	order       []string
	defaultCert *tls.Certificate
	log         *logrus.Entry
}

// New constructs a Resolver from a domain→(certPEM,keyPEM) set, in the given
// insertion order. The first domain becomes the default served when SNI is
// absent or unrecognized. Every entry is validated at construction time;
// a missing chain, unreadable PEM, or unsupported key is a fatal error.
func New(domains []string, load func(domain string) (certPEM, keyPEM []byte, err error), log *logrus.Entry) (*Resolver, error) {
	if len(domains) == 0 {
		return nil, fmt.Errorf("resolver: no domains configured")
	}

	r := &Resolver{
		certs: make(map[string]*tls.Certificate, len(domains)),
		order: make([]string, 0, len(domains)),
		log:   log,
	}

	for _, domain := range domains {
		normalized := Normalize(domain)
		certPEM, keyPEM, err := load(domain)
		if err != nil {
			return nil, fmt.Errorf("resolver: load %s: %w", domain, err)
		}

		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, fmt.Errorf("resolver: parse keypair for %s: %w", domain, err)
		}
		if len(cert.Certificate) == 0 {
			return nil, fmt.Errorf("resolver: empty certificate chain for %s", domain)
		}

		r.certs[normalized] = &cert
		r.order = append(r.order, normalized)

		if r.defaultCert == nil {
			r.defaultCert = &cert
		}
	}

	return r, nil
}

// GetCertificate implements tls.Config.GetCertificate: it normalizes the
// ClientHello's SNI server name, returns the matching certificate if known,
// and otherwise logs at debug and returns the default (the first domain
// inserted into the map).
func (r *Resolver) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	name := Normalize(hello.ServerName)
	if cert, ok := r.certs[name]; ok {
		return cert, nil
	}
	r.log.Debugf("no certificate for SNI %q, serving default", hello.ServerName)
	return r.defaultCert, nil
}

// Config builds a *tls.Config that serves certificates through
// GetCertificate, with no client authentication, TLS 1.2 minimum.
func (r *Resolver) Config() *tls.Config {
	return &tls.Config{
		GetCertificate: r.GetCertificate,
		MinVersion:     tls.VersionTLS12,
		ClientAuth:     tls.NoClientCert,
	}
}

// Normalize applies the domain normalization rule shared across the DNS
// responder, proxy router, and TLS resolver: trim whitespace, strip a
// single trailing dot, lowercase ASCII.
func Normalize(domain string) string {
	domain = strings.TrimSpace(domain)
	domain = strings.TrimSuffix(domain, ".")
	return strings.ToLower(domain)
}
