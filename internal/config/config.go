// Package config loads and validates the TOML configuration file that
// describes the DNS responder, the certificate authority and issuer, the
// local DNS records, and the set of HTTPS proxies to run.
package config

import (
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml"
)

const (
	defaultCACommonName    = "sptth local ca"
	defaultValidDays       = 90
	defaultRenewBeforeDays = 30
	defaultDNSListen       = "127.0.0.1:53"
	defaultDNSTTLSeconds   = 30
)

var defaultDNSUpstream = []string{"1.1.1.1:53", "8.8.8.8:53"}

// rawConfig mirrors the on-disk TOML shape before defaulting and validation.
type rawConfig struct {
	DNS     rawDNS              `toml:"dns"`
	TLS     rawTLS              `toml:"tls"`
	Record  []rawRecord         `toml:"record"`
	Proxy   []rawProxy          `toml:"proxy"`
	LogLevel string             `toml:"log_level"`
}

type rawDNS struct {
	Listen     string   `toml:"listen"`
	Upstream   []string `toml:"upstream"`
	TTLSeconds *uint32  `toml:"ttl_seconds"`
}

type rawTLS struct {
	Enabled         *bool   `toml:"enabled"`
	CADir           string  `toml:"ca_dir"`
	CertDir         string  `toml:"cert_dir"`
	CACommonName    string  `toml:"ca_common_name"`
	ValidDays       *int    `toml:"valid_days"`
	RenewBeforeDays *int    `toml:"renew_before_days"`
}

type rawRecord struct {
	Domain string   `toml:"domain"`
	A      []string `toml:"a"`
	AAAA   []string `toml:"aaaa"`
}

type rawProxy struct {
	Domain   string `toml:"domain"`
	Listen   string `toml:"listen"`
	Upstream string `toml:"upstream"`
}

// DomainAddrs holds the A/AAAA records configured for one local domain.
type DomainAddrs struct {
	IPv4 []net.IP
	IPv6 []net.IP
}

// DnsConfig is the validated configuration of the DNS responder.
type DnsConfig struct {
	Listen     string
	Upstream   []string
	TTLSeconds uint32
}

// JoinedUpstream renders the configured upstream resolvers as a
// comma-separated list, for logging.
func (d DnsConfig) JoinedUpstream() string {
	return strings.Join(d.Upstream, ", ")
}

// TlsConfig is the validated configuration of the certificate authority and
// the per-domain issuer.
type TlsConfig struct {
	Enabled         bool
	CADir           string
	CertDir         string
	CACommonName    string
	ValidDays       int
	RenewBeforeDays int
}

// ProxyConfig is one validated reverse-proxy route.
type ProxyConfig struct {
	Domain   string
	Listen   string
	Upstream string
}

// BaseURL returns the plain-HTTP origin the proxy forwards to.
func (p ProxyConfig) BaseURL() string {
	return "http://" + p.Upstream
}

// AppConfig is the fully validated, defaulted configuration loaded from a
// TOML file.
type AppConfig struct {
	DNS      DnsConfig
	TLS      TlsConfig
	Records  map[string]DomainAddrs
	Proxies  []ProxyConfig
	LogLevel string
}

// JoinedDomains renders every configured local-record domain, sorted and
// comma-joined, for logging.
func (c AppConfig) JoinedDomains() string {
	domains := make([]string, 0, len(c.Records))
	for d := range c.Records {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return strings.Join(domains, ", ")
}

// JoinedProxies renders every configured proxy route as
// "domain:port->upstream", comma-joined, for logging.
func (c AppConfig) JoinedProxies() string {
	parts := make([]string, 0, len(c.Proxies))
	for _, p := range c.Proxies {
		_, port, _ := net.SplitHostPort(p.Listen)
		parts = append(parts, fmt.Sprintf("%s:%s->%s", p.Domain, port, p.Upstream))
	}
	return strings.Join(parts, ", ")
}

// FromFile reads and validates the TOML configuration file at path.
func FromFile(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return FromTOMLString(data, path)
}

// FromTOMLString parses and validates raw TOML content. source is used only
// to annotate error messages.
func FromTOMLString(raw []byte, source string) (*AppConfig, error) {
	var rc rawConfig
	if err := toml.Unmarshal(raw, &rc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", source, err)
	}

	dnsCfg, err := validateDNS(rc.DNS)
	if err != nil {
		return nil, err
	}

	tlsCfg, err := validateTLS(rc.TLS)
	if err != nil {
		return nil, err
	}

	records, err := validateRecords(rc.Record)
	if err != nil {
		return nil, err
	}

	proxies, err := validateProxies(rc.Proxy)
	if err != nil {
		return nil, err
	}

	logLevel := strings.ToLower(strings.TrimSpace(rc.LogLevel))
	if logLevel == "" {
		logLevel = "info"
	}
	switch logLevel {
	case "error", "info", "debug":
	default:
		return nil, fmt.Errorf("config: log_level must be one of error, info, debug, got %q", logLevel)
	}

	return &AppConfig{
		DNS:      dnsCfg,
		TLS:      tlsCfg,
		Records:  records,
		Proxies:  proxies,
		LogLevel: logLevel,
	}, nil
}

func validateDNS(raw rawDNS) (DnsConfig, error) {
	listen := raw.Listen
	if listen == "" {
		listen = defaultDNSListen
	}
	if _, err := validateSocketAddr(listen); err != nil {
		return DnsConfig{}, fmt.Errorf("config: invalid dns.listen: %w", err)
	}

	upstream := raw.Upstream
	if len(upstream) == 0 {
		upstream = defaultDNSUpstream
	}
	for _, u := range upstream {
		if _, err := validateSocketAddr(u); err != nil {
			return DnsConfig{}, fmt.Errorf("config: invalid dns.upstream %q: %w", u, err)
		}
	}

	ttl := uint32(defaultDNSTTLSeconds)
	if raw.TTLSeconds != nil {
		ttl = *raw.TTLSeconds
	}

	return DnsConfig{Listen: listen, Upstream: upstream, TTLSeconds: ttl}, nil
}

func validateTLS(raw rawTLS) (TlsConfig, error) {
	enabled := true
	if raw.Enabled != nil {
		enabled = *raw.Enabled
	}

	validDays := defaultValidDays
	if raw.ValidDays != nil {
		validDays = *raw.ValidDays
	}
	if validDays <= 0 {
		return TlsConfig{}, fmt.Errorf("config: tls.valid_days must be > 0, got %d", validDays)
	}

	renewBeforeDays := defaultRenewBeforeDays
	if raw.RenewBeforeDays != nil {
		renewBeforeDays = *raw.RenewBeforeDays
	}
	if renewBeforeDays >= validDays {
		return TlsConfig{}, fmt.Errorf("config: tls.renew_before_days (%d) must be less than tls.valid_days (%d)", renewBeforeDays, validDays)
	}

	commonName := raw.CACommonName
	if strings.TrimSpace(commonName) == "" {
		commonName = defaultCACommonName
	}

	caDir := raw.CADir
	if caDir == "" {
		caDir = filepath.Join(defaultStateBaseDir(), "ca")
	}
	caDir = expandTilde(caDir)

	certDir := raw.CertDir
	if certDir == "" {
		certDir = filepath.Join(defaultStateBaseDir(), "certs")
	}
	certDir = expandTilde(certDir)

	return TlsConfig{
		Enabled:         enabled,
		CADir:           caDir,
		CertDir:         certDir,
		CACommonName:    commonName,
		ValidDays:       validDays,
		RenewBeforeDays: renewBeforeDays,
	}, nil
}

func validateRecords(raw []rawRecord) (map[string]DomainAddrs, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("config: at least one [[record]] is required")
	}

	records := make(map[string]DomainAddrs, len(raw))
	for _, r := range raw {
		domain := NormalizeDomain(r.Domain)
		if domain == "" {
			return nil, fmt.Errorf("config: record.domain must not be empty")
		}
		if _, exists := records[domain]; exists {
			return nil, fmt.Errorf("config: duplicate record.domain %q", domain)
		}
		if len(r.A) == 0 && len(r.AAAA) == 0 {
			return nil, fmt.Errorf("config: record %q must set at least one of a, aaaa", domain)
		}

		var addrs DomainAddrs
		for _, s := range r.A {
			ip := net.ParseIP(s)
			if ip == nil || ip.To4() == nil {
				return nil, fmt.Errorf("config: record %q: %q is not a valid IPv4 address", domain, s)
			}
			addrs.IPv4 = append(addrs.IPv4, ip)
		}
		for _, s := range r.AAAA {
			ip := net.ParseIP(s)
			if ip == nil || ip.To4() != nil {
				return nil, fmt.Errorf("config: record %q: %q is not a valid IPv6 address", domain, s)
			}
			addrs.IPv6 = append(addrs.IPv6, ip)
		}
		records[domain] = addrs
	}

	return records, nil
}

func validateProxies(raw []rawProxy) ([]ProxyConfig, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("config: at least one [[proxy]] is required")
	}

	seenDomains := make(map[string]bool, len(raw))
	var sharedListen string
	proxies := make([]ProxyConfig, 0, len(raw))

	for _, r := range raw {
		domain := NormalizeDomain(r.Domain)
		if domain == "" {
			return nil, fmt.Errorf("config: proxy.domain must not be empty")
		}
		if seenDomains[domain] {
			return nil, fmt.Errorf("config: duplicate proxy.domain %q", domain)
		}
		seenDomains[domain] = true

		listen, err := validateSocketAddr(r.Listen)
		if err != nil {
			return nil, fmt.Errorf("config: invalid proxy.listen %q: %w", r.Listen, err)
		}
		if sharedListen == "" {
			sharedListen = listen
		} else if listen != sharedListen {
			return nil, fmt.Errorf("config: all proxy.listen values must match, got %q and %q", sharedListen, listen)
		}

		upstream, err := validateUpstreamHostPort(r.Upstream)
		if err != nil {
			return nil, fmt.Errorf("config: invalid proxy.upstream %q: %w", r.Upstream, err)
		}

		proxies = append(proxies, ProxyConfig{
			Domain:   domain,
			Listen:   listen,
			Upstream: upstream,
		})
	}

	return proxies, nil
}

// validateSocketAddr requires a literal "ip:port" address and returns it
// normalized via net.JoinHostPort.
func validateSocketAddr(s string) (string, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", fmt.Errorf("must be host:port: %w", err)
	}
	if net.ParseIP(host) == nil {
		return "", fmt.Errorf("host %q is not a literal IP address", host)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", fmt.Errorf("port %q is not in range 1-65535", portStr)
	}
	return net.JoinHostPort(host, portStr), nil
}

// validateUpstreamHostPort requires a bare "host:port" with no URI scheme.
func validateUpstreamHostPort(s string) (string, error) {
	if strings.Contains(s, "://") {
		return "", fmt.Errorf("no scheme allowed, use host:port")
	}
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", fmt.Errorf("must include port: %w", err)
	}
	if host == "" {
		return "", fmt.Errorf("host must not be empty")
	}
	if port == "" {
		return "", fmt.Errorf("must include port")
	}
	return s, nil
}

// NormalizeDomain trims whitespace, strips a single trailing dot, and
// lowercases ASCII. The DNS responder calls it directly; the proxy router
// and TLS resolver apply the same rule through their own helpers.
func NormalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	domain = strings.TrimSuffix(domain, ".")
	return strings.ToLower(domain)
}

// expandTilde expands a leading "~" or "~/..." to the current user's home
// directory. Any other input is returned unchanged.
func expandTilde(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// defaultStateBaseDir picks the directory under which the CA and issued
// certificates live when the config file does not set ca_dir/cert_dir.
//
// When running under sudo, SUDO_USER names the invoking (non-root) user;
// state should live in that user's home directory, not root's, so a
// subsequent unprivileged run of the daemon finds the same certificates.
// The invoking user's home directory is resolved through os/user rather
// than assuming a platform-specific path layout.
func defaultStateBaseDir() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" && sudoUser != "root" {
		if u, err := user.Lookup(sudoUser); err == nil && u.HomeDir != "" {
			return filepath.Join(u.HomeDir, ".config", "sptth")
		}
		if runtime.GOOS == "darwin" {
			return filepath.Join("/Users", sudoUser, ".config", "sptth")
		}
		return filepath.Join("/home", sudoUser, ".config", "sptth")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".config", "sptth")
	}
	return ".sptth"
}
