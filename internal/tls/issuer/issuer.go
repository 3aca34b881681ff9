// Package issuer issues and renews per-domain leaf TLS certificates signed
// by the local root CA. Renewal is driven entirely by file mtime so startup
// stays O(#domains) without parsing X.509 in the steady state; see
// ShouldReissue.
package issuer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sptth/internal/tls/ca"
)

// CertPaths is the on-disk location of a domain's leaf certificate and key.
type CertPaths struct {
	CertPath string
	KeyPath  string
	// Renewed is true when IssueOrReuse replaced a certificate that already
	// existed on disk, as opposed to issuing one for the first time.
	Renewed bool
}

// ShouldReissue reports whether the leaf certificate at path is due for
// reissuance. It returns true if the file is missing, if the renewal window
// is non-positive, if the mtime cannot be read, or if the file is older than
// renewAfter = validDays - renewBeforeDays days. Misreading mtime defaults
// to "reissue" to stay safe.
func ShouldReissue(path string, validDays, renewBeforeDays int) bool {
	renewAfter := validDays - renewBeforeDays
	if renewAfter <= 0 {
		return true
	}

	info, err := os.Stat(path)
	if err != nil {
		return true
	}

	age := time.Since(info.ModTime())
	return age >= time.Duration(renewAfter)*24*time.Hour
}

// IssueOrReuse returns the cert/key paths for domain under certDir, issuing
// a fresh leaf certificate when ShouldReissue says the existing one (if any)
// is due for renewal, and reusing the on-disk files otherwise.
func IssueOrReuse(c *ca.CA, certDir, domain string, validDays, renewBeforeDays int) (CertPaths, error) {
	paths := CertPaths{
		CertPath: filepath.Join(certDir, domain+".pem"),
		KeyPath:  filepath.Join(certDir, domain+".key"),
	}

	if !ShouldReissue(paths.CertPath, validDays, renewBeforeDays) {
		return paths, nil
	}
	_, statErr := os.Stat(paths.CertPath)
	paths.Renewed = statErr == nil

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return CertPaths{}, fmt.Errorf("issuer: generate leaf key for %s: %w", domain, err)
	}

	now := time.Now()
	template := &x509.Certificate{
		Subject:     pkix.Name{CommonName: domain},
		DNSNames:    []string{domain},
		NotBefore:   now.Add(-24 * time.Hour),
		NotAfter:    now.Add(time.Duration(validDays) * 24 * time.Hour),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certPEM, err := c.SignCertificate(template, &key.PublicKey)
	if err != nil {
		return CertPaths{}, fmt.Errorf("issuer: sign leaf for %s: %w", domain, err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return CertPaths{}, fmt.Errorf("issuer: marshal leaf key for %s: %w", domain, err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := writeFileAtomic(paths.CertPath, certPEM, 0644); err != nil {
		return CertPaths{}, err
	}
	if err := writeFileAtomic(paths.KeyPath, keyPEM, 0600); err != nil {
		return CertPaths{}, err
	}

	return paths, nil
}

// Provision ensures certDir exists and issues-or-reuses a leaf certificate
// for every domain, returning a map of domain to its cert/key paths.
func Provision(c *ca.CA, certDir string, domains []string, validDays, renewBeforeDays int) (map[string]CertPaths, error) {
	if err := os.MkdirAll(certDir, 0700); err != nil {
		return nil, fmt.Errorf("issuer: create cert dir: %w", err)
	}

	certs := make(map[string]CertPaths, len(domains))
	for _, domain := range domains {
		paths, err := IssueOrReuse(c, certDir, domain, validDays, renewBeforeDays)
		if err != nil {
			return nil, err
		}
		certs[domain] = paths
	}
	return certs, nil
}

// writeFileAtomic writes data to a temporary file in the same directory and
// renames it into place, matching the atomic-write pattern used by the CA.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("issuer: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("issuer: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("issuer: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("issuer: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("issuer: rename temp file: %w", err)
	}
	return nil
}
