package ca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EmptyDir_CreatesBoth(t *testing.T) {
	dir := t.TempDir()
	c, created, err := Load(dir, "sptth local ca")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !created {
		t.Fatal("expected ca_created=true on empty dir")
	}
	if _, err := os.Stat(filepath.Join(dir, rootKeyFile)); err != nil {
		t.Errorf("key file not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, rootCertFile)); err != nil {
		t.Errorf("cert file not written: %v", err)
	}
	if c.Cert.Subject.CommonName != "sptth local ca" {
		t.Errorf("CN = %q, want %q", c.Cert.Subject.CommonName, "sptth local ca")
	}
	if !c.Cert.IsCA {
		t.Error("root cert is not CA")
	}
	if c.Cert.KeyUsage&x509.KeyUsageCertSign == 0 {
		t.Error("root missing KeyUsageCertSign")
	}
	if c.Cert.KeyUsage&x509.KeyUsageCRLSign == 0 {
		t.Error("root missing KeyUsageCRLSign")
	}
}

func TestLoad_KeyAndCertPresent_NotCreated(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := Load(dir, "sptth local ca"); err != nil {
		t.Fatalf("first Load: %v", err)
	}

	keyInfo1, _ := os.Stat(filepath.Join(dir, rootKeyFile))
	certInfo1, _ := os.Stat(filepath.Join(dir, rootCertFile))

	c2, created, err := Load(dir, "sptth local ca")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if created {
		t.Fatal("expected ca_created=false when both key and cert already present")
	}
	if c2.Cert == nil || c2.Key == nil {
		t.Fatal("expected cert and key populated in memory")
	}

	keyInfo2, _ := os.Stat(filepath.Join(dir, rootKeyFile))
	certInfo2, _ := os.Stat(filepath.Join(dir, rootCertFile))
	if !keyInfo1.ModTime().Equal(keyInfo2.ModTime()) {
		t.Error("key file should not be rewritten when both files already exist")
	}
	if !certInfo1.ModTime().Equal(certInfo2.ModTime()) {
		t.Error("cert file should not be rewritten when both files already exist")
	}
}

func TestLoad_MissingCert_RegeneratesFromExistingKey(t *testing.T) {
	dir := t.TempDir()
	c1, _, err := Load(dir, "sptth local ca")
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, rootCertFile)); err != nil {
		t.Fatal(err)
	}

	c2, created, err := Load(dir, "sptth local ca")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if !created {
		t.Fatal("expected ca_created=true when cert file was missing")
	}
	if _, err := os.Stat(filepath.Join(dir, rootCertFile)); err != nil {
		t.Errorf("cert file should have been rewritten: %v", err)
	}

	// Same key must yield the same deterministic cert.
	if c1.Cert.SerialNumber.Cmp(c2.Cert.SerialNumber) != 0 {
		t.Error("regenerated cert should carry the same deterministic serial as before")
	}
}

func TestLoad_MissingKey_OverwritesCert(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := Load(dir, "sptth local ca"); err != nil {
		t.Fatalf("first Load: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, rootKeyFile)); err != nil {
		t.Fatal(err)
	}

	_, created, err := Load(dir, "sptth local ca")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if !created {
		t.Fatal("expected ca_created=true when key file was missing")
	}
	if _, err := os.Stat(filepath.Join(dir, rootKeyFile)); err != nil {
		t.Errorf("key file should have been regenerated: %v", err)
	}
}

func TestLoad_DeterministicCertFromSameKey(t *testing.T) {
	dir := t.TempDir()
	c1, _, err := Load(dir, "sptth local ca")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	c2, _, err := Load(dir, "sptth local ca")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c1.Cert.SerialNumber.Cmp(c2.Cert.SerialNumber) != 0 {
		t.Error("the same key and CommonName should deterministically produce the same serial")
	}
	if c1.Cert.Subject.CommonName != c2.Cert.Subject.CommonName {
		t.Error("CommonName mismatch between successive loads")
	}
}

func TestSignCertificate(t *testing.T) {
	dir := t.TempDir()
	c, _, err := Load(dir, "sptth local ca")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate leaf key: %v", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		Subject:     pkix.Name{CommonName: "myapp.localhost"},
		DNSNames:    []string{"myapp.localhost"},
		NotBefore:   now.Add(-24 * time.Hour),
		NotAfter:    now.Add(90 * 24 * time.Hour),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certPEM, err := c.SignCertificate(template, &leafKey.PublicKey)
	if err != nil {
		t.Fatalf("SignCertificate: %v", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		t.Fatal("no PEM block in signed cert")
	}

	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse leaf cert: %v", err)
	}
	if leaf.Subject.CommonName != "myapp.localhost" {
		t.Errorf("leaf CN = %q", leaf.Subject.CommonName)
	}

	roots := x509.NewCertPool()
	roots.AddCert(c.Cert)
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}); err != nil {
		t.Fatalf("leaf verification failed: %v", err)
	}
}

func TestSignCertificate_NotInitialized(t *testing.T) {
	c := &CA{}
	_, err := c.SignCertificate(&x509.Certificate{}, nil)
	if err == nil {
		t.Fatal("expected error signing with an uninitialized CA")
	}
}

func TestFilePermissions(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := Load(dir, "sptth local ca"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, rootKeyFile))
	if err != nil {
		t.Fatalf("stat key file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key file perm = %o, want 0600", perm)
	}
}

func TestLoad_CreatesStorePath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "path")
	if _, _, err := Load(dir, "sptth local ca"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.IsDir() {
		t.Error("store path is not a directory")
	}
}

func TestECDSAKeyUsed(t *testing.T) {
	dir := t.TempDir()
	c, _, err := Load(dir, "sptth local ca")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Key == nil {
		t.Error("expected an ECDSA private key to be populated")
	}
}
