// Package ca implements the local root certificate authority: a single
// self-signed signing certificate used to issue every per-domain leaf. The
// root key is authoritative — if it exists on disk, the certificate is
// always regenerated deterministically from it rather than trusted blindly
// from a possibly-stale file.
package ca

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

const (
	rootCertFile = "rootCA.pem"
	rootKeyFile  = "rootCA-key.pem"
	rootValidFor = 10 * 365 * 24 * time.Hour
)

// CA holds the root certificate authority material: one keypair and one
// self-signed certificate, deterministic from the keypair and CommonName.
type CA struct {
	Cert       *x509.Certificate
	Key        *ecdsa.PrivateKey
	StorePath  string
	CommonName string
}

// Load implements the root CA recovery matrix described for the CA
// Provisioner: it inspects StorePath for rootCA-key.pem and rootCA.pem,
// reuses whichever is authoritative, and reports whether the CA was just
// created (the sole signal that should trigger trust installation).
//
//	key file  cert file  action                                   created
//	absent    absent     generate key, write key and cert          true
//	absent    present    generate key, overwrite cert               true
//	present   absent     reuse key, regenerate cert, write cert     true
//	present   present    reuse key; regenerate cert in memory only  false
func Load(storePath, commonName string) (*CA, bool, error) {
	if err := os.MkdirAll(storePath, 0700); err != nil {
		return nil, false, fmt.Errorf("ca: create store dir: %w", err)
	}

	certPath := filepath.Join(storePath, rootCertFile)
	keyPath := filepath.Join(storePath, rootKeyFile)

	keyPEM, keyErr := os.ReadFile(keyPath)
	_, certErr := os.Stat(certPath)
	keyExists := keyErr == nil
	certExists := certErr == nil

	ca := &CA{StorePath: storePath, CommonName: commonName}

	var key *ecdsa.PrivateKey
	if keyExists {
		parsed, err := parseECKey(keyPEM)
		if err != nil {
			return nil, false, fmt.Errorf("ca: parse root key: %w", err)
		}
		key = parsed
	} else {
		generated, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, false, fmt.Errorf("ca: generate root key: %w", err)
		}
		key = generated
	}

	cert, err := buildRootCert(key, commonName)
	if err != nil {
		return nil, false, fmt.Errorf("ca: build root cert: %w", err)
	}

	ca.Key = key
	ca.Cert = cert

	created := !keyExists || !certExists

	switch {
	case !keyExists:
		if err := writeFileAtomic(keyPath, encodeKeyPEM(key), 0600); err != nil {
			return nil, false, err
		}
		if err := writeFileAtomic(certPath, encodeCertPEM(cert), 0644); err != nil {
			return nil, false, err
		}
	case !certExists:
		if err := writeFileAtomic(certPath, encodeCertPEM(cert), 0644); err != nil {
			return nil, false, err
		}
	}

	return ca, created, nil
}

// RootCertPEM returns the PEM-encoded root certificate.
func (ca *CA) RootCertPEM() []byte {
	if ca.Cert == nil {
		return nil
	}
	return encodeCertPEM(ca.Cert)
}

// RootCertPath returns the path of the root certificate PEM file under
// StorePath, regardless of whether it was just (re)written.
func (ca *CA) RootCertPath() string {
	return filepath.Join(ca.StorePath, rootCertFile)
}

// SignCertificate signs the given template with the root CA and returns the
// PEM-encoded certificate. The caller populates Subject, SANs, validity, and
// key usages; SignCertificate fills in the serial number when absent.
func (ca *CA) SignCertificate(template *x509.Certificate, pub crypto.PublicKey) ([]byte, error) {
	if ca.Cert == nil || ca.Key == nil {
		return nil, errors.New("ca: not initialized")
	}

	if template.SerialNumber == nil {
		serial, err := randomSerial()
		if err != nil {
			return nil, err
		}
		template.SerialNumber = serial
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Cert, pub, ca.Key)
	if err != nil {
		return nil, fmt.Errorf("ca: sign certificate: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: der,
	}), nil
}

// buildRootCert derives the root certificate from key and commonName: same
// key and name always produce the same serial number, subject, and
// extensions. The validity window starts at the current time and the
// ECDSA signature is randomized, so each call yields different DER bytes
// (and a different fingerprint) for the same key.
func buildRootCert(key *ecdsa.PrivateKey, commonName string) (*x509.Certificate, error) {
	serial := deterministicSerial(&key.PublicKey)

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: commonName,
		},
		NotBefore:             now.Add(-1 * time.Hour),
		NotAfter:              now.Add(rootValidFor),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create root cert: %w", err)
	}

	return x509.ParseCertificate(der)
}

// deterministicSerial derives a serial number from the public key so the
// same key always yields the same certificate serial.
func deterministicSerial(pub *ecdsa.PublicKey) *big.Int {
	sum := sha256.Sum256(elliptic.Marshal(pub.Curve, pub.X, pub.Y))
	serial := new(big.Int).SetBytes(sum[:16])
	// Ensure strictly positive, as required by x509.CreateCertificate.
	serial.SetBit(serial, 0, 1)
	return serial
}

func encodeCertPEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Raw,
	})
}

func encodeKeyPEM(key *ecdsa.PrivateKey) []byte {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		panic("ca: marshal key: " + err.Error())
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	})
}

func parseECKey(keyPEM []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, errors.New("no PEM block in key")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("root key is %T, want *ecdsa.PrivateKey", key)
	}
	return ecKey, nil
}

// writeFileAtomic writes data to a temporary file in the same directory and
// then renames it to the target path, providing atomic-write semantics.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("ca: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ca: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ca: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ca: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ca: rename temp file: %w", err)
	}
	return nil
}

func randomSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("ca: generate serial: %w", err)
	}
	return serial, nil
}
