//go:build windows

package trust

import (
	"fmt"
	"os"
	"os/exec"
)

type windowsTrustor struct{}

func newPlatformTrustor() Trustor {
	return &windowsTrustor{}
}

// Install adds the root CA PEM to the Windows Root certificate store via
// certutil. The certificate must be written to a temporary file first since
// certutil takes a path, not stdin.
func (w *windowsTrustor) Install(rootCertPEM []byte) error {
	if len(rootCertPEM) == 0 {
		return fmt.Errorf("trust: empty certificate data")
	}

	if _, err := parsePEMCertificate(rootCertPEM); err != nil {
		return err
	}

	tmpFile, err := writeTempPEM(rootCertPEM)
	if err != nil {
		return err
	}
	defer os.Remove(tmpFile)

	// certutil -addstore -f Root <path>
	cmd := exec.Command("certutil", "-addstore", "-f", "Root", tmpFile)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("trust: certutil -addstore failed: %w\noutput: %s", err, string(output))
	}
	return nil
}

// Uninstall removes the root CA from the Windows Root certificate store.
func (w *windowsTrustor) Uninstall() error {
	cmd := exec.Command("certutil", "-delstore", "Root", certCommonName)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("trust: certutil -delstore failed: %w\noutput: %s", err, string(output))
	}
	return nil
}

// IsInstalled checks the Root store for a certificate matching certCommonName.
func (w *windowsTrustor) IsInstalled(rootCertPEM []byte) bool {
	cmd := exec.Command("certutil", "-store", "Root", certCommonName)
	return cmd.Run() == nil
}

// NeedsElevation reports that certutil -addstore on the Root store requires
// an elevated (Administrator) process.
func (w *windowsTrustor) NeedsElevation() bool {
	return true
}

// writeTempPEM writes PEM data to a temporary file and returns the path.
// The caller is responsible for removing the file.
func writeTempPEM(pemData []byte) (string, error) {
	f, err := os.CreateTemp("", "sptth-ca-*.pem")
	if err != nil {
		return "", fmt.Errorf("trust: create temp file: %w", err)
	}
	if _, err := f.Write(pemData); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("trust: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("trust: close temp file: %w", err)
	}
	return f.Name(), nil
}
