package tlsconfig

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPrivateKey is returned when a key store holds no private key entry.
	ErrNoPrivateKey = errors.New("tlsconfig: key store has no private key entry")

	// ErrNoTrustedCertificates is returned when a trust store holds no certificates.
	ErrNoTrustedCertificates = errors.New("tlsconfig: trust store has no certificates")
)

// CertificateLoadError reports a key or trust store that could not be loaded:
// missing file, wrong password or unreadable format.
type CertificateLoadError struct {
	Path string
	Err  error
}

func (e *CertificateLoadError) Error() string {
	return fmt.Sprintf("tlsconfig: failed to load %s: %v", e.Path, e.Err)
}

func (e *CertificateLoadError) Unwrap() error {
	return e.Err
}
