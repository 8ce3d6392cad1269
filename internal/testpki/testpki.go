// Package testpki generates throwaway certificates and keys for tests.
package testpki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"
)

// Cert is a generated certificate together with its private key.
type Cert struct {
	X509 *x509.Certificate
	DER  []byte
	Key  *ecdsa.PrivateKey
}

// PEM returns the certificate as a single PEM block.
func (c Cert) PEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.DER}))
}

// KeyPKCS8 returns the private key in PKCS#8 DER form.
func (c Cert) KeyPKCS8(t testing.TB) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(c.Key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return der
}

// Options tweak a generated certificate.
type Options struct {
	CommonName string
	Serial     int64
	NotBefore  time.Time
	NotAfter   time.Time
	DNSNames   []string
	IPs        []net.IP
	IsCA       bool
}

// SelfSigned creates a self-signed certificate.
func SelfSigned(t testing.TB, opts Options) Cert {
	t.Helper()
	return issue(t, opts, nil)
}

// Issue creates a certificate signed by parent.
func Issue(t testing.TB, opts Options, parent Cert) Cert {
	t.Helper()
	return issue(t, opts, &parent)
}

func issue(t testing.TB, opts Options, parent *Cert) Cert {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	if opts.CommonName == "" {
		opts.CommonName = "test"
	}
	if opts.Serial == 0 {
		opts.Serial = 1
	}
	if opts.NotBefore.IsZero() {
		opts.NotBefore = time.Now().Add(-time.Hour)
	}
	if opts.NotAfter.IsZero() {
		opts.NotAfter = time.Now().Add(24 * time.Hour)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(opts.Serial),
		Subject:               pkix.Name{CommonName: opts.CommonName},
		NotBefore:             opts.NotBefore,
		NotAfter:              opts.NotAfter,
		DNSNames:              opts.DNSNames,
		IPAddresses:           opts.IPs,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  opts.IsCA,
	}
	if opts.IsCA {
		tmpl.KeyUsage |= x509.KeyUsageCertSign
	}

	signer, signerKey := tmpl, key
	if parent != nil {
		signer, signerKey = parent.X509, parent.Key
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, signer, &key.PublicKey, signerKey)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}

	return Cert{X509: cert, DER: der, Key: key}
}

// Bundle concatenates the PEM encodings of certs.
func Bundle(certs ...Cert) string {
	var b strings.Builder
	for _, c := range certs {
		b.WriteString(c.PEM())
	}
	return b.String()
}
