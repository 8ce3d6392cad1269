// Package certs extracts X.509 certificates from PEM text and files.
package certs

import (
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

const (
	beginMarker = "-----BEGIN CERTIFICATE-----"
	endMarker   = "-----END CERTIFICATE-----"
)

// pemExtensions are the file extensions treated as PEM certificate bundles.
var pemExtensions = []string{".pem", ".crt", ".cer", ".cert"}

// Certificate is a parsed X.509 certificate with its diagnostic fields lifted
// out.
type Certificate struct {
	Subject      string
	Issuer       string
	NotBefore    time.Time
	NotAfter     time.Time
	SerialNumber *big.Int

	X509 *x509.Certificate
}

func newCertificate(c *x509.Certificate) Certificate {
	return Certificate{
		Subject:      c.Subject.String(),
		Issuer:       c.Issuer.String(),
		NotBefore:    c.NotBefore,
		NotAfter:     c.NotAfter,
		SerialNumber: c.SerialNumber,
		X509:         c,
	}
}

// Expired reports whether the certificate is past its NotAfter at now.
func (c Certificate) Expired(now time.Time) bool {
	return now.After(c.NotAfter)
}

// IsPEMPath reports whether path has one of the PEM bundle extensions.
func IsPEMPath(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range pemExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Parse returns every certificate found between BEGIN/END CERTIFICATE markers
// in text, in source order. Whitespace inside a block body is ignored. A
// single malformed block fails the whole parse.
func Parse(text string) ([]Certificate, error) {
	var certs []Certificate

	rest := text
	for {
		start := strings.Index(rest, beginMarker)
		if start < 0 {
			break
		}
		rest = rest[start+len(beginMarker):]

		end := strings.Index(rest, endMarker)
		if end < 0 {
			break
		}
		body := rest[:end]
		rest = rest[end+len(endMarker):]

		der, err := base64.StdEncoding.DecodeString(stripSpace(body))
		if err != nil {
			return nil, &CertificateParseError{Index: len(certs), Err: err}
		}

		c, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, &CertificateParseError{Index: len(certs), Err: err}
		}
		certs = append(certs, newCertificate(c))
	}

	if len(certs) == 0 {
		return nil, ErrNoCertificates
	}
	return certs, nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// LoadFromFile reads path and parses it with Parse.
func LoadFromFile(path string) ([]Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("certs: failed to read %s: %w", path, err)
	}

	certs, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return certs, nil
}

// Summarize renders subject, issuer, validity window and serial number for
// diagnostics.
func Summarize(c Certificate) string {
	serial := "0"
	if c.SerialNumber != nil {
		serial = strings.ToUpper(c.SerialNumber.Text(16))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", c.Subject)
	fmt.Fprintf(&b, "Issuer: %s\n", c.Issuer)
	fmt.Fprintf(&b, "Valid From: %s\n", c.NotBefore.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Valid Until: %s\n", c.NotAfter.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Serial Number: %s", serial)
	return b.String()
}
