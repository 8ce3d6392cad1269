package tlsconfig

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	"software.sslmate.com/src/go-pkcs12"
)

// StoreFormat is the container format of a key or trust store file.
type StoreFormat string

const (
	FormatJKS    StoreFormat = "JKS"
	FormatPKCS12 StoreFormat = "PKCS12"
)

// DetectStoreFormat infers the store format from the file extension:
// .p12 and .pfx are PKCS12, everything else is treated as JKS.
func DetectStoreFormat(path string) StoreFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".p12", ".pfx":
		return FormatPKCS12
	default:
		return FormatJKS
	}
}

// TrustAnchor is a trusted certificate together with the alias it is stored
// under.
type TrustAnchor struct {
	Alias string
	Cert  *x509.Certificate
}

// LoadKeyPair loads the first private key entry of the store at path as a
// client certificate.
func LoadKeyPair(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, &CertificateLoadError{Path: path, Err: err}
	}

	var cert tls.Certificate
	switch DetectStoreFormat(path) {
	case FormatPKCS12:
		cert, err = pkcs12KeyPair(data, password)
	default:
		cert, err = jksKeyPair(data, password)
	}
	if err != nil {
		return tls.Certificate{}, &CertificateLoadError{Path: path, Err: err}
	}
	return cert, nil
}

// LoadTrustAnchors loads every trusted certificate of the store at path.
func LoadTrustAnchors(path, password string) ([]TrustAnchor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CertificateLoadError{Path: path, Err: err}
	}

	var anchors []TrustAnchor
	switch DetectStoreFormat(path) {
	case FormatPKCS12:
		anchors, err = pkcs12Anchors(data, password)
	default:
		anchors, err = jksAnchors(data, password)
	}
	if err != nil {
		return nil, &CertificateLoadError{Path: path, Err: err}
	}
	if len(anchors) == 0 {
		return nil, &CertificateLoadError{Path: path, Err: ErrNoTrustedCertificates}
	}
	return anchors, nil
}

func pkcs12KeyPair(data []byte, password string) (tls.Certificate, error) {
	key, leaf, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return tls.Certificate{}, err
	}

	cert := tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}
	for _, c := range chain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}
	return cert, nil
}

func pkcs12Anchors(data []byte, password string) ([]TrustAnchor, error) {
	certs, err := pkcs12.DecodeTrustStore(data, password)
	if err != nil {
		return nil, err
	}

	anchors := make([]TrustAnchor, 0, len(certs))
	for i, c := range certs {
		anchors = append(anchors, TrustAnchor{Alias: fmt.Sprintf("cert-%d", i), Cert: c})
	}
	return anchors, nil
}

func loadJKS(data []byte, password string) (keystore.KeyStore, error) {
	ks := keystore.New(keystore.WithOrderedAliases())
	if err := ks.Load(bytes.NewReader(data), []byte(password)); err != nil {
		return ks, err
	}
	return ks, nil
}

func jksKeyPair(data []byte, password string) (tls.Certificate, error) {
	ks, err := loadJKS(data, password)
	if err != nil {
		return tls.Certificate{}, err
	}

	for _, alias := range ks.Aliases() {
		if !ks.IsPrivateKeyEntry(alias) {
			continue
		}
		entry, err := ks.GetPrivateKeyEntry(alias, []byte(password))
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("alias %q: %w", alias, err)
		}
		return jksEntryKeyPair(alias, entry)
	}

	return tls.Certificate{}, ErrNoPrivateKey
}

func jksEntryKeyPair(alias string, entry keystore.PrivateKeyEntry) (tls.Certificate, error) {
	key, err := x509.ParsePKCS8PrivateKey(entry.PrivateKey)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("alias %q: parse private key: %w", alias, err)
	}
	if len(entry.CertificateChain) == 0 {
		return tls.Certificate{}, fmt.Errorf("alias %q: empty certificate chain", alias)
	}

	cert := tls.Certificate{PrivateKey: key}
	for _, c := range entry.CertificateChain {
		cert.Certificate = append(cert.Certificate, c.Content)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("alias %q: parse certificate: %w", alias, err)
	}
	cert.Leaf = leaf
	return cert, nil
}

func jksAnchors(data []byte, password string) ([]TrustAnchor, error) {
	ks, err := loadJKS(data, password)
	if err != nil {
		return nil, err
	}

	var anchors []TrustAnchor
	for _, alias := range ks.Aliases() {
		if !ks.IsTrustedCertificateEntry(alias) {
			continue
		}
		entry, err := ks.GetTrustedCertificateEntry(alias)
		if err != nil {
			return nil, fmt.Errorf("alias %q: %w", alias, err)
		}
		c, err := x509.ParseCertificate(entry.Certificate.Content)
		if err != nil {
			return nil, fmt.Errorf("alias %q: parse certificate: %w", alias, err)
		}
		anchors = append(anchors, TrustAnchor{Alias: alias, Cert: c})
	}
	return anchors, nil
}
