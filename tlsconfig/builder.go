// Package tlsconfig builds client TLS configurations from Java-style key and
// trust stores (JKS, PKCS12) or PEM bundles.
//
// The result is a fresh *tls.Config handed to a single connection; nothing
// process-wide is modified, so connections with different TLS settings can be
// opened side by side.
package tlsconfig

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/zynerotech/sender/certs"
	"github.com/zynerotech/sender/logger"
)

// tlsMinVersion is the minimum TLS version offered to brokers.
const tlsMinVersion = tls.VersionTLS12

// Config holds the key and trust material for one endpoint.
type Config struct {
	TrustStorePath     string `mapstructure:"trust_store_path"`
	TrustStorePassword string `mapstructure:"trust_store_password"`
	KeyStorePath       string `mapstructure:"key_store_path"`
	KeyStorePassword   string `mapstructure:"key_store_password"`
	SkipValidation     bool   `mapstructure:"skip_validation"`
}

// Context is the outcome of Build: the TLS configuration for the transport
// and the trust policy it was derived from.
type Context struct {
	TLS    *tls.Config
	Policy TrustPolicy
}

// Insecure reports whether certificate and hostname checks are disabled.
func (c *Context) Insecure() bool {
	return c.Policy.Kind() == PolicyAcceptAll
}

// Build assembles a TLS configuration from cfg. Trust material is chosen in
// this order:
//  1. SkipValidation: accept any chain and hostname
//  2. PEM trust store (.pem, .crt, .cer, .cert): anchors cert-0, cert-1, ...
//  3. keystore trust store (PKCS12 or JKS by extension)
//  4. the platform's default roots
//
// Any load or parse failure aborts the build.
func Build(cfg Config) (*Context, error) {
	log := logger.Component("tls")

	tlsCfg := &tls.Config{
		MinVersion: tlsMinVersion,
	}

	if path := strings.TrimSpace(cfg.KeyStorePath); path != "" {
		cert, err := LoadKeyPair(path, cfg.KeyStorePassword)
		if err != nil {
			return nil, err
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
		log.Debug().
			Str("path", path).
			Str("format", string(DetectStoreFormat(path))).
			Msg("Client key material loaded")
	}

	policy, err := buildTrustPolicy(cfg)
	if err != nil {
		return nil, err
	}
	policy.apply(tlsCfg)

	if policy.Kind() == PolicyAcceptAll {
		log.Warn().Msg("Certificate validation disabled: any server certificate and hostname will be accepted")
	} else {
		log.Debug().
			Bool("system_roots", policy.SystemRoots()).
			Int("anchors", len(policy.Anchors())).
			Msg("Strict trust policy built")
	}

	return &Context{TLS: tlsCfg, Policy: policy}, nil
}

func buildTrustPolicy(cfg Config) (TrustPolicy, error) {
	if cfg.SkipValidation {
		return AcceptAll(), nil
	}

	path := strings.TrimSpace(cfg.TrustStorePath)
	switch {
	case path == "":
		return Strict(nil), nil
	case certs.IsPEMPath(path):
		anchors, err := pemAnchors(path)
		if err != nil {
			return TrustPolicy{}, err
		}
		return Strict(anchors), nil
	default:
		anchors, err := LoadTrustAnchors(path, cfg.TrustStorePassword)
		if err != nil {
			return TrustPolicy{}, err
		}
		return Strict(anchors), nil
	}
}

// pemAnchors names each certificate of a PEM bundle cert-<index> in parse
// order.
func pemAnchors(path string) ([]TrustAnchor, error) {
	parsed, err := certs.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	anchors := make([]TrustAnchor, 0, len(parsed))
	for i, c := range parsed {
		anchors = append(anchors, TrustAnchor{Alias: fmt.Sprintf("cert-%d", i), Cert: c.X509})
	}
	return anchors, nil
}
