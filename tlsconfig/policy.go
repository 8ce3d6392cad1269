package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
)

// PolicyKind selects how server certificates are checked.
type PolicyKind int

const (
	// PolicyStrict verifies the chain against a set of anchors (or the system
	// roots) and checks the hostname.
	PolicyStrict PolicyKind = iota
	// PolicyAcceptAll trusts any chain and any hostname.
	PolicyAcceptAll
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyStrict:
		return "strict"
	case PolicyAcceptAll:
		return "accept-all"
	default:
		return "unknown"
	}
}

var errEmptyChain = errors.New("tlsconfig: empty certificate chain")

// TrustPolicy decides whether a server certificate chain is trusted. It is
// either Strict over a set of anchors or AcceptAll; the zero value is Strict
// over the system roots.
type TrustPolicy struct {
	kind    PolicyKind
	anchors []TrustAnchor
	pool    *x509.CertPool
}

// Strict trusts only chains rooted in anchors. A nil or empty anchors slice
// means the platform's default roots.
func Strict(anchors []TrustAnchor) TrustPolicy {
	p := TrustPolicy{kind: PolicyStrict}
	if len(anchors) == 0 {
		return p
	}

	p.anchors = anchors
	p.pool = x509.NewCertPool()
	for _, a := range anchors {
		p.pool.AddCert(a.Cert)
	}
	return p
}

// AcceptAll trusts every chain and hostname. Only for development brokers.
func AcceptAll() TrustPolicy {
	return TrustPolicy{kind: PolicyAcceptAll}
}

func (p TrustPolicy) Kind() PolicyKind { return p.kind }

// SystemRoots reports whether a strict policy relies on the platform roots.
func (p TrustPolicy) SystemRoots() bool {
	return p.kind == PolicyStrict && p.pool == nil
}

func (p TrustPolicy) Anchors() []TrustAnchor {
	return p.anchors
}

// Aliases returns the anchor aliases in the order they were added.
func (p TrustPolicy) Aliases() []string {
	out := make([]string, 0, len(p.anchors))
	for _, a := range p.anchors {
		out = append(out, a.Alias)
	}
	return out
}

// Verify checks chain (leaf first) for host under the policy.
func (p TrustPolicy) Verify(chain []*x509.Certificate, host string) error {
	if p.kind == PolicyAcceptAll {
		return nil
	}
	if len(chain) == 0 {
		return errEmptyChain
	}

	opts := x509.VerifyOptions{
		Roots:         p.pool,
		DNSName:       host,
		Intermediates: x509.NewCertPool(),
	}
	for _, c := range chain[1:] {
		opts.Intermediates.AddCert(c)
	}

	_, err := chain[0].Verify(opts)
	return err
}

func (p TrustPolicy) apply(cfg *tls.Config) {
	switch p.kind {
	case PolicyAcceptAll:
		cfg.InsecureSkipVerify = true
	default:
		cfg.RootCAs = p.pool
	}
}
