// Package transport defines the broker-neutral connection, session and
// producer abstractions used by the sender, plus a scheme-based Dialer
// registry. Concrete drivers live in the amqp and kafka subpackages.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zynerotech/sender/headers"
)

var (
	// ErrClosed is returned by operations on a closed connection or session.
	ErrClosed = errors.New("transport: closed")

	// ErrUnsupportedScheme is returned when no dialer handles a broker URL.
	ErrUnsupportedScheme = errors.New("transport: unsupported broker URL scheme")
)

// Endpoint identifies one broker connection target.
type Endpoint struct {
	BrokerURL  string
	Username   string
	Password   string
	TLSEnabled bool
}

// HasCredentials reports whether both username and password are non-blank.
func (e Endpoint) HasCredentials() bool {
	return strings.TrimSpace(e.Username) != "" && strings.TrimSpace(e.Password) != ""
}

// String renders the endpoint without its password.
func (e Endpoint) String() string {
	if u := strings.TrimSpace(e.Username); u != "" {
		return fmt.Sprintf("%s (user %s)", e.BrokerURL, u)
	}
	return e.BrokerURL
}

// Scheme returns the lower-cased URL scheme of the broker URL, or "" when the
// URL has none.
func (e Endpoint) Scheme() string {
	i := strings.Index(e.BrokerURL, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(e.BrokerURL[:i])
}

// Secure reports whether the endpoint needs a TLS configuration: either TLS
// was requested explicitly or the URL scheme implies it.
func (e Endpoint) Secure() bool {
	if e.TLSEnabled {
		return true
	}
	switch e.Scheme() {
	case "ssl", "amqps":
		return true
	}
	return false
}

// DestinationKind distinguishes point-to-point queues from publish/subscribe
// topics.
type DestinationKind int

const (
	Queue DestinationKind = iota
	Topic
)

func (k DestinationKind) String() string {
	if k == Topic {
		return "topic"
	}
	return "queue"
}

// ParseDestinationKind accepts "queue" or "topic" in any case.
func ParseDestinationKind(s string) (DestinationKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queue", "":
		return Queue, nil
	case "topic":
		return Topic, nil
	default:
		return Queue, fmt.Errorf("transport: unknown destination kind %q", s)
	}
}

// Destination names a queue or topic.
type Destination struct {
	Name string
	Kind DestinationKind
}

func (d Destination) String() string {
	return d.Kind.String() + "://" + d.Name
}

// Message is one outbound text message.
type Message struct {
	ID         string
	Body       string
	Persistent bool
	Timestamp  time.Time
	Headers    *headers.Set
}

// Dialer opens broker connections. tlsCfg is nil for plaintext endpoints.
type Dialer interface {
	Dial(ctx context.Context, endpoint Endpoint, tlsCfg *tls.Config) (Connection, error)
}

// Connection is a live broker connection shared by many sends. Sessions
// opened on it are independent of each other.
type Connection interface {
	OpenSession(ctx context.Context) (Session, error)
	io.Closer
}

// Session is a short-lived, single-goroutine context for creating producers.
type Session interface {
	CreateProducer(dest Destination) (Producer, error)
	io.Closer
}
