// Package amqp implements transport.Dialer on top of RabbitMQ's AMQP 0-9-1
// client. A connection maps to *amqp.Connection and a session to a channel in
// publisher-confirm mode.
package amqp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/zynerotech/sender/logger"
	"github.com/zynerotech/sender/transport"
)

// Schemes handled by this driver.
var Schemes = []string{"tcp", "ssl", "amqp", "amqps"}

const (
	// TopicExchange receives messages addressed to topics.
	TopicExchange = "amq.topic"

	defaultHeartbeat        = 10 * time.Second
	defaultHandshakeTimeout = 30 * time.Second
	defaultConnectionName   = "broker-sender"
)

// Dialer opens AMQP connections.
type Dialer struct {
	// Heartbeat interval negotiated with the broker.
	Heartbeat time.Duration
	// ConnectionName is shown in the broker's management UI.
	ConnectionName string
	// DeclareQueues makes producers declare durable queues before the first
	// publish so that messages to a missing queue are not dropped.
	DeclareQueues bool
}

func NewDialer() *Dialer {
	return &Dialer{
		Heartbeat:      defaultHeartbeat,
		ConnectionName: defaultConnectionName,
		DeclareQueues:  true,
	}
}

var _ transport.Dialer = (*Dialer)(nil)

// Dial connects to endpoint. tcp:// and amqp:// URLs are plaintext unless
// endpoint.TLSEnabled is set; ssl:// and amqps:// always use TLS.
func (d *Dialer) Dial(ctx context.Context, endpoint transport.Endpoint, tlsCfg *tls.Config) (transport.Connection, error) {
	uri, secure, err := brokerURL(endpoint)
	if err != nil {
		return nil, err
	}

	cfg := amqp.Config{
		Heartbeat:  d.Heartbeat,
		Locale:     "en_US",
		Properties: amqp.NewConnectionProperties(),
		Dial:       contextDial(ctx),
	}
	if d.ConnectionName != "" {
		cfg.Properties.SetClientConnectionName(d.ConnectionName)
	}
	if endpoint.HasCredentials() {
		cfg.SASL = []amqp.Authentication{&amqp.PlainAuth{
			Username: strings.TrimSpace(endpoint.Username),
			Password: endpoint.Password,
		}}
	}
	if secure {
		if tlsCfg != nil {
			// The client library fills in ServerName on the config it is given.
			cfg.TLSClientConfig = tlsCfg.Clone()
		} else {
			cfg.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	log := logger.Component("amqp")
	log.Debug().Str("broker", endpoint.String()).Bool("tls", secure).Msg("Dialing AMQP broker")

	conn, err := amqp.DialConfig(uri, cfg)
	if err != nil {
		return nil, err
	}

	log.Info().Str("broker", endpoint.String()).Msg("AMQP connection established")
	return &connection{conn: conn, declareQueues: d.DeclareQueues}, nil
}

// contextDial bounds the TCP dial by ctx and sets a deadline for the TLS and
// AMQP handshakes. The client clears the deadline once the connection is open.
func contextDial(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		conn, err := (&net.Dialer{}).DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(defaultHandshakeTimeout)
		}
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

// brokerURL rewrites a broker URL into the amqp/amqps form understood by the
// client library. Query parameters are dropped.
func brokerURL(endpoint transport.Endpoint) (string, bool, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint.BrokerURL))
	if err != nil {
		return "", false, fmt.Errorf("amqp: parse broker URL: %w", err)
	}

	var secure bool
	switch strings.ToLower(u.Scheme) {
	case "tcp", "amqp":
		secure = endpoint.TLSEnabled
	case "ssl", "amqps":
		secure = true
	default:
		return "", false, fmt.Errorf("%w: %q", transport.ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("amqp: broker URL %q has no host", endpoint.BrokerURL)
	}

	u.Scheme = "amqp"
	if secure {
		u.Scheme = "amqps"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), secure, nil
}
