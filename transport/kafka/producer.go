package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"

	"github.com/zynerotech/sender/headers"
	"github.com/zynerotech/sender/logger"
	"github.com/zynerotech/sender/transport"
)

// Scheme handled by this driver: kafka://host:port[,host:port].
const Scheme = "kafka"

const (
	// KindHeader carries the destination kind, Kafka having only topics.
	KindHeader = "x-destination-kind"
	// TypesHeader carries a JSON object mapping header names to value kinds.
	TypesHeader = "x-header-types"
)

// Dialer opens Kafka "connections": a shared transport and synchronous
// writer, checked for reachability at dial time.
type Dialer struct {
	cfg Config
}

func NewDialer(cfg Config) *Dialer {
	return &Dialer{cfg: cfg}
}

var _ transport.Dialer = (*Dialer)(nil)

func (d *Dialer) Dial(ctx context.Context, endpoint transport.Endpoint, tlsCfg *tls.Config) (transport.Connection, error) {
	brokers, err := parseBrokers(endpoint.BrokerURL)
	if err != nil {
		return nil, err
	}

	sharedTransport := &kafka.Transport{ClientID: d.cfg.ClientID}
	probe := &kafka.Dialer{ClientID: d.cfg.ClientID, DualStack: true}

	if tlsCfg != nil || endpoint.TLSEnabled {
		if tlsCfg == nil {
			tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		sharedTransport.TLS = tlsCfg.Clone()
		probe.TLS = tlsCfg.Clone()
	}
	if endpoint.HasCredentials() {
		mechanism, err := d.cfg.SASL.NewMechanism(strings.TrimSpace(endpoint.Username), endpoint.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
		sharedTransport.SASL = mechanism
		probe.SASLMechanism = mechanism
	}

	if err := reachable(ctx, probe, brokers); err != nil {
		return nil, err
	}

	pc := d.cfg.Producer
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		Transport:              sharedTransport,
		BatchSize:              pc.BatchSize,
		BatchTimeout:           pc.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(pc.RequiredAcks),
		MaxAttempts:            pc.MaxAttempts,
		Compression:            pc.GetCompressionCodec(),
		AllowAutoTopicCreation: pc.AutoCreate,
	}

	logger.Component("kafka").Info().Strs("brokers", brokers).Msg("Kafka connection established")
	return &connection{writer: writer, transport: sharedTransport}, nil
}

// reachable succeeds as soon as one broker accepts a connection.
func reachable(ctx context.Context, probe *kafka.Dialer, brokers []string) error {
	var errs []error
	for _, b := range brokers {
		conn, err := probe.DialContext(ctx, "tcp", b)
		if err == nil {
			conn.Close()
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", b, err))
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("kafka: no broker reachable: %w", errors.Join(errs...))
}

func parseBrokers(raw string) ([]string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(raw), Scheme+"://")
	if !ok {
		return nil, fmt.Errorf("%w: %q", transport.ErrUnsupportedScheme, raw)
	}
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}

	var brokers []string
	for _, b := range strings.Split(rest, ",") {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(b); err != nil {
			return nil, fmt.Errorf("kafka: broker address %q: %w", b, err)
		}
		brokers = append(brokers, b)
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: broker URL %q lists no brokers", raw)
	}
	return brokers, nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type connection struct {
	writer    messageWriter
	transport *kafka.Transport

	mu     sync.RWMutex
	closed bool
}

func (c *connection) OpenSession(ctx context.Context) (transport.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, transport.ErrClosed
	}
	return &session{conn: c}, nil
}

func (c *connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close дожидается отправки буферизованных сообщений и закрывает writer
func (c *connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	return nil
}

type session struct {
	conn   *connection
	closed bool
}

func (s *session) CreateProducer(dest transport.Destination) (transport.Producer, error) {
	if s.closed {
		return nil, transport.ErrClosed
	}
	return &producer{session: s, dest: dest}, nil
}

func (s *session) Close() error {
	s.closed = true
	return nil
}

type producer struct {
	session *session
	dest    transport.Destination
	closed  bool
}

func (p *producer) Send(ctx context.Context, msg transport.Message) error {
	if p.closed || p.session.closed {
		return transport.ErrClosed
	}

	c := p.session.conn
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return transport.ErrClosed
	}

	km, err := message(p.dest, msg)
	if err != nil {
		return err
	}
	return c.writer.WriteMessages(ctx, km)
}

func (p *producer) Close() error {
	p.closed = true
	return nil
}

// message converts msg into a Kafka record keyed by its ID. Header values are
// written in text form; their kinds travel in TypesHeader.
func message(dest transport.Destination, msg transport.Message) (kafka.Message, error) {
	km := kafka.Message{
		Topic: dest.Name,
		Key:   []byte(msg.ID),
		Value: []byte(msg.Body),
		Time:  msg.Timestamp,
	}

	types := make(map[string]string, msg.Headers.Len())
	msg.Headers.Range(func(name string, v headers.Value) bool {
		km.Headers = append(km.Headers, kafka.Header{Key: name, Value: []byte(v.Text())})
		types[name] = v.Kind().String()
		return true
	})

	if len(types) > 0 {
		encoded, err := sonic.Marshal(types)
		if err != nil {
			return kafka.Message{}, fmt.Errorf("kafka: encode header types: %w", err)
		}
		km.Headers = append(km.Headers, kafka.Header{Key: TypesHeader, Value: encoded})
	}
	km.Headers = append(km.Headers, kafka.Header{Key: KindHeader, Value: []byte(dest.Kind.String())})
	return km, nil
}
