package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/zynerotech/sender/headers"
	"github.com/zynerotech/sender/transport"
)

// ErrNack is returned when the broker negatively acknowledges a publish.
var ErrNack = errors.New("amqp: message rejected by broker")

// channel is the subset of *amqp.Channel used by sessions and producers.
type channel interface {
	Confirm(noWait bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

type connection struct {
	conn          *amqp.Connection
	declareQueues bool
}

func (c *connection) OpenSession(ctx context.Context) (transport.Session, error) {
	if c.conn.IsClosed() {
		return nil, transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	return newSession(ch, c.declareQueues)
}

// IsClosed reports whether the broker or the client closed the connection.
func (c *connection) IsClosed() bool {
	return c.conn.IsClosed()
}

func (c *connection) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

type session struct {
	ch            channel
	declareQueues bool

	mu       sync.Mutex
	declared map[string]bool
	closed   bool
}

func newSession(ch channel, declareQueues bool) (*session, error) {
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("amqp: enable publisher confirms: %w", err)
	}
	return &session{ch: ch, declareQueues: declareQueues, declared: make(map[string]bool)}, nil
}

func (s *session) CreateProducer(dest transport.Destination) (transport.Producer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, transport.ErrClosed
	}
	if dest.Kind == transport.Queue && s.declareQueues && !s.declared[dest.Name] {
		if _, err := s.ch.QueueDeclare(dest.Name, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("amqp: declare queue %q: %w", dest.Name, err)
		}
		s.declared[dest.Name] = true
	}

	exchange, key := route(dest)
	return &producer{session: s, exchange: exchange, key: key}, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}

// route maps a destination onto an exchange and routing key: queues use the
// default exchange, topics use amq.topic. The routing key is the name.
func route(dest transport.Destination) (exchange, key string) {
	if dest.Kind == transport.Topic {
		return TopicExchange, dest.Name
	}
	return "", dest.Name
}

type producer struct {
	session  *session
	exchange string
	key      string
	closed   bool
}

// Send publishes msg and waits for the broker confirm.
func (p *producer) Send(ctx context.Context, msg transport.Message) error {
	if p.closed {
		return transport.ErrClosed
	}

	p.session.mu.Lock()
	closed := p.session.closed
	p.session.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}

	dc, err := p.session.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, p.key, false, false, publishing(msg))
	if err != nil {
		return fmt.Errorf("amqp: publish: %w", err)
	}
	if dc == nil {
		// Channel not in confirm mode.
		return nil
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("amqp: wait for confirm: %w", err)
	}
	if !acked {
		return ErrNack
	}
	return nil
}

func (p *producer) Close() error {
	p.closed = true
	return nil
}

func publishing(msg transport.Message) amqp.Publishing {
	pub := amqp.Publishing{
		Headers:      toTable(msg.Headers),
		ContentType:  "text/plain",
		DeliveryMode: amqp.Transient,
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Body:         []byte(msg.Body),
	}
	if msg.Persistent {
		pub.DeliveryMode = amqp.Persistent
	}
	if v, ok := msg.Headers.Get("contentType"); ok && v.Kind() == headers.KindString {
		pub.ContentType = v.Str()
	}
	return pub
}

// toTable converts typed headers into AMQP field-table values of the same
// width.
func toTable(set *headers.Set) amqp.Table {
	if set.Len() == 0 {
		return nil
	}

	t := make(amqp.Table, set.Len())
	set.Range(func(name string, v headers.Value) bool {
		switch v.Kind() {
		case headers.KindInt32:
			t[name] = v.Int32()
		case headers.KindInt64:
			t[name] = v.Int64()
		case headers.KindBool:
			t[name] = v.Bool()
		case headers.KindFloat64:
			t[name] = v.Float64()
		case headers.KindFloat32:
			t[name] = v.Float32()
		default:
			t[name] = v.Str()
		}
		return true
	})
	return t
}
