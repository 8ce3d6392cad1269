// Package transporttest provides an in-memory transport.Dialer for tests.
package transporttest

import (
	"context"
	"crypto/tls"
	"sync"
	"sync/atomic"

	"github.com/zynerotech/sender/transport"
)

// Sent is one message captured by a fake producer.
type Sent struct {
	Endpoint    transport.Endpoint
	Destination transport.Destination
	Message     transport.Message
}

// Dialer is a fake transport.Dialer. Error fields inject failures at each
// step; they are read under the dialer's lock and may be changed between
// calls.
type Dialer struct {
	mu sync.Mutex

	DialErr           error
	OpenSessionErr    error
	CreateProducerErr error
	SendErr           error
	CloseErr          error

	// DialHook runs inside Dial before the connection is created.
	DialHook func(ctx context.Context, endpoint transport.Endpoint, tlsCfg *tls.Config) error

	dials    atomic.Int32
	conns    []*Conn
	sent     []Sent
	sessions atomic.Int32
	released atomic.Int32
}

func NewDialer() *Dialer {
	return &Dialer{}
}

func (d *Dialer) Dial(ctx context.Context, endpoint transport.Endpoint, tlsCfg *tls.Config) (transport.Connection, error) {
	d.dials.Add(1)

	d.mu.Lock()
	hook, dialErr := d.DialHook, d.DialErr
	d.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, endpoint, tlsCfg); err != nil {
			return nil, err
		}
	}
	if dialErr != nil {
		return nil, dialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := &Conn{dialer: d, Endpoint: endpoint, TLS: tlsCfg}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

// SetErrors replaces the injected errors under the lock.
func (d *Dialer) SetErrors(fn func(d *Dialer)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d)
}

// Dials is the number of Dial calls made so far.
func (d *Dialer) Dials() int { return int(d.dials.Load()) }

// Sessions is the number of sessions opened so far.
func (d *Dialer) Sessions() int { return int(d.sessions.Load()) }

// Released counts closed sessions and producers.
func (d *Dialer) Released() int { return int(d.released.Load()) }

// Conns returns every connection created so far.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Sent returns every message sent so far.
func (d *Dialer) Sent() []Sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Sent(nil), d.sent...)
}

// Conn is a fake transport.Connection.
type Conn struct {
	dialer   *Dialer
	Endpoint transport.Endpoint
	TLS      *tls.Config

	closed atomic.Bool
}

func (c *Conn) Closed() bool { return c.closed.Load() }

func (c *Conn) OpenSession(ctx context.Context) (transport.Session, error) {
	if c.closed.Load() {
		return nil, transport.ErrClosed
	}
	c.dialer.mu.Lock()
	err := c.dialer.OpenSessionErr
	c.dialer.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c.dialer.sessions.Add(1)
	return &session{conn: c}, nil
}

func (c *Conn) Close() error {
	c.closed.Store(true)
	c.dialer.mu.Lock()
	defer c.dialer.mu.Unlock()
	return c.dialer.CloseErr
}

type session struct {
	conn   *Conn
	closed bool
}

func (s *session) CreateProducer(dest transport.Destination) (transport.Producer, error) {
	if s.closed {
		return nil, transport.ErrClosed
	}
	d := s.conn.dialer
	d.mu.Lock()
	err := d.CreateProducerErr
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &producer{session: s, dest: dest}, nil
}

func (s *session) Close() error {
	if !s.closed {
		s.closed = true
		s.conn.dialer.released.Add(1)
	}
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
	if err := ctx.Err(); err != nil {
		return err
	}

	d := p.session.conn.dialer
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SendErr != nil {
		return d.SendErr
	}
	d.sent = append(d.sent, Sent{Endpoint: p.session.conn.Endpoint, Destination: p.dest, Message: msg})
	return nil
}

func (p *producer) Close() error {
	if !p.closed {
		p.closed = true
		p.session.conn.dialer.released.Add(1)
	}
	return nil
}
