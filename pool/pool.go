// Package pool caches live broker connections by endpoint identity.
//
// A connection is created at most once per key even under concurrent Get
// calls; failed attempts are never cached. CloseAll tears the pool down while
// Get keeps working against a fresh, empty cache.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/zynerotech/sender/logger"
	"github.com/zynerotech/sender/transport"
)

// Key is the identity of a pooled connection. The password is not part of it.
type Key struct {
	BrokerURL  string
	Username   string
	TLSEnabled bool
}

// KeyOf derives the pool key of an endpoint.
func KeyOf(e transport.Endpoint) Key {
	return Key{
		BrokerURL:  strings.TrimSpace(e.BrokerURL),
		Username:   strings.TrimSpace(e.Username),
		TLSEnabled: e.TLSEnabled,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|tls=%t", k.BrokerURL, k.Username, k.TLSEnabled)
}

// flightKey encodes k injectively; String is for humans and may collide.
func (k Key) flightKey() string {
	return fmt.Sprintf("%q\x00%q\x00%t", k.BrokerURL, k.Username, k.TLSEnabled)
}

// ConnectFunc creates the connection for a key on a cache miss.
type ConnectFunc func(ctx context.Context) (transport.Connection, error)

// closedChecker is implemented by connections that can report being dropped.
type closedChecker interface {
	IsClosed() bool
}

// Pool is safe for concurrent use. The zero value is not usable; call New.
type Pool struct {
	mu      sync.Mutex
	conns   map[Key]transport.Connection
	flights singleflight.Group
	metrics transport.Metrics
	log     *logger.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithMetrics sets the metrics sink.
func WithMetrics(m transport.Metrics) Option {
	return func(p *Pool) {
		if m != nil {
			p.metrics = m
		}
	}
}

func New(opts ...Option) *Pool {
	p := &Pool{
		conns:   make(map[Key]transport.Connection),
		metrics: &transport.NoOpMetrics{},
		log:     logger.Component("pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns the cached connection for key, creating it with connect on a
// miss. Concurrent callers for the same unseen key share one connect call and
// receive the same connection or the same *ConnectError.
//
// The shared attempt ignores cancellation of the caller that started it but
// keeps that caller's deadline. A waiter whose ctx ends returns ctx.Err(); a
// waiter still alive when the attempt failed on another caller's deadline
// retries.
func (p *Pool) Get(ctx context.Context, key Key, connect ConnectFunc) (transport.Connection, error) {
	for {
		if conn, ok := p.cached(key); ok {
			return conn, nil
		}

		var led bool
		ch := p.flights.DoChan(key.flightKey(), func() (any, error) {
			led = true
			return p.connect(ctx, key, connect)
		})

		select {
		case res := <-ch:
			if res.Err == nil {
				return res.Val.(transport.Connection), nil
			}
			if !led && isContextErr(res.Err) && ctx.Err() == nil {
				p.log.Debug().Str("broker", key.BrokerURL).Msg("Shared connect ended on another caller's context, retrying")
				continue
			}
			return nil, res.Err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) connect(ctx context.Context, key Key, connect ConnectFunc) (transport.Connection, error) {
	// Another flight may have finished between the lookup and this call.
	if conn, ok := p.cached(key); ok {
		return conn, nil
	}

	flightCtx, cancel := detach(ctx)
	defer cancel()

	conn, err := connect(flightCtx)
	if err != nil {
		p.metrics.IncConnectAttempts("error")
		p.log.Warn().Err(err).Str("broker", key.BrokerURL).Str("user", key.Username).Msg("Broker connection failed")
		return nil, &ConnectError{Key: key, Err: err}
	}
	p.metrics.IncConnectAttempts("success")

	p.mu.Lock()
	p.conns[key] = conn
	n := len(p.conns)
	p.mu.Unlock()

	p.metrics.SetPooledConnections(n)
	p.log.Info().Str("broker", key.BrokerURL).Bool("tls", key.TLSEnabled).Msg("Broker connection pooled")
	return conn, nil
}

// detach drops the cancellation of ctx and keeps its values and deadline.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return detached, func() {}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// cached looks key up, evicting a connection that reports itself closed.
func (p *Pool) cached(key Key) (transport.Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, ok := p.conns[key]
	if !ok {
		return nil, false
	}
	if cc, ok := conn.(closedChecker); ok && cc.IsClosed() {
		delete(p.conns, key)
		p.metrics.SetPooledConnections(len(p.conns))
		p.log.Warn().Str("broker", key.BrokerURL).Msg("Evicting dropped broker connection")
		return nil, false
	}
	return conn, true
}

// Len returns the number of pooled connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Keys returns the pooled keys in a stable order.
func (p *Pool) Keys() []Key {
	p.mu.Lock()
	keys := make([]Key, 0, len(p.conns))
	for k := range p.conns {
		keys = append(keys, k)
	}
	p.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Check reports an error naming every pooled connection that the broker has
// dropped. Dropped connections are replaced on their next Get.
func (p *Pool) Check(ctx context.Context) error {
	p.mu.Lock()
	var dropped []string
	for k, conn := range p.conns {
		if cc, ok := conn.(closedChecker); ok && cc.IsClosed() {
			dropped = append(dropped, k.BrokerURL)
		}
	}
	p.mu.Unlock()

	if len(dropped) == 0 {
		return nil
	}
	sort.Strings(dropped)
	return fmt.Errorf("dropped connections: %s", strings.Join(dropped, ", "))
}

// CloseAll closes every pooled connection and empties the pool. Each
// connection is closed independently; failures are logged and returned as
// CloseErrors. It returns nil when every close succeeded.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[Key]transport.Connection)
	p.mu.Unlock()

	p.metrics.SetPooledConnections(0)

	var errs CloseErrors
	for key, conn := range conns {
		if err := conn.Close(); err != nil {
			p.metrics.IncCloseErrors()
			p.log.Error().Err(err).Str("broker", key.BrokerURL).Msg("Failed to close broker connection")
			errs = append(errs, &CloseError{Key: key, Err: err})
			continue
		}
		p.log.Debug().Str("broker", key.BrokerURL).Msg("Broker connection closed")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
