// Package sender sends single text messages with typed headers to a broker
// destination over pooled connections.
package sender

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zynerotech/sender/headers"
	"github.com/zynerotech/sender/logger"
	"github.com/zynerotech/sender/pool"
	"github.com/zynerotech/sender/tlsconfig"
	"github.com/zynerotech/sender/transport"
)

// Standard header names set on every message. Caller headers with the same
// name replace them.
const (
	HeaderContentType = "contentType"
	HeaderTimestamp   = "timestamp"
	HeaderSender      = "sender"

	DefaultContentType = "application/json"
	DefaultClientID    = "broker-sender"
)

// Request describes one send.
type Request struct {
	Endpoint    transport.Endpoint
	TLS         tlsconfig.Config
	Destination transport.Destination
	Body        string
	Headers     []headers.Raw
}

// Result describes a completed send.
type Result struct {
	MessageID   string
	Timestamp   time.Time
	Destination transport.Destination
	// Headers is the number of caller headers applied to the message.
	Headers  int
	Warnings []*headers.ConversionError
}

// Dispatcher sends messages. It is safe for concurrent use; every Send uses
// its own session and producer on a shared pooled connection.
type Dispatcher struct {
	pool           *pool.Pool
	dialer         transport.Dialer
	metrics        transport.Metrics
	clientID       string
	connectTimeout time.Duration
	sendTimeout    time.Duration
	buildTLS       func(tlsconfig.Config) (*tlsconfig.Context, error)
	now            func() time.Time
	newID          func() string
	log            *logger.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithMetrics(m transport.Metrics) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithClientID sets the value of the sender header.
func WithClientID(id string) Option {
	return func(d *Dispatcher) {
		if id = strings.TrimSpace(id); id != "" {
			d.clientID = id
		}
	}
}

// WithTimeouts bounds connection acquisition and the send itself when the
// caller's context has no deadline. Zero leaves the step unbounded.
func WithTimeouts(connect, send time.Duration) Option {
	return func(d *Dispatcher) {
		d.connectTimeout = connect
		d.sendTimeout = send
	}
}

func New(p *pool.Pool, dialer transport.Dialer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pool:     p,
		dialer:   dialer,
		metrics:  &transport.NoOpMetrics{},
		clientID: DefaultClientID,
		buildTLS: tlsconfig.Build,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
		log:      logger.Component("sender"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send delivers req.Body to req.Destination and blocks until the broker
// accepted it. Headers that fail type conversion are dropped and reported in
// Result.Warnings; they do not fail the send. Failures to connect surface as
// *pool.ConnectError, wrapping *tlsconfig.CertificateLoadError when the TLS
// material could not be loaded; later failures as *SendError.
func (d *Dispatcher) Send(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	start := d.now()
	dest := req.Destination
	destLabel := dest.String()

	custom, warnings := headers.CoerceAll(req.Headers)
	for _, w := range warnings {
		d.metrics.IncHeaderConversionFailures(string(w.Type))
		d.log.Warn().Err(w.Err).Str("header", w.Name).Str("value", w.Raw).Str("type", string(w.Type)).Msg("Header dropped")
	}

	result, err := d.send(ctx, req, custom, start)
	d.metrics.RecordSendTime(destLabel, d.now().Sub(start))
	if err != nil {
		d.metrics.IncMessagesSent(destLabel, "error")
		d.log.Error().Err(err).Str("destination", destLabel).Str("broker", req.Endpoint.String()).Msg("Send failed")
		return nil, err
	}
	d.metrics.IncMessagesSent(destLabel, "success")

	result.Warnings = warnings
	d.log.Info().
		Str("destination", destLabel).
		Str("message_id", result.MessageID).
		Int("headers", result.Headers).
		Int("warnings", len(warnings)).
		Msg("Message sent")
	return result, nil
}

func (d *Dispatcher) send(ctx context.Context, req Request, custom *headers.Set, start time.Time) (*Result, error) {
	conn, err := d.connection(ctx, req)
	if err != nil {
		return nil, err
	}

	sess, err := conn.OpenSession(ctx)
	if err != nil {
		return nil, &SendError{Destination: req.Destination, Err: fmt.Errorf("open session: %w", err)}
	}
	defer func() {
		if err := sess.Close(); err != nil {
			d.log.Warn().Err(err).Msg("Failed to close session")
		}
	}()

	prod, err := sess.CreateProducer(req.Destination)
	if err != nil {
		return nil, &SendError{Destination: req.Destination, Err: fmt.Errorf("create producer: %w", err)}
	}
	defer func() {
		if err := prod.Close(); err != nil {
			d.log.Warn().Err(err).Msg("Failed to close producer")
		}
	}()

	hs := headers.NewSet()
	hs.Put(HeaderContentType, headers.String(DefaultContentType))
	hs.Put(HeaderTimestamp, headers.Int64(start.UnixMilli()))
	hs.Put(HeaderSender, headers.String(d.clientID))
	hs.Merge(custom)

	msg := transport.Message{
		ID:         d.newID(),
		Body:       req.Body,
		Persistent: true,
		Timestamp:  start,
		Headers:    hs,
	}

	sendCtx, cancel := withTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := prod.Send(sendCtx, msg); err != nil {
		return nil, &SendError{Destination: req.Destination, Err: err}
	}

	return &Result{
		MessageID:   msg.ID,
		Timestamp:   start,
		Destination: req.Destination,
		Headers:     custom.Len(),
	}, nil
}

// connection returns the pooled connection for the request's endpoint,
// building the TLS configuration only when a new connection is dialed.
func (d *Dispatcher) connection(ctx context.Context, req Request) (transport.Connection, error) {
	ctx, cancel := withTimeout(ctx, d.connectTimeout)
	defer cancel()

	endpoint := req.Endpoint
	return d.pool.Get(ctx, pool.KeyOf(endpoint), func(ctx context.Context) (transport.Connection, error) {
		var tlsCfg *tls.Config
		if endpoint.Secure() {
			tlsCtx, err := d.buildTLS(req.TLS)
			if err != nil {
				return nil, err
			}
			tlsCfg = tlsCtx.TLS
		}
		return d.dialer.Dial(ctx, endpoint, tlsCfg)
	})
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func validate(req Request) error {
	var missing []string
	if strings.TrimSpace(req.Endpoint.BrokerURL) == "" {
		missing = append(missing, "broker URL")
	}
	if strings.TrimSpace(req.Destination.Name) == "" {
		missing = append(missing, "destination name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrInvalidRequest, strings.Join(missing, " and "))
	}
	return nil
}
