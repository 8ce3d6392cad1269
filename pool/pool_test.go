package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zynerotech/sender/transport"
	"github.com/zynerotech/sender/transport/transporttest"
)

func dialFunc(d *transporttest.Dialer, key Key) ConnectFunc {
	return func(ctx context.Context) (transport.Connection, error) {
		return d.Dial(ctx, transport.Endpoint{BrokerURL: key.BrokerURL, Username: key.Username, TLSEnabled: key.TLSEnabled}, nil)
	}
}

func TestKeyOf(t *testing.T) {
	k := KeyOf(transport.Endpoint{BrokerURL: " tcp://b:1 ", Username: " bob ", Password: "secret", TLSEnabled: true})
	assert.Equal(t, Key{BrokerURL: "tcp://b:1", Username: "bob", TLSEnabled: true}, k)
	assert.NotContains(t, k.String(), "secret")
}

func TestGet_ConcurrentCallersShareOneConnect(t *testing.T) {
	p := New()
	key := Key{BrokerURL: "tcp://localhost:61616", Username: "u"}

	var calls atomic.Int32
	release := make(chan struct{})
	d := transporttest.NewDialer()
	connect := func(ctx context.Context) (transport.Connection, error) {
		calls.Add(1)
		<-release
		return d.Dial(ctx, transport.Endpoint{BrokerURL: key.BrokerURL}, nil)
	}

	const n = 32
	results := make([]transport.Connection, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := p.Get(context.Background(), key, connect)
			assert.NoError(t, err)
			results[i] = conn
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, c := range results {
		assert.Same(t, results[0], c)
	}
	assert.Equal(t, 1, p.Len())
}

func TestGet_ReturnsCachedConnection(t *testing.T) {
	p := New()
	d := transporttest.NewDialer()
	key := Key{BrokerURL: "tcp://b:1"}

	a, err := p.Get(context.Background(), key, dialFunc(d, key))
	require.NoError(t, err)
	b, err := p.Get(context.Background(), key, dialFunc(d, key))
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, d.Dials())
}

func TestGet_KeysAreIsolated(t *testing.T) {
	p := New()
	d := transporttest.NewDialer()
	keys := []Key{
		{BrokerURL: "tcp://b:1"},
		{BrokerURL: "tcp://b:2"},
		{BrokerURL: "tcp://b:1", Username: "alice"},
		{BrokerURL: "tcp://b:1", Username: "alice", TLSEnabled: true},
	}

	seen := make(map[transport.Connection]bool)
	for _, k := range keys {
		conn, err := p.Get(context.Background(), k, dialFunc(d, k))
		require.NoError(t, err)
		seen[conn] = true
	}

	assert.Len(t, seen, len(keys))
	assert.Equal(t, len(keys), p.Len())
	assert.Len(t, p.Keys(), len(keys))
}

func TestGet_FailureIsNotCached(t *testing.T) {
	p := New()
	d := transporttest.NewDialer()
	key := Key{BrokerURL: "tcp://down:1", Username: "bob"}
	refused := errors.New("connection refused")

	d.SetErrors(func(d *transporttest.Dialer) { d.DialErr = refused })
	_, err := p.Get(context.Background(), key, dialFunc(d, key))

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, key, connErr.Key)
	assert.Contains(t, err.Error(), `as user "bob"`)
	assert.Equal(t, 0, p.Len())

	d.SetErrors(func(d *transporttest.Dialer) { d.DialErr = nil })
	conn, err := p.Get(context.Background(), key, dialFunc(d, key))
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, 2, d.Dials())
	assert.Equal(t, 1, p.Len())
}

func TestGet_WaiterContextCancelled(t *testing.T) {
	p := New()
	key := Key{BrokerURL: "tcp://slow:1"}
	release := make(chan struct{})
	defer close(release)

	slow := func(ctx context.Context) (transport.Connection, error) {
		<-release
		return nil, errors.New("too late")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Get(ctx, key, slow)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGet_EvictsClosedConnection(t *testing.T) {
	p := New()
	key := Key{BrokerURL: "tcp://b:1"}

	first := &droppable{}
	conn, err := p.Get(context.Background(), key, func(context.Context) (transport.Connection, error) { return first, nil })
	require.NoError(t, err)
	assert.Same(t, first, conn)

	first.dropped = true
	assert.ErrorContains(t, p.Check(context.Background()), "tcp://b:1")

	second := &droppable{}
	conn, err = p.Get(context.Background(), key, func(context.Context) (transport.Connection, error) { return second, nil })
	require.NoError(t, err)
	assert.Same(t, second, conn)
	assert.Equal(t, 1, p.Len())
	assert.NoError(t, p.Check(context.Background()))
}

func TestCloseAll_ContinuesPastErrors(t *testing.T) {
	p := New()
	good := &droppable{}
	bad := &droppable{closeErr: errors.New("socket already gone")}
	alsoGood := &droppable{}

	for i, c := range []*droppable{good, bad, alsoGood} {
		c := c
		key := Key{BrokerURL: "tcp://b:" + string(rune('1'+i))}
		_, err := p.Get(context.Background(), key, func(context.Context) (transport.Connection, error) { return c, nil })
		require.NoError(t, err)
	}

	err := p.CloseAll()

	var closeErrs CloseErrors
	require.ErrorAs(t, err, &closeErrs)
	require.Len(t, closeErrs, 1)
	assert.Equal(t, "tcp://b:2", closeErrs[0].Key.BrokerURL)

	var single *CloseError
	assert.ErrorAs(t, err, &single)

	assert.True(t, good.closed)
	assert.True(t, bad.closed)
	assert.True(t, alsoGood.closed)
	assert.Equal(t, 0, p.Len())

	assert.NoError(t, p.CloseAll())
}

func TestCloseAll_ConcurrentWithGet(t *testing.T) {
	p := New()
	d := transporttest.NewDialer()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			key := Key{BrokerURL: "tcp://b:" + string(rune('0'+i))}
			_, err := p.Get(context.Background(), key, dialFunc(d, key))
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			_ = p.CloseAll()
		}()
	}
	wg.Wait()

	require.NoError(t, p.CloseAll())
	assert.Equal(t, 0, p.Len())
	for _, c := range d.Conns() {
		assert.True(t, c.Closed())
	}
}

type droppable struct {
	mu       sync.Mutex
	dropped  bool
	closed   bool
	closeErr error
}

func (d *droppable) OpenSession(context.Context) (transport.Session, error) {
	return nil, transport.ErrClosed
}

func (d *droppable) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

func (d *droppable) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return d.closeErr
}

func TestGet_SeparatorLookalikeKeysStayApart(t *testing.T) {
	p := New()
	d := transporttest.NewDialer()
	a := Key{BrokerURL: "tcp://h:1|x", Username: "y"}
	b := Key{BrokerURL: "tcp://h:1", Username: "x|y"}
	require.Equal(t, a.String(), b.String())

	started := make(chan struct{})
	release := make(chan struct{})
	slowA := func(ctx context.Context) (transport.Connection, error) {
		close(started)
		select {
		case <-release:
		case <-time.After(time.Second):
		}
		return dialFunc(d, a)(ctx)
	}

	var connA transport.Connection
	done := make(chan struct{})
	go func() {
		defer close(done)
		var err error
		connA, err = p.Get(context.Background(), a, slowA)
		assert.NoError(t, err)
	}()
	<-started

	var bCalled atomic.Bool
	connB, err := p.Get(context.Background(), b, func(ctx context.Context) (transport.Connection, error) {
		bCalled.Store(true)
		return dialFunc(d, b)(ctx)
	})
	close(release)
	<-done

	require.NoError(t, err)
	assert.True(t, bCalled.Load())
	assert.NotSame(t, connA, connB)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, 2, d.Dials())
}

func TestGet_LeaderCancelDoesNotFailWaiters(t *testing.T) {
	p := New()
	d := transporttest.NewDialer()
	key := Key{BrokerURL: "tcp://h:1"}

	started := make(chan struct{})
	slow := func(ctx context.Context) (transport.Connection, error) {
		close(started)
		select {
		case <-time.After(100 * time.Millisecond):
			return dialFunc(d, key)(ctx)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := p.Get(leaderCtx, key, slow)
		leaderErr <- err
	}()
	<-started

	waiterDone := make(chan struct{})
	var conn transport.Connection
	var err error
	go func() {
		defer close(waiterDone)
		conn, err = p.Get(context.Background(), key, dialFunc(d, key))
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	<-waiterDone
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, 1, d.Dials())
	assert.Equal(t, 1, p.Len())
}

func TestGet_WaiterRetriesAfterLeaderDeadline(t *testing.T) {
	p := New()
	d := transporttest.NewDialer()
	key := Key{BrokerURL: "tcp://h:1"}

	started := make(chan struct{})
	blocking := func(ctx context.Context) (transport.Connection, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	leaderCtx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	leaderErr := make(chan error, 1)
	go func() {
		_, err := p.Get(leaderCtx, key, blocking)
		leaderErr <- err
	}()
	<-started

	conn, err := p.Get(context.Background(), key, dialFunc(d, key))
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.ErrorIs(t, <-leaderErr, context.DeadlineExceeded)
	assert.Equal(t, 1, p.Len())
}

func TestGet_OwnContextErrorIsNotRetried(t *testing.T) {
	p := New()
	var calls atomic.Int32
	_, err := p.Get(context.Background(), Key{BrokerURL: "tcp://h:1"}, func(context.Context) (transport.Connection, error) {
		calls.Add(1)
		return nil, context.DeadlineExceeded
	})

	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}
