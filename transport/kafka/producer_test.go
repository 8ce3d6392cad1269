package kafka

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zynerotech/sender/headers"
	"github.com/zynerotech/sender/transport"
)

type fakeWriter struct {
	written  []kafka.Message
	writeErr error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestParseBrokers(t *testing.T) {
	tests := []struct {
		raw     string
		want    []string
		wantErr bool
	}{
		{"kafka://localhost:9092", []string{"localhost:9092"}, false},
		{"kafka://a:9092, b:9093", []string{"a:9092", "b:9093"}, false},
		{"kafka://a:9092/?client=x", []string{"a:9092"}, false},
		{"kafka://", nil, true},
		{"kafka://nohostport", nil, true},
		{"tcp://a:9092", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseBrokers(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseBrokers("amqp://a:5672")
	assert.ErrorIs(t, err, transport.ErrUnsupportedScheme)
}

func TestMessage(t *testing.T) {
	hs := headers.NewSet()
	hs.Put("contentType", headers.String("application/json"))
	hs.Put("timestamp", headers.Int64(1700000000000))
	hs.Put("flag", headers.Bool(false))
	ts := time.UnixMilli(1700000000000)

	km, err := message(transport.Destination{Name: "events", Kind: transport.Topic}, transport.Message{
		ID: "abc", Body: "payload", Timestamp: ts, Headers: hs,
	})
	require.NoError(t, err)

	assert.Equal(t, "events", km.Topic)
	assert.Equal(t, []byte("abc"), km.Key)
	assert.Equal(t, []byte("payload"), km.Value)
	assert.Equal(t, ts, km.Time)

	got := make(map[string]string)
	for _, h := range km.Headers {
		got[h.Key] = string(h.Value)
	}
	assert.Equal(t, "application/json", got["contentType"])
	assert.Equal(t, "1700000000000", got["timestamp"])
	assert.Equal(t, "false", got["flag"])
	assert.Equal(t, "topic", got[KindHeader])

	var types map[string]string
	require.NoError(t, sonic.Unmarshal([]byte(got[TypesHeader]), &types))
	assert.Equal(t, map[string]string{"contentType": "string", "timestamp": "int64", "flag": "bool"}, types)

	// Header order follows insertion order.
	assert.Equal(t, "contentType", km.Headers[0].Key)
	assert.Equal(t, "timestamp", km.Headers[1].Key)
}

func TestMessage_NoHeaders(t *testing.T) {
	km, err := message(transport.Destination{Name: "orders"}, transport.Message{Body: "x"})
	require.NoError(t, err)
	require.Len(t, km.Headers, 1)
	assert.Equal(t, KindHeader, km.Headers[0].Key)
	assert.Equal(t, "queue", string(km.Headers[0].Value))
}

func TestConnectionLifecycle(t *testing.T) {
	w := &fakeWriter{}
	conn := &connection{writer: w}

	sess, err := conn.OpenSession(context.Background())
	require.NoError(t, err)
	p, err := sess.CreateProducer(transport.Destination{Name: "orders"})
	require.NoError(t, err)

	require.NoError(t, p.Send(context.Background(), transport.Message{ID: "1", Body: "a"}))
	require.Len(t, w.written, 1)
	assert.Equal(t, "orders", w.written[0].Topic)

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Send(context.Background(), transport.Message{}), transport.ErrClosed)
	require.NoError(t, sess.Close())
	_, err = sess.CreateProducer(transport.Destination{Name: "orders"})
	assert.ErrorIs(t, err, transport.ErrClosed)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.True(t, w.closed)
	assert.True(t, conn.IsClosed())

	_, err = conn.OpenSession(context.Background())
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestProducerSend_WriteError(t *testing.T) {
	boom := errors.New("leader not available")
	conn := &connection{writer: &fakeWriter{writeErr: boom}}

	sess, err := conn.OpenSession(context.Background())
	require.NoError(t, err)
	p, err := sess.CreateProducer(transport.Destination{Name: "orders"})
	require.NoError(t, err)

	assert.ErrorIs(t, p.Send(context.Background(), transport.Message{Body: "x"}), boom)
}

func TestSASLMechanism(t *testing.T) {
	for _, name := range []string{"PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512", "scram-sha-512", ""} {
		m, err := SASLConfig{Mechanism: name}.NewMechanism("user", "secret")
		require.NoError(t, err, name)
		assert.NotNil(t, m)
	}

	m, _ := SASLConfig{Mechanism: "PLAIN"}.NewMechanism("user", "secret")
	assert.Equal(t, "PLAIN", m.Name())

	_, err := SASLConfig{Mechanism: "GSSAPI"}.NewMechanism("user", "secret")
	assert.Error(t, err)
}

func TestCompressionCodec(t *testing.T) {
	tests := map[string]kafka.Compression{
		"gzip":   kafka.Gzip,
		"snappy": kafka.Snappy,
		"lz4":    kafka.Lz4,
		"zstd":   kafka.Zstd,
		"none":   0,
		"":       0,
	}
	for name, want := range tests {
		pc := ProducerConfig{Compression: name}
		assert.Equal(t, want, pc.GetCompressionCodec(), name)
	}
}

func TestDial_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = NewDialer(DefaultConfig()).Dial(ctx, transport.Endpoint{BrokerURL: "kafka://" + addr}, nil)
	assert.Error(t, err)
}
