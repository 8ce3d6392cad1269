package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// Config contains parameters for the Kafka driver. Brokers and credentials
// come from the endpoint, not from here.
type Config struct {
	ClientID string         `mapstructure:"client_id"`
	SASL     SASLConfig     `mapstructure:"sasl"`
	Producer ProducerConfig `mapstructure:"producer"`
}

// SASLConfig describes SASL authentication settings. The mechanism is used
// whenever the endpoint carries both a username and a password.
type SASLConfig struct {
	Mechanism string `mapstructure:"mechanism" validate:"oneof=PLAIN SCRAM-SHA-256 SCRAM-SHA-512"`
}

// ProducerConfig holds producer related settings.
type ProducerConfig struct {
	Compression  string        `mapstructure:"compression" validate:"oneof=none gzip snappy lz4 zstd"`
	BatchSize    int           `mapstructure:"batch_size" validate:"min=1,max=1000000"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" validate:"min=1ms"`
	RequiredAcks int           `mapstructure:"required_acks" validate:"oneof=-1 0 1"`
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
	AutoCreate   bool          `mapstructure:"auto_create_topics"`
}

// DefaultConfig returns settings for one synchronous, fully acknowledged
// write per send.
func DefaultConfig() Config {
	return Config{
		ClientID: "broker-sender",
		SASL:     SASLConfig{Mechanism: "SCRAM-SHA-512"},
		Producer: ProducerConfig{
			Compression:  "none",
			BatchSize:    1,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: int(kafka.RequireAll),
			MaxAttempts:  1,
			AutoCreate:   true,
		},
	}
}

// GetCompressionCodec converts the configured compression string to kafka.Compression.
func (pc *ProducerConfig) GetCompressionCodec() kafka.Compression {
	switch pc.Compression {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}

// NewMechanism builds the SASL mechanism for the given credentials.
func (sc SASLConfig) NewMechanism(username, password string) (sasl.Mechanism, error) {
	switch strings.ToUpper(sc.Mechanism) {
	case "PLAIN":
		return plain.Mechanism{Username: username, Password: password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, username, password)
	case "SCRAM-SHA-512", "":
		return scram.Mechanism(scram.SHA512, username, password)
	default:
		return nil, fmt.Errorf("kafka: unsupported SASL mechanism %q", sc.Mechanism)
	}
}
