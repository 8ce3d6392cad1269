package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zynerotech/sender/headers"
	"github.com/zynerotech/sender/healthcheck"
	"github.com/zynerotech/sender/logger"
	"github.com/zynerotech/sender/metrics"
	"github.com/zynerotech/sender/server"
	"github.com/zynerotech/sender/tlsconfig"
	"github.com/zynerotech/sender/transport"
	"github.com/zynerotech/sender/transport/kafka"
)

const (
	// DefaultBrokerURL is used when no broker URL is configured.
	DefaultBrokerURL = "tcp://localhost:61616"
	// DefaultClientID identifies this client in the standard sender header.
	DefaultClientID = "broker-sender"
)

// Password encodings accepted for stored passwords.
const (
	PasswordPlain  = "plain"
	PasswordBase64 = "base64"
)

// Sender is the complete configuration of the sender application.
type Sender struct {
	Broker      BrokerConfig       `mapstructure:"broker"`
	TLS         tlsconfig.Config   `mapstructure:"tls"`
	Destination DestinationConfig  `mapstructure:"destination"`
	Message     MessageConfig      `mapstructure:"message"`
	Client      ClientConfig       `mapstructure:"client"`
	AMQP        AMQPConfig         `mapstructure:"amqp"`
	Kafka       kafka.Config       `mapstructure:"kafka"`
	Logger      logger.Config      `mapstructure:"logger"`
	Metrics     metrics.Config     `mapstructure:"metrics"`
	Healthcheck healthcheck.Config `mapstructure:"healthcheck"`
	Server      server.Config      `mapstructure:"server"`

	// RequireMessage makes Validate demand a message body. Set by callers
	// that are about to send; not read from the file.
	RequireMessage bool `mapstructure:"-"`
	// Serving drops the destination name requirement: gateway requests name
	// their own destination.
	Serving bool `mapstructure:"-"`
}

// BrokerConfig describes the broker endpoint.
type BrokerConfig struct {
	URL              string `mapstructure:"url"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	PasswordEncoding string `mapstructure:"password_encoding"` // plain or base64, applies to every stored password
	TLSEnabled       bool   `mapstructure:"tls_enabled"`
}

// DestinationConfig names the queue or topic to send to.
type DestinationConfig struct {
	Name string `mapstructure:"name"`
	Kind string `mapstructure:"kind"` // queue or topic
}

// MessageConfig holds the message to send.
type MessageConfig struct {
	Body    string        `mapstructure:"body"`
	Headers []headers.Raw `mapstructure:"headers"`
}

// ClientConfig holds client identity and timeouts.
type ClientConfig struct {
	ID             string        `mapstructure:"id"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
}

// AMQPConfig tunes the AMQP driver.
type AMQPConfig struct {
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
	ConnectionName string        `mapstructure:"connection_name"`
	DeclareQueues  bool          `mapstructure:"declare_queues"`
}

// SetDefaults регистрирует значения по умолчанию
func (s *Sender) SetDefaults(l *Loader) {
	kd := kafka.DefaultConfig()

	defaults := map[string]any{
		"broker.url":               DefaultBrokerURL,
		"broker.username":          "",
		"broker.password":          "",
		"broker.password_encoding": PasswordPlain,
		"broker.tls_enabled":       false,

		"tls.trust_store_path":     "",
		"tls.trust_store_password": "",
		"tls.key_store_path":       "",
		"tls.key_store_password":   "",
		"tls.skip_validation":      false,

		"destination.name": "",
		"destination.kind": "queue",

		"message.body": "",

		"client.id":              DefaultClientID,
		"client.connect_timeout": 15 * time.Second,
		"client.send_timeout":    30 * time.Second,

		"amqp.heartbeat":       10 * time.Second,
		"amqp.connection_name": DefaultClientID,
		"amqp.declare_queues":  true,

		"kafka.client_id":                   kd.ClientID,
		"kafka.sasl.mechanism":              kd.SASL.Mechanism,
		"kafka.producer.compression":        kd.Producer.Compression,
		"kafka.producer.batch_size":         kd.Producer.BatchSize,
		"kafka.producer.batch_timeout":      kd.Producer.BatchTimeout,
		"kafka.producer.required_acks":      kd.Producer.RequiredAcks,
		"kafka.producer.max_attempts":       kd.Producer.MaxAttempts,
		"kafka.producer.auto_create_topics": kd.Producer.AutoCreate,

		"logger.level":       "info",
		"logger.format":      "console",
		"logger.output":      "stderr",
		"logger.time_format": time.RFC3339,

		"metrics.enabled":      false,
		"metrics.path":         "/metrics",
		"metrics.port":         0,
		"metrics.service_name": "broker_sender",

		"healthcheck.enabled": false,
		"healthcheck.path":    "/health",
		"healthcheck.port":    0,

		"server.address":          ":8080",
		"server.read_timeout":     10 * time.Second,
		"server.write_timeout":    45 * time.Second,
		"server.idle_timeout":     60 * time.Second,
		"server.shutdown_timeout": 10 * time.Second,
		"server.body_limit":       4 << 20,
	}
	for k, v := range defaults {
		l.SetDefault(k, v)
	}
}

// Validate mirrors the checks made before a send: a broker URL and a
// destination name are required, and so is a body when RequireMessage is set.
func (s *Sender) Validate() error {
	var errs []error

	if strings.TrimSpace(s.Broker.URL) == "" {
		errs = append(errs, errors.New("broker url is required"))
	}
	switch strings.ToLower(s.Broker.PasswordEncoding) {
	case "", PasswordPlain, PasswordBase64:
	default:
		errs = append(errs, fmt.Errorf("broker password_encoding %q must be plain or base64", s.Broker.PasswordEncoding))
	}
	if !s.Serving && strings.TrimSpace(s.Destination.Name) == "" {
		errs = append(errs, errors.New("destination name is required"))
	}
	if _, err := transport.ParseDestinationKind(s.Destination.Kind); err != nil {
		errs = append(errs, err)
	}
	if s.RequireMessage && strings.TrimSpace(s.Message.Body) == "" {
		errs = append(errs, errors.New("message body is required"))
	}
	if s.Client.ConnectTimeout < 0 || s.Client.SendTimeout < 0 {
		errs = append(errs, errors.New("client timeouts must not be negative"))
	}

	return errors.Join(errs...)
}

func (s *Sender) password(stored string) string {
	if strings.EqualFold(s.Broker.PasswordEncoding, PasswordBase64) {
		return DecodePassword(stored)
	}
	return stored
}

// Endpoint returns the broker endpoint with decoded credentials.
func (s *Sender) Endpoint() transport.Endpoint {
	return transport.Endpoint{
		BrokerURL:  strings.TrimSpace(s.Broker.URL),
		Username:   strings.TrimSpace(s.Broker.Username),
		Password:   s.password(s.Broker.Password),
		TLSEnabled: s.Broker.TLSEnabled,
	}
}

// TLSConfig returns the TLS settings with decoded store passwords.
func (s *Sender) TLSConfig() tlsconfig.Config {
	cfg := s.TLS
	cfg.TrustStorePassword = s.password(cfg.TrustStorePassword)
	cfg.KeyStorePassword = s.password(cfg.KeyStorePassword)
	return cfg
}

// DestinationValue returns the parsed destination.
func (s *Sender) DestinationValue() transport.Destination {
	kind, _ := transport.ParseDestinationKind(s.Destination.Kind)
	return transport.Destination{Name: strings.TrimSpace(s.Destination.Name), Kind: kind}
}

// GatewayTarget returns the broker the HTTP gateway sends to.
func (s *Sender) GatewayTarget() server.Target {
	return server.Target{
		Endpoint: s.Endpoint(),
		TLS:      s.TLSConfig(),
		Kind:     s.DestinationValue().Kind,
	}
}

// ClientSettings возвращает идентификатор клиента и таймауты
func (s *Sender) ClientSettings() ClientConfig {
	return s.Client
}

// AMQPSettings возвращает настройки AMQP-драйвера
func (s *Sender) AMQPSettings() AMQPConfig {
	return s.AMQP
}

// KafkaSettings возвращает настройки Kafka-драйвера
func (s *Sender) KafkaSettings() kafka.Config {
	return s.Kafka
}

// LoggerConfig возвращает конфигурацию логгера (обязательный)
func (s *Sender) LoggerConfig() logger.Config {
	return s.Logger
}

// MetricsConfig возвращает конфигурацию метрик или nil, если они выключены
func (s *Sender) MetricsConfig() *metrics.Config {
	if !s.Metrics.Enabled {
		return nil
	}
	return &s.Metrics
}

// HealthcheckConfig возвращает конфигурацию healthcheck или nil
func (s *Sender) HealthcheckConfig() *healthcheck.Config {
	if !s.Healthcheck.Enabled {
		return nil
	}
	return &s.Healthcheck
}
