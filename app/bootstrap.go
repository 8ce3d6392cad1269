package app

import (
	"errors"
	"fmt"

	"github.com/zynerotech/sender/config"
	platformhealthcheck "github.com/zynerotech/sender/healthcheck"
	platformlogger "github.com/zynerotech/sender/logger"
	platformmetrics "github.com/zynerotech/sender/metrics"
	"github.com/zynerotech/sender/pool"
	"github.com/zynerotech/sender/sender"
	"github.com/zynerotech/sender/transport"
	"github.com/zynerotech/sender/transport/amqp"
	"github.com/zynerotech/sender/transport/kafka"
)

// ConfigProvider describes configuration required to bootstrap common
// infrastructure components. It should be implemented by a service specific
// configuration struct.
type ConfigProvider interface {
	Validate() error
	LoggerConfig() platformlogger.Config
}

// OptionalConfigProvider describes optional configuration methods that may not be implemented
// by all services. These methods should return nil if the component is not needed.
type OptionalConfigProvider interface {
	MetricsConfig() *platformmetrics.Config
	HealthcheckConfig() *platformhealthcheck.Config
}

// SenderConfigProvider describes the broker driver and dispatcher settings.
// Defaults are used when the configuration does not implement it.
type SenderConfigProvider interface {
	ClientSettings() config.ClientConfig
	AMQPSettings() config.AMQPConfig
	KafkaSettings() kafka.Config
}

// App contains initialized components used by the sender.
// Only Logger is guaranteed to be present, other components may be nil.
type App struct {
	Config      ConfigProvider
	Logger      *platformlogger.Logger
	Metrics     *platformmetrics.Metrics
	Healthcheck *platformhealthcheck.Healthcheck
	Dialers     *transport.Registry
	Pool        *pool.Pool
	Dispatcher  *sender.Dispatcher
}

// AppBuilder provides a fluent interface for building App instances
type AppBuilder struct {
	config      ConfigProvider
	logger      *platformlogger.Logger
	metrics     *platformmetrics.Metrics
	healthcheck *platformhealthcheck.Healthcheck
	dialers     *transport.Registry
	pool        *pool.Pool
	dispatcher  *sender.Dispatcher
	errors      []error
}

// NewBuilder creates a new AppBuilder with the given configuration
func NewBuilder(cfg ConfigProvider) *AppBuilder {
	return &AppBuilder{
		config: cfg,
		errors: make([]error, 0),
	}
}

// initOptionalComponent initializes optional component based on configuration
// provided by OptionalConfigProvider. It appends initialization errors to the
// builder and logs successful initialization.
func initOptionalComponent[T any, C any](b *AppBuilder, field *T, getCfg func(OptionalConfigProvider) *C, initFn func(C) (T, error), name, successMsg string) {
	optCfg, ok := b.config.(OptionalConfigProvider)
	if !ok {
		return
	}

	cfg := getCfg(optCfg)
	if cfg == nil {
		return
	}

	component, err := initFn(*cfg)
	if err != nil {
		b.errors = append(b.errors, fmt.Errorf("init %s: %w", name, err))
		return
	}

	*field = component
	platformlogger.Info().Msg(successMsg)
}

func (b *AppBuilder) senderSettings() (config.ClientConfig, config.AMQPConfig, kafka.Config) {
	if sc, ok := b.config.(SenderConfigProvider); ok {
		return sc.ClientSettings(), sc.AMQPSettings(), sc.KafkaSettings()
	}
	d := amqp.NewDialer()
	return config.ClientConfig{ID: config.DefaultClientID},
		config.AMQPConfig{Heartbeat: d.Heartbeat, ConnectionName: d.ConnectionName, DeclareQueues: d.DeclareQueues},
		kafka.DefaultConfig()
}

// WithLogger initializes the logger (required component)
func (b *AppBuilder) WithLogger() *AppBuilder {
	if b.logger != nil {
		return b
	}

	logger, err := platformlogger.New(b.config.LoggerConfig())
	if err != nil {
		b.errors = append(b.errors, fmt.Errorf("init logger: %w", err))
		return b
	}

	platformlogger.SetGlobal(logger)
	b.logger = logger
	platformlogger.Debug().Msg("Logger initialized")
	return b
}

// WithMetrics initializes metrics if configuration is provided
func (b *AppBuilder) WithMetrics() *AppBuilder {
	if b.metrics != nil {
		return b
	}
	initOptionalComponent(b, &b.metrics, func(o OptionalConfigProvider) *platformmetrics.Config { return o.MetricsConfig() }, func(cfg platformmetrics.Config) (*platformmetrics.Metrics, error) {
		return platformmetrics.New(cfg)
	}, "metrics", "Metrics initialized")
	return b
}

// WithHealthcheck initializes healthcheck if configuration is provided
func (b *AppBuilder) WithHealthcheck() *AppBuilder {
	if b.healthcheck != nil {
		return b
	}
	initOptionalComponent(b, &b.healthcheck, func(o OptionalConfigProvider) *platformhealthcheck.Config { return o.HealthcheckConfig() }, func(cfg platformhealthcheck.Config) (*platformhealthcheck.Healthcheck, error) {
		return platformhealthcheck.New(cfg)
	}, "healthcheck", "Healthcheck initialized")
	return b
}

// WithTransports registers the AMQP and Kafka drivers by URL scheme
func (b *AppBuilder) WithTransports() *AppBuilder {
	if b.dialers != nil {
		return b
	}
	_, amqpCfg, kafkaCfg := b.senderSettings()

	amqpDialer := amqp.NewDialer()
	amqpDialer.Heartbeat = amqpCfg.Heartbeat
	amqpDialer.DeclareQueues = amqpCfg.DeclareQueues
	if amqpCfg.ConnectionName != "" {
		amqpDialer.ConnectionName = amqpCfg.ConnectionName
	}

	b.dialers = transport.NewRegistry()
	b.dialers.Register(amqpDialer, amqp.Schemes...)
	b.dialers.Register(kafka.NewDialer(kafkaCfg), kafka.Scheme)
	platformlogger.Debug().Strs("schemes", b.dialers.Schemes()).Msg("Transports registered")
	return b
}

// WithDispatcher initializes the connection pool and the dispatcher on top
// of the registered transports
func (b *AppBuilder) WithDispatcher() *AppBuilder {
	if b.dispatcher != nil {
		return b
	}
	b.WithTransports()
	client, _, _ := b.senderSettings()

	var m transport.Metrics = &transport.NoOpMetrics{}
	if b.metrics != nil {
		m = b.metrics
	}

	b.pool = pool.New(pool.WithMetrics(m))
	b.dispatcher = sender.New(b.pool, b.dialers,
		sender.WithMetrics(m),
		sender.WithClientID(client.ID),
		sender.WithTimeouts(client.ConnectTimeout, client.SendTimeout),
	)
	if b.healthcheck != nil {
		b.healthcheck.Register("pool", b.pool.Check)
	}
	return b
}

// WithAll initializes all available components based on configuration
func (b *AppBuilder) WithAll() *AppBuilder {
	return b.WithLogger().
		WithMetrics().
		WithHealthcheck().
		WithTransports().
		WithDispatcher()
}

// Build creates the App instance and returns any errors that occurred during initialization
func (b *AppBuilder) Build() (*App, error) {
	// Logger is required
	if b.logger == nil {
		b.WithLogger()
	}

	if len(b.errors) > 0 {
		return nil, fmt.Errorf("failed to build app: %w", errors.Join(b.errors...))
	}

	platformlogger.Debug().Msg("All requested application components initialized successfully")

	return &App{
		Config:      b.config,
		Logger:      b.logger,
		Metrics:     b.metrics,
		Healthcheck: b.healthcheck,
		Dialers:     b.dialers,
		Pool:        b.pool,
		Dispatcher:  b.dispatcher,
	}, nil
}

// New initializes all components based on the provided configuration
func New(cfg ConfigProvider) (*App, error) {
	return NewBuilder(cfg).WithAll().Build()
}

// NewWithLogger initializes only the logger (minimal setup)
func NewWithLogger(cfg ConfigProvider) (*App, error) {
	return NewBuilder(cfg).WithLogger().Build()
}

// Close closes pooled broker connections and stops metrics and health checks.
// Every component is stopped even if an earlier one fails.
func (a *App) Close() error {
	if a == nil {
		return nil
	}

	platformlogger.Debug().Msg("Shutting down application components")

	var errs []error

	if a.Pool != nil {
		if err := a.Pool.CloseAll(); err != nil {
			platformlogger.Error().Err(err).Msg("Failed to close broker connections")
			errs = append(errs, err)
		} else {
			platformlogger.Debug().Msg("Broker connections closed")
		}
	}

	if a.Metrics != nil {
		if err := a.Metrics.Stop(); err != nil {
			platformlogger.Error().Err(err).Msg("Failed to stop metrics")
			errs = append(errs, err)
		}
	}

	if a.Healthcheck != nil {
		if err := a.Healthcheck.Stop(); err != nil {
			platformlogger.Error().Err(err).Msg("Failed to stop healthcheck")
			errs = append(errs, err)
		}
	}

	platformlogger.Debug().Msg("Application shutdown completed")
	return errors.Join(errs...)
}
