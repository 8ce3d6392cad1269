// Package metrics provides the Prometheus implementation of
// transport.Metrics together with an optional HTTP endpoint. Metric names are
// derived from the configured service name:
//   - messages_sent_total                  {destination, status}
//   - send_duration_seconds                {destination}
//   - header_conversion_failures_total     {type}
//   - connect_attempts_total               {status}
//   - pool_connections                     no labels
//   - pool_close_errors_total              no labels
//   - uptime_seconds                       no labels
//   - http_requests_total                  {method, path, status}
//   - http_request_duration_seconds        {method, path}
//   - http_requests_in_flight              {method}
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zynerotech/sender/logger"
	"github.com/zynerotech/sender/transport"
)

const defaultServiceName = "broker_sender"

// Config представляет конфигурацию метрик
type Config struct {
	Enabled     bool   `mapstructure:"enabled"`
	Path        string `mapstructure:"path"`
	Port        int    `mapstructure:"port"`
	ServiceName string `mapstructure:"service_name"`
}

// Metrics collects sender metrics into its own registry. A disabled Metrics
// accepts every call and records nothing.
type Metrics struct {
	config   Config
	registry *prometheus.Registry
	server   *http.Server

	messagesSent       *prometheus.CounterVec
	sendTime           *prometheus.HistogramVec
	conversionFailures *prometheus.CounterVec
	connectAttempts    *prometheus.CounterVec
	poolConnections    prometheus.Gauge
	closeErrors        prometheus.Counter

	// HTTP метрики шлюза
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec
}

var _ transport.Metrics = (*Metrics)(nil)

// New создает менеджер метрик и, если задан порт, запускает HTTP-сервер
func New(cfg Config) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}
	m.register(time.Now())

	if cfg.Port > 0 {
		mux := http.NewServeMux()
		mux.Handle(cfg.Path, m.Handler())

		m.server = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info().Msgf("Starting metrics server on %s", m.server.Addr)
			if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server stopped unexpectedly")
			}
		}()
	}

	return m, nil
}

func (m *Metrics) register(started time.Time) {
	f := promauto.With(m.registry)
	svc := m.config.ServiceName

	m.messagesSent = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_messages_sent_total", svc),
			Help: "Total number of messages sent to broker destinations",
		},
		// status label has values: success, error
		[]string{"destination", "status"},
	)

	m.sendTime = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_send_duration_seconds", svc),
			Help:    "Time spent sending a message, connection acquisition included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"destination"},
	)

	m.conversionFailures = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_header_conversion_failures_total", svc),
			Help: "Headers dropped because their value did not match the declared type",
		},
		[]string{"type"},
	)

	m.connectAttempts = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_connect_attempts_total", svc),
			Help: "Broker connection attempts made by the connection pool",
		},
		[]string{"status"},
	)

	m.poolConnections = f.NewGauge(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_pool_connections", svc),
			Help: "Number of live pooled broker connections",
		},
	)

	m.closeErrors = f.NewCounter(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_pool_close_errors_total", svc),
			Help: "Pooled connections that failed to close cleanly",
		},
	)

	m.httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_http_requests_total", svc),
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_http_request_duration_seconds", svc),
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.httpRequestsInFlight = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_http_requests_in_flight", svc),
			Help: "Current number of HTTP requests being served",
		},
		[]string{"method"},
	)

	f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_uptime_seconds", svc),
			Help: "Service uptime in seconds",
		},
		func() float64 { return time.Since(started).Seconds() },
	)
}

// Enabled reports whether metrics are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.registry != nil
}

// Registry returns the underlying registry, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Stop останавливает HTTP-сервер метрик
func (m *Metrics) Stop() error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Close()
}

// FiberMiddleware возвращает middleware для Fiber. The path label is the
// matched route pattern, so path parameters do not create new series.
func (m *Metrics) FiberMiddleware() fiber.Handler {
	if !m.Enabled() {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	return func(c *fiber.Ctx) error {
		start := time.Now()
		method := c.Method()

		// Увеличиваем счетчик текущих запросов
		m.httpRequestsInFlight.WithLabelValues(method).Inc()
		defer m.httpRequestsInFlight.WithLabelValues(method).Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		path := c.Route().Path
		m.httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		return err
	}
}

// Producer metrics
func (m *Metrics) IncMessagesSent(destination string, status string) {
	if !m.Enabled() {
		return
	}
	m.messagesSent.WithLabelValues(destination, status).Inc()
}

func (m *Metrics) RecordSendTime(destination string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.sendTime.WithLabelValues(destination).Observe(duration.Seconds())
}

func (m *Metrics) IncHeaderConversionFailures(typeTag string) {
	if !m.Enabled() {
		return
	}
	m.conversionFailures.WithLabelValues(typeTag).Inc()
}

// Connection metrics
func (m *Metrics) IncConnectAttempts(status string) {
	if !m.Enabled() {
		return
	}
	m.connectAttempts.WithLabelValues(status).Inc()
}

func (m *Metrics) SetPooledConnections(count int) {
	if !m.Enabled() {
		return
	}
	m.poolConnections.Set(float64(count))
}

func (m *Metrics) IncCloseErrors() {
	if !m.Enabled() {
		return
	}
	m.closeErrors.Inc()
}
