package transport

import (
	"time"
)

// Metrics collects sender and connection pool metrics.
type Metrics interface {
	// Producer metrics
	IncMessagesSent(destination string, status string) // status: success, error
	RecordSendTime(destination string, duration time.Duration)
	IncHeaderConversionFailures(typeTag string)

	// Connection metrics
	IncConnectAttempts(status string) // status: success, error
	SetPooledConnections(count int)
	IncCloseErrors()
}

// NoOpMetrics discards everything (tests, metrics disabled).
type NoOpMetrics struct{}

func (m *NoOpMetrics) IncMessagesSent(destination string, status string)         {}
func (m *NoOpMetrics) RecordSendTime(destination string, duration time.Duration) {}
func (m *NoOpMetrics) IncHeaderConversionFailures(typeTag string)                {}
func (m *NoOpMetrics) IncConnectAttempts(status string)                          {}
func (m *NoOpMetrics) SetPooledConnections(count int)                            {}
func (m *NoOpMetrics) IncCloseErrors()                                           {}
