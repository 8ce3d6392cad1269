package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	m, err := New(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, m.Enabled())
	assert.Nil(t, m.Registry())

	// Every recorder call is a no-op.
	m.IncMessagesSent("queue://orders", "success")
	m.RecordSendTime("queue://orders", time.Second)
	m.IncHeaderConversionFailures("Integer")
	m.IncConnectAttempts("error")
	m.SetPooledConnections(3)
	m.IncCloseErrors()

	assert.NoError(t, m.Stop())
}

func TestRecorder(t *testing.T) {
	m, err := New(Config{Enabled: true, ServiceName: "test_sender"})
	require.NoError(t, err)
	require.True(t, m.Enabled())

	m.IncMessagesSent("queue://orders", "success")
	m.IncMessagesSent("queue://orders", "success")
	m.IncMessagesSent("topic://events", "error")
	m.IncHeaderConversionFailures("Integer")
	m.IncConnectAttempts("success")
	m.SetPooledConnections(2)
	m.IncCloseErrors()
	m.RecordSendTime("queue://orders", 25*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesSent.WithLabelValues("queue://orders", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesSent.WithLabelValues("topic://events", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conversionFailures.WithLabelValues("Integer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectAttempts.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.poolConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closeErrors))
	assert.Equal(t, 1, testutil.CollectAndCount(m.sendTime))
}

func TestHandler(t *testing.T) {
	m, err := New(Config{Enabled: true, ServiceName: "handler_sender"})
	require.NoError(t, err)
	m.IncMessagesSent("queue://a", "success")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `handler_sender_messages_sent_total{destination="queue://a",status="success"} 1`))
	assert.Contains(t, string(body), "handler_sender_uptime_seconds")
}

func TestNew_IndependentRegistries(t *testing.T) {
	// Two instances with the same service name must not collide.
	a, err := New(Config{Enabled: true})
	require.NoError(t, err)
	b, err := New(Config{Enabled: true})
	require.NoError(t, err)

	a.IncConnectAttempts("success")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.connectAttempts.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.connectAttempts.WithLabelValues("success")))
}

func TestFiberMiddleware(t *testing.T) {
	m, err := New(Config{Enabled: true, ServiceName: "fiber_sender"})
	require.NoError(t, err)

	app := fiber.New()
	app.Use(m.FiberMiddleware())
	app.Get("/items/:id", func(c *fiber.Ctx) error { return c.SendString(c.Params("id")) })
	app.Post("/fail", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusBadRequest, "bad") })

	for _, id := range []string{"1", "2"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/items/"+id, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/fail", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/items/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("POST", "/fail", "400")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpRequestsInFlight.WithLabelValues("GET")))
}

func TestFiberMiddleware_Disabled(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)

	app := fiber.New()
	app.Use(m.FiberMiddleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
