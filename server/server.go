// Package server runs the HTTP send gateway on Fiber.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/zynerotech/sender/logger"
)

// Config представляет конфигурацию веб-сервера
type Config struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	BodyLimit       int           `mapstructure:"body_limit"`
}

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// Server представляет веб-сервер на основе Fiber
type Server struct {
	app    *fiber.App
	config Config
	log    *logger.Logger
}

// New создает новый экземпляр веб-сервера.
//
// Middlewares run before every route, after panic recovery.
func New(cfg Config, middlewares ...fiber.Handler) *Server {
	s := &Server{config: cfg, log: logger.Component("server")}

	fiberConfig := fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           cfg.IdleTimeout,
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          s.handleError,
		JSONEncoder: func(v any) ([]byte, error) {
			return sonic.Marshal(v)
		},
		JSONDecoder: func(data []byte, v any) error {
			return sonic.Unmarshal(data, v)
		},
	}

	s.app = fiber.New(fiberConfig)
	s.app.Use(recover.New())
	s.app.Use(compress.New())
	for _, m := range middlewares {
		s.app.Use(m)
	}
	return s
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	}
	return c.Status(code).JSON(ErrorBody{Error: err.Error()})
}

// Handle mounts a net/http handler, such as the metrics or health endpoint.
func (s *Server) Handle(method, path string, h http.Handler) {
	s.app.Add(method, path, adaptor.HTTPHandler(h))
}

// Start запускает веб-сервер и блокируется до его остановки
func (s *Server) Start() error {
	s.log.Info().Str("address", s.config.Address).Msg("Starting HTTP gateway")
	return s.app.Listen(s.config.Address)
}

// Stop останавливает веб-сервер
func (s *Server) Stop() error {
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}

// App возвращает экземпляр приложения Fiber
func (s *Server) App() *fiber.App {
	return s.app
}
