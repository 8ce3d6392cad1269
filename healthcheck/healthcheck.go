package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/zynerotech/sender/logger"
)

// Config представляет конфигурацию healthcheck
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// Check reports the health of one component. A nil error means healthy.
type Check func(ctx context.Context) error

// Report is the JSON body served by the health endpoint.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthcheck представляет менеджер проверок здоровья
type Healthcheck struct {
	config Config
	server *http.Server

	mu     sync.RWMutex
	checks map[string]Check
}

// New создает экземпляр health-check сервера
func New(cfg Config) (*Healthcheck, error) {
	h := &Healthcheck{
		config: cfg,
		checks: make(map[string]Check),
	}
	if !cfg.Enabled {
		return h, nil
	}
	if h.config.Path == "" {
		h.config.Path = "/health"
	}

	if cfg.Port > 0 {
		mux := http.NewServeMux()
		mux.Handle(h.config.Path, h)

		h.server = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info().Msgf("Starting healthcheck server on %s", h.server.Addr)
			if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Healthcheck server stopped unexpectedly")
			}
		}()
	}

	return h, nil
}

// Register adds or replaces a named check.
func (h *Healthcheck) Register(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Run executes every check and builds the report.
func (h *Healthcheck) Run(ctx context.Context) Report {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]Check, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	report := Report{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			report.Status = "unavailable"
			report.Checks[name] = err.Error()
			continue
		}
		report.Checks[name] = "ok"
	}
	return report
}

// ServeHTTP обрабатывает запрос на проверку здоровья
func (h *Healthcheck) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Run(r.Context())

	body, err := sonic.Marshal(report)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if report.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	w.Write(body)
}

// Stop останавливает HTTP-сервер проверок здоровья
func (h *Healthcheck) Stop() error {
	if h == nil || h.server == nil {
		return nil
	}
	return h.server.Close()
}
