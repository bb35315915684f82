// Package server implements the ingest API, health checks and the metrics
// endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPMetrics records ingest API requests.
type HTTPMetrics interface {
	ObserveHTTPRequest(route string, code int, seconds float64)
}

// Config contains HTTP server configuration.
type Config struct {
	HealthPort   int
	MetricsPort  int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server runs the API server (health probes and ingest API) and the
// metrics server.
type Server struct {
	apiServer     *http.Server
	metricsServer *http.Server
	logger        *slog.Logger
}

// NewServer creates both HTTP servers.
func NewServer(
	config Config,
	healthChecker HealthChecker,
	ingester Ingester,
	registry *prometheus.Registry,
	metrics HTTPMetrics,
	logger *slog.Logger,
) *Server {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 5 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Server{
		apiServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.HealthPort),
			Handler:      NewRouter(healthChecker, ingester, metrics, logger),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
		},
		metricsServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.MetricsPort),
			Handler:      metricsMux,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
		},
		logger: logger,
	}
}

// NewRouter builds the API router. A nil ingester serves health probes only.
func NewRouter(healthChecker HealthChecker, ingester Ingester, metrics HTTPMetrics, logger *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health/live", LivenessHandler(healthChecker, logger)).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", ReadinessHandler(healthChecker, logger)).Methods(http.MethodGet)

	if ingester != nil {
		api := &ingestAPI{ingester: ingester, logger: logger}
		api.register(r)
	}
	if metrics != nil {
		r.Use(instrument(metrics))
	}
	return r
}

// instrument records status code and latency per route template.
func instrument(metrics HTTPMetrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m := httpsnoop.CaptureMetrics(next, w, r)
			metrics.ObserveHTTPRequest(route, m.Code, m.Duration.Seconds())
		})
	}
}

// Start starts both HTTP servers.
func (s *Server) Start() error {
	go func() {
		s.logger.Info("starting API server", "addr", s.apiServer.Addr)
		if err := s.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", "error", err)
		}
	}()

	go func() {
		s.logger.Info("starting metrics server", "addr", s.metricsServer.Addr)
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down both servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP servers")

	errChan := make(chan error, 2)
	go func() { errChan <- s.apiServer.Shutdown(ctx) }()
	go func() { errChan <- s.metricsServer.Shutdown(ctx) }()

	var errs []error
	for range 2 {
		if err := <-errChan; err != nil {
			s.logger.Error("error shutting down server", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
