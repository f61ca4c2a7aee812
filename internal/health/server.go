// Package health provides health checking and HTTP endpoints for the log
// ratio server.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const checkTimeout = 10 * time.Second

// Server serves the probes of the alerting service:
//   - /health  all component checks; 503 only when a check is unhealthy
//   - /ready   log directory readable and alert loop running
//   - /live    process is up
//   - /metrics Prometheus metrics, when a registry is given
type Server struct {
	checker    *Checker
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer creates the probe server listening on bindAddr:port. An empty
// bindAddr binds to loopback; a nil registry disables /metrics.
func NewServer(checker *Checker, logger *zap.Logger, port int, bindAddr string, registry *prometheus.Registry) *Server {
	s := &Server{checker: checker, logger: logger.Named("health")}

	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /live", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
	if registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bindAddr, port),
		Handler:           mux,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      checkTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}
	return s
}

// Handler returns the endpoint mux.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting health HTTP server", zap.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down health HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Response represents the response from /health endpoint.
type Response struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	status, checks := s.checker.CheckAll(ctx)

	code := http.StatusOK
	if status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, Response{
		Status:    status,
		Timestamp: s.checker.now().UTC(),
		Checks:    checks,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	readiness := s.checker.Ready()

	code := http.StatusOK
	if !readiness.Ready {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, readiness)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode health response", zap.Error(err))
	}
}
