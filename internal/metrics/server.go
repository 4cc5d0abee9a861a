package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/clipwave/clipwave/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Probe reports whether a dependency of the process is reachable
type Probe func(ctx context.Context) error

// Server exposes /metrics and a /health endpoint backed by probes
type Server struct {
	server *http.Server
	port   int
	probes map[string]Probe
	logger *logging.Logger
}

// NewServer creates a metrics server on port. Probes are checked on every
// /health request.
func NewServer(port int, logger *logging.Logger, probes map[string]Probe) *Server {
	s := &Server{
		port:   port,
		probes: probes,
		logger: logger.WithComponent("metrics"),
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the mux served by the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Infof("Starting metrics server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down metrics server")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for name, probe := range s.probes {
		if err := probe(ctx); err != nil {
			s.logger.WithField("component", name).WithError(err).Warn("health probe failed")
			RecordError("health", name)
			http.Error(w, name+": "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
