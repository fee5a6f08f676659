// Package ops exposes the operational HTTP surface: health and metrics.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"argus/pipeline"
)

// Server serves /healthz and /metrics for probes and scrapers. It carries no
// mutating endpoints; the pipeline is driven by its own poll loop.
type Server struct {
	orchestrator *pipeline.Orchestrator
	router       *mux.Router
	server       *http.Server
	logger       *zap.SugaredLogger
}

// NewServer builds the ops server around a running orchestrator.
func NewServer(orchestrator *pipeline.Orchestrator, logger *zap.SugaredLogger) *Server {
	s := &Server{
		orchestrator: orchestrator,
		router:       mux.NewRouter(),
		logger:       logger,
	}
	s.router.HandleFunc("/healthz", s.healthCheck).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler())
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr until Stop or a listener error.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Infof("Ops server listening on %s", addr)
	return s.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// healthCheck reports the orchestrator state. A degraded or stopped pipeline
// answers 503 so load balancers and probes fail over.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	state := s.orchestrator.State()

	code := http.StatusOK
	if state == pipeline.StateDegraded || state == pipeline.StateStopped {
		code = http.StatusServiceUnavailable
	}

	response := map[string]string{
		"status": string(state),
		"time":   time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
