package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/corralhq/corral/pkg/config"
	"github.com/corralhq/corral/pkg/coordinator"
	"github.com/corralhq/corral/pkg/log"
	"github.com/corralhq/corral/pkg/metrics"
)

// Server is the HTTP JSON surface over the coordinator
type Server struct {
	coord *coordinator.Coordinator
	http  *http.Server
}

// NewServer creates the API server with all routes mounted
func NewServer(coord *coordinator.Coordinator, cfg config.APIConfig) *Server {
	s := &Server{coord: coord}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/instances/{id}/update", s.handleSubmitUpdate)
	mux.HandleFunc("POST /api/v1/updates/batch", s.handleSubmitBatchUpdate)
	mux.HandleFunc("POST /api/v1/instances/{id}/actions", s.handleSubmitAction)
	mux.HandleFunc("POST /api/v1/actions/bulk", s.handleSubmitBulkAction)

	mux.HandleFunc("GET /api/v1/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("POST /api/v1/tasks/{id}/cancel", s.handleCancelTask)

	mux.HandleFunc("GET /api/v1/instances", s.handleListInstances)
	mux.HandleFunc("GET /api/v1/instances/{id}", s.handleGetInstance)
	mux.HandleFunc("GET /api/v1/instances/{id}/history", s.handleListHistory)
	mux.HandleFunc("POST /api/v1/instances/{id}/observe", s.handleObserveInstance)

	mux.HandleFunc("GET /api/v1/events", s.handleEvents)

	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("GET /healthz", metrics.HealthHandler())
	mux.Handle("GET /readyz", metrics.ReadyHandler())
	mux.Handle("GET /livez", metrics.LivenessHandler())

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           instrument(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Stop is called. Blocks.
func (s *Server) Start() error {
	log.WithComponent("api").Info().Str("addr", s.http.Addr).Msg("HTTP API listening")
	metrics.RegisterComponent("api", true, "")

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	metrics.UpdateComponent("api", false, "stopping")
	return s.http.Shutdown(ctx)
}

// Handler exposes the routed handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
