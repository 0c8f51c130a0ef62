package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ozlistings/outreach-engine/internal/config"
)

// Server wraps the HTTP server for the admin API.
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
	tasks   *TaskRunner
}

// NewServer creates the API server around a handler set.
func NewServer(cfg config.ServerConfig, h *Handlers) *Server {
	return &Server{
		config:  cfg,
		handler: SetupRoutes(h),
		tasks:   h.tasks,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, then waits for in-flight background
// tasks so a deploy never abandons a half-planned launch.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	if s.tasks != nil {
		s.tasks.Wait()
	}
	return err
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
