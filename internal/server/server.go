// Package server provides the worker's operational HTTP endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirkomrk2-web/registry-worker/internal/db"
	"github.com/kirkomrk2-web/registry-worker/internal/observability"
	"github.com/kirkomrk2-web/registry-worker/internal/worker"
)

// StatusSource reports the poller state.
type StatusSource interface {
	Status() worker.Status
}

// CheckSource looks up stored registry checks.
type CheckSource interface {
	LatestRegistryCheck(ctx context.Context, email string) (*db.RegistryCheck, error)
}

// Config holds server configuration
type Config struct {
	Addr string
}

// Server serves health, metrics and worker status.
type Server struct {
	httpServer *http.Server
	status     StatusSource
	checks     CheckSource
	started    time.Time
}

// New creates a new server instance. checks may be nil.
func New(cfg Config, status StatusSource, checks CheckSource) *Server {
	s := &Server{
		status:  status,
		checks:  checks,
		started: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withLogging)

	r.Get("/health", s.handleHealth)
	r.Mount("/metrics", observability.Handler())
	r.Get("/status", s.handleStatus)
	r.Get("/checks/latest", s.handleLatestCheck)
	return r
}

// Start listens until Shutdown is called. A closed server is not an error.
func (s *Server) Start() error {
	log.Printf("[server] Ops server starting on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("[server] Shutting down ops server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[server] %s %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Poller        worker.Status `json:"poller"`
	UptimeSeconds int64         `json:"uptime_seconds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "poller not running")
		return
	}
	s.jsonResponse(w, http.StatusOK, statusResponse{
		Poller:        s.status.Status(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleLatestCheck(w http.ResponseWriter, r *http.Request) {
	if s.checks == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "database not configured")
		return
	}
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		s.errorResponse(w, http.StatusBadRequest, "email query parameter is required")
		return
	}

	check, err := s.checks.LatestRegistryCheck(r.Context(), email)
	if err != nil {
		log.Printf("[server] Error loading registry check for %s: %v", email, err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load registry check")
		return
	}
	if check == nil {
		s.errorResponse(w, http.StatusNotFound, "no registry check for email")
		return
	}
	s.jsonResponse(w, http.StatusOK, check)
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[server] Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
