// Package api exposes flowerd's HTTP surface: health, readiness, liveness,
// and Prometheus metrics. Driver/fleet traffic is out of scope here — see
// DESIGN.md for why no RPC transport is implemented.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cuemby/flower/pkg/metrics"
)

// Queue is the subset of *queue.Queue the readiness check exercises.
type Queue interface {
	NumTaskIns() (int, error)
}

// Server is the HTTP server serving /health, /ready, /live, and /metrics.
type Server struct {
	queue Queue
	mux   *http.ServeMux
	http  *http.Server
}

// NewServer builds a Server backed by queue, used to exercise storage on
// each /health check.
func NewServer(queue Queue) *Server {
	mux := http.NewServeMux()
	s := &Server{queue: queue, mux: mux}

	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	mux.Handle("/metrics", metrics.Handler())

	return s
}

// healthHandler refreshes the storage component from a live read before
// delegating to metrics.HealthHandler, so /health reflects the backend's
// current state rather than whatever was last registered.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.queue.NumTaskIns(); err != nil {
		metrics.UpdateComponent("storage", false, err.Error())
	} else {
		metrics.UpdateComponent("storage", true, "")
	}
	metrics.HealthHandler()(w, r)
}

// Start runs the HTTP server on addr until Stop is called or the server
// fails. It blocks the calling goroutine.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}
