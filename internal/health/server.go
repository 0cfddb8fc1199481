// Package health serves the ops HTTP endpoints: liveness and rotation readiness.
// Visitor codes are never exposed here.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/learnstations/stationbot/core/logger"
	"github.com/learnstations/stationbot/internal/codes"
)

// Rotation reports the state of the visitor code clock.
type Rotation interface {
	Current() (*codes.Snapshot, error)
	TimeRemaining() time.Duration
}

// Server is the ops HTTP listener.
type Server struct {
	addr     string
	rotation Rotation
	srv      *http.Server
	done     chan struct{}
}

// New builds a Server listening on addr.
func New(addr string, rotation Rotation) *Server {
	s := &Server{addr: addr, rotation: rotation}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", s.live)
	r.Get("/readyz", s.ready)
	return r
}

func (s *Server) live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) ready(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.rotation.Current()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "starting",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"epoch":             snap.Epoch,
		"seconds_remaining": int(s.rotation.TimeRemaining() / time.Second),
		"stations":          len(snap.Codes),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Health.Warn("encode failed",
			slog.String("event", "health.encode"),
			slog.String("err", err.Error()),
		)
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("health: listen %s: %w", s.addr, err)
	}
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Health.Error("serve failed",
				slog.String("event", "health.serve"),
				slog.String("err", err.Error()),
			)
		}
	}()
	logger.Health.Info("health listening",
		slog.String("event", "health.listen"),
		slog.String("addr", ln.Addr().String()),
	)
	return nil
}

// Stop shuts the listener down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	if s.done == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return err
}
