// Package httpserver serves the static web root and mounts the control-plane
// websocket.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Config holds the HTTP server settings.
type Config struct {
	// ListenAddr is the bind address, e.g. "0.0.0.0".
	ListenAddr string
	// Port is the listen port.
	Port int
	// RootDir is the static web root served at /.
	RootDir string
	// ShutdownTimeout bounds the graceful shutdown wait.
	ShutdownTimeout time.Duration
}

// Server is the HTTP front of the service.
type Server struct {
	cfg        Config
	log        *slog.Logger
	router     *chi.Mux
	httpServer *http.Server
}

// New builds a Server. ingestHandler, when non-nil, is mounted at /api/ingest.
func New(cfg Config, ingestHandler http.Handler, log *slog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)

	if ingestHandler != nil {
		router.Handle("/api/ingest", ingestHandler)
	}
	if cfg.RootDir != "" {
		router.Handle("/*", http.FileServer(http.Dir(cfg.RootDir)))
	}

	addr := fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.Port)
	return &Server{
		cfg: cfg,
		log: log,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router: router,
	}
}

// Router exposes the mux for additional routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe blocks serving requests until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown drains active connections within the configured timeout.
func (s *Server) Shutdown() error {
	s.log.Info("http server shutting down", "timeout", s.cfg.ShutdownTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
