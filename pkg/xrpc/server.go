package xrpc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spkeasy-social/spkeasy/internal/logger"
)

// Server serves one deployment's XRPC surface.
//
// The server is created stopped; Start blocks until the context is
// cancelled or the listener fails, then shuts down gracefully.
type Server struct {
	server       *http.Server
	service      string
	addr         string
	shutdownOnce sync.Once
}

// NewServer wraps a handler in an HTTP server with the configured
// timeouts.
func NewServer(cfg ServerConfig, service string, handler http.Handler) *Server {
	cfg.ApplyDefaults()

	return &Server{
		server: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		service: service,
		addr:    cfg.Addr(),
	}
}

// Start serves until ctx is cancelled or the listener fails.
//
// Cancellation triggers a graceful shutdown bounded by a fresh timeout;
// in-flight requests get a chance to finish.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Server listening",
			logger.Service(s.service),
			"addr", s.addr,
		)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server %s failed: %w", s.service, err)
	}
}

// Stop shuts the server down gracefully. Safe to call more than once and
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("shutdown %s: %w", s.service, err)
			return
		}
		logger.Info("Server stopped", logger.Service(s.service))
	})
	return shutdownErr
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}
