package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server exposes metrics on a dedicated listener.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a metrics server serving handler at path.
func NewServer(addr, path string, handler http.Handler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting metrics server", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
