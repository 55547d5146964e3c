package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rjboer/gofpc/internal/logging"
)

// Server exposes hub history and live updates over HTTP.
type Server struct {
	srv    *http.Server
	hub    *Hub
	logger logging.Logger
}

// NewServer builds an HTTP server for hub on addr.
func NewServer(addr string, hub *Hub, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{
		hub:    hub,
		logger: logger.With(logging.Field{Key: "subsystem", Value: "http"}),
		srv:    &http.Server{Addr: addr, Handler: NewHandler(hub)},
	}
}

// NewHandler routes the hub endpoints:
//
//	GET /api/history[?limit=N]  recent samples, oldest first
//	GET /api/latest             most recent sample
//	GET /api/live               server-sent events
func NewHandler(hub *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/history", hub.handleHistory)
	mux.HandleFunc("/api/latest", hub.handleLatest)
	mux.HandleFunc("/api/live", hub.handleLive)
	return mux
}

// Start listens until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("shutdown", logging.Field{Key: "error", Value: err})
		}
	}()

	s.logger.Info("serving traces", logging.Field{Key: "addr", Value: s.srv.Addr})
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
