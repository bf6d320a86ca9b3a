package myws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"
)

const WaitTime = 10

// Server exposes the driver surface over websocket at /ws/drivers.
type Server struct {
	mylog mylogger.Logger
	mux   *http.ServeMux
	srv   *http.Server
	mu    sync.Mutex
}

func NewServer(ctx context.Context, mylog mylogger.Logger, serve protocol.Handler, readTimeout, writeTimeout time.Duration) *Server {
	s := &Server{
		mylog: mylog,
		mux:   http.NewServeMux(),
	}
	handler := NewHandler(ctx, mylog, serve, readTimeout, writeTimeout)
	s.mux.HandleFunc("GET /ws/drivers", handler.HandleDriverWebsocket)
	return s
}

// Serve blocks until the listener is closed by Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.srv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: WaitTime * time.Second,
	}
	srv := s.srv
	s.mu.Unlock()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes the listener and any upgraded sockets.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, WaitTime*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.mylog.Error("Failed to shut down websocket server gracefully", err)
		return fmt.Errorf("websocket server shutdown: %w", err)
	}
	return nil
}
