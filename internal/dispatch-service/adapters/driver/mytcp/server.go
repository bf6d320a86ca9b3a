package mytcp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"ride-share/internal/config"
	"ride-share/internal/dispatch-service/adapters/driven/db"
	"ride-share/internal/dispatch-service/adapters/driven/registry"
	"ride-share/internal/dispatch-service/adapters/driven/session"
	"ride-share/internal/dispatch-service/core/services"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"
)

type Server struct {
	ctx    context.Context
	appCtx context.Context
	cfg    *config.Config
	mylog  mylogger.Logger

	mu       sync.Mutex
	svc      *services.DispatchService
	listener *protocol.Listener
}

func NewServer(ctx, appCtx context.Context, mylog mylogger.Logger, cfg *config.Config) *Server {
	return &Server{
		ctx:    ctx,
		appCtx: appCtx,
		cfg:    cfg,
		mylog:  mylog,
	}
}

// Run wires the registry and database clients and serves passengers until
// the context is cancelled.
func (s *Server) Run() error {
	mylog := s.mylog.Action("server_started")

	client := protocol.NewClient(s.cfg.Srv.RequestTimeout)
	svc := services.NewDispatchService(s.mylog,
		registry.NewClient(s.cfg.DriverAPIAddr(), client),
		db.NewClient(s.cfg.DBServiceAddr(), client),
		session.NewJWT(s.cfg.Session.Secret, s.cfg.Session.TTL),
	)

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.Srv.DispatchPort))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.svc = svc
	s.listener = protocol.NewListener(s.mylog, NewHandler(s.mylog, svc).Serve, s.cfg.Srv.ReadTimeout, s.cfg.Srv.WriteTimeout)
	s.mu.Unlock()

	mylog.WithGroup("details").With(
		"port", s.cfg.Srv.DispatchPort,
		"driver_service", s.cfg.DriverAPIAddr(),
		"db_service", s.cfg.DBServiceAddr(),
	).Info("server is running")
	return s.listener.Serve(s.ctx, ln)
}

// Stop drops passenger connections and waits for in-flight assignment pushes.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mylog.Info("Shutting down dispatch service...")

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.mylog.Error("Failed to close listener", err)
		}
	}
	if s.svc != nil {
		s.svc.Wait()
	}

	s.mylog.Info("Dispatch service shut down gracefully")
	return nil
}
