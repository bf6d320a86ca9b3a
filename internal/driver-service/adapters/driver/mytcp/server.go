package mytcp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"ride-share/internal/config"
	"ride-share/internal/driver-service/adapters/driven/db"
	"ride-share/internal/driver-service/adapters/driver/myws"
	"ride-share/internal/driver-service/core/services"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"
)

type Server struct {
	ctx    context.Context
	appCtx context.Context
	cfg    *config.Config
	mylog  mylogger.Logger

	mu      sync.Mutex
	drivers *protocol.Listener
	api     *protocol.Listener
	ws      *myws.Server
	wg      sync.WaitGroup
}

func NewServer(ctx, appCtx context.Context, mylog mylogger.Logger, cfg *config.Config) *Server {
	return &Server{
		ctx:    ctx,
		appCtx: appCtx,
		cfg:    cfg,
		mylog:  mylog,
	}
}

// Run opens the driver port, the coordinator API port and, when configured,
// the websocket port. It returns when the context is cancelled or a
// listener fails.
func (s *Server) Run() error {
	mylog := s.mylog.Action("server_started")

	dbClient := db.NewClient(s.mylog, s.cfg.DBServiceAddr(), protocol.NewClient(s.cfg.Srv.RequestTimeout))
	svc := services.NewDriverService(s.mylog, services.NewRegistry(), dbClient)
	sessions := NewSessionHandler(s.mylog, svc)

	driverLn, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.Srv.DriverPort))
	if err != nil {
		return fmt.Errorf("listen driver port: %w", err)
	}
	apiLn, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.Srv.DriverAPIPort))
	if err != nil {
		driverLn.Close()
		return fmt.Errorf("listen api port: %w", err)
	}

	s.mu.Lock()
	s.drivers = protocol.NewListener(s.mylog, sessions.Serve, s.cfg.Srv.ReadTimeout, s.cfg.Srv.WriteTimeout)
	s.api = protocol.NewListener(s.mylog, NewAPIHandler(s.mylog, svc).Serve, s.cfg.Srv.RequestTimeout, s.cfg.Srv.WriteTimeout)
	s.mu.Unlock()

	errCh := make(chan error, 3)
	s.serve(errCh, func() error { return s.drivers.Serve(s.ctx, driverLn) })
	s.serve(errCh, func() error { return s.api.Serve(s.ctx, apiLn) })

	if s.cfg.Srv.DriverWSPort > 0 {
		wsLn, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.Srv.DriverWSPort))
		if err != nil {
			return fmt.Errorf("listen websocket port: %w", err)
		}
		s.mu.Lock()
		s.ws = myws.NewServer(s.ctx, s.mylog, sessions.Serve, s.cfg.Srv.ReadTimeout, s.cfg.Srv.WriteTimeout)
		s.mu.Unlock()
		s.serve(errCh, func() error { return s.ws.Serve(wsLn) })
	}

	mylog.WithGroup("details").With(
		"driver_port", s.cfg.Srv.DriverPort,
		"api_port", s.cfg.Srv.DriverAPIPort,
		"ws_port", s.cfg.Srv.DriverWSPort,
		"db_service", s.cfg.DBServiceAddr(),
	).Info("server is running")

	select {
	case <-s.ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) serve(errCh chan<- error, fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(); err != nil {
			errCh <- err
		}
	}()
}

// Stop closes every listener, which drops connected drivers, and waits for
// the accept loops to exit.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mylog.Info("Shutting down driver service...")

	if s.ws != nil {
		if err := s.ws.Stop(ctx); err != nil {
			s.mylog.Error("Failed to stop websocket server", err)
		}
	}
	for _, l := range []*protocol.Listener{s.drivers, s.api} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil {
			s.mylog.Error("Failed to close listener", err)
		}
	}
	s.wg.Wait()

	s.mylog.Info("Driver service shut down gracefully")
	return nil
}
