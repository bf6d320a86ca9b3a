package mytcp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"ride-share/internal/config"
	"ride-share/internal/database-service/adapters/driven/bm"
	"ride-share/internal/database-service/adapters/driven/memory"
	"ride-share/internal/database-service/adapters/driven/peers"
	"ride-share/internal/database-service/adapters/driven/postgres"
	"ride-share/internal/database-service/adapters/driver/discovery"
	"ride-share/internal/database-service/core/ports/driven"
	"ride-share/internal/database-service/core/services"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"
)

type Server struct {
	ctx    context.Context
	appCtx context.Context
	cfg    *config.Config
	mylog  mylogger.Logger

	mu       sync.Mutex
	store    driven.IStore
	mq       *bm.RabbitMQ
	pub      *peers.Publisher
	listener *protocol.Listener
	wg       sync.WaitGroup
}

func NewServer(ctx, appCtx context.Context, mylog mylogger.Logger, cfg *config.Config) *Server {
	return &Server{
		ctx:    ctx,
		appCtx: appCtx,
		cfg:    cfg,
		mylog:  mylog,
	}
}

// Run connects the store and replication channels, then serves until the
// context is cancelled.
func (s *Server) Run() error {
	mylog := s.mylog.Action("server_started")

	store, err := s.openStore()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()

	peerSet := peers.NewSet()
	var publishers services.Publishers

	mode := s.cfg.Sync.ReplicationMode
	if mode == config.ReplicationPeers || mode == config.ReplicationBoth {
		s.pub = peers.NewPublisher(s.mylog, peerSet, s.cfg.Srv.RequestTimeout)
		publishers = append(publishers, s.pub)
	}
	if mode == config.ReplicationAMQP || mode == config.ReplicationBoth {
		mq, err := bm.New(s.appCtx, s.cfg.RabbitMq, s.cfg.NodeID, s.mylog)
		if err != nil {
			return fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		s.mq = mq
		publishers = append(publishers, mq)
		mylog.Info("Successful message broker connection")
	}

	svc := services.NewDBService(s.mylog, store, publishers, peerSet,
		peers.NewFetcher(s.cfg.Srv.RequestTimeout), s.cfg.Srv.DBServicePort)

	if s.mq != nil {
		if err := s.mq.Consume(s.ctx, func(ctx context.Context, m protocol.Message) {
			svc.Handle(ctx, m)
		}); err != nil {
			return fmt.Errorf("consume replication: %w", err)
		}
	}

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.Srv.DBServicePort))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.mu.Lock()
	s.listener = protocol.NewListener(s.mylog, NewHandler(s.mylog, svc).Serve, s.cfg.Srv.ReadTimeout, s.cfg.Srv.WriteTimeout)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		svc.Bootstrap(s.ctx, s.cfg.Sync.Peers)
	}()

	if s.cfg.Sync.DiscoveryEnabled {
		disc := discovery.New(s.mylog, svc, s.cfg.Sync.DiscoveryPort, s.cfg.Sync.DiscoveryInterval)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := disc.Run(s.ctx); err != nil {
				s.mylog.Action("discovery_failed").Error("discovery stopped", err)
			}
		}()
	}

	mylog.WithGroup("details").With("port", s.cfg.Srv.DBServicePort, "store", s.cfg.DB.Store, "replication", mode).Info("server is running")
	return s.listener.Serve(s.ctx, ln)
}

// Stop closes the listener, waits for background work and releases the store.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mylog.Info("Shutting down database service...")

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.mylog.Error("Failed to close listener", err)
		}
	}
	s.wg.Wait()
	if s.pub != nil {
		s.pub.Wait()
	}
	if s.mq != nil {
		if err := s.mq.Close(); err != nil {
			s.mylog.Error("Failed to close message broker", err)
		}
	}
	if s.store != nil {
		s.store.Close()
		s.mylog.Info("Database closed")
	}

	s.mylog.Info("Database service shut down gracefully")
	return nil
}

func (s *Server) openStore() (driven.IStore, error) {
	if s.cfg.DB.Store == config.StoreMemory {
		s.mylog.Action("store_opened").Warn("using in-memory store, data is lost on exit")
		return memory.New(), nil
	}

	pool, err := postgres.Connect(s.ctx, s.cfg.DB, s.mylog)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := postgres.EnsureSchema(s.ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	s.mylog.Action("store_opened").Info("Successful database connection")
	return postgres.NewStore(pool), nil
}
