package databaseservice

import (
	"context"
	"os/signal"
	"syscall"

	"ride-share/internal/config"
	"ride-share/internal/database-service/adapters/driver/mytcp"
	"ride-share/internal/mylogger"
)

func Execute(ctx context.Context, mylog mylogger.Logger, cfg *config.Config) error {
	newCtx, close := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer close()

	server := mytcp.NewServer(newCtx, ctx, mylog, cfg)

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- server.Run()
	}()

	select {
	case <-newCtx.Done():
		mylog.Action("shutdown_signal_received").Info("Shutdown signal received")
		return server.Stop(context.Background())
	case err := <-runErrCh:
		if err != nil {
			mylog.Action("database_service_failed").Error("Server failed unexpectedly", err)
			server.Stop(context.Background())
			return err
		}
		mylog.Action("server_stopped").Info("Server exited normally")
		return server.Stop(context.Background())
	}
}
