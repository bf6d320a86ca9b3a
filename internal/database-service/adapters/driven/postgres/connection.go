package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"ride-share/internal/config"
	"ride-share/internal/mylogger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	connectAttempts = 5
	pingTimeout     = 5 * time.Second
)

// Connect opens a pool and retries with a linear backoff until the server
// answers a ping.
func Connect(ctx context.Context, cfg config.DBconfig, mylog mylogger.Logger) (*pgxpool.Pool, error) {
	log := mylog.Action("db_connect")

	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
		User:   url.UserPassword(cfg.User, cfg.Password),
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()

	pcfg, err := pgxpool.ParseConfig(u.String())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pcfg.MaxConns = cfg.MaxConns
	pcfg.ConnConfig.ConnectTimeout = pingTimeout
	pcfg.HealthCheckPeriod = 30 * time.Second
	pcfg.MaxConnIdleTime = 5 * time.Minute

	var lastErr error
	for i := 0; i < connectAttempts; i++ {
		pool, err := pgxpool.NewWithConfig(ctx, pcfg)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err = pool.Ping(pingCtx)
			cancel()
			if err == nil {
				log.Info("connected to the database", "host", cfg.Host, "database", cfg.Database, "max_conns", cfg.MaxConns)
				return pool, nil
			}
			pool.Close()
		}

		lastErr = err
		log.Error(fmt.Sprintf("DB connection attempt %d failed", i+1), err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second * time.Duration(i+1)):
		}
	}
	return nil, fmt.Errorf("connect to the database after %d attempts: %w", connectAttempts, lastErr)
}
