package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS passengers (
		id            BIGSERIAL PRIMARY KEY,
		username      VARCHAR(50) NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		phone         TEXT NOT NULL DEFAULT '',
		latitude      DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude     DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS drivers (
		id                  BIGSERIAL PRIMARY KEY,
		username            VARCHAR(50) NOT NULL UNIQUE,
		password_hash       TEXT NOT NULL,
		phone               TEXT NOT NULL DEFAULT '',
		latitude            DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude           DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_available        BOOLEAN NOT NULL DEFAULT FALSE,
		status              TEXT NOT NULL DEFAULT 'APPROVED',
		full_name           TEXT NOT NULL DEFAULT '',
		dob                 TEXT NOT NULL DEFAULT '',
		gender              TEXT NOT NULL DEFAULT '',
		nationality         TEXT NOT NULL DEFAULT '',
		id_number           TEXT NOT NULL DEFAULT '',
		email               TEXT NOT NULL DEFAULT '',
		address             TEXT NOT NULL DEFAULT '',
		license_number      TEXT NOT NULL DEFAULT '',
		license_type        TEXT NOT NULL DEFAULT '',
		license_issue_date  TEXT NOT NULL DEFAULT '',
		license_expiry_date TEXT NOT NULL DEFAULT '',
		vehicle_type        TEXT NOT NULL DEFAULT '',
		vehicle_model       TEXT NOT NULL DEFAULT '',
		vehicle_year        INTEGER NOT NULL DEFAULT 0,
		license_plate       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS rides (
		id           BIGSERIAL PRIMARY KEY,
		passenger_id BIGINT NOT NULL REFERENCES passengers(id),
		driver_id    BIGINT REFERENCES drivers(id),
		status       TEXT NOT NULL,
		start_lat    DOUBLE PRECISION NOT NULL,
		start_lon    DOUBLE PRECISION NOT NULL,
		dest_lat     DOUBLE PRECISION NOT NULL,
		dest_lon     DOUBLE PRECISION NOT NULL,
		start_addr   TEXT NOT NULL DEFAULT '',
		dest_addr    TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ride_status_history (
		id         BIGSERIAL PRIMARY KEY,
		ride_id    BIGINT NOT NULL REFERENCES rides(id),
		status     TEXT NOT NULL,
		latitude   DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude  DOUBLE PRECISION NOT NULL DEFAULT 0,
		changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ride_status_history_ride_idx ON ride_status_history(ride_id)`,
}

// EnsureSchema creates missing tables. It never alters existing ones.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
