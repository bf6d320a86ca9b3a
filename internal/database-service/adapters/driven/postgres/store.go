// Package postgres is the durable store. Every logical operation runs in its
// own transaction on a pooled connection.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ride-share/internal/database-service/core/domain/model"
	"ride-share/internal/database-service/core/myerrors"
	"ride-share/internal/database-service/core/ports/driven"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

var _ driven.IStore = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) InsertPassenger(ctx context.Context, p model.Passenger) (int64, error) {
	q := `INSERT INTO passengers (username, password_hash, phone) VALUES ($1, $2, $3) RETURNING id`

	var id int64
	if err := s.pool.QueryRow(ctx, q, p.Username, p.PasswordHash, p.Phone).Scan(&id); err != nil {
		return 0, mapError(err)
	}
	return id, nil
}

func (s *Store) InsertDriver(ctx context.Context, d model.Driver) (int64, error) {
	q := `INSERT INTO drivers (
			username, password_hash, phone, is_available, status,
			full_name, dob, gender, nationality, id_number, email, address,
			license_number, license_type, license_issue_date, license_expiry_date,
			vehicle_type, vehicle_model, vehicle_year, license_plate
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id`

	a := d.Application
	var id int64
	err := s.pool.QueryRow(ctx, q,
		d.Username, d.PasswordHash, d.Phone, d.Available, string(d.Status),
		a.FullName, a.DOB, a.Gender, a.Nationality, a.IDNumber, a.Email, a.Address,
		a.LicenseNumber, a.LicenseType, a.LicenseIssueDate, a.LicenseExpiryDate,
		a.VehicleType, a.VehicleModel, a.VehicleYear, a.LicensePlate,
	).Scan(&id)
	if err != nil {
		return 0, mapError(err)
	}
	return id, nil
}

func (s *Store) FindCredentials(ctx context.Context, role model.Role, username string) (model.Credentials, error) {
	var c model.Credentials
	switch role {
	case model.RolePassenger:
		q := `SELECT id, password_hash FROM passengers WHERE username = $1`
		err := s.pool.QueryRow(ctx, q, username).Scan(&c.ID, &c.PasswordHash)
		if errors.Is(err, pgx.ErrNoRows) {
			return c, myerrors.ErrPassengerNotFound
		}
		return c, err
	case model.RoleDriver:
		q := `SELECT id, password_hash, status FROM drivers WHERE username = $1`
		var status string
		err := s.pool.QueryRow(ctx, q, username).Scan(&c.ID, &c.PasswordHash, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return c, myerrors.ErrDriverNotFound
		}
		c.Status = model.DriverStatus(status)
		return c, err
	}
	return c, fmt.Errorf("unsupported role %q", role)
}

func (s *Store) UpdatePassengerLocation(ctx context.Context, username string, lat, lon float64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE passengers SET latitude = $2, longitude = $3 WHERE username = $1`, username, lat, lon)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return myerrors.ErrPassengerNotFound
	}
	return nil
}

func (s *Store) UpdateDriverLocation(ctx context.Context, username string, lat, lon float64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE drivers SET latitude = $2, longitude = $3 WHERE username = $1`, username, lat, lon)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return myerrors.ErrDriverNotFound
	}
	return nil
}

func (s *Store) CreateRide(ctx context.Context, r model.NewRide) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		passengerID, err := idByUsername(ctx, tx, "passengers", r.PassengerUsername, myerrors.ErrPassengerNotFound)
		if err != nil {
			return err
		}
		var driverID *int64
		if r.DriverUsername != "" {
			did, err := idByUsername(ctx, tx, "drivers", r.DriverUsername, myerrors.ErrDriverNotFound)
			if err != nil {
				return err
			}
			driverID = &did
		}

		status := r.InitialStatus()
		args := []any{passengerID, driverID, string(status), r.StartLat, r.StartLon, r.DestLat, r.DestLon, r.StartAddr, r.DestAddr}
		if r.ID > 0 {
			q := `INSERT INTO rides (id, passenger_id, driver_id, status, start_lat, start_lon, dest_lat, dest_lon, start_addr, dest_addr)
				VALUES ($10, $1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
			if err := tx.QueryRow(ctx, q, append(args, r.ID)...).Scan(&id); err != nil {
				return mapError(err)
			}
			// keep locally generated ids above replicated ones
			if _, err := tx.Exec(ctx, `SELECT setval(pg_get_serial_sequence('rides', 'id'), (SELECT MAX(id) FROM rides))`); err != nil {
				return err
			}
		} else {
			q := `INSERT INTO rides (passenger_id, driver_id, status, start_lat, start_lon, dest_lat, dest_lon, start_addr, dest_addr)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
			if err := tx.QueryRow(ctx, q, args...).Scan(&id); err != nil {
				return mapError(err)
			}
		}

		if err := appendHistory(ctx, tx, id, status, r.StartLat, r.StartLon); err != nil {
			return err
		}
		if driverID != nil {
			if _, err := tx.Exec(ctx, `UPDATE drivers SET is_available = FALSE WHERE id = $1`, *driverID); err != nil {
				return err
			}
		}
		return nil
	})
	return id, err
}

func (s *Store) AssignDriver(ctx context.Context, rideID int64, driverUsername string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		cur, err := lockRide(ctx, tx, rideID)
		if err != nil {
			return err
		}
		driverID, err := idByUsername(ctx, tx, "drivers", driverUsername, myerrors.ErrDriverNotFound)
		if err != nil {
			return err
		}

		if cur.status == model.StatusAssigned && cur.driver == driverUsername {
			return nil
		}
		if cur.driver != "" {
			return myerrors.ErrRideAlreadyAssigned
		}
		if !cur.status.CanTransitionTo(model.StatusAssigned) {
			return fmt.Errorf("%s to %s: %w", cur.status, model.StatusAssigned, myerrors.ErrInvalidTransition)
		}

		if _, err := tx.Exec(ctx, `UPDATE rides SET driver_id = $2, status = $3 WHERE id = $1`, rideID, driverID, string(model.StatusAssigned)); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE drivers SET is_available = FALSE WHERE id = $1`, driverID); err != nil {
			return err
		}
		return appendHistory(ctx, tx, rideID, model.StatusAssigned, cur.startLat, cur.startLon)
	})
}

func (s *Store) UpdateRideStatus(ctx context.Context, rideID int64, status model.RideStatus, lat, lon float64) (model.Ride, error) {
	var out model.Ride
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		cur, err := lockRide(ctx, tx, rideID)
		if err != nil {
			return err
		}
		if status == model.StatusAssigned && cur.driver == "" {
			return myerrors.ErrDriverRequired
		}
		if !cur.status.CanTransitionTo(status) {
			return fmt.Errorf("%s to %s: %w", cur.status, status, myerrors.ErrInvalidTransition)
		}

		if _, err := tx.Exec(ctx, `UPDATE rides SET status = $2 WHERE id = $1`, rideID, string(status)); err != nil {
			return err
		}
		if err := appendHistory(ctx, tx, rideID, status, lat, lon); err != nil {
			return err
		}
		if status.FreesDriver() && cur.driver != "" {
			if _, err := tx.Exec(ctx, `UPDATE drivers SET is_available = TRUE WHERE username = $1`, cur.driver); err != nil {
				return err
			}
		}

		out, err = getRide(ctx, tx, rideID)
		return err
	})
	return out, err
}

func (s *Store) GetRide(ctx context.Context, rideID int64) (model.Ride, []model.StatusChange, error) {
	ride, err := getRide(ctx, s.pool, rideID)
	if err != nil {
		return model.Ride{}, nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT status, latitude, longitude, changed_at FROM ride_status_history WHERE ride_id = $1 ORDER BY id`, rideID)
	if err != nil {
		return model.Ride{}, nil, err
	}
	defer rows.Close()

	history := make([]model.StatusChange, 0)
	for rows.Next() {
		var (
			c      model.StatusChange
			status string
		)
		if err := rows.Scan(&status, &c.Latitude, &c.Longitude, &c.At); err != nil {
			return model.Ride{}, nil, err
		}
		c.Status = model.RideStatus(status)
		history = append(history, c)
	}
	return ride, history, rows.Err()
}

func (s *Store) PendingDrivers(ctx context.Context) ([]model.PendingDriver, error) {
	rows, err := s.pool.Query(ctx, `SELECT username, phone, status, `+applicationColumns+`
		FROM drivers WHERE status = $1 ORDER BY id`, string(model.DriverPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.PendingDriver, 0)
	for rows.Next() {
		var (
			d      model.PendingDriver
			status string
		)
		dest := append([]any{&d.Username, &d.Phone, &status}, applicationFields(&d.DriverApplication)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		d.Status = model.DriverStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) SetDriverStatus(ctx context.Context, username string, status model.DriverStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE drivers SET status = $2, is_available = $3 WHERE username = $1`,
		username, string(status), status == model.DriverApproved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return myerrors.ErrDriverNotFound
	}
	return nil
}

func (s *Store) ActiveRides(ctx context.Context) ([]model.ActiveRide, error) {
	q := `SELECT r.id, p.username, d.username, p.latitude, p.longitude, d.latitude, d.longitude, r.status
		FROM rides r
		JOIN passengers p ON p.id = r.passenger_id
		JOIN drivers d ON d.id = r.driver_id
		WHERE r.status IN ('ASSIGNED', 'STARTED')
		ORDER BY r.id`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.ActiveRide, 0)
	for rows.Next() {
		var (
			r      model.ActiveRide
			status string
		)
		if err := rows.Scan(&r.RideID, &r.Passenger, &r.Driver, &r.PLat, &r.PLon, &r.DLat, &r.DLon, &status); err != nil {
			return nil, err
		}
		r.Status = model.RideStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Locations(ctx context.Context) (model.Locations, error) {
	locs := model.Locations{
		Passengers: make([]model.PassengerPoint, 0),
		Drivers:    make([]model.DriverPoint, 0),
		Rides:      make([]model.OpenRide, 0),
	}

	rows, err := s.pool.Query(ctx, `SELECT username, latitude, longitude FROM passengers ORDER BY id`)
	if err != nil {
		return locs, err
	}
	for rows.Next() {
		var p model.PassengerPoint
		if err := rows.Scan(&p.Username, &p.Lat, &p.Lng); err != nil {
			rows.Close()
			return locs, err
		}
		locs.Passengers = append(locs.Passengers, p)
	}
	rows.Close()

	rows, err = s.pool.Query(ctx, `SELECT username, latitude, longitude, is_available FROM drivers ORDER BY id`)
	if err != nil {
		return locs, err
	}
	for rows.Next() {
		var d model.DriverPoint
		if err := rows.Scan(&d.Username, &d.Lat, &d.Lng, &d.Available); err != nil {
			rows.Close()
			return locs, err
		}
		locs.Drivers = append(locs.Drivers, d)
	}
	rows.Close()

	rows, err = s.pool.Query(ctx, `SELECT r.id, p.username, r.start_lat, r.start_lon, r.dest_lat, r.dest_lon, r.status
		FROM rides r JOIN passengers p ON p.id = r.passenger_id
		WHERE r.status NOT IN ('COMPLETED', 'CANCELLED')
		ORDER BY r.id`)
	if err != nil {
		return locs, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r      model.OpenRide
			status string
		)
		if err := rows.Scan(&r.ID, &r.Passenger, &r.PLat, &r.PLon, &r.DLat, &r.DLon, &status); err != nil {
			return locs, err
		}
		r.Status = model.RideStatus(status)
		locs.Rides = append(locs.Rides, r)
	}
	return locs, rows.Err()
}

func (s *Store) Snapshot(ctx context.Context) (model.Snapshot, error) {
	snap := model.Snapshot{
		Passengers: make([]model.PassengerRecord, 0),
		Drivers:    make([]model.DriverRecord, 0),
	}

	rows, err := s.pool.Query(ctx, `SELECT username, password_hash, phone FROM passengers ORDER BY id`)
	if err != nil {
		return snap, err
	}
	for rows.Next() {
		var p model.PassengerRecord
		if err := rows.Scan(&p.Username, &p.PasswordHash, &p.Phone); err != nil {
			rows.Close()
			return snap, err
		}
		snap.Passengers = append(snap.Passengers, p)
	}
	rows.Close()

	rows, err = s.pool.Query(ctx, `SELECT username, password_hash, phone, status, `+applicationColumns+` FROM drivers ORDER BY id`)
	if err != nil {
		return snap, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			d      model.DriverRecord
			status string
		)
		dest := append([]any{&d.Username, &d.PasswordHash, &d.Phone, &status}, applicationFields(&d.DriverApplication)...)
		if err := rows.Scan(dest...); err != nil {
			return snap, err
		}
		d.Status = model.DriverStatus(status)
		snap.Drivers = append(snap.Drivers, d)
	}
	return snap, rows.Err()
}

const applicationColumns = `full_name, dob, gender, nationality, id_number, email, address,
	license_number, license_type, license_issue_date, license_expiry_date,
	vehicle_type, vehicle_model, vehicle_year, license_plate`

func applicationFields(a *model.DriverApplication) []any {
	return []any{
		&a.FullName, &a.DOB, &a.Gender, &a.Nationality, &a.IDNumber, &a.Email, &a.Address,
		&a.LicenseNumber, &a.LicenseType, &a.LicenseIssueDate, &a.LicenseExpiryDate,
		&a.VehicleType, &a.VehicleModel, &a.VehicleYear, &a.LicensePlate,
	}
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rideState struct {
	status   model.RideStatus
	driver   string
	startLat float64
	startLon float64
}

func lockRide(ctx context.Context, tx pgx.Tx, rideID int64) (rideState, error) {
	q := `SELECT r.status, COALESCE(d.username, ''), r.start_lat, r.start_lon
		FROM rides r LEFT JOIN drivers d ON d.id = r.driver_id
		WHERE r.id = $1
		FOR UPDATE OF r`
	var (
		st     rideState
		status string
	)
	err := tx.QueryRow(ctx, q, rideID).Scan(&status, &st.driver, &st.startLat, &st.startLon)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, myerrors.ErrRideNotFound
	}
	st.status = model.RideStatus(status)
	return st, err
}

func getRide(ctx context.Context, q querier, rideID int64) (model.Ride, error) {
	var (
		r      model.Ride
		driver *string
		status string
	)
	err := q.QueryRow(ctx, `SELECT r.id, p.username, d.username, r.status,
			r.start_lat, r.start_lon, r.dest_lat, r.dest_lon, r.start_addr, r.dest_addr, r.created_at
		FROM rides r
		JOIN passengers p ON p.id = r.passenger_id
		LEFT JOIN drivers d ON d.id = r.driver_id
		WHERE r.id = $1`, rideID).Scan(
		&r.ID, &r.PassengerUsername, &driver, &status,
		&r.StartLat, &r.StartLon, &r.DestLat, &r.DestLon, &r.StartAddr, &r.DestAddr, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, myerrors.ErrRideNotFound
	}
	if err != nil {
		return r, err
	}
	if driver != nil {
		r.DriverUsername = *driver
	}
	r.Status = model.RideStatus(status)
	return r, nil
}

func idByUsername(ctx context.Context, tx pgx.Tx, table, username string, notFound error) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM `+table+` WHERE username = $1`, username).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%s: %w", username, notFound)
	}
	return id, err
}

func appendHistory(ctx context.Context, tx pgx.Tx, rideID int64, status model.RideStatus, lat, lon float64) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO ride_status_history (ride_id, status, latitude, longitude, changed_at) VALUES ($1, $2, $3, $4, $5)`,
		rideID, string(status), lat, lon, time.Now().UTC())
	return err
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, myerrors.ErrDuplicate)
	}
	return err
}
