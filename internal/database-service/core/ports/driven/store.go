package driven

import (
	"context"

	"ride-share/internal/database-service/core/domain/model"
)

// IStore executes every logical operation atomically. Implementations report
// myerrors sentinels for duplicates, missing rows and rejected transitions.
type IStore interface {
	InsertPassenger(ctx context.Context, p model.Passenger) (int64, error)
	InsertDriver(ctx context.Context, d model.Driver) (int64, error)
	FindCredentials(ctx context.Context, role model.Role, username string) (model.Credentials, error)

	UpdatePassengerLocation(ctx context.Context, username string, lat, lon float64) error
	UpdateDriverLocation(ctx context.Context, username string, lat, lon float64) error

	CreateRide(ctx context.Context, r model.NewRide) (int64, error)
	AssignDriver(ctx context.Context, rideID int64, driverUsername string) error
	UpdateRideStatus(ctx context.Context, rideID int64, status model.RideStatus, lat, lon float64) (model.Ride, error)
	GetRide(ctx context.Context, rideID int64) (model.Ride, []model.StatusChange, error)

	PendingDrivers(ctx context.Context) ([]model.PendingDriver, error)
	SetDriverStatus(ctx context.Context, username string, status model.DriverStatus) error
	ActiveRides(ctx context.Context) ([]model.ActiveRide, error)
	Locations(ctx context.Context) (model.Locations, error)
	Snapshot(ctx context.Context) (model.Snapshot, error)

	Close()
}
