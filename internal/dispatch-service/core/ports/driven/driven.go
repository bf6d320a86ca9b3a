package driven

import (
	"context"

	"ride-share/internal/dispatch-service/core/domain/model"
)

// IDriverRegistry is the driver service's query API.
type IDriverRegistry interface {
	AvailableDrivers(ctx context.Context) ([]model.Candidate, error)
	// Reserve fails with myerrors.ErrDriverUnavailable when another decision got there first.
	Reserve(ctx context.Context, driverUsername string) error
	Release(ctx context.Context, driverUsername string, rideID int64, cancelled bool) error
	// Assign needs the reservation taken by Reserve. parked reports a driver
	// who was not reachable and gets the ride when it reconnects.
	Assign(ctx context.Context, a model.Assignment) (parked bool, err error)
}

type IDatabase interface {
	InsertPassenger(ctx context.Context, username, password, phone string) error
	ValidatePassenger(ctx context.Context, username, password string) error
	UpdatePassengerLocation(ctx context.Context, username string, lat, lon float64) error
	CreateRide(ctx context.Context, req model.RideRequest, driverUsername string) (int64, error)
	AssignDriver(ctx context.Context, rideID int64, driverUsername string) error
	GetRide(ctx context.Context, rideID int64) (model.Ride, error)
	UpdateRideStatus(ctx context.Context, rideID int64, status string) error
}

// ISessionIssuer signs and checks passenger session tokens.
type ISessionIssuer interface {
	Issue(username string) (string, error)
	Verify(token string) (string, error)
}
