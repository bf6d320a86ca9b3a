package driven

import "context"

// IDBClient is the subset of the database service the registry writes to.
type IDBClient interface {
	// UpdateDriverLocation does not wait for the database to answer.
	UpdateDriverLocation(ctx context.Context, username string, lat, lon float64)
	UpdateRide(ctx context.Context, rideID int64, status string, lat, lon float64) error
	AssignDriver(ctx context.Context, rideID int64, driverUsername string) error
}
