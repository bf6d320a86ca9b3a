package model

const (
	StatusRequested = "REQUESTED"
	StatusAssigned  = "ASSIGNED"
	StatusStarted   = "STARTED"
	StatusCompleted = "COMPLETED"
	StatusCancelled = "CANCELLED"

	// ManualPassenger names the passenger on assignments made by an operator.
	ManualPassenger = "AdminManual"
)

type RideRequest struct {
	PassengerUsername string
	PickupLat         float64
	PickupLon         float64
	DestLat           float64
	DestLon           float64
	PickupAddr        string
	DestAddr          string
}

// Dispatch is the outcome of a ride request. DriverUsername is empty when
// the ride is waiting for a driver.
type Dispatch struct {
	RideID         int64
	DriverUsername string
	DistanceKm     float64
}

func (d Dispatch) Waiting() bool {
	return d.DriverUsername == ""
}

// Assignment is what the registry pushes to the chosen driver.
type Assignment struct {
	RideID            int64
	DriverUsername    string
	PassengerUsername string
	PickupLat         float64
	PickupLon         float64
}

// Ride is the part of a stored ride the coordinator looks at.
type Ride struct {
	ID                int64  `json:"rideId"`
	PassengerUsername string `json:"passengerUsername"`
	DriverUsername    string `json:"driverUsername"`
	Status            string `json:"status"`
}

func (r Ride) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusCancelled
}

// Session is the state of one passenger connection.
type Session struct {
	Username string
}
