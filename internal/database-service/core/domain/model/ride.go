package model

import (
	"fmt"
	"time"
)

type RideStatus string

const (
	StatusRequested RideStatus = "REQUESTED"
	StatusAssigned  RideStatus = "ASSIGNED"
	StatusStarted   RideStatus = "STARTED"
	StatusCompleted RideStatus = "COMPLETED"
	StatusCancelled RideStatus = "CANCELLED"
)

// next lists the forward moves out of each status.
var next = map[RideStatus][]RideStatus{
	StatusRequested: {StatusAssigned, StatusCancelled},
	StatusAssigned:  {StatusStarted, StatusCancelled},
	StatusStarted:   {StatusCompleted, StatusCancelled},
}

func ParseRideStatus(s string) (RideStatus, error) {
	st := RideStatus(s)
	switch st {
	case StatusRequested, StatusAssigned, StatusStarted, StatusCompleted, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown ride status %q", s)
}

func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo allows only forward moves; CANCELLED is reachable from any
// non-terminal status.
func (s RideStatus) CanTransitionTo(to RideStatus) bool {
	for _, n := range next[s] {
		if n == to {
			return true
		}
	}
	return false
}

// FreesDriver reports statuses after which the driver row is available again.
func (s RideStatus) FreesDriver() bool {
	return s.Terminal()
}

type Ride struct {
	ID                int64      `json:"rideId"`
	PassengerUsername string     `json:"passengerUsername"`
	DriverUsername    string     `json:"driverUsername,omitempty"`
	Status            RideStatus `json:"status"`
	StartLat          float64    `json:"startLat"`
	StartLon          float64    `json:"startLon"`
	DestLat           float64    `json:"destLat"`
	DestLon           float64    `json:"destLon"`
	StartAddr         string     `json:"startAddr"`
	DestAddr          string     `json:"destAddr"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// NewRide is a ride to insert. ID is zero unless a replicated create carries
// the id assigned by its origin.
type NewRide struct {
	ID                int64
	PassengerUsername string
	DriverUsername    string
	StartLat          float64
	StartLon          float64
	DestLat           float64
	DestLon           float64
	StartAddr         string
	DestAddr          string
}

// InitialStatus is ASSIGNED when a driver is known at creation.
func (r NewRide) InitialStatus() RideStatus {
	if r.DriverUsername != "" {
		return StatusAssigned
	}
	return StatusRequested
}

type StatusChange struct {
	Status    RideStatus `json:"status"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	At        time.Time  `json:"timestamp"`
}

type ActiveRide struct {
	RideID    int64      `json:"rideId"`
	Passenger string     `json:"passenger"`
	Driver    string     `json:"driver"`
	PLat      float64    `json:"p_lat"`
	PLon      float64    `json:"p_lon"`
	DLat      float64    `json:"d_lat"`
	DLon      float64    `json:"d_lon"`
	Status    RideStatus `json:"status"`
}
