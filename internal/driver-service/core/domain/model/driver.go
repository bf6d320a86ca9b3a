package model

import "time"

// State is the single authority on whether a driver can take a ride.
type State string

const (
	StateAvailable State = "available"
	StateReserved  State = "reserved" // claimed by a dispatch decision not yet persisted
	StateAssigned  State = "assigned"
	StateOffline   State = "offline" // registered but not accepting rides
)

type Driver struct {
	Username   string
	Latitude   float64
	Longitude  float64
	State      State
	RideID     int64
	LastUpdate time.Time
}

func (d Driver) Available() bool {
	return d.State == StateAvailable
}

// Listing is the public row of AVAILABLE_DRIVERS_LIST.
type Listing struct {
	Username  string  `json:"username"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Available bool    `json:"available"`
}

// Assignment is the ride offered to a driver.
type Assignment struct {
	RideID            int64
	PassengerUsername string
	PickupLat         float64
	PickupLon         float64
}

// ConnKind decides whether a connection owns the entries it registers.
type ConnKind int

const (
	// Persistent connections own their registrations; closing them unregisters.
	Persistent ConnKind = iota
	// Ephemeral connections never own registry entries.
	Ephemeral
)

func (k ConnKind) String() string {
	if k == Ephemeral {
		return "ephemeral"
	}
	return "persistent"
}
