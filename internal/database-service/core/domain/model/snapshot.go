package model

// Snapshot is the full-table export exchanged between peers.
type Snapshot struct {
	Passengers []PassengerRecord
	Drivers    []DriverRecord
}

type PassengerRecord struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	Phone        string `json:"phone"`
}

type DriverRecord struct {
	Username     string       `json:"username"`
	PasswordHash string       `json:"passwordHash"`
	Phone        string       `json:"phone"`
	Status       DriverStatus `json:"status"`

	DriverApplication
}

// PendingDriver is the row shape returned to the approval screen.
type PendingDriver struct {
	Username string       `json:"username"`
	Phone    string       `json:"phone"`
	Status   DriverStatus `json:"status"`

	DriverApplication
}

type Locations struct {
	Passengers []PassengerPoint `json:"passengers"`
	Drivers    []DriverPoint    `json:"drivers"`
	Rides      []OpenRide       `json:"rides"`
}

type PassengerPoint struct {
	Username string  `json:"username"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

type DriverPoint struct {
	Username  string  `json:"username"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Available bool    `json:"available"`
}

type OpenRide struct {
	ID        int64      `json:"id"`
	Passenger string     `json:"passenger"`
	PLat      float64    `json:"p_lat"`
	PLon      float64    `json:"p_lon"`
	DLat      float64    `json:"d_lat"`
	DLon      float64    `json:"d_lon"`
	Status    RideStatus `json:"status"`
}
