package protocol

import "fmt"

// MessageType names an operation or event. The set is closed.
type MessageType string

const (
	// Authentication
	RegisterPassenger MessageType = "REGISTER_PASSENGER"
	RegisterDriver    MessageType = "REGISTER_DRIVER"
	Login             MessageType = "LOGIN"
	LoginSuccess      MessageType = "LOGIN_SUCCESS"
	LoginFailed       MessageType = "LOGIN_FAILED"

	// Location
	UpdateLocation  MessageType = "UPDATE_LOCATION"
	LocationUpdated MessageType = "LOCATION_UPDATED"

	// Ride lifecycle
	RideRequest    MessageType = "RIDE_REQUEST"
	RideAssignment MessageType = "RIDE_ASSIGNMENT"
	RideAccepted   MessageType = "RIDE_ACCEPTED"
	RideRejected   MessageType = "RIDE_REJECTED"
	RideStarted    MessageType = "RIDE_STARTED"
	RideCompleted  MessageType = "RIDE_COMPLETED"
	RideCancelled  MessageType = "RIDE_CANCELLED"

	// Driver availability and registry queries
	UpdateAvailability   MessageType = "UPDATE_AVAILABILITY"
	AvailabilityUpdated  MessageType = "AVAILABILITY_UPDATED"
	GetAvailableDrivers  MessageType = "GET_AVAILABLE_DRIVERS"
	AvailableDriversList MessageType = "AVAILABLE_DRIVERS_LIST"
	AssignDriver         MessageType = "ASSIGN_DRIVER"
	DriverAssigned       MessageType = "DRIVER_ASSIGNED"
	ReserveDriver        MessageType = "RESERVE_DRIVER"
	DriverReserved       MessageType = "DRIVER_RESERVED"
	ReleaseDriver        MessageType = "RELEASE_DRIVER"
	DriverReleased       MessageType = "DRIVER_RELEASED"

	// Database service
	DBCreateRide              MessageType = "DB_CREATE_RIDE"
	DBUpdateRide              MessageType = "DB_UPDATE_RIDE"
	DBGetRide                 MessageType = "DB_GET_RIDE"
	DBInsertPassenger         MessageType = "DB_INSERT_PASSENGER"
	DBInsertDriver            MessageType = "DB_INSERT_DRIVER"
	DBInsertDriverDetailed    MessageType = "DB_INSERT_DRIVER_DETAILED"
	DBUpdateDriverLocation    MessageType = "DB_UPDATE_DRIVER_LOCATION"
	DBUpdatePassengerLocation MessageType = "DB_UPDATE_PASSENGER_LOCATION"
	DBValidateLogin           MessageType = "DB_VALIDATE_LOGIN"
	DBGetActiveRides          MessageType = "DB_GET_ACTIVE_RIDES"
	DBGetPendingDrivers       MessageType = "DB_GET_PENDING_DRIVERS"
	DBApproveDriver           MessageType = "DB_APPROVE_DRIVER"
	DBResponse                MessageType = "DB_RESPONSE"
	GetLocations              MessageType = "GET_LOCATIONS"
	LocationsData             MessageType = "LOCATIONS_DATA"
	SyncRequest               MessageType = "SYNC_REQUEST"
	SyncDataResponse          MessageType = "SYNC_DATA_RESPONSE"

	// Control
	Heartbeat          MessageType = "HEARTBEAT"
	Disconnect         MessageType = "DISCONNECT"
	Error              MessageType = "ERROR"
	NoDriversAvailable MessageType = "NO_DRIVERS_AVAILABLE"
	DriverDisconnected MessageType = "DRIVER_DISCONNECTED"
	ServerShutdown     MessageType = "SERVER_SHUTDOWN"
)

var knownTypes = map[MessageType]struct{}{}

func init() {
	for _, t := range []MessageType{
		RegisterPassenger, RegisterDriver, Login, LoginSuccess, LoginFailed,
		UpdateLocation, LocationUpdated,
		RideRequest, RideAssignment, RideAccepted, RideRejected, RideStarted, RideCompleted, RideCancelled,
		UpdateAvailability, AvailabilityUpdated, GetAvailableDrivers, AvailableDriversList,
		AssignDriver, DriverAssigned, ReserveDriver, DriverReserved, ReleaseDriver, DriverReleased,
		DBCreateRide, DBUpdateRide, DBGetRide, DBInsertPassenger, DBInsertDriver, DBInsertDriverDetailed,
		DBUpdateDriverLocation, DBUpdatePassengerLocation, DBValidateLogin, DBGetActiveRides,
		DBGetPendingDrivers, DBApproveDriver, DBResponse, GetLocations, LocationsData,
		SyncRequest, SyncDataResponse,
		Heartbeat, Disconnect, Error, NoDriversAvailable, DriverDisconnected, ServerShutdown,
	} {
		knownTypes[t] = struct{}{}
	}
}

func (t MessageType) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

// ParseMessageType rejects anything outside the vocabulary.
func ParseMessageType(s string) (MessageType, error) {
	t := MessageType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown message type %q", s)
	}
	return t, nil
}
