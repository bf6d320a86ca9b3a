package services

import (
	"context"
	"fmt"

	"ride-share/internal/database-service/core/domain/model"
	"ride-share/internal/protocol"
)

// createRide always logs the ride: ASSIGNED when a driver is named, REQUESTED otherwise.
func (s *DBService) createRide(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	log := s.mylog.Action("CreateRide")

	passenger, err := requireString(req.Payload, "passengerUsername")
	if err != nil {
		return protocol.Message{}, err
	}
	startLat, startLon, err := requireCoordinates(req.Payload, "startLat", "startLon")
	if err != nil {
		return protocol.Message{}, err
	}
	destLat, destLon, err := requireCoordinates(req.Payload, "destLat", "destLon")
	if err != nil {
		return protocol.Message{}, err
	}

	ride := model.NewRide{
		PassengerUsername: passenger,
		DriverUsername:    req.Payload.String("driverUsername"),
		StartLat:          startLat,
		StartLon:          startLon,
		DestLat:           destLat,
		DestLon:           destLon,
		StartAddr:         req.Payload.String("startAddr"),
		DestAddr:          req.Payload.String("destAddr"),
	}
	if req.Payload.Bool(SyncTag) && req.Payload.Has("rideId") {
		if ride.ID, err = requireInt(req.Payload, "rideId"); err != nil {
			return protocol.Message{}, err
		}
	}

	id, err := s.store.CreateRide(ctx, ride)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("create ride for %s: %w", passenger, err)
	}

	log.Info("ride created", "ride_id", id, "passenger", passenger, "driver", ride.DriverUsername, "status", ride.InitialStatus())
	return ok(req).
		With("rideId", id).
		With("status", string(ride.InitialStatus())), nil
}

func (s *DBService) updateRide(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	rideID, err := requireInt(req.Payload, "rideId")
	if err != nil {
		return protocol.Message{}, err
	}
	status, err := model.ParseRideStatus(req.Payload.String("status"))
	if err != nil {
		return protocol.Message{}, fmt.Errorf("%w: %v", errInvalidField, err)
	}
	lat, lon, err := optionalCoordinates(req.Payload, "latitude", "longitude")
	if err != nil {
		return protocol.Message{}, err
	}

	ride, err := s.store.UpdateRideStatus(ctx, rideID, status, lat, lon)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("ride %d to %s: %w", rideID, status, err)
	}

	s.mylog.Action("UpdateRide").Info("ride status changed", "ride_id", rideID, "status", status)
	return ok(req).
		With("rideId", ride.ID).
		With("status", string(ride.Status)).
		With("driverUsername", nullable(ride.DriverUsername)), nil
}

// assignDriver binds a driver to a REQUESTED ride. Repeating it for the
// same driver is a no-op success.
func (s *DBService) assignDriver(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	rideID, err := requireInt(req.Payload, "rideId")
	if err != nil {
		return protocol.Message{}, err
	}
	driver, err := requireString(req.Payload, "driverUsername")
	if err != nil {
		return protocol.Message{}, err
	}

	if err := s.store.AssignDriver(ctx, rideID, driver); err != nil {
		return protocol.Message{}, fmt.Errorf("assign %s to ride %d: %w", driver, rideID, err)
	}

	s.mylog.Action("AssignDriver").Info("driver bound to ride", "ride_id", rideID, "driver", driver)
	return ok(req).
		With("rideId", rideID).
		With("driverUsername", driver), nil
}

func (s *DBService) getRide(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	rideID, err := requireInt(req.Payload, "rideId")
	if err != nil {
		return protocol.Message{}, err
	}

	ride, history, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("get ride %d: %w", rideID, err)
	}
	historyJSON, err := protocol.EncodeRecords(history)
	if err != nil {
		return protocol.Message{}, err
	}

	return ok(req).
		With("rideId", ride.ID).
		With("passengerUsername", ride.PassengerUsername).
		With("driverUsername", nullable(ride.DriverUsername)).
		With("status", string(ride.Status)).
		With("startLat", ride.StartLat).
		With("startLon", ride.StartLon).
		With("destLat", ride.DestLat).
		With("destLon", ride.DestLon).
		With("startAddr", ride.StartAddr).
		With("destAddr", ride.DestAddr).
		With("history", historyJSON), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
