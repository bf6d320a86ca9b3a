package services

import (
	"context"
	"strings"

	"ride-share/internal/driver-service/core/domain/model"
	"ride-share/internal/driver-service/core/myerrors"
	"ride-share/internal/protocol"
)

// HandleAPI answers one query from the dispatch coordinator. These
// connections are ephemeral and never own registry entries.
func (s *DriverService) HandleAPI(ctx context.Context, req protocol.Message) protocol.Message {
	var (
		resp protocol.Message
		err  error
	)
	switch req.Type {
	case protocol.GetAvailableDrivers:
		resp, err = s.availableDrivers(req)
	case protocol.ReserveDriver:
		resp, err = s.reserveDriver(req)
	case protocol.ReleaseDriver:
		resp, err = s.releaseDriver(req)
	case protocol.AssignDriver:
		resp, err = s.assignDriver(req)
	case protocol.Heartbeat:
		resp = req.Reply(protocol.Heartbeat)
	default:
		return errorText(req, "Unknown API request")
	}

	if err != nil {
		s.mylog.Action(string(req.Type)).Warn("api request failed", "reason", err.Error())
		return errorReply(req, err)
	}
	return resp
}

func (s *DriverService) availableDrivers(req protocol.Message) (protocol.Message, error) {
	drivers := s.registry.Available()
	encoded, err := protocol.EncodeRecords(drivers)
	if err != nil {
		return protocol.Message{}, err
	}

	s.mylog.Action("GetAvailableDrivers").Debug("returning available drivers", "count", len(drivers))
	return req.Reply(protocol.AvailableDriversList).
		With("drivers", encoded).
		With("count", len(drivers)), nil
}

func (s *DriverService) reserveDriver(req protocol.Message) (protocol.Message, error) {
	username, err := driverField(req)
	if err != nil {
		return protocol.Message{}, err
	}
	if err := s.registry.TryReserve(username); err != nil {
		return protocol.Message{}, err
	}

	s.mylog.Action("ReserveDriver").Info("driver reserved", "username", username)
	return req.Reply(protocol.DriverReserved).
		With("success", true).
		With("driverUsername", username), nil
}

// releaseDriver undoes a reservation or a ride binding. With cancelled set,
// the driver is told that the ride is off.
func (s *DriverService) releaseDriver(req protocol.Message) (protocol.Message, error) {
	log := s.mylog.Action("ReleaseDriver")

	username, err := driverField(req)
	if err != nil {
		return protocol.Message{}, err
	}
	var rideID int64
	if req.Payload["rideId"] != nil {
		if rideID, err = req.Payload.Int("rideId"); err != nil {
			return protocol.Message{}, err
		}
	}

	link, err := s.registry.Release(username, rideID)
	if err != nil {
		return protocol.Message{}, err
	}
	log.Info("driver released", "username", username, "ride_id", rideID)

	if req.Payload.Bool("cancelled") && link != nil {
		notice := protocol.New(protocol.RideCancelled).
			With("rideId", rideID).
			With("message", "Ride cancelled by passenger")
		if err := link.Write(notice); err != nil {
			log.Warn("cancellation not delivered", "username", username, "reason", err.Error())
		}
	}
	return req.Reply(protocol.DriverReleased).
		With("success", true).
		With("driverUsername", username), nil
}

// assignDriver binds the ride and pushes it to the driver. A driver without
// a live connection receives it on its next registration. With reserved set,
// the driver must still hold its reservation.
func (s *DriverService) assignDriver(req protocol.Message) (protocol.Message, error) {
	log := s.mylog.Action("AssignDriver")

	username, err := driverField(req)
	if err != nil {
		return protocol.Message{}, err
	}
	rideID, err := req.Payload.Int("rideId")
	if err != nil {
		return protocol.Message{}, err
	}
	pickupLat, pickupLon, err := req.Payload.Coordinates("pickupLat", "pickupLon")
	if err != nil {
		return protocol.Message{}, err
	}
	a := model.Assignment{
		RideID:            rideID,
		PassengerUsername: req.Payload.String("passengerUsername"),
		PickupLat:         pickupLat,
		PickupLon:         pickupLon,
	}

	assign := s.registry.Assign
	if req.Payload.Bool("reserved") {
		assign = s.registry.AssignReserved
	}
	link, err := assign(username, a)
	if err != nil {
		return protocol.Message{}, err
	}

	parked := true
	if link == nil {
		log.Info("driver detached, assignment parked", "username", username, "ride_id", rideID)
	} else if err := link.Write(assignmentMessage(a)); err != nil {
		s.registry.Park(username, a)
		log.Warn("assignment push failed, parked", "username", username, "ride_id", rideID, "reason", err.Error())
	} else {
		parked = false
		log.Info("ride pushed to driver", "username", username, "ride_id", rideID, "passenger", a.PassengerUsername)
	}

	// parked tells the caller that nobody has seen the ride yet
	return req.Reply(protocol.DriverAssigned).
		With("success", true).
		With("parked", parked).
		With("driverUsername", username), nil
}

func driverField(req protocol.Message) (string, error) {
	username := strings.TrimSpace(req.Payload.String("driverUsername"))
	if username == "" {
		return "", myerrors.ErrFieldIsEmpty
	}
	return username, nil
}
