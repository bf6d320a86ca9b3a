package services

import (
	"context"
	"fmt"
	"strings"

	"ride-share/internal/driver-service/core/domain/model"
	"ride-share/internal/driver-service/core/myerrors"
	"ride-share/internal/driver-service/core/ports/driven"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"
)

const (
	statusStarted   = "STARTED"
	statusCompleted = "COMPLETED"
	statusCancelled = "CANCELLED"
)

type DriverService struct {
	mylog    mylogger.Logger
	registry *Registry
	db       driven.IDBClient
}

func NewDriverService(mylog mylogger.Logger, registry *Registry, db driven.IDBClient) *DriverService {
	return &DriverService{
		mylog:    mylog,
		registry: registry,
		db:       db,
	}
}

// HandleDriver answers one request from a driver connection. It returns the
// messages to write back in order; a registration may be followed by a ride
// assignment that was parked while the driver was away.
func (s *DriverService) HandleDriver(ctx context.Context, sess *model.Session, req protocol.Message) []protocol.Message {
	var (
		out []protocol.Message
		err error
	)
	switch req.Type {
	case protocol.RegisterDriver:
		out, err = s.register(ctx, sess, req)
	case protocol.UpdateLocation:
		out, err = one(s.updateLocation(ctx, sess, req))
	case protocol.UpdateAvailability:
		out, err = one(s.updateAvailability(sess, req))
	case protocol.RideAccepted:
		out, err = one(s.rideAccepted(ctx, sess, req))
	case protocol.RideRejected:
		out, err = one(s.rideRejected(ctx, sess, req))
	case protocol.RideStarted:
		out, err = one(s.rideProgress(ctx, sess, req, statusStarted))
	case protocol.RideCompleted:
		out, err = one(s.rideProgress(ctx, sess, req, statusCompleted))
	case protocol.Heartbeat:
		out = []protocol.Message{req.Reply(protocol.Heartbeat)}
	default:
		return []protocol.Message{errorText(req, fmt.Sprintf("Unknown message type: %s", req.Type))}
	}

	if err != nil {
		s.mylog.Action(string(req.Type)).Warn("driver request failed", "username", sess.Username, "reason", err.Error())
		return []protocol.Message{errorReply(req, err)}
	}
	return out
}

// Disconnect drops the driver if this connection owns its entry.
func (s *DriverService) Disconnect(sess *model.Session) {
	if sess.Username == "" || sess.Kind != model.Persistent {
		return
	}
	if s.registry.Unregister(sess.Username, sess.Conn) {
		s.mylog.Action("driver_disconnected").Info("driver unregistered", "username", sess.Username, "active", s.registry.Len())
	}
}

func (s *DriverService) register(ctx context.Context, sess *model.Session, req protocol.Message) ([]protocol.Message, error) {
	log := s.mylog.Action("RegisterDriver")

	username := strings.TrimSpace(req.Payload.String("username"))
	if username == "" {
		return nil, fmt.Errorf("username: %w", myerrors.ErrFieldIsEmpty)
	}
	lat, lon, err := optionalCoordinates(req.Payload)
	if err != nil {
		return nil, err
	}

	kind := sess.Kind
	if req.Payload.Bool("stateless") || req.Payload.Bool("isWebClient") {
		kind = model.Ephemeral
	}

	pending := s.registry.Register(username, lat, lon, sess.Conn, kind)
	sess.Username = username
	s.db.UpdateDriverLocation(ctx, username, lat, lon)

	log.Info("driver registered", "username", username, "lat", lat, "lon", lon, "kind", kind.String(), "active", s.registry.Len())

	out := []protocol.Message{req.Reply(protocol.LoginSuccess).
		With("username", username).
		With("message", "Driver registered successfully")}
	if pending != nil {
		log.Info("delivering parked assignment", "username", username, "ride_id", pending.RideID)
		out = append(out, assignmentMessage(*pending))
	}
	return out, nil
}

func (s *DriverService) updateLocation(ctx context.Context, sess *model.Session, req protocol.Message) (protocol.Message, error) {
	username, err := s.username(sess, req)
	if err != nil {
		return protocol.Message{}, err
	}
	lat, lon, err := req.Payload.Coordinates("latitude", "longitude")
	if err != nil {
		return protocol.Message{}, err
	}
	if err := s.registry.UpdateLocation(username, lat, lon); err != nil {
		return protocol.Message{}, err
	}
	s.db.UpdateDriverLocation(ctx, username, lat, lon)
	return req.Reply(protocol.LocationUpdated), nil
}

func (s *DriverService) updateAvailability(sess *model.Session, req protocol.Message) (protocol.Message, error) {
	username, err := s.username(sess, req)
	if err != nil {
		return protocol.Message{}, err
	}
	available := req.Payload.Bool("available")
	state, err := s.registry.SetAvailability(username, available)
	if err != nil {
		return protocol.Message{}, err
	}

	s.mylog.Action("UpdateAvailability").Info("driver availability changed", "username", username, "state", string(state))
	return req.Reply(protocol.AvailabilityUpdated).With("available", available), nil
}

// rideAccepted confirms the binding in storage. Repeating it is harmless.
func (s *DriverService) rideAccepted(ctx context.Context, sess *model.Session, req protocol.Message) (protocol.Message, error) {
	username, rideID, err := s.rideRequest(sess, req)
	if err != nil {
		return protocol.Message{}, err
	}
	if err := s.db.AssignDriver(ctx, rideID, username); err != nil {
		return protocol.Message{}, err
	}

	s.mylog.Action("RideAccepted").Info("ride accepted", "username", username, "ride_id", rideID)
	return req.Reply(protocol.RideAccepted).With("success", true).With("rideId", rideID), nil
}

// rideRejected frees the driver and cancels the ride.
func (s *DriverService) rideRejected(ctx context.Context, sess *model.Session, req protocol.Message) (protocol.Message, error) {
	username, rideID, err := s.rideRequest(sess, req)
	if err != nil {
		return protocol.Message{}, err
	}
	if _, err := s.registry.Release(username, rideID); err != nil {
		return protocol.Message{}, err
	}
	lat, lon := s.position(username, req)
	if err := s.db.UpdateRide(ctx, rideID, statusCancelled, lat, lon); err != nil {
		return protocol.Message{}, err
	}

	s.mylog.Action("RideRejected").Info("ride rejected", "username", username, "ride_id", rideID)
	return req.Reply(protocol.RideRejected).With("success", true).With("rideId", rideID), nil
}

// rideProgress persists STARTED or COMPLETED; completion frees the driver.
func (s *DriverService) rideProgress(ctx context.Context, sess *model.Session, req protocol.Message, status string) (protocol.Message, error) {
	username, rideID, err := s.rideRequest(sess, req)
	if err != nil {
		return protocol.Message{}, err
	}
	lat, lon := s.position(username, req)
	if err := s.db.UpdateRide(ctx, rideID, status, lat, lon); err != nil {
		return protocol.Message{}, err
	}
	if status == statusCompleted {
		if err := s.registry.Complete(username); err != nil {
			return protocol.Message{}, err
		}
	}

	s.mylog.Action(string(req.Type)).Info("ride progressed", "username", username, "ride_id", rideID, "status", status)
	return req.Reply(req.Type).With("success", true).With("rideId", rideID), nil
}

// username prefers the connection's registration and falls back to the
// payload for stateless clients.
func (s *DriverService) username(sess *model.Session, req protocol.Message) (string, error) {
	if sess.Username != "" {
		return sess.Username, nil
	}
	if u := strings.TrimSpace(req.Payload.String("username")); u != "" {
		return u, nil
	}
	return "", myerrors.ErrNotRegistered
}

func (s *DriverService) rideRequest(sess *model.Session, req protocol.Message) (string, int64, error) {
	username, err := s.username(sess, req)
	if err != nil {
		return "", 0, err
	}
	rideID, err := req.Payload.Int("rideId")
	if err != nil {
		return "", 0, err
	}
	return username, rideID, nil
}

// position uses the reported coordinates, else the last known ones.
func (s *DriverService) position(username string, req protocol.Message) (float64, float64) {
	if lat, lon, err := req.Payload.Coordinates("latitude", "longitude"); err == nil {
		return lat, lon
	}
	d, _ := s.registry.Get(username)
	return d.Latitude, d.Longitude
}

func optionalCoordinates(p protocol.Payload) (float64, float64, error) {
	if p["latitude"] == nil && p["longitude"] == nil {
		return 0, 0, nil
	}
	return p.Coordinates("latitude", "longitude")
}

func assignmentMessage(a model.Assignment) protocol.Message {
	return protocol.New(protocol.RideAssignment).
		With("rideId", a.RideID).
		With("passengerUsername", a.PassengerUsername).
		With("pickupLat", a.PickupLat).
		With("pickupLon", a.PickupLon)
}

func errorReply(req protocol.Message, err error) protocol.Message {
	return errorText(req, err.Error())
}

func errorText(req protocol.Message, text string) protocol.Message {
	resp := protocol.ErrorMessage(text)
	resp.RequestID = req.RequestID
	return resp
}

func one(m protocol.Message, err error) ([]protocol.Message, error) {
	if err != nil {
		return nil, err
	}
	return []protocol.Message{m}, nil
}
