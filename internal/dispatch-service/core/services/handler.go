package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ride-share/internal/dispatch-service/core/domain/model"
	"ride-share/internal/dispatch-service/core/myerrors"
	"ride-share/internal/protocol"
)

// Handle answers one request from a passenger connection.
func (s *DispatchService) Handle(ctx context.Context, sess *model.Session, req protocol.Message) protocol.Message {
	var (
		resp protocol.Message
		err  error
	)
	switch req.Type {
	case protocol.RegisterPassenger:
		return s.register(ctx, sess, req)
	case protocol.Login:
		return s.login(ctx, sess, req)
	case protocol.UpdateLocation:
		resp, err = s.updateLocation(ctx, sess, req)
	case protocol.RideRequest:
		resp, err = s.requestRide(ctx, sess, req)
	case protocol.AssignDriver:
		resp, err = s.manualAssign(ctx, req)
	case protocol.RideCancelled:
		resp, err = s.cancelRide(ctx, req)
	case protocol.Heartbeat:
		resp = req.Reply(protocol.Heartbeat)
	default:
		return errorText(req, fmt.Sprintf("Unknown message type: %s", req.Type))
	}

	if err != nil {
		s.mylog.Action(string(req.Type)).Warn("passenger request failed", "username", sess.Username, "reason", err.Error())
		return errorText(req, err.Error())
	}
	return resp
}

// Disconnect forgets the passenger bound to the connection.
func (s *DispatchService) Disconnect(sess *model.Session) {
	if sess.Username == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.passengers[sess.Username] <= 1 {
		delete(s.passengers, sess.Username)
	} else {
		s.passengers[sess.Username]--
	}
	s.mylog.Action("passenger_disconnected").Info("passenger left", "username", sess.Username, "active", len(s.passengers))
}

func (s *DispatchService) bind(sess *model.Session, username string) {
	if sess.Username == username {
		return
	}
	s.Disconnect(sess)

	s.mu.Lock()
	defer s.mu.Unlock()
	sess.Username = username
	s.passengers[username]++
}

// ActivePassengers counts distinct passengers with an open connection.
func (s *DispatchService) ActivePassengers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.passengers)
}

func (s *DispatchService) register(ctx context.Context, sess *model.Session, req protocol.Message) protocol.Message {
	log := s.mylog.Action("RegisterPassenger")

	username := strings.TrimSpace(req.Payload.String("username"))
	if err := s.db.InsertPassenger(ctx, username, req.Payload.String("password"), req.Payload.String("phone")); err != nil {
		log.Warn("registration refused", "username", username, "reason", err.Error())
		return req.Reply(protocol.LoginFailed).With("error", reason(err, "Registration failed"))
	}

	s.bind(sess, username)
	log.Info("passenger registered", "username", username, "active", s.ActivePassengers())
	return s.loginSuccess(req, username, "Registration successful")
}

func (s *DispatchService) login(ctx context.Context, sess *model.Session, req protocol.Message) protocol.Message {
	log := s.mylog.Action("Login")

	username := strings.TrimSpace(req.Payload.String("username"))
	if err := s.db.ValidatePassenger(ctx, username, req.Payload.String("password")); err != nil {
		log.Warn("login refused", "username", username, "reason", err.Error())
		return req.Reply(protocol.LoginFailed).With("error", "Invalid credentials")
	}

	s.bind(sess, username)
	log.Info("passenger logged in", "username", username, "active", s.ActivePassengers())
	return s.loginSuccess(req, username, "Login successful")
}

func (s *DispatchService) loginSuccess(req protocol.Message, username, message string) protocol.Message {
	resp := req.Reply(protocol.LoginSuccess).
		With("username", username).
		With("message", message)

	token, err := s.sessions.Issue(username)
	if err != nil {
		s.mylog.Action("issue_token").Error("session token not issued", err, "username", username)
		return resp
	}
	return resp.With("token", token)
}

// updateLocation always acknowledges once the input is valid; storage
// failures are only logged.
func (s *DispatchService) updateLocation(ctx context.Context, sess *model.Session, req protocol.Message) (protocol.Message, error) {
	username, err := s.passenger(sess, req)
	if err != nil {
		return protocol.Message{}, err
	}
	lat, lon, err := req.Payload.Coordinates("latitude", "longitude")
	if err != nil {
		return protocol.Message{}, err
	}

	if err := s.db.UpdatePassengerLocation(ctx, username, lat, lon); err != nil {
		s.mylog.Action("UpdateLocation").Warn("passenger location not saved", "username", username, "reason", err.Error())
	}
	return req.Reply(protocol.LocationUpdated), nil
}

func (s *DispatchService) requestRide(ctx context.Context, sess *model.Session, req protocol.Message) (protocol.Message, error) {
	username, err := s.passenger(sess, req)
	if err != nil {
		return protocol.Message{}, err
	}
	pickupLat, pickupLon, err := req.Payload.Coordinates("pickupLat", "pickupLon")
	if err != nil {
		return protocol.Message{}, fmt.Errorf("%w: %v", myerrors.ErrIncompleteLocation, err)
	}
	destLat, destLon, err := req.Payload.Coordinates("destLat", "destLon")
	if err != nil {
		return protocol.Message{}, fmt.Errorf("%w: %v", myerrors.ErrIncompleteLocation, err)
	}

	d, err := s.RequestRide(ctx, model.RideRequest{
		PassengerUsername: username,
		PickupLat:         pickupLat,
		PickupLon:         pickupLon,
		DestLat:           destLat,
		DestLon:           destLon,
		PickupAddr:        req.Payload.String("pickupAddr"),
		DestAddr:          req.Payload.String("destAddr"),
	})
	if err != nil {
		return protocol.Message{}, err
	}

	if d.Waiting() {
		return req.Reply(protocol.NoDriversAvailable).
			With("status", "WAITING").
			With("rideId", d.RideID).
			With("message", fmt.Sprintf("Request received. Searching for drivers... (Ride #%d)", d.RideID)), nil
	}
	return req.Reply(protocol.RideAssignment).
		With("success", true).
		With("rideId", d.RideID).
		With("driverUsername", d.DriverUsername).
		With("message", "Driver assigned successfully"), nil
}

func (s *DispatchService) manualAssign(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	rideID, err := req.Payload.Int("rideId")
	if err != nil {
		return protocol.Message{}, err
	}
	driver := strings.TrimSpace(req.Payload.String("driverUsername"))
	if driver == "" {
		return protocol.Message{}, fmt.Errorf("driverUsername: %w", myerrors.ErrFieldIsEmpty)
	}
	lat, lon, err := req.Payload.Coordinates("pickupLat", "pickupLon")
	if err != nil {
		return protocol.Message{}, err
	}

	resp := req.Reply(protocol.RideAssignment).
		With("rideId", rideID).
		With("driverUsername", driver)
	parked, err := s.ManualAssign(ctx, rideID, driver, lat, lon)
	if err != nil {
		return resp.
			With("success", false).
			With("error", fmt.Sprintf("Assignment failed (Driver might be missing or busy): %v", err)), nil
	}
	return resp.
		With("success", true).
		With("parked", parked), nil
}

func (s *DispatchService) cancelRide(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	rideID, err := req.Payload.Int("rideId")
	if err != nil {
		return protocol.Message{}, err
	}
	ride, err := s.CancelRide(ctx, rideID)
	if err != nil {
		return protocol.Message{}, err
	}
	return req.Reply(protocol.RideCancelled).
		With("success", true).
		With("rideId", rideID).
		With("status", ride.Status), nil
}

// passenger resolves who is asking: the logged-in connection first, then a
// session token, then a plain username for stateless clients.
func (s *DispatchService) passenger(sess *model.Session, req protocol.Message) (string, error) {
	if sess.Username != "" {
		return sess.Username, nil
	}
	if token := req.Payload.String("token"); token != "" {
		username, err := s.sessions.Verify(token)
		if err != nil {
			return "", err
		}
		return username, nil
	}
	if username := strings.TrimSpace(req.Payload.String("username")); username != "" {
		return username, nil
	}
	return "", myerrors.ErrNotLoggedIn
}

// reason strips the sentinel prefix added by the database client.
func reason(err error, fallback string) string {
	if errors.Is(err, myerrors.ErrDBRejected) {
		if _, detail, ok := strings.Cut(err.Error(), ": "); ok && detail != "" {
			return detail
		}
	}
	return fallback
}

func errorText(req protocol.Message, text string) protocol.Message {
	resp := protocol.ErrorMessage(text)
	resp.RequestID = req.RequestID
	return resp
}
