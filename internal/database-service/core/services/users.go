package services

import (
	"context"
	"errors"
	"fmt"

	"ride-share/internal/database-service/core/domain/model"
	"ride-share/internal/database-service/core/myerrors"
	"ride-share/internal/protocol"
)

func (s *DBService) insertPassenger(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	username, password, err := credentialsFrom(req.Payload)
	if err != nil {
		return protocol.Message{}, err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return protocol.Message{}, err
	}

	id, err := s.store.InsertPassenger(ctx, model.Passenger{
		Username:     username,
		PasswordHash: hash,
		Phone:        req.Payload.String("phone"),
	})
	if err != nil {
		return protocol.Message{}, fmt.Errorf("register passenger %s: %w", username, err)
	}

	s.mylog.Action("InsertPassenger").Info("passenger registered", "username", username, "passenger_id", id)
	return ok(req).
		With("passengerId", id).
		With("message", "Passenger registered successfully"), nil
}

// insertDriver registers a driver without onboarding review.
func (s *DBService) insertDriver(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	username, password, err := credentialsFrom(req.Payload)
	if err != nil {
		return protocol.Message{}, err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return protocol.Message{}, err
	}

	id, err := s.store.InsertDriver(ctx, model.Driver{
		Username:     username,
		PasswordHash: hash,
		Phone:        req.Payload.String("phone"),
		Available:    true,
		Status:       model.DriverApproved,
	})
	if err != nil {
		return protocol.Message{}, fmt.Errorf("register driver %s: %w", username, err)
	}

	s.mylog.Action("InsertDriver").Info("driver registered", "username", username, "driver_id", id)
	return ok(req).
		With("driverId", id).
		With("message", "Driver registered successfully"), nil
}

// insertDriverDetailed stores an onboarding application awaiting approval.
func (s *DBService) insertDriverDetailed(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	username, password, err := credentialsFrom(req.Payload)
	if err != nil {
		return protocol.Message{}, err
	}

	var app model.DriverApplication
	if err := protocol.DecodePayload(req.Payload, &app); err != nil {
		return protocol.Message{}, fmt.Errorf("%w: %v", errInvalidField, err)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return protocol.Message{}, err
	}

	id, err := s.store.InsertDriver(ctx, model.Driver{
		Username:     username,
		PasswordHash: hash,
		Phone:        req.Payload.String("phone"),
		Status:       model.DriverPending,
		Application:  app,
	})
	if err != nil {
		return protocol.Message{}, fmt.Errorf("submit driver application %s: %w", username, err)
	}

	s.mylog.Action("InsertDriverDetailed").Info("driver application submitted", "username", username, "driver_id", id)
	return ok(req).
		With("driverId", id).
		With("status", string(model.DriverPending)), nil
}

// validateLogin answers success:true with valid:true|false; only store
// failures produce success:false.
func (s *DBService) validateLogin(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	role, err := model.ParseRole(req.Payload.String("role"))
	if err != nil {
		return protocol.Message{}, fmt.Errorf("%w: %v", errInvalidField, err)
	}
	username, password, err := credentialsFrom(req.Payload)
	if err != nil {
		return protocol.Message{}, err
	}

	creds, err := s.store.FindCredentials(ctx, role, username)
	switch {
	case errors.Is(err, myerrors.ErrPassengerNotFound), errors.Is(err, myerrors.ErrDriverNotFound):
		return invalidLogin(req), nil
	case err != nil:
		return protocol.Message{}, fmt.Errorf("validate login %s: %w", username, err)
	}

	if !checkPassword(creds.PasswordHash, password) {
		return invalidLogin(req), nil
	}
	if role == model.RoleDriver && creds.Status != model.DriverApproved {
		return ok(req).With("valid", false).With("error", NotApprovedMessage), nil
	}

	return ok(req).
		With("valid", true).
		With("userId", creds.ID).
		With("username", username).
		With("role", string(role)), nil
}

func invalidLogin(req protocol.Message) protocol.Message {
	return ok(req).With("valid", false).With("error", "Invalid credentials")
}

func (s *DBService) updatePassengerLocation(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	username, err := requireString(req.Payload, "username")
	if err != nil {
		return protocol.Message{}, err
	}
	lat, lon, err := requireCoordinates(req.Payload, "latitude", "longitude")
	if err != nil {
		return protocol.Message{}, err
	}
	if err := s.store.UpdatePassengerLocation(ctx, username, lat, lon); err != nil {
		return protocol.Message{}, fmt.Errorf("update passenger %s location: %w", username, err)
	}
	return ok(req), nil
}

func (s *DBService) updateDriverLocation(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	username, err := requireString(req.Payload, "username")
	if err != nil {
		return protocol.Message{}, err
	}
	lat, lon, err := requireCoordinates(req.Payload, "latitude", "longitude")
	if err != nil {
		return protocol.Message{}, err
	}
	if err := s.store.UpdateDriverLocation(ctx, username, lat, lon); err != nil {
		return protocol.Message{}, fmt.Errorf("update driver %s location: %w", username, err)
	}
	return ok(req), nil
}

func credentialsFrom(p protocol.Payload) (string, string, error) {
	username, err := requireString(p, "username")
	if err != nil {
		return "", "", err
	}
	password := p.String("password")
	if password == "" {
		return "", "", fmt.Errorf("password: %w", myerrors.ErrFieldIsEmpty)
	}
	if err := validateCredentials(username, password); err != nil {
		return "", "", err
	}
	return username, password, nil
}
