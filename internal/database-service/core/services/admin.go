package services

import (
	"context"
	"fmt"

	"ride-share/internal/database-service/core/domain/model"
	"ride-share/internal/protocol"
)

func (s *DBService) pendingDrivers(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	drivers, err := s.store.PendingDrivers(ctx)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("list pending drivers: %w", err)
	}
	encoded, err := protocol.EncodeRecords(drivers)
	if err != nil {
		return protocol.Message{}, err
	}
	return ok(req).With("drivers", encoded).With("count", len(drivers)), nil
}

func (s *DBService) approveDriver(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	username, err := requireString(req.Payload, "username")
	if err != nil {
		return protocol.Message{}, err
	}

	status := model.DriverRejected
	if req.Payload.Bool("approve") {
		status = model.DriverApproved
	}
	if err := s.store.SetDriverStatus(ctx, username, status); err != nil {
		return protocol.Message{}, fmt.Errorf("set driver %s to %s: %w", username, status, err)
	}

	s.mylog.Action("ApproveDriver").Info("driver reviewed", "username", username, "status", status)
	return ok(req).With("username", username).With("status", string(status)), nil
}

func (s *DBService) activeRides(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	rides, err := s.store.ActiveRides(ctx)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("list active rides: %w", err)
	}
	encoded, err := protocol.EncodeRecords(rides)
	if err != nil {
		return protocol.Message{}, err
	}
	return ok(req).With("rides", encoded), nil
}

func (s *DBService) locations(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	locs, err := s.store.Locations(ctx)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("collect locations: %w", err)
	}
	encoded, err := protocol.EncodeRecords(locs)
	if err != nil {
		return protocol.Message{}, err
	}
	return ok(req).With("locations", encoded), nil
}
