package db

import (
	"context"
	"fmt"

	"ride-share/internal/dispatch-service/core/domain/model"
	"ride-share/internal/dispatch-service/core/myerrors"
	"ride-share/internal/protocol"
)

// Client forwards passenger and ride operations to the database service.
type Client struct {
	addr   string
	client *protocol.Client
}

func NewClient(addr string, client *protocol.Client) *Client {
	return &Client{addr: addr, client: client}
}

func (c *Client) InsertPassenger(ctx context.Context, username, password, phone string) error {
	_, err := c.call(ctx, protocol.New(protocol.DBInsertPassenger).
		With("username", username).
		With("password", password).
		With("phone", phone))
	return err
}

func (c *Client) ValidatePassenger(ctx context.Context, username, password string) error {
	resp, err := c.call(ctx, protocol.New(protocol.DBValidateLogin).
		With("role", "PASSENGER").
		With("username", username).
		With("password", password))
	if err != nil {
		return err
	}
	if !resp.Payload.Bool("valid") {
		return fmt.Errorf("%w: %s", myerrors.ErrInvalidCredentials, resp.Payload.String("error"))
	}
	return nil
}

func (c *Client) UpdatePassengerLocation(ctx context.Context, username string, lat, lon float64) error {
	_, err := c.call(ctx, protocol.New(protocol.DBUpdatePassengerLocation).
		With("username", username).
		With("latitude", lat).
		With("longitude", lon))
	return err
}

// CreateRide logs the ride, ASSIGNED when driverUsername is set.
func (c *Client) CreateRide(ctx context.Context, req model.RideRequest, driverUsername string) (int64, error) {
	m := protocol.New(protocol.DBCreateRide).
		With("passengerUsername", req.PassengerUsername).
		With("startLat", req.PickupLat).
		With("startLon", req.PickupLon).
		With("destLat", req.DestLat).
		With("destLon", req.DestLon).
		With("startAddr", req.PickupAddr).
		With("destAddr", req.DestAddr)
	if driverUsername != "" {
		m = m.With("driverUsername", driverUsername)
	}

	resp, err := c.call(ctx, m)
	if err != nil {
		return 0, err
	}
	return resp.Payload.Int("rideId")
}

func (c *Client) AssignDriver(ctx context.Context, rideID int64, driverUsername string) error {
	_, err := c.call(ctx, protocol.New(protocol.AssignDriver).
		With("rideId", rideID).
		With("driverUsername", driverUsername))
	return err
}

func (c *Client) GetRide(ctx context.Context, rideID int64) (model.Ride, error) {
	resp, err := c.call(ctx, protocol.New(protocol.DBGetRide).With("rideId", rideID))
	if err != nil {
		return model.Ride{}, err
	}
	var ride model.Ride
	if err := protocol.DecodePayload(resp.Payload, &ride); err != nil {
		return model.Ride{}, err
	}
	return ride, nil
}

func (c *Client) UpdateRideStatus(ctx context.Context, rideID int64, status string) error {
	_, err := c.call(ctx, protocol.New(protocol.DBUpdateRide).
		With("rideId", rideID).
		With("status", status))
	return err
}

func (c *Client) call(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	resp, err := c.client.Call(ctx, c.addr, req)
	if err != nil {
		return protocol.Message{}, err
	}
	if !resp.Payload.Bool("success") {
		return protocol.Message{}, fmt.Errorf("%w: %s", myerrors.ErrDBRejected, resp.Payload.String("error"))
	}
	return resp, nil
}
