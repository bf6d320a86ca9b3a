package registry

import (
	"context"
	"fmt"

	"ride-share/internal/dispatch-service/core/domain/model"
	"ride-share/internal/dispatch-service/core/myerrors"
	"ride-share/internal/protocol"
)

// Client calls the driver service's query API. Each call is one connection.
type Client struct {
	addr   string
	client *protocol.Client
}

func NewClient(addr string, client *protocol.Client) *Client {
	return &Client{addr: addr, client: client}
}

func (c *Client) AvailableDrivers(ctx context.Context) ([]model.Candidate, error) {
	resp, err := c.expect(ctx, protocol.New(protocol.GetAvailableDrivers), protocol.AvailableDriversList)
	if err != nil {
		return nil, err
	}

	var drivers []model.Candidate
	if err := protocol.DecodeRecords(resp.Payload.String("drivers"), &drivers); err != nil {
		return nil, err
	}
	return drivers, nil
}

func (c *Client) Reserve(ctx context.Context, driverUsername string) error {
	_, err := c.expect(ctx, protocol.New(protocol.ReserveDriver).
		With("driverUsername", driverUsername), protocol.DriverReserved)
	return err
}

func (c *Client) Release(ctx context.Context, driverUsername string, rideID int64, cancelled bool) error {
	req := protocol.New(protocol.ReleaseDriver).
		With("driverUsername", driverUsername).
		With("cancelled", cancelled)
	if rideID > 0 {
		req = req.With("rideId", rideID)
	}
	_, err := c.expect(ctx, req, protocol.DriverReleased)
	return err
}

// Assign only lands on a driver that still holds its reservation, so a ride
// cancelled before the push arrives cannot capture the driver.
func (c *Client) Assign(ctx context.Context, a model.Assignment) (bool, error) {
	resp, err := c.expect(ctx, protocol.New(protocol.AssignDriver).
		With("driverUsername", a.DriverUsername).
		With("passengerUsername", a.PassengerUsername).
		With("rideId", a.RideID).
		With("pickupLat", a.PickupLat).
		With("pickupLon", a.PickupLon).
		With("reserved", true), protocol.DriverAssigned)
	if err != nil {
		return false, err
	}
	return resp.Payload.Bool("parked"), nil
}

// expect maps an ERROR reply to ErrDriverUnavailable; the registry only
// refuses when the driver is unknown or not free.
func (c *Client) expect(ctx context.Context, req protocol.Message, want protocol.MessageType) (protocol.Message, error) {
	resp, err := c.client.Call(ctx, c.addr, req)
	if err != nil {
		return protocol.Message{}, err
	}
	switch resp.Type {
	case want:
		return resp, nil
	case protocol.Error:
		return protocol.Message{}, fmt.Errorf("%w: %s", myerrors.ErrDriverUnavailable, resp.Payload.String("error"))
	default:
		return protocol.Message{}, fmt.Errorf("%w: unexpected %s", myerrors.ErrRegistryRejected, resp.Type)
	}
}
