package db

import (
	"context"
	"fmt"

	"ride-share/internal/driver-service/core/myerrors"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"
)

// Client talks to the database service, one connection per call.
type Client struct {
	mylog  mylogger.Logger
	addr   string
	client *protocol.Client
}

func NewClient(mylog mylogger.Logger, addr string, client *protocol.Client) *Client {
	return &Client{mylog: mylog, addr: addr, client: client}
}

// UpdateDriverLocation persists in the background; failures are only logged.
func (c *Client) UpdateDriverLocation(ctx context.Context, username string, lat, lon float64) {
	req := protocol.New(protocol.DBUpdateDriverLocation).
		With("username", username).
		With("latitude", lat).
		With("longitude", lon)

	go func() {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.client.Timeout)
		defer cancel()
		if err := c.call(callCtx, req); err != nil {
			c.mylog.Action("UpdateDriverLocation").Debug("location not persisted", "username", username, "reason", err.Error())
		}
	}()
}

func (c *Client) UpdateRide(ctx context.Context, rideID int64, status string, lat, lon float64) error {
	return c.call(ctx, protocol.New(protocol.DBUpdateRide).
		With("rideId", rideID).
		With("status", status).
		With("latitude", lat).
		With("longitude", lon))
}

func (c *Client) AssignDriver(ctx context.Context, rideID int64, driverUsername string) error {
	return c.call(ctx, protocol.New(protocol.AssignDriver).
		With("rideId", rideID).
		With("driverUsername", driverUsername))
}

func (c *Client) call(ctx context.Context, req protocol.Message) error {
	resp, err := c.client.Call(ctx, c.addr, req)
	if err != nil {
		return err
	}
	if !resp.Payload.Bool("success") {
		return fmt.Errorf("%w: %s", myerrors.ErrDBRejected, resp.Payload.String("error"))
	}
	return nil
}
