// Package simulator drives a fake driver against the driver service's
// websocket endpoint: it registers, drifts around, accepts every ride it is
// offered, drives to the pickup and finishes the trip.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"ride-share/internal/dispatch-service/core/domain/model"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/jaswdr/faker"
)

type Options struct {
	Username  string
	Password  string
	Latitude  float64
	Longitude float64

	Interval  time.Duration // between location updates
	SpeedKmh  float64
	TripSteps int // location updates between RIDE_STARTED and RIDE_COMPLETED
}

func (o *Options) defaults() {
	if o.Username == "" {
		o.Username = faker.New().Internet().User()
	}
	if o.Password == "" {
		o.Password = "driver123"
	}
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	if o.SpeedKmh <= 0 {
		o.SpeedKmh = 40
	}
	if o.TripSteps <= 0 {
		o.TripSteps = 5
	}
}

type phase int

const (
	idle phase = iota
	toPickup
	onTrip
)

type ride struct {
	id        int64
	pickupLat float64
	pickupLon float64
	stepsLeft int
}

type Driver struct {
	mylog mylogger.Logger
	conn  protocol.Conn
	opts  Options
	rnd   *rand.Rand

	lat, lon float64
	phase    phase
	ride     ride
}

func NewDriver(mylog mylogger.Logger, conn protocol.Conn, opts Options) *Driver {
	opts.defaults()
	return &Driver{
		mylog: mylog.With("driver", opts.Username),
		conn:  conn,
		opts:  opts,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		lat:   opts.Latitude,
		lon:   opts.Longitude,
	}
}

func (d *Driver) Username() string {
	return d.opts.Username
}

// Dial opens the websocket the driver service serves drivers on.
func Dial(ctx context.Context, url string, readTimeout, writeTimeout time.Duration) (*protocol.WSConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to websocket: %w", err)
	}
	return protocol.NewWSConn(ws, readTimeout, writeTimeout), nil
}

// Enroll creates the driver row so rides can reference it.
func (d *Driver) Enroll(ctx context.Context, client *protocol.Client, dbAddr string) error {
	resp, err := client.Call(ctx, dbAddr, protocol.New(protocol.DBInsertDriver).
		With("username", d.opts.Username).
		With("password", d.opts.Password).
		With("phone", faker.New().Phone().Number()))
	if err != nil {
		return fmt.Errorf("enroll driver: %w", err)
	}
	if !resp.Payload.Bool("success") {
		return fmt.Errorf("enroll driver: %s", resp.Payload.String("error"))
	}
	return nil
}

// Run registers the driver and plays it until ctx ends or the connection drops.
func (d *Driver) Run(ctx context.Context) error {
	log := d.mylog.Action("simulate_driver")

	if err := d.conn.Write(protocol.New(protocol.RegisterDriver).
		With("username", d.opts.Username).
		With("latitude", d.lat).
		With("longitude", d.lon)); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	incoming := make(chan protocol.Message)
	readErr := make(chan error, 1)
	go d.read(ctx, incoming, readErr)

	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("simulation stopped")
			_ = d.conn.Write(protocol.New(protocol.Disconnect))
			return nil
		case err := <-readErr:
			if protocol.IsDisconnect(err) {
				log.Info("server closed the connection")
				return nil
			}
			return err
		case m := <-incoming:
			if err := d.handle(m); err != nil {
				return err
			}
		case <-ticker.C:
			if err := d.tick(); err != nil {
				return err
			}
		}
	}
}

func (d *Driver) read(ctx context.Context, out chan<- protocol.Message, errs chan<- error) {
	for {
		m, err := d.conn.Read()
		if err != nil {
			var decErr *protocol.DecodeError
			if errors.As(err, &decErr) {
				continue
			}
			errs <- err
			return
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Driver) handle(m protocol.Message) error {
	log := d.mylog.Action("driver_inbox")

	switch m.Type {
	case protocol.RideAssignment:
		rideID, err := m.Payload.Int("rideId")
		if err != nil {
			log.Warn("assignment without ride id", "reason", err.Error())
			return nil
		}
		lat, lon, err := m.Payload.Coordinates("pickupLat", "pickupLon")
		if err != nil {
			lat, lon = d.lat, d.lon
		}
		d.phase = toPickup
		d.ride = ride{id: rideID, pickupLat: lat, pickupLon: lon, stepsLeft: d.opts.TripSteps}
		log.Info("ride offered, accepting", "ride_id", rideID, "passenger", m.Payload.String("passengerUsername"))
		return d.conn.Write(protocol.New(protocol.RideAccepted).With("rideId", rideID))

	case protocol.RideCancelled:
		log.Info("ride cancelled", "ride_id", m.Payload.String("rideId"))
		d.phase = idle

	case protocol.Error:
		log.Warn("server error", "error", m.Payload.String("error"))

	default:
		log.Debug("received", "type", m.Type)
	}
	return nil
}

func (d *Driver) tick() error {
	switch d.phase {
	case idle:
		d.lat += (d.rnd.Float64() - 0.5) / 1000
		d.lon += (d.rnd.Float64() - 0.5) / 1000

	case toPickup:
		if d.moveToward(d.ride.pickupLat, d.ride.pickupLon) {
			d.phase = onTrip
			d.mylog.Action("simulate_driver").Info("arrived at pickup", "ride_id", d.ride.id)
			return d.rideUpdate(protocol.RideStarted)
		}

	case onTrip:
		d.lat += d.stepDegrees()
		d.ride.stepsLeft--
		if d.ride.stepsLeft <= 0 {
			d.phase = idle
			d.mylog.Action("simulate_driver").Info("trip finished", "ride_id", d.ride.id)
			return d.rideUpdate(protocol.RideCompleted)
		}
	}

	return d.conn.Write(protocol.New(protocol.UpdateLocation).
		With("latitude", d.lat).
		With("longitude", d.lon))
}

func (d *Driver) rideUpdate(t protocol.MessageType) error {
	return d.conn.Write(protocol.New(t).
		With("rideId", d.ride.id).
		With("latitude", d.lat).
		With("longitude", d.lon))
}

// moveToward advances one step and reports arrival.
func (d *Driver) moveToward(lat, lon float64) bool {
	remaining := model.Haversine(d.lat, d.lon, lat, lon)
	step := d.opts.SpeedKmh * d.opts.Interval.Hours()
	if remaining <= step {
		d.lat, d.lon = lat, lon
		return true
	}
	f := step / remaining
	d.lat += (lat - d.lat) * f
	d.lon += (lon - d.lon) * f
	return false
}

// stepDegrees is one step northwards expressed in degrees of latitude.
func (d *Driver) stepDegrees() float64 {
	km := d.opts.SpeedKmh * d.opts.Interval.Hours()
	return km / (model.EarthRadiusKm * math.Pi / 180)
}
