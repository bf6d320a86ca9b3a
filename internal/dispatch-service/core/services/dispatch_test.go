package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"ride-share/internal/dispatch-service/core/domain/model"
	"ride-share/internal/dispatch-service/core/myerrors"
	"ride-share/internal/mylogger"
	"ride-share/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type release struct {
	Driver    string
	RideID    int64
	Cancelled bool
}

// fakeRegistry mimics the driver service: reservations are exclusive.
type fakeRegistry struct {
	mu        sync.Mutex
	drivers   []model.Candidate
	state     map[string]string
	stale     map[string]bool // listed as available but already taken
	detached  map[string]bool // assignments to these are parked
	assigned  []model.Assignment
	released  []release
	listErr   error
	assignErr error
}

func newFakeRegistry(drivers ...model.Candidate) *fakeRegistry {
	r := &fakeRegistry{state: map[string]string{}, stale: map[string]bool{}, detached: map[string]bool{}}
	for _, d := range drivers {
		d.Available = true
		r.drivers = append(r.drivers, d)
		r.state[d.Username] = "available"
	}
	return r
}

func (r *fakeRegistry) AvailableDrivers(context.Context) ([]model.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []model.Candidate
	for _, d := range r.drivers {
		if r.state[d.Username] == "available" || r.stale[d.Username] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeRegistry) Reserve(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state[username] != "available" {
		return fmt.Errorf("%w: %s", myerrors.ErrDriverUnavailable, username)
	}
	r.state[username] = "reserved"
	return nil
}

func (r *fakeRegistry) Release(_ context.Context, username string, rideID int64, cancelled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, release{username, rideID, cancelled})
	r.state[username] = "available"
	return nil
}

func (r *fakeRegistry) Assign(_ context.Context, a model.Assignment) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.assignErr != nil {
		return false, r.assignErr
	}
	if r.state[a.DriverUsername] != "reserved" {
		return false, fmt.Errorf("%w: %s", myerrors.ErrDriverUnavailable, a.DriverUsername)
	}
	r.state[a.DriverUsername] = "assigned"
	r.assigned = append(r.assigned, a)
	return r.detached[a.DriverUsername], nil
}

func (r *fakeRegistry) snapshot() ([]model.Assignment, []release) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Assignment(nil), r.assigned...), append([]release(nil), r.released...)
}

type fakeDB struct {
	mu        sync.Mutex
	users     map[string]string
	rides     map[int64]*model.Ride
	next      int64
	locations int
	createErr error
}

func newFakeDB() *fakeDB {
	return &fakeDB{users: map[string]string{}, rides: map[int64]*model.Ride{}}
}

func (f *fakeDB) InsertPassenger(_ context.Context, username, password, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; ok {
		return fmt.Errorf("%w: username already exists", myerrors.ErrDBRejected)
	}
	f.users[username] = password
	return nil
}

func (f *fakeDB) ValidatePassenger(_ context.Context, username, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.users[username]; !ok || p != password {
		return myerrors.ErrInvalidCredentials
	}
	return nil
}

func (f *fakeDB) UpdatePassengerLocation(context.Context, string, float64, float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations++
	return nil
}

func (f *fakeDB) CreateRide(_ context.Context, req model.RideRequest, driver string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.next++
	status := model.StatusRequested
	if driver != "" {
		status = model.StatusAssigned
	}
	f.rides[f.next] = &model.Ride{ID: f.next, PassengerUsername: req.PassengerUsername, DriverUsername: driver, Status: status}
	return f.next, nil
}

func (f *fakeDB) AssignDriver(_ context.Context, rideID int64, driver string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rides[rideID]
	if !ok {
		return fmt.Errorf("%w: ride not found", myerrors.ErrDBRejected)
	}
	if r.DriverUsername != "" && r.DriverUsername != driver {
		return fmt.Errorf("%w: ride already has a driver", myerrors.ErrDBRejected)
	}
	r.DriverUsername, r.Status = driver, model.StatusAssigned
	return nil
}

func (f *fakeDB) GetRide(_ context.Context, rideID int64) (model.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rides[rideID]
	if !ok {
		return model.Ride{}, fmt.Errorf("%w: ride not found", myerrors.ErrDBRejected)
	}
	return *r, nil
}

func (f *fakeDB) UpdateRideStatus(_ context.Context, rideID int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rides[rideID].Status = status
	return nil
}

type fakeSessions struct{}

func (fakeSessions) Issue(username string) (string, error) { return "token-" + username, nil }

func (fakeSessions) Verify(token string) (string, error) {
	if len(token) > 6 && token[:6] == "token-" {
		return token[6:], nil
	}
	return "", myerrors.ErrInvalidToken
}

func newService(reg *fakeRegistry, db *fakeDB) *DispatchService {
	return NewDispatchService(mylogger.Nop(), reg, db, fakeSessions{})
}

var pickup = model.RideRequest{
	PassengerUsername: "chaltu",
	PickupLat:         9.01,
	PickupLon:         38.71,
	DestLat:           9.05,
	DestLon:           38.80,
}

func TestRequestRidePicksNearest(t *testing.T) {
	reg := newFakeRegistry(
		model.Candidate{Username: "far", Latitude: 9.20, Longitude: 38.90},
		model.Candidate{Username: "near", Latitude: 9.00, Longitude: 38.70},
	)
	db := newFakeDB()
	svc := newService(reg, db)

	d, err := svc.RequestRide(context.Background(), pickup)
	require.NoError(t, err)
	assert.Equal(t, "near", d.DriverUsername)
	assert.Equal(t, int64(1), d.RideID)
	assert.InDelta(t, 1.56, d.DistanceKm, 0.01)

	svc.Wait()
	assigned, _ := reg.snapshot()
	require.Len(t, assigned, 1)
	assert.Equal(t, model.Assignment{
		RideID:            1,
		DriverUsername:    "near",
		PassengerUsername: "chaltu",
		PickupLat:         9.01,
		PickupLon:         38.71,
	}, assigned[0])

	ride, _ := db.GetRide(context.Background(), 1)
	assert.Equal(t, model.StatusAssigned, ride.Status)
	assert.Equal(t, "near", ride.DriverUsername)
}

func TestRequestRideWithoutDrivers(t *testing.T) {
	reg := newFakeRegistry()
	db := newFakeDB()
	svc := newService(reg, db)

	d, err := svc.RequestRide(context.Background(), pickup)
	require.NoError(t, err)
	assert.True(t, d.Waiting())

	ride, err := db.GetRide(context.Background(), d.RideID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRequested, ride.Status)
	assert.Empty(t, ride.DriverUsername)
}

func TestRequestRideSkipsTakenCandidate(t *testing.T) {
	reg := newFakeRegistry(
		model.Candidate{Username: "near", Latitude: 9.00, Longitude: 38.70},
		model.Candidate{Username: "next", Latitude: 9.05, Longitude: 38.75},
	)
	reg.state["near"] = "assigned"
	reg.stale["near"] = true
	svc := newService(reg, newFakeDB())

	d, err := svc.RequestRide(context.Background(), pickup)
	require.NoError(t, err)
	assert.Equal(t, "next", d.DriverUsername)
}

func TestRequestRideRollsBackOnStoreFailure(t *testing.T) {
	reg := newFakeRegistry(model.Candidate{Username: "near", Latitude: 9.00, Longitude: 38.70})
	db := newFakeDB()
	db.createErr = fmt.Errorf("%w: passenger not found", myerrors.ErrDBRejected)
	svc := newService(reg, db)

	_, err := svc.RequestRide(context.Background(), pickup)
	require.ErrorIs(t, err, myerrors.ErrRideNotCreated)

	assigned, released := reg.snapshot()
	assert.Empty(t, assigned)
	assert.Equal(t, []release{{Driver: "near"}}, released)
	assert.Equal(t, "available", reg.state["near"])
}

func TestRequestRideRegistryDown(t *testing.T) {
	reg := newFakeRegistry()
	reg.listErr = errors.New("dial tcp: connection refused")
	db := newFakeDB()
	svc := newService(reg, db)

	_, err := svc.RequestRide(context.Background(), pickup)
	require.Error(t, err)
	assert.Empty(t, db.rides)
}

// TestConcurrentRequestsGetDistinctDrivers fires more requests than drivers.
func TestConcurrentRequestsGetDistinctDrivers(t *testing.T) {
	reg := newFakeRegistry(
		model.Candidate{Username: "d1", Latitude: 9.00, Longitude: 38.70},
		model.Candidate{Username: "d2", Latitude: 9.02, Longitude: 38.72},
		model.Candidate{Username: "d3", Latitude: 9.04, Longitude: 38.74},
	)
	svc := newService(reg, newFakeDB())

	const requests = 10
	results := make(chan model.Dispatch, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := svc.RequestRide(context.Background(), pickup)
			assert.NoError(t, err)
			results <- d
		}()
	}
	wg.Wait()
	close(results)
	svc.Wait()

	var drivers []string
	waiting := 0
	for d := range results {
		if d.Waiting() {
			waiting++
			continue
		}
		drivers = append(drivers, d.DriverUsername)
	}
	sort.Strings(drivers)
	assert.Equal(t, []string{"d1", "d2", "d3"}, drivers)
	assert.Equal(t, requests-3, waiting)

	assigned, _ := reg.snapshot()
	assert.Len(t, assigned, 3)
}

func TestManualAssign(t *testing.T) {
	reg := newFakeRegistry(model.Candidate{Username: "abebe", Latitude: 9.0, Longitude: 38.7})
	db := newFakeDB()
	svc := newService(reg, db)
	ctx := context.Background()

	rideID, err := db.CreateRide(ctx, pickup, "")
	require.NoError(t, err)

	parked, err := svc.ManualAssign(ctx, rideID, "abebe", 9.01, 38.71)
	require.NoError(t, err)
	assert.False(t, parked)
	assigned, _ := reg.snapshot()
	require.Len(t, assigned, 1)
	assert.Equal(t, model.ManualPassenger, assigned[0].PassengerUsername)

	ride, _ := db.GetRide(ctx, rideID)
	assert.Equal(t, "abebe", ride.DriverUsername)

	// already busy
	_, err = svc.ManualAssign(ctx, rideID, "abebe", 9.01, 38.71)
	assert.ErrorIs(t, err, myerrors.ErrDriverUnavailable)
	_, err = svc.ManualAssign(ctx, rideID, "ghost", 9.01, 38.71)
	assert.ErrorIs(t, err, myerrors.ErrDriverUnavailable)
}

func TestManualAssignRollsBack(t *testing.T) {
	reg := newFakeRegistry(model.Candidate{Username: "abebe", Latitude: 9.0, Longitude: 38.7})
	svc := newService(reg, newFakeDB())

	_, err := svc.ManualAssign(context.Background(), 77, "abebe", 9.01, 38.71)
	assert.ErrorIs(t, err, myerrors.ErrDBRejected)
	_, released := reg.snapshot()
	assert.Equal(t, []release{{Driver: "abebe"}}, released)
}

func TestManualAssignReleasesUndeliveredDriver(t *testing.T) {
	reg := newFakeRegistry(model.Candidate{Username: "abebe", Latitude: 9.0, Longitude: 38.7})
	reg.assignErr = errors.New("connection reset")
	db := newFakeDB()
	svc := newService(reg, db)
	ctx := context.Background()

	rideID, err := db.CreateRide(ctx, pickup, "")
	require.NoError(t, err)

	_, err = svc.ManualAssign(ctx, rideID, "abebe", 9.01, 38.71)
	require.Error(t, err)

	_, released := reg.snapshot()
	assert.Equal(t, []release{{Driver: "abebe", RideID: rideID}}, released)
	candidates, err := reg.AvailableDrivers(ctx)
	require.NoError(t, err)
	assert.Len(t, candidates, 1, "driver is free for the next request")
}

func TestManualAssignReportsParkedDriver(t *testing.T) {
	reg := newFakeRegistry(model.Candidate{Username: "abebe", Latitude: 9.0, Longitude: 38.7})
	reg.detached["abebe"] = true
	db := newFakeDB()
	svc := newService(reg, db)
	ctx := context.Background()

	rideID, err := db.CreateRide(ctx, pickup, "")
	require.NoError(t, err)

	resp := svc.Handle(ctx, &model.Session{}, protocol.New(protocol.AssignDriver).
		With("rideId", rideID).
		With("driverUsername", "abebe").
		With("pickupLat", 9.01).
		With("pickupLon", 38.71))
	require.Equal(t, protocol.RideAssignment, resp.Type)
	assert.True(t, resp.Payload.Bool("success"), "error: %s", resp.Payload.String("error"))
	assert.True(t, resp.Payload.Bool("parked"))
}

func TestCancelRide(t *testing.T) {
	reg := newFakeRegistry(model.Candidate{Username: "abebe", Latitude: 9.0, Longitude: 38.7})
	db := newFakeDB()
	svc := newService(reg, db)
	ctx := context.Background()

	d, err := svc.RequestRide(ctx, pickup)
	require.NoError(t, err)
	svc.Wait()

	ride, err := svc.CancelRide(ctx, d.RideID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, ride.Status)

	_, released := reg.snapshot()
	assert.Equal(t, []release{{Driver: "abebe", RideID: d.RideID, Cancelled: true}}, released)

	_, err = svc.CancelRide(ctx, d.RideID)
	assert.ErrorIs(t, err, myerrors.ErrRideAlreadyFinished)
}

func TestCancelWaitingRide(t *testing.T) {
	reg := newFakeRegistry()
	db := newFakeDB()
	svc := newService(reg, db)
	ctx := context.Background()

	d, err := svc.RequestRide(ctx, pickup)
	require.NoError(t, err)

	ride, err := svc.CancelRide(ctx, d.RideID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, ride.Status)
	_, released := reg.snapshot()
	assert.Empty(t, released)
}

func TestPassengerConversation(t *testing.T) {
	reg := newFakeRegistry(model.Candidate{Username: "abebe", Latitude: 9.0, Longitude: 38.7})
	db := newFakeDB()
	svc := newService(reg, db)
	ctx := context.Background()
	sess := &model.Session{}

	resp := svc.Handle(ctx, sess, protocol.New(protocol.RideRequest).
		With("pickupLat", 9.01).With("pickupLon", 38.71).
		With("destLat", 9.05).With("destLon", 38.80))
	assert.Equal(t, protocol.Error, resp.Type)
	assert.Equal(t, myerrors.ErrNotLoggedIn.Error(), resp.Payload.String("error"))

	reg1 := protocol.New(protocol.RegisterPassenger).With("username", "chaltu").With("password", "secret")
	resp = svc.Handle(ctx, sess, reg1)
	require.Equal(t, protocol.LoginSuccess, resp.Type)
	assert.Equal(t, reg1.RequestID, resp.RequestID)
	assert.Equal(t, "Registration successful", resp.Payload.String("message"))
	assert.Equal(t, "token-chaltu", resp.Payload.String("token"))
	assert.Equal(t, "chaltu", sess.Username)
	assert.Equal(t, 1, svc.ActivePassengers())

	resp = svc.Handle(ctx, &model.Session{}, reg1.Clone())
	assert.Equal(t, protocol.LoginFailed, resp.Type)
	assert.Equal(t, "username already exists", resp.Payload.String("error"))

	resp = svc.Handle(ctx, sess, protocol.New(protocol.UpdateLocation).With("latitude", 9.01).With("longitude", 38.71))
	assert.Equal(t, protocol.LocationUpdated, resp.Type)
	assert.Equal(t, 1, db.locations)

	resp = svc.Handle(ctx, sess, protocol.New(protocol.RideRequest).
		With("pickupLat", 9.01).With("pickupLon", 38.71))
	assert.Equal(t, protocol.Error, resp.Type)
	assert.Contains(t, resp.Payload.String("error"), myerrors.ErrIncompleteLocation.Error())

	resp = svc.Handle(ctx, sess, protocol.New(protocol.RideRequest).
		With("pickupLat", 9.01).With("pickupLon", 38.71).
		With("destLat", 9.05).With("destLon", 38.80).
		With("pickupAddr", "Bole").With("destAddr", "Piassa"))
	require.Equal(t, protocol.RideAssignment, resp.Type)
	assert.True(t, resp.Payload.Bool("success"))
	assert.Equal(t, "abebe", resp.Payload.String("driverUsername"))
	assert.Equal(t, int64(1), resp.Payload["rideId"])

	resp = svc.Handle(ctx, sess, protocol.New(protocol.RideRequest).
		With("pickupLat", 9.01).With("pickupLon", 38.71).
		With("destLat", 9.05).With("destLon", 38.80))
	require.Equal(t, protocol.NoDriversAvailable, resp.Type)
	assert.Equal(t, "WAITING", resp.Payload.String("status"))
	assert.Equal(t, int64(2), resp.Payload["rideId"])

	resp = svc.Handle(ctx, sess, protocol.New(protocol.RideCancelled).With("rideId", 2))
	assert.Equal(t, protocol.RideCancelled, resp.Type)
	assert.True(t, resp.Payload.Bool("success"))

	svc.Disconnect(sess)
	assert.Equal(t, 0, svc.ActivePassengers())
	svc.Wait()
}

func TestLoginAndToken(t *testing.T) {
	db := newFakeDB()
	db.users["chaltu"] = "secret"
	svc := newService(newFakeRegistry(), db)
	ctx := context.Background()

	resp := svc.Handle(ctx, &model.Session{}, protocol.New(protocol.Login).With("username", "chaltu").With("password", "wrong"))
	assert.Equal(t, protocol.LoginFailed, resp.Type)
	assert.Equal(t, "Invalid credentials", resp.Payload.String("error"))

	resp = svc.Handle(ctx, &model.Session{}, protocol.New(protocol.Login).With("username", "chaltu").With("password", "secret"))
	require.Equal(t, protocol.LoginSuccess, resp.Type)
	token := resp.Payload.String("token")

	// a fresh connection can act with the token alone
	resp = svc.Handle(ctx, &model.Session{}, protocol.New(protocol.RideRequest).
		With("token", token).
		With("pickupLat", 9.01).With("pickupLon", 38.71).
		With("destLat", 9.05).With("destLon", 38.80))
	require.Equal(t, protocol.NoDriversAvailable, resp.Type)
	ride, _ := db.GetRide(ctx, 1)
	assert.Equal(t, "chaltu", ride.PassengerUsername)

	resp = svc.Handle(ctx, &model.Session{}, protocol.New(protocol.UpdateLocation).
		With("token", "forged").
		With("latitude", 9.0).With("longitude", 38.7))
	assert.Equal(t, protocol.Error, resp.Type)
}

func TestManualAssignMessage(t *testing.T) {
	reg := newFakeRegistry(model.Candidate{Username: "abebe", Latitude: 9.0, Longitude: 38.7})
	svc := newService(reg, newFakeDB())
	ctx := context.Background()

	resp := svc.Handle(ctx, &model.Session{}, protocol.New(protocol.AssignDriver).
		With("rideId", 5).
		With("driverUsername", "abebe").
		With("pickupLat", 9.0).
		With("pickupLon", 38.7))
	require.Equal(t, protocol.RideAssignment, resp.Type)
	assert.False(t, resp.Payload.Bool("success"))
	assert.Contains(t, resp.Payload.String("error"), "Assignment failed")

	resp = svc.Handle(ctx, &model.Session{}, protocol.New(protocol.AssignDriver).With("rideId", 5))
	assert.Equal(t, protocol.Error, resp.Type)
}

func TestUnknownAndHeartbeat(t *testing.T) {
	svc := newService(newFakeRegistry(), newFakeDB())
	ctx := context.Background()

	resp := svc.Handle(ctx, &model.Session{}, protocol.New(protocol.SyncRequest))
	assert.Equal(t, protocol.Error, resp.Type)
	assert.Equal(t, "Unknown message type: SYNC_REQUEST", resp.Payload.String("error"))

	hb := protocol.New(protocol.Heartbeat)
	resp = svc.Handle(ctx, &model.Session{}, hb)
	assert.Equal(t, hb.RequestID, resp.RequestID)
}

func TestPushFailureIsOnlyLogged(t *testing.T) {
	reg := newFakeRegistry(model.Candidate{Username: "abebe", Latitude: 9.0, Longitude: 38.7})
	reg.assignErr = errors.New("connection reset")
	svc := newService(reg, newFakeDB())

	d, err := svc.RequestRide(context.Background(), pickup)
	require.NoError(t, err)
	assert.Equal(t, "abebe", d.DriverUsername)

	done := make(chan struct{})
	go func() { svc.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push did not finish")
	}
}
