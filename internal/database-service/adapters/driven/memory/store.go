// Package memory is a process-local store with the same contract as the
// PostgreSQL adapter. It backs tests and single-node development runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ride-share/internal/database-service/core/domain/model"
	"ride-share/internal/database-service/core/myerrors"
)

type Store struct {
	mu         sync.Mutex
	passengers map[string]*model.Passenger
	drivers    map[string]*model.Driver
	rides      map[int64]*model.Ride
	history    map[int64][]model.StatusChange

	lastPassengerID int64
	lastDriverID    int64
	lastRideID      int64
	now             func() time.Time
}

func New() *Store {
	return &Store{
		passengers: make(map[string]*model.Passenger),
		drivers:    make(map[string]*model.Driver),
		rides:      make(map[int64]*model.Ride),
		history:    make(map[int64][]model.StatusChange),
		now:        time.Now,
	}
}

func (s *Store) InsertPassenger(ctx context.Context, p model.Passenger) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.passengers[p.Username]; exists {
		return 0, myerrors.ErrDuplicate
	}
	s.lastPassengerID++
	p.ID = s.lastPassengerID
	s.passengers[p.Username] = &p
	return p.ID, nil
}

func (s *Store) InsertDriver(ctx context.Context, d model.Driver) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.drivers[d.Username]; exists {
		return 0, myerrors.ErrDuplicate
	}
	s.lastDriverID++
	d.ID = s.lastDriverID
	s.drivers[d.Username] = &d
	return d.ID, nil
}

func (s *Store) FindCredentials(ctx context.Context, role model.Role, username string) (model.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch role {
	case model.RolePassenger:
		p, ok := s.passengers[username]
		if !ok {
			return model.Credentials{}, myerrors.ErrPassengerNotFound
		}
		return model.Credentials{ID: p.ID, PasswordHash: p.PasswordHash}, nil
	case model.RoleDriver:
		d, ok := s.drivers[username]
		if !ok {
			return model.Credentials{}, myerrors.ErrDriverNotFound
		}
		return model.Credentials{ID: d.ID, PasswordHash: d.PasswordHash, Status: d.Status}, nil
	}
	return model.Credentials{}, fmt.Errorf("unsupported role %q", role)
}

func (s *Store) UpdatePassengerLocation(ctx context.Context, username string, lat, lon float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.passengers[username]
	if !ok {
		return myerrors.ErrPassengerNotFound
	}
	p.Latitude, p.Longitude = lat, lon
	return nil
}

func (s *Store) UpdateDriverLocation(ctx context.Context, username string, lat, lon float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drivers[username]
	if !ok {
		return myerrors.ErrDriverNotFound
	}
	d.Latitude, d.Longitude = lat, lon
	return nil
}

func (s *Store) CreateRide(ctx context.Context, r model.NewRide) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.passengers[r.PassengerUsername]; !ok {
		return 0, fmt.Errorf("passenger %s: %w", r.PassengerUsername, myerrors.ErrPassengerNotFound)
	}
	var driver *model.Driver
	if r.DriverUsername != "" {
		d, ok := s.drivers[r.DriverUsername]
		if !ok {
			return 0, fmt.Errorf("driver %s: %w", r.DriverUsername, myerrors.ErrDriverNotFound)
		}
		driver = d
	}

	id := r.ID
	if id > 0 {
		if _, exists := s.rides[id]; exists {
			return 0, fmt.Errorf("ride %d: %w", id, myerrors.ErrDuplicate)
		}
		if id > s.lastRideID {
			s.lastRideID = id
		}
	} else {
		s.lastRideID++
		id = s.lastRideID
	}

	ride := &model.Ride{
		ID:                id,
		PassengerUsername: r.PassengerUsername,
		DriverUsername:    r.DriverUsername,
		Status:            r.InitialStatus(),
		StartLat:          r.StartLat,
		StartLon:          r.StartLon,
		DestLat:           r.DestLat,
		DestLon:           r.DestLon,
		StartAddr:         r.StartAddr,
		DestAddr:          r.DestAddr,
		CreatedAt:         s.now(),
	}
	s.rides[id] = ride
	s.appendHistory(id, ride.Status, r.StartLat, r.StartLon)
	if driver != nil {
		driver.Available = false
	}
	return id, nil
}

func (s *Store) AssignDriver(ctx context.Context, rideID int64, driverUsername string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[rideID]
	if !ok {
		return myerrors.ErrRideNotFound
	}
	driver, ok := s.drivers[driverUsername]
	if !ok {
		return myerrors.ErrDriverNotFound
	}

	if ride.Status == model.StatusAssigned && ride.DriverUsername == driverUsername {
		return nil
	}
	if ride.DriverUsername != "" {
		return myerrors.ErrRideAlreadyAssigned
	}
	if !ride.Status.CanTransitionTo(model.StatusAssigned) {
		return fmt.Errorf("%s to %s: %w", ride.Status, model.StatusAssigned, myerrors.ErrInvalidTransition)
	}

	ride.DriverUsername = driverUsername
	ride.Status = model.StatusAssigned
	driver.Available = false
	s.appendHistory(rideID, model.StatusAssigned, ride.StartLat, ride.StartLon)
	return nil
}

func (s *Store) UpdateRideStatus(ctx context.Context, rideID int64, status model.RideStatus, lat, lon float64) (model.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[rideID]
	if !ok {
		return model.Ride{}, myerrors.ErrRideNotFound
	}
	if status == model.StatusAssigned && ride.DriverUsername == "" {
		return model.Ride{}, myerrors.ErrDriverRequired
	}
	if !ride.Status.CanTransitionTo(status) {
		return model.Ride{}, fmt.Errorf("%s to %s: %w", ride.Status, status, myerrors.ErrInvalidTransition)
	}

	ride.Status = status
	s.appendHistory(rideID, status, lat, lon)
	if status.FreesDriver() && ride.DriverUsername != "" {
		if d, ok := s.drivers[ride.DriverUsername]; ok {
			d.Available = true
		}
	}
	return *ride, nil
}

func (s *Store) GetRide(ctx context.Context, rideID int64) (model.Ride, []model.StatusChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[rideID]
	if !ok {
		return model.Ride{}, nil, myerrors.ErrRideNotFound
	}
	history := append([]model.StatusChange(nil), s.history[rideID]...)
	return *ride, history, nil
}

func (s *Store) PendingDrivers(ctx context.Context) ([]model.PendingDriver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.PendingDriver, 0)
	for _, d := range s.driversByID() {
		if d.Status != model.DriverPending {
			continue
		}
		out = append(out, model.PendingDriver{
			Username:          d.Username,
			Phone:             d.Phone,
			Status:            d.Status,
			DriverApplication: d.Application,
		})
	}
	return out, nil
}

func (s *Store) SetDriverStatus(ctx context.Context, username string, status model.DriverStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drivers[username]
	if !ok {
		return myerrors.ErrDriverNotFound
	}
	d.Status = status
	d.Available = status == model.DriverApproved
	return nil
}

func (s *Store) ActiveRides(ctx context.Context) ([]model.ActiveRide, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.ActiveRide, 0)
	for _, r := range s.ridesByID() {
		if r.Status != model.StatusAssigned && r.Status != model.StatusStarted {
			continue
		}
		p := s.passengers[r.PassengerUsername]
		d := s.drivers[r.DriverUsername]
		if p == nil || d == nil {
			continue
		}
		out = append(out, model.ActiveRide{
			RideID:    r.ID,
			Passenger: p.Username,
			Driver:    d.Username,
			PLat:      p.Latitude,
			PLon:      p.Longitude,
			DLat:      d.Latitude,
			DLon:      d.Longitude,
			Status:    r.Status,
		})
	}
	return out, nil
}

func (s *Store) Locations(ctx context.Context) (model.Locations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	locs := model.Locations{
		Passengers: make([]model.PassengerPoint, 0, len(s.passengers)),
		Drivers:    make([]model.DriverPoint, 0, len(s.drivers)),
		Rides:      make([]model.OpenRide, 0),
	}
	for _, p := range s.passengersByID() {
		locs.Passengers = append(locs.Passengers, model.PassengerPoint{Username: p.Username, Lat: p.Latitude, Lng: p.Longitude})
	}
	for _, d := range s.driversByID() {
		locs.Drivers = append(locs.Drivers, model.DriverPoint{Username: d.Username, Lat: d.Latitude, Lng: d.Longitude, Available: d.Available})
	}
	for _, r := range s.ridesByID() {
		if r.Status.Terminal() {
			continue
		}
		locs.Rides = append(locs.Rides, model.OpenRide{
			ID:        r.ID,
			Passenger: r.PassengerUsername,
			PLat:      r.StartLat,
			PLon:      r.StartLon,
			DLat:      r.DestLat,
			DLon:      r.DestLon,
			Status:    r.Status,
		})
	}
	return locs, nil
}

func (s *Store) Snapshot(ctx context.Context) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := model.Snapshot{
		Passengers: make([]model.PassengerRecord, 0, len(s.passengers)),
		Drivers:    make([]model.DriverRecord, 0, len(s.drivers)),
	}
	for _, p := range s.passengersByID() {
		snap.Passengers = append(snap.Passengers, model.PassengerRecord{
			Username:     p.Username,
			PasswordHash: p.PasswordHash,
			Phone:        p.Phone,
		})
	}
	for _, d := range s.driversByID() {
		snap.Drivers = append(snap.Drivers, model.DriverRecord{
			Username:          d.Username,
			PasswordHash:      d.PasswordHash,
			Phone:             d.Phone,
			Status:            d.Status,
			DriverApplication: d.Application,
		})
	}
	return snap, nil
}

func (s *Store) Close() {}

func (s *Store) appendHistory(rideID int64, status model.RideStatus, lat, lon float64) {
	s.history[rideID] = append(s.history[rideID], model.StatusChange{
		Status:    status,
		Latitude:  lat,
		Longitude: lon,
		At:        s.now(),
	})
}

func (s *Store) passengersByID() []*model.Passenger {
	out := make([]*model.Passenger, 0, len(s.passengers))
	for _, p := range s.passengers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) driversByID() []*model.Driver {
	out := make([]*model.Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) ridesByID() []*model.Ride {
	out := make([]*model.Ride, 0, len(s.rides))
	for _, r := range s.rides {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
