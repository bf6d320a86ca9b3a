package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"ride-share/internal/driver-service/core/domain/model"
	"ride-share/internal/driver-service/core/myerrors"
	"ride-share/internal/protocol"
)

type entry struct {
	model.Driver
	seq     uint64
	link    protocol.Conn // nil while detached
	owner   protocol.Conn // nil for ephemeral registrations
	pending *model.Assignment
}

// Registry holds every known driver. All reads and writes go through mu, so
// TryReserve and Assign are atomic with respect to each other.
type Registry struct {
	mu      sync.Mutex
	drivers map[string]*entry
	seq     uint64
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		drivers: make(map[string]*entry),
		now:     time.Now,
	}
}

// Register creates or refreshes a driver. A persistent connection becomes the
// owner and the push link; an ephemeral one leaves an existing link in place.
// A driver in the middle of a reservation or ride keeps that state. Any
// assignment parked while the driver was detached is returned and cleared.
func (r *Registry) Register(username string, lat, lon float64, conn protocol.Conn, kind model.ConnKind) *model.Assignment {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.drivers[username]
	if !ok {
		r.seq++
		e = &entry{seq: r.seq}
		e.Username = username
		e.State = model.StateAvailable
		r.drivers[username] = e
	}
	if e.State == model.StateOffline {
		e.State = model.StateAvailable
	}
	e.Latitude, e.Longitude = lat, lon
	e.LastUpdate = r.now()

	if kind == model.Persistent {
		e.owner = conn
		e.link = conn
	}

	pending := e.pending
	e.pending = nil
	return pending
}

// Unregister removes the driver only when conn still owns the entry.
func (r *Registry) Unregister(username string, conn protocol.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.drivers[username]
	if !ok || e.owner == nil || e.owner != conn {
		return false
	}
	delete(r.drivers, username)
	return true
}

func (r *Registry) UpdateLocation(username string, lat, lon float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.drivers[username]
	if !ok {
		return myerrors.ErrNotRegistered
	}
	e.Latitude, e.Longitude = lat, lon
	e.LastUpdate = r.now()
	return nil
}

// SetAvailability turning on always frees the driver. Turning off only
// affects an available driver; reserved and assigned drivers are already
// off the market.
func (r *Registry) SetAvailability(username string, available bool) (model.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.drivers[username]
	if !ok {
		return "", myerrors.ErrNotRegistered
	}
	switch {
	case available:
		e.State = model.StateAvailable
		e.RideID = 0
		e.pending = nil
	case e.State == model.StateAvailable:
		e.State = model.StateOffline
	}
	e.LastUpdate = r.now()
	return e.State, nil
}

// Available lists available drivers in registration order.
func (r *Registry) Available() []model.Listing {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]*entry, 0, len(r.drivers))
	for _, e := range r.drivers {
		if e.Available() {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]model.Listing, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.Listing{
			Username:  e.Username,
			Latitude:  e.Latitude,
			Longitude: e.Longitude,
			Available: true,
		})
	}
	return out
}

// TryReserve moves an available driver to reserved.
func (r *Registry) TryReserve(username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.drivers[username]
	if !ok {
		return myerrors.ErrDriverNotFound
	}
	if e.State != model.StateAvailable {
		return fmt.Errorf("%s is %s: %w", username, e.State, myerrors.ErrDriverUnavailable)
	}
	e.State = model.StateReserved
	e.LastUpdate = r.now()
	return nil
}

// Release returns a reserved or assigned driver to available. When rideID is
// set and the driver is bound to another ride, nothing changes. The link is
// returned so the caller can tell the driver.
func (r *Registry) Release(username string, rideID int64) (protocol.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.drivers[username]
	if !ok {
		return nil, myerrors.ErrDriverNotFound
	}
	if rideID > 0 && e.RideID != 0 && e.RideID != rideID {
		return nil, fmt.Errorf("%s is on ride %d, not %d: %w", username, e.RideID, rideID, myerrors.ErrDriverUnavailable)
	}
	if e.State == model.StateReserved || e.State == model.StateAssigned {
		e.State = model.StateAvailable
	}
	e.RideID = 0
	e.pending = nil
	e.LastUpdate = r.now()
	return e.link, nil
}

// Assign binds a ride to an available or reserved driver. The returned link
// is nil for a detached driver, in which case the assignment is parked until
// the driver registers again.
func (r *Registry) Assign(username string, a model.Assignment) (protocol.Conn, error) {
	return r.assign(username, a, false)
}

// AssignReserved is Assign for a driver that must still hold the reservation
// made for this ride. A reservation released in the meantime, by a
// cancellation for example, makes it fail.
func (r *Registry) AssignReserved(username string, a model.Assignment) (protocol.Conn, error) {
	return r.assign(username, a, true)
}

func (r *Registry) assign(username string, a model.Assignment, reservedOnly bool) (protocol.Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.drivers[username]
	if !ok {
		return nil, myerrors.ErrDriverNotFound
	}
	switch {
	case e.State == model.StateReserved:
	case e.State == model.StateAvailable && !reservedOnly:
	default:
		return nil, fmt.Errorf("%s is %s: %w", username, e.State, myerrors.ErrDriverUnavailable)
	}
	e.State = model.StateAssigned
	e.RideID = a.RideID
	e.LastUpdate = r.now()
	if e.link == nil {
		e.pending = &a
	}
	return e.link, nil
}

// Park keeps an assignment whose push failed so that the next registration
// delivers it.
func (r *Registry) Park(username string, a model.Assignment) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.drivers[username]; ok && e.State == model.StateAssigned && e.RideID == a.RideID {
		e.pending = &a
		e.link = nil
	}
}

// Complete frees the driver after a finished ride.
func (r *Registry) Complete(username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.drivers[username]
	if !ok {
		return myerrors.ErrNotRegistered
	}
	e.State = model.StateAvailable
	e.RideID = 0
	e.pending = nil
	e.LastUpdate = r.now()
	return nil
}

func (r *Registry) Get(username string) (model.Driver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.drivers[username]
	if !ok {
		return model.Driver{}, false
	}
	return e.Driver, true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drivers)
}
