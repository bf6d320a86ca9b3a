package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ride-share/internal/dispatch-service/core/domain/model"
	"ride-share/internal/dispatch-service/core/myerrors"
	"ride-share/internal/dispatch-service/core/ports/driven"
	"ride-share/internal/mylogger"
)

const pushTimeout = 10 * time.Second

type DispatchService struct {
	mylog    mylogger.Logger
	registry driven.IDriverRegistry
	db       driven.IDatabase
	sessions driven.ISessionIssuer

	// assignMu serializes every matching decision in the process.
	assignMu sync.Mutex
	pushes   sync.WaitGroup

	mu         sync.Mutex
	passengers map[string]int
}

func NewDispatchService(mylog mylogger.Logger, registry driven.IDriverRegistry, db driven.IDatabase, sessions driven.ISessionIssuer) *DispatchService {
	return &DispatchService{
		mylog:      mylog,
		registry:   registry,
		db:         db,
		sessions:   sessions,
		passengers: make(map[string]int),
	}
}

// RequestRide matches the request to the nearest available driver and logs
// the ride. The ride is created even when nobody is free. The chosen driver
// is reserved in the registry before the ride is written, so two concurrent
// requests can never end up with the same driver.
func (s *DispatchService) RequestRide(ctx context.Context, req model.RideRequest) (model.Dispatch, error) {
	log := s.mylog.Action("RequestRide").With("passenger", req.PassengerUsername)

	s.assignMu.Lock()
	defer s.assignMu.Unlock()

	candidates, err := s.registry.AvailableDrivers(ctx)
	if err != nil {
		return model.Dispatch{}, fmt.Errorf("query available drivers: %w", err)
	}

	chosen, distance, err := s.reserveNearest(ctx, req.PickupLat, req.PickupLon, candidates)
	if err != nil {
		return model.Dispatch{}, err
	}

	rideID, err := s.db.CreateRide(ctx, req, chosen)
	if err != nil {
		if chosen != "" {
			s.rollback(ctx, chosen, 0)
		}
		log.Error("ride not created", err)
		return model.Dispatch{}, fmt.Errorf("%w: %v", myerrors.ErrRideNotCreated, err)
	}

	d := model.Dispatch{RideID: rideID, DriverUsername: chosen, DistanceKm: distance}
	if d.Waiting() {
		log.Info("ride queued, no driver available", "ride_id", rideID, "candidates", len(candidates))
		return d, nil
	}

	log.Info("driver matched", "ride_id", rideID, "driver", chosen, "distance_km", distance)
	s.push(ctx, model.Assignment{
		RideID:            rideID,
		DriverUsername:    chosen,
		PassengerUsername: req.PassengerUsername,
		PickupLat:         req.PickupLat,
		PickupLon:         req.PickupLon,
	})
	return d, nil
}

// reserveNearest walks the candidates from nearest outwards until the
// registry grants a reservation. An empty name means nobody could be reserved.
func (s *DispatchService) reserveNearest(ctx context.Context, lat, lon float64, candidates []model.Candidate) (string, float64, error) {
	remaining := append([]model.Candidate(nil), candidates...)
	for len(remaining) > 0 {
		best, distance, _ := model.Nearest(lat, lon, remaining)

		err := s.registry.Reserve(ctx, best.Username)
		switch {
		case err == nil:
			return best.Username, distance, nil
		case errors.Is(err, myerrors.ErrDriverUnavailable):
			s.mylog.Action("RequestRide").Debug("candidate taken, trying next", "driver", best.Username)
			remaining = without(remaining, best.Username)
		default:
			return "", 0, fmt.Errorf("reserve %s: %w", best.Username, err)
		}
	}
	return "", 0, nil
}

// push hands the assignment to the registry in the background.
func (s *DispatchService) push(ctx context.Context, a model.Assignment) {
	s.pushes.Add(1)
	go func() {
		defer s.pushes.Done()
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()

		log := s.mylog.Action("push_assignment").With("ride_id", a.RideID, "driver", a.DriverUsername)
		parked, err := s.registry.Assign(pushCtx, a)
		switch {
		case err != nil:
			log.Warn("assignment not delivered", "reason", err.Error())
		case parked:
			log.Info("driver unreachable, assignment parked until it reconnects")
		}
	}()
}

// rollback frees a reservation. A rideID other than zero leaves the driver
// alone if it is bound to a different ride.
func (s *DispatchService) rollback(ctx context.Context, driver string, rideID int64) {
	if err := s.registry.Release(context.WithoutCancel(ctx), driver, rideID, false); err != nil {
		s.mylog.Action("rollback_reservation").Warn("reservation not released", "driver", driver, "reason", err.Error())
	}
}

// ManualAssign binds a named driver to an existing ride, skipping the
// nearest-driver search. parked is set when the driver was unreachable and
// only sees the ride once it reconnects.
func (s *DispatchService) ManualAssign(ctx context.Context, rideID int64, driver string, pickupLat, pickupLon float64) (bool, error) {
	log := s.mylog.Action("ManualAssign").With("ride_id", rideID, "driver", driver)

	s.assignMu.Lock()
	defer s.assignMu.Unlock()

	if err := s.registry.Reserve(ctx, driver); err != nil {
		log.Warn("driver cannot be reserved", "reason", err.Error())
		return false, err
	}
	if err := s.db.AssignDriver(ctx, rideID, driver); err != nil {
		s.rollback(ctx, driver, 0)
		log.Warn("assignment not persisted", "reason", err.Error())
		return false, err
	}
	parked, err := s.registry.Assign(ctx, model.Assignment{
		RideID:            rideID,
		DriverUsername:    driver,
		PassengerUsername: model.ManualPassenger,
		PickupLat:         pickupLat,
		PickupLon:         pickupLon,
	})
	if err != nil {
		s.rollback(ctx, driver, rideID)
		log.Error("assignment stored but not delivered, ride is orphaned", err)
		return false, err
	}

	log.Info("driver assigned manually", "parked", parked)
	return parked, nil
}

// CancelRide marks the ride CANCELLED and frees its driver, who is told
// about it through the registry.
func (s *DispatchService) CancelRide(ctx context.Context, rideID int64) (model.Ride, error) {
	log := s.mylog.Action("CancelRide").With("ride_id", rideID)

	ride, err := s.db.GetRide(ctx, rideID)
	if err != nil {
		return model.Ride{}, err
	}
	if ride.Terminal() {
		return ride, fmt.Errorf("ride %d is %s: %w", rideID, ride.Status, myerrors.ErrRideAlreadyFinished)
	}
	if err := s.db.UpdateRideStatus(ctx, rideID, model.StatusCancelled); err != nil {
		return model.Ride{}, err
	}
	ride.Status = model.StatusCancelled

	driver := ride.DriverUsername
	if driver != "" {
		if err := s.registry.Release(ctx, driver, rideID, true); err != nil {
			// the driver may already be gone; the ride stays cancelled
			log.Warn("driver not released", "driver", driver, "reason", err.Error())
		}
	}

	log.Info("ride cancelled", "driver", driver)
	return ride, nil
}

// Wait blocks until background assignment pushes have finished.
func (s *DispatchService) Wait() {
	s.pushes.Wait()
}

func without(candidates []model.Candidate, username string) []model.Candidate {
	out := candidates[:0]
	for _, c := range candidates {
		if c.Username != username {
			out = append(out, c)
		}
	}
	return out
}
