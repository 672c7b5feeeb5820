package allocation

import (
	"context"
	"errors"
	"log/slog"

	"motorent/internal/app/uow"
	domainbooking "motorent/internal/domain/booking"
	"motorent/internal/domain/shared/daterange"
	domainvehicle "motorent/internal/domain/vehicle"
)

var (
	// ErrNoAvailableVehicle means no unit matching the key is free for the
	// window. The caller may offer a different model or window.
	ErrNoAvailableVehicle = domainbooking.ErrNoAvailableVehicle
	// ErrConcurrentReservation means every free candidate was claimed by a
	// concurrent request between the read and the conditional update.
	ErrConcurrentReservation = domainbooking.ErrConcurrentReservation
)

// Allocator claims one physical unit for a booking window. The claim is a
// conditional status flip (available -> reserved) so that two concurrent
// requests can never both win the same unit: the storage layer applies the
// update only if the status it reads is still available. The claim is
// transient: once the booking row is persisted, the caller releases the
// unit and the stored windows become the conflict authority.
type Allocator struct {
	Logger *slog.Logger
}

const claimAttempts = 2

// Allocate picks a free unit for the key and window and claims it. On a
// lost claim race it retries the remaining candidates once before giving
// up with ErrConcurrentReservation.
func (a Allocator) Allocate(ctx context.Context, unit uow.UnitOfWork, key domainvehicle.SelectionKey, dr daterange.DateRange) (domainvehicle.ID, error) {
	lostRace := false
	for attempt := 0; attempt < claimAttempts; attempt++ {
		candidates, err := unit.Vehicles().FindSelectable(ctx, key)
		if err != nil {
			return "", err
		}
		if len(candidates) == 0 {
			break
		}

		free, err := a.withoutConflicts(ctx, unit, candidates, dr)
		if err != nil {
			return "", err
		}
		if len(free) == 0 {
			break
		}

		for _, candidate := range free {
			err := unit.Vehicles().CompareAndSetStatus(ctx, candidate.ID, domainvehicle.StatusAvailable, domainvehicle.StatusReserved)
			if err == nil {
				return candidate.ID, nil
			}
			if errors.Is(err, domainvehicle.ErrStatusConflict) {
				// someone else claimed it between the read and the flip
				lostRace = true
				if a.Logger != nil {
					a.Logger.Debug("allocation claim lost", "vehicle_id", candidate.ID, "attempt", attempt)
				}
				continue
			}
			return "", err
		}
	}
	if lostRace {
		return "", ErrConcurrentReservation
	}
	return "", ErrNoAvailableVehicle
}

// withoutConflicts filters candidates against every non-cancelled booking
// whose window intersects the requested one.
func (a Allocator) withoutConflicts(ctx context.Context, unit uow.UnitOfWork, candidates []*domainvehicle.Vehicle, dr daterange.DateRange) ([]*domainvehicle.Vehicle, error) {
	ids := make([]domainvehicle.ID, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	conflicting, err := unit.Bookings().FindOverlapping(ctx, ids, dr)
	if err != nil {
		return nil, err
	}
	busy := make(map[domainvehicle.ID]struct{}, len(conflicting))
	for _, b := range conflicting {
		busy[b.VehicleID] = struct{}{}
	}
	free := make([]*domainvehicle.Vehicle, 0, len(candidates))
	for _, c := range candidates {
		if _, taken := busy[c.ID]; !taken {
			free = append(free, c)
		}
	}
	return free, nil
}

// Release returns a claimed unit to the pool. A unit that is not reserved
// is left alone: pending bookings do not hold their vehicle, so release
// after a cancel or sweep is usually a no-op.
func (a Allocator) Release(ctx context.Context, unit uow.UnitOfWork, id domainvehicle.ID) {
	err := unit.Vehicles().CompareAndSetStatus(ctx, id, domainvehicle.StatusReserved, domainvehicle.StatusAvailable)
	if err == nil || errors.Is(err, domainvehicle.ErrStatusConflict) {
		return
	}
	if a.Logger != nil {
		a.Logger.Error("failed to release claimed vehicle", "vehicle_id", id, "error", err)
	}
}
