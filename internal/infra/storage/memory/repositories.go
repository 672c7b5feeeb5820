package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	domainbooking "motorent/internal/domain/booking"
	domaincontract "motorent/internal/domain/contract"
	domainpayment "motorent/internal/domain/payment"
	domainrental "motorent/internal/domain/rental"
	"motorent/internal/domain/shared/daterange"
	domainstation "motorent/internal/domain/station"
	domainuser "motorent/internal/domain/user"
	domainvehicle "motorent/internal/domain/vehicle"
)

var ErrConcurrentUpdate = errors.New("memory: concurrent update detected")

// VehicleRepository keeps vehicles in memory. The mutex makes
// CompareAndSetStatus a real compare-and-swap, so allocation races behave
// the same way they do against the document store.
type VehicleRepository struct {
	mu    sync.RWMutex
	items map[domainvehicle.ID]*domainvehicle.Vehicle
}

func NewVehicleRepository() *VehicleRepository {
	return &VehicleRepository{items: make(map[domainvehicle.ID]*domainvehicle.Vehicle)}
}

func (r *VehicleRepository) ByID(ctx context.Context, id domainvehicle.ID) (*domainvehicle.Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[id]
	if !ok {
		return nil, domainvehicle.ErrNotFound
	}
	clone := *v
	return &clone, nil
}

func (r *VehicleRepository) Save(ctx context.Context, v *domainvehicle.Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.items[v.ID]; ok && existing.Version != v.Version {
		return ErrConcurrentUpdate
	}
	clone := *v
	clone.Version++
	clone.ClearEvents()
	r.items[v.ID] = &clone
	v.Version = clone.Version
	return nil
}

func (r *VehicleRepository) FindSelectable(ctx context.Context, key domainvehicle.SelectionKey) ([]*domainvehicle.Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainvehicle.Vehicle
	for _, v := range r.items {
		if v.Status != domainvehicle.StatusAvailable || !v.MatchesKey(key) {
			continue
		}
		clone := *v
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *VehicleRepository) CompareAndSetStatus(ctx context.Context, id domainvehicle.ID, from, to domainvehicle.Status) error {
	if err := domainvehicle.MustTransition(from, to); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[id]
	if !ok {
		return domainvehicle.ErrNotFound
	}
	if v.Status != from {
		return domainvehicle.ErrStatusConflict
	}
	v.Status = to
	v.Version++
	return nil
}

// BookingRepository stores bookings in memory.
type BookingRepository struct {
	mu    sync.RWMutex
	items map[domainbooking.ID]*domainbooking.Booking
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{items: make(map[domainbooking.ID]*domainbooking.Booking)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.ID) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.items[id]
	if !ok {
		return nil, domainbooking.ErrNotFound
	}
	clone := *b
	return &clone, nil
}

func (r *BookingRepository) ByCode(ctx context.Context, code string) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.items {
		if b.Code == code {
			clone := *b
			return &clone, nil
		}
	}
	return nil, domainbooking.ErrNotFound
}

func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.items[b.ID]; ok && existing.Version != b.Version {
		return ErrConcurrentUpdate
	}
	clone := *b
	clone.Version++
	clone.ClearEvents()
	r.items[b.ID] = &clone
	b.Version = clone.Version
	return nil
}

func (r *BookingRepository) CountActiveByUser(ctx context.Context, userID domainuser.ID, now time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, b := range r.items {
		if b.UserID == userID && b.Status != domainbooking.StatusCancelled && b.Range.End.After(now) {
			n++
		}
	}
	return n, nil
}

func (r *BookingRepository) FindByUser(ctx context.Context, userID domainuser.ID) ([]*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainbooking.Booking
	for _, b := range r.items {
		if b.UserID == userID {
			clone := *b
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *BookingRepository) FindOverlapping(ctx context.Context, vehicleIDs []domainvehicle.ID, dr daterange.DateRange) ([]*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make(map[domainvehicle.ID]struct{}, len(vehicleIDs))
	for _, id := range vehicleIDs {
		ids[id] = struct{}{}
	}
	var out []*domainbooking.Booking
	for _, b := range r.items {
		if _, ok := ids[b.VehicleID]; !ok {
			continue
		}
		if b.Status == domainbooking.StatusCancelled {
			continue
		}
		if !b.Range.Overlaps(dr) {
			continue
		}
		clone := *b
		out = append(out, &clone)
	}
	return out, nil
}

func (r *BookingRepository) FindExpiredPending(ctx context.Context, now time.Time, grace time.Duration) ([]*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now = now.UTC()
	var out []*domainbooking.Booking
	for _, b := range r.items {
		if b.Status != domainbooking.StatusPending {
			continue
		}
		if now.After(b.Range.Start.Add(grace)) || !now.Before(b.Range.End) {
			clone := *b
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Range.Start.Before(out[j].Range.Start) })
	return out, nil
}

// RentalRepository stores rentals in memory.
type RentalRepository struct {
	mu    sync.RWMutex
	items map[domainrental.ID]*domainrental.Rental
}

func NewRentalRepository() *RentalRepository {
	return &RentalRepository{items: make(map[domainrental.ID]*domainrental.Rental)}
}

func (r *RentalRepository) ByID(ctx context.Context, id domainrental.ID) (*domainrental.Rental, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rent, ok := r.items[id]
	if !ok {
		return nil, domainrental.ErrNotFound
	}
	clone := *rent
	return &clone, nil
}

func (r *RentalRepository) ByBookingID(ctx context.Context, id domainbooking.ID) (*domainrental.Rental, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rent := range r.items {
		if rent.BookingID == id {
			clone := *rent
			return &clone, nil
		}
	}
	return nil, domainrental.ErrNotFound
}

func (r *RentalRepository) Save(ctx context.Context, rent *domainrental.Rental) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *rent
	clone.Version++
	clone.ClearEvents()
	r.items[rent.ID] = &clone
	rent.Version = clone.Version
	return nil
}

// PaymentRepository stores payments in memory.
type PaymentRepository struct {
	mu    sync.RWMutex
	items map[domainpayment.ID]*domainpayment.Payment
}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{items: make(map[domainpayment.ID]*domainpayment.Payment)}
}

func (r *PaymentRepository) ByID(ctx context.Context, id domainpayment.ID) (*domainpayment.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	if !ok {
		return nil, domainpayment.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *PaymentRepository) ByBookingID(ctx context.Context, id domainbooking.ID) ([]*domainpayment.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainpayment.Payment
	for _, p := range r.items {
		if p.BookingID == id {
			clone := *p
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *PaymentRepository) Save(ctx context.Context, p *domainpayment.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *p
	r.items[p.ID] = &clone
	return nil
}

// ContractRepository stores contracts in memory.
type ContractRepository struct {
	mu    sync.RWMutex
	items map[domaincontract.ID]*domaincontract.Contract
}

func NewContractRepository() *ContractRepository {
	return &ContractRepository{items: make(map[domaincontract.ID]*domaincontract.Contract)}
}

func (r *ContractRepository) ByRentalID(ctx context.Context, id domainrental.ID) (*domaincontract.Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.items {
		if c.RentalID == id {
			clone := *c
			return &clone, nil
		}
	}
	return nil, domaincontract.ErrNotFound
}

func (r *ContractRepository) Save(ctx context.Context, c *domaincontract.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *c
	r.items[c.ID] = &clone
	return nil
}

// StationRepository stores stations in memory.
type StationRepository struct {
	mu    sync.RWMutex
	items map[domainstation.ID]*domainstation.Station
}

func NewStationRepository() *StationRepository {
	return &StationRepository{items: make(map[domainstation.ID]*domainstation.Station)}
}

func (r *StationRepository) ByID(ctx context.Context, id domainstation.ID) (*domainstation.Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[id]
	if !ok {
		return nil, domainstation.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (r *StationRepository) Save(ctx context.Context, s *domainstation.Station) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *s
	r.items[s.ID] = &clone
	return nil
}
