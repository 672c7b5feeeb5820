package vehicle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"motorent/internal/domain/shared/events"
	"motorent/internal/domain/shared/money"
	"motorent/internal/domain/station"
)

var (
	ErrNotFound          = errors.New("vehicle: not found")
	ErrInvalidState      = errors.New("vehicle: invalid status transition")
	ErrPlateRequired     = errors.New("vehicle: a real plate is required before activation")
	ErrStationRequired   = errors.New("vehicle: station assignment is required before activation")
	ErrModelRequired     = errors.New("vehicle: model is required")
	ErrPriceRequired     = errors.New("vehicle: price per day must be positive")
	ErrStatusConflict    = errors.New("vehicle: status changed concurrently")
	ErrConcurrentUpdate  = errors.New("vehicle: concurrent update detected")
	ErrInvalidBattery    = errors.New("vehicle: battery level must be between 0 and 100")
	ErrMileageDecreasing = errors.New("vehicle: mileage cannot decrease")
)

type ID string

type Status string

const (
	StatusDraft       Status = "draft"
	StatusAvailable   Status = "available"
	StatusReserved    Status = "reserved"
	StatusRented      Status = "rented"
	StatusMaintenance Status = "maintenance"
)

// allowedTransitions is the directed graph of legal status moves. Reserved
// is a transient allocation marker held only while a booking row is being
// created; pending bookings do not park their unit there, so confirmation
// rents straight from available.
var allowedTransitions = map[Status][]Status{
	StatusDraft:       {StatusAvailable},
	StatusAvailable:   {StatusReserved, StatusRented, StatusMaintenance},
	StatusReserved:    {StatusRented, StatusAvailable},
	StatusRented:      {StatusAvailable, StatusMaintenance},
	StatusMaintenance: {StatusAvailable},
}

// CanTransition reports whether from -> to is a legal status move.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SelectionKey groups interchangeable units: any available vehicle matching
// the key satisfies the same booking request.
type SelectionKey struct {
	Model     string
	Color     string
	StationID station.ID
}

// Vehicle is one physical unit.
type Vehicle struct {
	ID           ID
	Model        string
	Color        string
	Type         string
	Plate        string
	StationID    station.ID
	PricePerDay  money.Money
	Mileage      int
	BatteryLevel int
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int64
	events.EventRecorder
}

type CreateParams struct {
	ID          ID
	Model       string
	Color       string
	Type        string
	PricePerDay money.Money
	CreatedAt   time.Time
}

// NewVehicle registers a unit in draft status; it becomes selectable only
// after activation at a station.
func NewVehicle(params CreateParams) (*Vehicle, error) {
	if strings.TrimSpace(params.Model) == "" {
		return nil, ErrModelRequired
	}
	if !params.PricePerDay.IsPositive() {
		return nil, ErrPriceRequired
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Vehicle{
		ID:           params.ID,
		Model:        strings.TrimSpace(params.Model),
		Color:        strings.ToLower(strings.TrimSpace(params.Color)),
		Type:         strings.TrimSpace(params.Type),
		PricePerDay:  params.PricePerDay,
		BatteryLevel: 100,
		Status:       StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Activate moves a draft unit to available once it has a plate and a station.
func (v *Vehicle) Activate(stationID station.ID, plate string, now time.Time) error {
	if v.Status != StatusDraft {
		return ErrInvalidState
	}
	if strings.TrimSpace(plate) == "" {
		return ErrPlateRequired
	}
	if stationID == "" {
		return ErrStationRequired
	}
	v.Plate = strings.ToUpper(strings.TrimSpace(plate))
	v.StationID = stationID
	v.Status = StatusAvailable
	v.UpdatedAt = now.UTC()
	v.Record(Activated{BaseEvent: events.BaseEvent{Name: "vehicle.activated", Aggregate: string(v.ID), Time: v.UpdatedAt}, StationID: stationID, Plate: v.Plate})
	return nil
}

// EnterMaintenance pulls the unit out of the rental pool.
func (v *Vehicle) EnterMaintenance(now time.Time) error {
	if !CanTransition(v.Status, StatusMaintenance) {
		return ErrInvalidState
	}
	v.Status = StatusMaintenance
	v.UpdatedAt = now.UTC()
	return nil
}

// RecordReturn updates the odometer and battery readings reported at checkout.
func (v *Vehicle) RecordReturn(mileage, batteryLevel int, now time.Time) error {
	if mileage < v.Mileage {
		return ErrMileageDecreasing
	}
	if batteryLevel < 0 || batteryLevel > 100 {
		return ErrInvalidBattery
	}
	v.Mileage = mileage
	v.BatteryLevel = batteryLevel
	v.UpdatedAt = now.UTC()
	return nil
}

// MatchesKey reports whether this unit can serve a request for the key.
func (v *Vehicle) MatchesKey(key SelectionKey) bool {
	return strings.EqualFold(v.Model, key.Model) &&
		strings.EqualFold(v.Color, key.Color) &&
		v.StationID == key.StationID
}

// Repository is the storage contract for vehicles. CompareAndSetStatus is
// the single concurrency primitive for claiming and releasing units: it
// must flip the status only if the stored value still equals from.
type Repository interface {
	ByID(ctx context.Context, id ID) (*Vehicle, error)
	Save(ctx context.Context, v *Vehicle) error
	FindSelectable(ctx context.Context, key SelectionKey) ([]*Vehicle, error)
	CompareAndSetStatus(ctx context.Context, id ID, from, to Status) error
}

// Activated is recorded when a draft unit joins the rental pool.
type Activated struct {
	events.BaseEvent
	StationID station.ID
	Plate     string
}

func (s Status) String() string { return string(s) }

// MustTransition asserts a status move is legal before a repository flip.
func MustTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}
	return nil
}
