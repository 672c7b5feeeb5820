package rental

import (
	"context"
	"errors"
	"strings"
	"time"

	"motorent/internal/domain/booking"
	"motorent/internal/domain/shared/events"
	"motorent/internal/domain/shared/money"
	"motorent/internal/domain/station"
	"motorent/internal/domain/user"
	"motorent/internal/domain/vehicle"
)

var (
	ErrNotFound         = errors.New("rental: not found")
	ErrNotActive        = errors.New("rental: not in active state")
	ErrMissingCondition = errors.New("rental: condition report is incomplete")
	ErrInvalidCondition = errors.New("rental: unknown condition grade")
	ErrInvalidBattery   = errors.New("rental: battery level must be between 0 and 100")
	ErrInvalidMileage   = errors.New("rental: mileage must not be negative")
)

type ID string

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	// StatusVoid marks a rental orphaned by a failed confirmation step; it
	// exists for operator remediation, never for normal flow.
	StatusVoid Status = "void"
)

type Condition string

const (
	ConditionGood Condition = "good"
	ConditionFair Condition = "fair"
	ConditionPoor Condition = "poor"
)

// ConditionReport is a snapshot of the vehicle taken at handover or return.
type ConditionReport struct {
	Mileage      int
	BatteryLevel int
	Exterior     Condition
	Interior     Condition
	Notes        string
	PhotoURLs    []string
}

// Validate enforces the required post-condition fields of checkout.
func (r ConditionReport) Validate() error {
	if r.Mileage < 0 {
		return ErrInvalidMileage
	}
	if r.BatteryLevel < 0 || r.BatteryLevel > 100 {
		return ErrInvalidBattery
	}
	switch r.Exterior {
	case ConditionGood, ConditionFair, ConditionPoor:
	default:
		if r.Exterior == "" {
			return ErrMissingCondition
		}
		return ErrInvalidCondition
	}
	switch r.Interior {
	case ConditionGood, ConditionFair, ConditionPoor:
	default:
		if r.Interior == "" {
			return ErrMissingCondition
		}
		return ErrInvalidCondition
	}
	return nil
}

// FeeBreakdown is the itemized charge computed at checkout.
type FeeBreakdown struct {
	Late   money.Money
	Damage money.Money
	Other  money.Money
	Total  money.Money
}

// Recalculate sums the components into Total.
func (f *FeeBreakdown) Recalculate() error {
	total, err := f.Late.Add(f.Damage)
	if err != nil {
		return err
	}
	total, err = total.Add(f.Other)
	if err != nil {
		return err
	}
	f.Total = total
	return nil
}

// Rental records actual physical possession of a vehicle, created exactly
// once per booking at confirmation and closed exactly once at checkout.
type Rental struct {
	ID            ID
	BookingID     booking.ID
	UserID        user.ID
	VehicleID     vehicle.ID
	StationID     station.ID
	StartedAt     time.Time
	PlannedEnd    time.Time
	EndedAt       *time.Time
	PickupStaffID user.ID
	ReturnStaffID user.ID
	Before        ConditionReport
	After         ConditionReport
	Fees          FeeBreakdown
	VoidReason    string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int64
	events.EventRecorder
}

type CreateParams struct {
	ID            ID
	BookingID     booking.ID
	UserID        user.ID
	VehicleID     vehicle.ID
	StationID     station.ID
	PickupStaffID user.ID
	PlannedEnd    time.Time
	Before        ConditionReport
	StartedAt     time.Time
}

func NewRental(params CreateParams) (*Rental, error) {
	if params.BookingID == "" {
		return nil, errors.New("rental: booking id required")
	}
	if err := params.Before.Validate(); err != nil {
		return nil, err
	}
	now := params.StartedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	currency := money.DefaultCurrency
	r := &Rental{
		ID:            params.ID,
		BookingID:     params.BookingID,
		UserID:        params.UserID,
		VehicleID:     params.VehicleID,
		StationID:     params.StationID,
		StartedAt:     now,
		PlannedEnd:    params.PlannedEnd.UTC(),
		PickupStaffID: params.PickupStaffID,
		Before:        params.Before,
		Fees: FeeBreakdown{
			Late:   money.Money{Currency: currency},
			Damage: money.Money{Currency: currency},
			Other:  money.Money{Currency: currency},
			Total:  money.Money{Currency: currency},
		},
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.Record(Opened{
		BaseEvent: events.BaseEvent{Name: "rental.opened", Aggregate: string(r.ID), Time: now},
		BookingID: r.BookingID, VehicleID: r.VehicleID, StaffID: r.PickupStaffID,
	})
	return r, nil
}

// Close completes an active rental with the return-time condition report
// and the computed fee breakdown.
func (r *Rental) Close(staffID user.ID, after ConditionReport, fees FeeBreakdown, now time.Time) error {
	if r.Status != StatusActive {
		return ErrNotActive
	}
	if err := after.Validate(); err != nil {
		return err
	}
	if err := fees.Recalculate(); err != nil {
		return err
	}
	now = now.UTC()
	r.After = after
	r.Fees = fees
	r.ReturnStaffID = staffID
	r.EndedAt = &now
	r.Status = StatusCompleted
	r.UpdatedAt = now
	r.Record(Closed{
		BaseEvent: events.BaseEvent{Name: "rental.closed", Aggregate: string(r.ID), Time: now},
		BookingID: r.BookingID, VehicleID: r.VehicleID, StaffID: staffID, Fees: fees,
	})
	return nil
}

// Void marks a rental abandoned by a failed confirmation saga step.
func (r *Rental) Void(reason string, now time.Time) error {
	if r.Status != StatusActive {
		return ErrNotActive
	}
	now = now.UTC()
	r.Status = StatusVoid
	r.VoidReason = strings.TrimSpace(reason)
	r.UpdatedAt = now
	r.Record(Voided{
		BaseEvent: events.BaseEvent{Name: "rental.voided", Aggregate: string(r.ID), Time: now},
		BookingID: r.BookingID, Reason: r.VoidReason,
	})
	return nil
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Rental, error)
	ByBookingID(ctx context.Context, id booking.ID) (*Rental, error)
	Save(ctx context.Context, r *Rental) error
}
