package booking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"motorent/internal/domain/shared/daterange"
	"motorent/internal/domain/shared/events"
	"motorent/internal/domain/shared/money"
	"motorent/internal/domain/station"
	"motorent/internal/domain/user"
	"motorent/internal/domain/vehicle"
)

var (
	ErrNotFound              = errors.New("booking: not found")
	ErrInvalidState          = errors.New("booking: invalid state transition")
	ErrNotPending            = errors.New("booking: not in pending state")
	ErrNotCheckedIn          = errors.New("booking: renter has not checked in")
	ErrCheckInExpired        = errors.New("booking: check-in token expired")
	ErrNotScannable          = errors.New("booking: cancelled bookings cannot check in")
	ErrWrongStation          = errors.New("booking: staff belongs to a different station")
	ErrNotCancellable        = errors.New("booking: cancellation window has closed")
	ErrAlreadyCancelled      = errors.New("booking: already cancelled")
	ErrReasonRequired        = errors.New("booking: cancellation reason is required")
	ErrConcurrentReservation = errors.New("booking: vehicle was claimed concurrently")
	ErrNoAvailableVehicle    = errors.New("booking: no available vehicle for the requested window")
	ErrTooManyActive         = errors.New("booking: too many active bookings for this account")
)

type ID string

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// ExpiredReason marks cancellations performed by the background sweep.
const ExpiredReason = "auto-expired"

// Booking reserves one vehicle for a date window. Status moves are
// one-directional: pending is the only state confirmation or cancellation
// can leave from.
type Booking struct {
	ID          ID
	Code        string
	UserID      user.ID
	VehicleID   vehicle.ID
	StationID   station.ID
	Range       daterange.DateRange
	PickupTime  station.TimeOfDay
	ReturnTime  station.TimeOfDay
	PricePerDay money.Money
	TotalDays   int
	TotalPrice  money.Money
	Deposit     money.Money

	Status Status

	// Check-in token: the booking's own code rendered as a QR image.
	// Possession of the image by same-station staff is the control.
	QRToken     string
	QRExpiresAt time.Time
	QRUsedAt    *time.Time

	CancelReason string
	CancelledBy  user.ID
	CancelledAt  *time.Time
	ConfirmedBy  user.ID
	ConfirmedAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
	events.EventRecorder
}

type CreateParams struct {
	ID          ID
	UserID      user.ID
	VehicleID   vehicle.ID
	StationID   station.ID
	Range       daterange.DateRange
	PickupTime  station.TimeOfDay
	ReturnTime  station.TimeOfDay
	PricePerDay money.Money
	Deposit     money.Money
	Policy      Policy
	CreatedAt   time.Time
}

func NewBooking(params CreateParams) (*Booking, error) {
	if params.UserID == "" {
		return nil, errors.New("booking: user id required")
	}
	if params.VehicleID == "" {
		return nil, errors.New("booking: vehicle id required")
	}
	if err := params.Range.Validate(); err != nil {
		return nil, err
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	days := params.Range.Days()
	code := NewCode()
	b := &Booking{
		ID:          params.ID,
		Code:        code,
		UserID:      params.UserID,
		VehicleID:   params.VehicleID,
		StationID:   params.StationID,
		Range:       params.Range,
		PickupTime:  params.PickupTime,
		ReturnTime:  params.ReturnTime,
		PricePerDay: params.PricePerDay,
		TotalDays:   days,
		TotalPrice:  params.PricePerDay.Multiply(int64(days)),
		Deposit:     params.Deposit,
		Status:      StatusPending,
		QRToken:     code,
		QRExpiresAt: params.Range.Start.Add(params.Policy.checkInWindow()),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.Record(Created{
		BaseEvent: events.BaseEvent{Name: "booking.created", Aggregate: string(b.ID), Time: now},
		Code:      b.Code, UserID: b.UserID, VehicleID: b.VehicleID, StationID: b.StationID,
		Start: b.Range.Start, End: b.Range.End, Total: b.TotalPrice, Deposit: b.Deposit,
	})
	return b, nil
}

// IsCheckedIn reports whether the renter has scanned in.
func (b *Booking) IsCheckedIn() bool {
	return b.QRUsedAt != nil
}

// ScanCheckIn validates the one-time check-in token. The first successful
// scan stamps QRUsedAt; repeat scans before confirmation report
// alreadyCheckedIn without touching the stamp.
func (b *Booking) ScanCheckIn(staff *user.User, now time.Time) (alreadyCheckedIn bool, err error) {
	if b.Status == StatusCancelled {
		return false, ErrNotScannable
	}
	if staff == nil || !staff.IsStaffOf(b.StationID) {
		return false, ErrWrongStation
	}
	now = now.UTC()
	if now.After(b.QRExpiresAt) {
		return false, ErrCheckInExpired
	}
	if b.QRUsedAt != nil {
		return true, nil
	}
	b.QRUsedAt = &now
	b.UpdatedAt = now
	b.Record(CheckedIn{
		BaseEvent: events.BaseEvent{Name: "booking.checked_in", Aggregate: string(b.ID), Time: now},
		Code:      b.Code, StaffID: staff.ID,
	})
	return false, nil
}

// Confirm flips a checked-in pending booking to confirmed. The caller is
// responsible for the KYC guard and for spawning the rental records.
func (b *Booking) Confirm(staffID user.ID, now time.Time) error {
	if b.Status != StatusPending {
		return ErrNotPending
	}
	if !b.IsCheckedIn() {
		return ErrNotCheckedIn
	}
	now = now.UTC()
	b.Status = StatusConfirmed
	b.ConfirmedBy = staffID
	b.ConfirmedAt = &now
	b.UpdatedAt = now
	b.Record(Confirmed{
		BaseEvent: events.BaseEvent{Name: "booking.confirmed", Aggregate: string(b.ID), Time: now},
		Code:      b.Code, StaffID: staffID, VehicleID: b.VehicleID,
	})
	return nil
}

// Cancel applies the renter/staff cancellation rule: only pending bookings,
// and only while the instant is more than the policy window before the
// rental start. Cancelling twice is an error, not a no-op.
func (b *Booking) Cancel(actorID user.ID, reason string, policy Policy, now time.Time) error {
	if b.Status == StatusCancelled {
		return ErrAlreadyCancelled
	}
	if b.Status != StatusPending {
		return ErrNotPending
	}
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	now = now.UTC()
	if !now.Before(b.Range.Start.Add(-policy.cancellationWindow())) {
		return ErrNotCancellable
	}
	b.cancel(actorID, reason, now)
	return nil
}

// ForceExpire is the sweeper's cancellation path. It deliberately skips the
// window guard: it reclaims bookings that already violate it.
func (b *Booking) ForceExpire(now time.Time) error {
	if b.Status != StatusPending {
		return ErrNotPending
	}
	now = now.UTC()
	b.cancel("", ExpiredReason, now)
	return nil
}

func (b *Booking) cancel(actorID user.ID, reason string, now time.Time) {
	b.Status = StatusCancelled
	b.CancelReason = reason
	b.CancelledBy = actorID
	b.CancelledAt = &now
	b.UpdatedAt = now
	b.Record(Cancelled{
		BaseEvent: events.BaseEvent{Name: "booking.cancelled", Aggregate: string(b.ID), Time: now},
		Code:      b.Code, ActorID: actorID, Reason: reason, VehicleID: b.VehicleID,
	})
}

// NewCode mints a human-readable booking code. The code doubles as the
// check-in token, so it only needs to be unique, not secret.
func NewCode() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// ErrShortBuffer aside, rand.Read does not fail on supported platforms.
		panic(err)
	}
	return "BK-" + strings.ToUpper(hex.EncodeToString(buf))
}

// Repository is the storage contract for bookings.
type Repository interface {
	ByID(ctx context.Context, id ID) (*Booking, error)
	ByCode(ctx context.Context, code string) (*Booking, error)
	Save(ctx context.Context, b *Booking) error

	// CountActiveByUser counts the user's pending and confirmed bookings
	// whose window has not ended by now. Finished bookings are history and
	// do not occupy an active slot.
	CountActiveByUser(ctx context.Context, userID user.ID, now time.Time) (int, error)

	// FindByUser returns all bookings of the user, newest first.
	FindByUser(ctx context.Context, userID user.ID) ([]*Booking, error)

	// FindOverlapping returns non-cancelled bookings on any of the given
	// vehicles whose window intersects dr.
	FindOverlapping(ctx context.Context, vehicleIDs []vehicle.ID, dr daterange.DateRange) ([]*Booking, error)

	// FindExpiredPending returns pending bookings past their reclaim
	// horizon: now beyond start+grace, or now beyond the window end.
	FindExpiredPending(ctx context.Context, now time.Time, grace time.Duration) ([]*Booking, error)
}
