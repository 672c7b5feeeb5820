package booking

import (
	"errors"
	"time"

	"motorent/internal/domain/shared/daterange"
)

var (
	ErrStartInPast = errors.New("booking: start date is in the past")
	ErrTooLong     = errors.New("booking: window exceeds the maximum rental length")
	ErrTooFarAhead = errors.New("booking: start date is too far in advance")
)

// Policy holds the business constants of the booking lifecycle. The zero
// value falls back to defaults, so a Policy can be passed by value.
type Policy struct {
	MaxRentalDays      int
	MaxAdvanceDays     int
	MaxActiveBookings  int
	CancellationWindow time.Duration
	CheckInWindow      time.Duration
	SweepInterval      time.Duration
}

// DefaultPolicy mirrors the production policy constants.
func DefaultPolicy() Policy {
	return Policy{
		MaxRentalDays:      30,
		MaxAdvanceDays:     90,
		MaxActiveBookings:  3,
		CancellationWindow: 2 * time.Hour,
		CheckInWindow:      24 * time.Hour,
		SweepInterval:      30 * time.Minute,
	}
}

func (p Policy) maxRentalDays() int {
	if p.MaxRentalDays <= 0 {
		return 30
	}
	return p.MaxRentalDays
}

func (p Policy) maxAdvanceDays() int {
	if p.MaxAdvanceDays <= 0 {
		return 90
	}
	return p.MaxAdvanceDays
}

// MaxActive returns the per-user cap on simultaneously open bookings.
func (p Policy) MaxActive() int {
	if p.MaxActiveBookings <= 0 {
		return 3
	}
	return p.MaxActiveBookings
}

func (p Policy) cancellationWindow() time.Duration {
	if p.CancellationWindow <= 0 {
		return 2 * time.Hour
	}
	return p.CancellationWindow
}

// Grace returns how far past the window start a pending booking may sit
// before the sweeper reclaims its vehicle. It mirrors the cancellation
// window: once a booking is inside that window and still pending, only
// the sweeper may cancel it. The QR token stays scannable for the longer
// check-in window, but scanning presumes the booking survived the sweep.
func (p Policy) Grace() time.Duration {
	return p.cancellationWindow()
}

func (p Policy) checkInWindow() time.Duration {
	if p.CheckInWindow <= 0 {
		return 24 * time.Hour
	}
	return p.CheckInWindow
}

// Interval returns the sweep period for expired pending bookings.
func (p Policy) Interval() time.Duration {
	if p.SweepInterval <= 0 {
		return 30 * time.Minute
	}
	return p.SweepInterval
}

// ValidateWindow applies the create-time window rules: future start, bounded
// duration, bounded lead time. Range validity (end after start) is checked
// by daterange itself.
func (p Policy) ValidateWindow(dr daterange.DateRange, now time.Time) error {
	if err := dr.Validate(); err != nil {
		return err
	}
	now = now.UTC()
	if dr.Start.Before(now) {
		return ErrStartInPast
	}
	if dr.Days() > p.maxRentalDays() {
		return ErrTooLong
	}
	if dr.Start.After(now.AddDate(0, 0, p.maxAdvanceDays())) {
		return ErrTooFarAhead
	}
	return nil
}
