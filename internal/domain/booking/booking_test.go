package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motorent/internal/domain/shared/daterange"
	"motorent/internal/domain/shared/money"
	"motorent/internal/domain/station"
	"motorent/internal/domain/user"
)

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestBooking(t *testing.T, start, end time.Time) *Booking {
	t.Helper()
	dr, err := daterange.New(start, end)
	require.NoError(t, err)
	b, err := NewBooking(CreateParams{
		ID:          ID("bk-1"),
		UserID:      user.ID("u-1"),
		VehicleID:   "v-1",
		StationID:   station.ID("st-1"),
		Range:       dr,
		PricePerDay: money.VND(200_000),
		Deposit:     money.VND(0),
		Policy:      DefaultPolicy(),
		CreatedAt:   testNow,
	})
	require.NoError(t, err)
	return b
}

func staffAt(id station.ID) *user.User {
	return &user.User{
		ID:        user.ID("staff-1"),
		Roles:     []user.Role{user.RoleStaff},
		StationID: id,
		Active:    true,
	}
}

func TestNewBookingComputesTotalsAndToken(t *testing.T) {
	start := testNow.Add(48 * time.Hour)
	b := newTestBooking(t, start, start.Add(5*24*time.Hour))

	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, 5, b.TotalDays)
	assert.Equal(t, int64(1_000_000), b.TotalPrice.Amount)
	assert.Equal(t, b.Code, b.QRToken)
	assert.Equal(t, start.Add(24*time.Hour), b.QRExpiresAt)
	assert.Len(t, b.PendingEvents(), 1)
}

func TestScanCheckInIsIdempotent(t *testing.T) {
	start := testNow.Add(2 * time.Hour)
	b := newTestBooking(t, start, start.Add(24*time.Hour))
	staff := staffAt(b.StationID)

	already, err := b.ScanCheckIn(staff, testNow)
	require.NoError(t, err)
	assert.False(t, already)
	require.NotNil(t, b.QRUsedAt)
	first := *b.QRUsedAt

	already, err = b.ScanCheckIn(staff, testNow.Add(10*time.Minute))
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, first, *b.QRUsedAt, "second scan must not move the stamp")
}

func TestScanCheckInRejectsWrongStation(t *testing.T) {
	start := testNow.Add(2 * time.Hour)
	b := newTestBooking(t, start, start.Add(24*time.Hour))

	_, err := b.ScanCheckIn(staffAt("st-other"), testNow)
	assert.ErrorIs(t, err, ErrWrongStation)
}

func TestScanCheckInRejectsExpiredToken(t *testing.T) {
	start := testNow.Add(2 * time.Hour)
	b := newTestBooking(t, start, start.Add(24*time.Hour))

	late := b.QRExpiresAt.Add(time.Minute)
	_, err := b.ScanCheckIn(staffAt(b.StationID), late)
	assert.ErrorIs(t, err, ErrCheckInExpired)
}

func TestScanCheckInRejectsCancelledBooking(t *testing.T) {
	start := testNow.Add(48 * time.Hour)
	b := newTestBooking(t, start, start.Add(24*time.Hour))
	require.NoError(t, b.Cancel("u-1", "changed plans", DefaultPolicy(), testNow))

	_, err := b.ScanCheckIn(staffAt(b.StationID), testNow)
	assert.ErrorIs(t, err, ErrNotScannable)
}

func TestConfirmRequiresCheckIn(t *testing.T) {
	start := testNow.Add(2 * time.Hour)
	b := newTestBooking(t, start, start.Add(24*time.Hour))

	err := b.Confirm("staff-1", testNow)
	assert.ErrorIs(t, err, ErrNotCheckedIn)

	_, err = b.ScanCheckIn(staffAt(b.StationID), testNow)
	require.NoError(t, err)
	require.NoError(t, b.Confirm("staff-1", testNow))
	assert.Equal(t, StatusConfirmed, b.Status)
	require.NotNil(t, b.ConfirmedAt)

	// confirmed is terminal for the booking itself
	assert.ErrorIs(t, b.Confirm("staff-1", testNow), ErrNotPending)
	assert.ErrorIs(t, b.Cancel("u-1", "late regret", DefaultPolicy(), testNow), ErrNotPending)
}

func TestCancelGuardWindow(t *testing.T) {
	policy := DefaultPolicy()
	start := testNow.Add(4 * time.Hour)

	t.Run("more than two hours before start succeeds", func(t *testing.T) {
		b := newTestBooking(t, start, start.Add(24*time.Hour))
		err := b.Cancel("u-1", "changed plans", policy, start.Add(-2*time.Hour-time.Second))
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, b.Status)
		assert.Equal(t, "changed plans", b.CancelReason)
	})

	t.Run("exactly at the window boundary fails", func(t *testing.T) {
		b := newTestBooking(t, start, start.Add(24*time.Hour))
		err := b.Cancel("u-1", "changed plans", policy, start.Add(-2*time.Hour))
		assert.ErrorIs(t, err, ErrNotCancellable)
	})

	t.Run("inside the window fails", func(t *testing.T) {
		b := newTestBooking(t, start, start.Add(24*time.Hour))
		err := b.Cancel("u-1", "changed plans", policy, start.Add(-time.Hour))
		assert.ErrorIs(t, err, ErrNotCancellable)
	})

	t.Run("double cancel is rejected", func(t *testing.T) {
		b := newTestBooking(t, start, start.Add(24*time.Hour))
		require.NoError(t, b.Cancel("u-1", "changed plans", policy, testNow))
		assert.ErrorIs(t, b.Cancel("u-1", "again", policy, testNow), ErrAlreadyCancelled)
	})

	t.Run("empty reason is rejected", func(t *testing.T) {
		b := newTestBooking(t, start, start.Add(24*time.Hour))
		assert.ErrorIs(t, b.Cancel("u-1", "  ", policy, testNow), ErrReasonRequired)
	})
}

func TestForceExpireBypassesWindowGuard(t *testing.T) {
	start := testNow.Add(-3 * time.Hour) // already past start
	dr := daterange.DateRange{Start: start, End: start.Add(24 * time.Hour)}
	b := &Booking{
		ID: "bk-2", UserID: "u-1", VehicleID: "v-1", StationID: "st-1",
		Range: dr, Status: StatusPending,
	}

	require.ErrorIs(t, b.Cancel("u-1", "too late", DefaultPolicy(), testNow), ErrNotCancellable)

	require.NoError(t, b.ForceExpire(testNow))
	assert.Equal(t, StatusCancelled, b.Status)
	assert.Equal(t, ExpiredReason, b.CancelReason)

	assert.ErrorIs(t, b.ForceExpire(testNow), ErrNotPending)
}

func TestNewCodeShape(t *testing.T) {
	code := NewCode()
	assert.Regexp(t, `^BK-[0-9A-F]{8}$`, code)
	assert.NotEqual(t, code, NewCode())
}
