package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motorent/internal/app/allocation"
	"motorent/internal/app/uow"
	domainbooking "motorent/internal/domain/booking"
	domainrental "motorent/internal/domain/rental"
	"motorent/internal/domain/shared/daterange"
	"motorent/internal/domain/shared/money"
	domainstation "motorent/internal/domain/station"
	domainuser "motorent/internal/domain/user"
	domainvehicle "motorent/internal/domain/vehicle"
	"motorent/internal/infra/storage/memory"
)

type fixture struct {
	factory memory.Factory
	renter  *domainuser.User
	staff   *domainuser.User
	vehicle *domainvehicle.Vehicle
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	f := memory.NewFactory()

	opens, err := domainstation.ParseTimeOfDay("06:00")
	require.NoError(t, err)
	closes, err := domainstation.ParseTimeOfDay("23:00")
	require.NoError(t, err)
	st, err := domainstation.NewStation(domainstation.CreateParams{
		ID:      "st-1",
		Name:    "District 1 Hub",
		OpensAt: opens, ClosesAt: closes,
	})
	require.NoError(t, err)
	require.NoError(t, f.StationRepo.Save(ctx, st))

	renter, err := domainuser.NewUser(domainuser.CreateParams{
		ID: "u-renter", Email: "renter@example.com", Name: "Linh Tran",
		PasswordHash: "x", Roles: []domainuser.Role{domainuser.RoleRenter},
	})
	require.NoError(t, err)
	renter.KYC = domainuser.KYCApproved
	require.NoError(t, f.UserRepo.Save(ctx, renter))

	staff, err := domainuser.NewUser(domainuser.CreateParams{
		ID: "u-staff", Email: "staff@example.com", Name: "Minh Ho",
		PasswordHash: "x", Roles: []domainuser.Role{domainuser.RoleStaff},
		StationID: st.ID,
	})
	require.NoError(t, err)
	require.NoError(t, f.UserRepo.Save(ctx, staff))

	v, err := domainvehicle.NewVehicle(domainvehicle.CreateParams{
		ID: "v-1", Model: "Klara S", Color: "red", PricePerDay: money.VND(180_000),
	})
	require.NoError(t, err)
	require.NoError(t, v.Activate(st.ID, "59X1-12345", time.Now()))
	v.ClearEvents()
	require.NoError(t, f.VehicleRepo.Save(ctx, v))

	return fixture{factory: f, renter: renter, staff: staff, vehicle: v}
}

func (fx fixture) createHandler() *CreateBookingHandler {
	return &CreateBookingHandler{
		UoWFactory: fx.factory,
		Allocator:  allocation.Allocator{},
		Policy:     domainbooking.DefaultPolicy(),
		Fees:       domainrental.DefaultFeePolicy(),
		Outbox:     memory.NewOutbox(),
	}
}

func (fx fixture) createBooking(t *testing.T, start time.Time) *CreateBookingResult {
	t.Helper()
	res, err := fx.createHandler().Handle(context.Background(), CreateBookingCommand{
		CommandID:  "bk-" + start.Format("0102T1504"),
		UserID:     string(fx.renter.ID),
		Model:      "Klara S",
		Color:      "red",
		StationID:  "st-1",
		StartDate:  start,
		EndDate:    start.Add(3 * 24 * time.Hour),
		PickupTime: "09:00",
		ReturnTime: "18:00",
	})
	require.NoError(t, err)
	return res
}

func goodReport() domainrental.ConditionReport {
	return domainrental.ConditionReport{
		Mileage:      1_200,
		BatteryLevel: 95,
		Exterior:     domainrental.ConditionGood,
		Interior:     domainrental.ConditionGood,
	}
}

func TestCreateBookingOpensPendingBooking(t *testing.T) {
	fx := newFixture(t)
	start := time.Now().UTC().Add(48 * time.Hour)

	res := fx.createBooking(t, start)

	assert.Equal(t, string(fx.vehicle.ID), res.VehicleID)
	assert.Equal(t, 3, res.TotalDays)
	assert.Equal(t, int64(540_000), res.Total)
	// Three-day rental meets the deposit threshold: half of the total.
	assert.Equal(t, int64(270_000), res.Deposit)

	// The allocation claim is released once the booking row lands; the
	// stored window is what blocks double booking from here on.
	v, err := fx.factory.VehicleRepo.ByID(context.Background(), fx.vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, domainvehicle.StatusAvailable, v.Status)

	bk, err := fx.factory.BookingRepo.ByID(context.Background(), domainbooking.ID(res.BookingID))
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusPending, bk.Status)
	assert.Equal(t, bk.Code, res.Code)
}

func TestCreateBookingEnforcesActiveLimit(t *testing.T) {
	fx := newFixture(t)
	h := fx.createHandler()
	h.Policy.MaxActiveBookings = 1
	start := time.Now().UTC().Add(48 * time.Hour)

	_, err := h.Handle(context.Background(), CreateBookingCommand{
		CommandID: "bk-first", UserID: string(fx.renter.ID),
		Model: "Klara S", Color: "red", StationID: "st-1",
		StartDate: start, EndDate: start.Add(24 * time.Hour),
		PickupTime: "09:00", ReturnTime: "18:00",
	})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), CreateBookingCommand{
		CommandID: "bk-second", UserID: string(fx.renter.ID),
		Model: "Klara S", Color: "red", StationID: "st-1",
		StartDate: start.Add(7 * 24 * time.Hour), EndDate: start.Add(8 * 24 * time.Hour),
		PickupTime: "09:00", ReturnTime: "18:00",
	})
	assert.ErrorIs(t, err, domainbooking.ErrTooManyActive)
}

func TestCreateBookingNoMatchingVehicle(t *testing.T) {
	fx := newFixture(t)
	start := time.Now().UTC().Add(48 * time.Hour)

	_, err := fx.createHandler().Handle(context.Background(), CreateBookingCommand{
		CommandID: "bk-none", UserID: string(fx.renter.ID),
		Model: "Theon", Color: "black", StationID: "st-1",
		StartDate: start, EndDate: start.Add(24 * time.Hour),
		PickupTime: "09:00", ReturnTime: "18:00",
	})
	assert.ErrorIs(t, err, domainbooking.ErrNoAvailableVehicle)
}

func TestScanCheckInStampsOnceAndReportsRepeats(t *testing.T) {
	fx := newFixture(t)
	created := fx.createBooking(t, time.Now().UTC().Add(2*time.Hour))
	scan := &ScanCheckInHandler{UoWFactory: fx.factory, Outbox: memory.NewOutbox()}

	first, err := scan.Handle(context.Background(), ScanCheckInCommand{
		CommandID: "scan-1", StaffID: string(fx.staff.ID), Token: created.Code,
	})
	require.NoError(t, err)
	assert.False(t, first.AlreadyCheckedIn)
	assert.False(t, first.CheckedInAt.IsZero())

	second, err := scan.Handle(context.Background(), ScanCheckInCommand{
		CommandID: "scan-2", StaffID: string(fx.staff.ID), Token: created.Code,
	})
	require.NoError(t, err)
	assert.True(t, second.AlreadyCheckedIn)
	assert.Equal(t, first.CheckedInAt, second.CheckedInAt)
}

func TestScanCheckInRejectsForeignStation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	created := fx.createBooking(t, time.Now().UTC().Add(2*time.Hour))

	other, err := domainuser.NewUser(domainuser.CreateParams{
		ID: "u-staff2", Email: "staff2@example.com", Name: "Quan Vo",
		PasswordHash: "x", Roles: []domainuser.Role{domainuser.RoleStaff},
		StationID: "st-2",
	})
	require.NoError(t, err)
	require.NoError(t, fx.factory.UserRepo.Save(ctx, other))

	scan := &ScanCheckInHandler{UoWFactory: fx.factory, Outbox: memory.NewOutbox()}
	_, err = scan.Handle(ctx, ScanCheckInCommand{
		CommandID: "scan-x", StaffID: string(other.ID), Token: created.Code,
	})
	assert.ErrorIs(t, err, domainbooking.ErrWrongStation)
}

func TestConfirmRequiresCheckIn(t *testing.T) {
	fx := newFixture(t)
	created := fx.createBooking(t, time.Now().UTC().Add(48*time.Hour))

	confirm := &ConfirmBookingHandler{UoWFactory: fx.factory, Outbox: memory.NewOutbox()}
	_, err := confirm.Handle(context.Background(), ConfirmBookingCommand{
		CommandID: "cf-1", StaffID: string(fx.staff.ID),
		BookingID: created.BookingID, Before: goodReport(),
	})
	assert.ErrorIs(t, err, domainbooking.ErrNotCheckedIn)
}

func TestConfirmRequiresApprovedKYC(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	created := fx.createBooking(t, time.Now().UTC().Add(2*time.Hour))

	scan := &ScanCheckInHandler{UoWFactory: fx.factory, Outbox: memory.NewOutbox()}
	_, err := scan.Handle(ctx, ScanCheckInCommand{
		CommandID: "scan-1", StaffID: string(fx.staff.ID), Token: created.Code,
	})
	require.NoError(t, err)

	fx.renter.KYC = domainuser.KYCPending
	require.NoError(t, fx.factory.UserRepo.Save(ctx, fx.renter))

	confirm := &ConfirmBookingHandler{UoWFactory: fx.factory, Outbox: memory.NewOutbox()}
	_, err = confirm.Handle(ctx, ConfirmBookingCommand{
		CommandID: "cf-1", StaffID: string(fx.staff.ID),
		BookingID: created.BookingID, Before: goodReport(),
	})
	assert.ErrorIs(t, err, ErrKycNotApproved)
}

func TestConfirmSpawnsRentalPaymentAndContract(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	created := fx.createBooking(t, time.Now().UTC().Add(2*time.Hour))

	scan := &ScanCheckInHandler{UoWFactory: fx.factory, Outbox: memory.NewOutbox()}
	_, err := scan.Handle(ctx, ScanCheckInCommand{
		CommandID: "scan-1", StaffID: string(fx.staff.ID), Token: created.Code,
	})
	require.NoError(t, err)

	confirm := &ConfirmBookingHandler{UoWFactory: fx.factory, Outbox: memory.NewOutbox()}
	res, err := confirm.Handle(ctx, ConfirmBookingCommand{
		CommandID: "cf-1", StaffID: string(fx.staff.ID),
		BookingID: created.BookingID, Before: goodReport(),
	})
	require.NoError(t, err)
	assert.Equal(t, created.Deposit, res.Deposit)

	bk, err := fx.factory.BookingRepo.ByID(ctx, domainbooking.ID(created.BookingID))
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusConfirmed, bk.Status)

	rent, err := fx.factory.RentalRepo.ByBookingID(ctx, bk.ID)
	require.NoError(t, err)
	assert.Equal(t, domainrental.StatusActive, rent.Status)
	assert.Equal(t, string(rent.ID), res.RentalID)

	pays, err := fx.factory.PaymentRepo.ByBookingID(ctx, bk.ID)
	require.NoError(t, err)
	require.Len(t, pays, 1)
	assert.Equal(t, created.Deposit, pays[0].Amount.Amount)

	_, err = fx.factory.ContractRepo.ByRentalID(ctx, rent.ID)
	assert.NoError(t, err)

	v, err := fx.factory.VehicleRepo.ByID(ctx, fx.vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, domainvehicle.StatusRented, v.Status)
}

func TestConfirmVoidsRentalWhenClaimFails(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	created := fx.createBooking(t, time.Now().UTC().Add(2*time.Hour))

	scan := &ScanCheckInHandler{UoWFactory: fx.factory, Outbox: memory.NewOutbox()}
	_, err := scan.Handle(ctx, ScanCheckInCommand{
		CommandID: "scan-1", StaffID: string(fx.staff.ID), Token: created.Code,
	})
	require.NoError(t, err)

	// Another rental takes the unit before confirmation; the claim step
	// expects it available and loses.
	require.NoError(t, fx.factory.VehicleRepo.CompareAndSetStatus(ctx, fx.vehicle.ID,
		domainvehicle.StatusAvailable, domainvehicle.StatusRented))

	confirm := &ConfirmBookingHandler{UoWFactory: fx.factory, Outbox: memory.NewOutbox()}
	_, err = confirm.Handle(ctx, ConfirmBookingCommand{
		CommandID: "cf-1", StaffID: string(fx.staff.ID),
		BookingID: created.BookingID, Before: goodReport(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domainvehicle.ErrStatusConflict)

	rent, err := fx.factory.RentalRepo.ByBookingID(ctx, domainbooking.ID(created.BookingID))
	require.NoError(t, err)
	assert.Equal(t, domainrental.StatusVoid, rent.Status)

	bk, err := fx.factory.BookingRepo.ByID(ctx, domainbooking.ID(created.BookingID))
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusPending, bk.Status, "booking stays pending for a retry")
}

func TestCancelByOwnerReleasesVehicle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	created := fx.createBooking(t, time.Now().UTC().Add(48*time.Hour))

	cancel := &CancelBookingHandler{
		UoWFactory: fx.factory,
		Policy:     domainbooking.DefaultPolicy(),
		Outbox:     memory.NewOutbox(),
	}
	res, err := cancel.Handle(ctx, CancelBookingCommand{
		CommandID: "cx-1", ActorID: string(fx.renter.ID),
		BookingID: created.BookingID, Reason: "change of plans",
	})
	require.NoError(t, err)
	assert.False(t, res.CancelledAt.IsZero())

	bk, err := fx.factory.BookingRepo.ByID(ctx, domainbooking.ID(created.BookingID))
	require.NoError(t, err)
	assert.Equal(t, domainbooking.StatusCancelled, bk.Status)

	v, err := fx.factory.VehicleRepo.ByID(ctx, fx.vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, domainvehicle.StatusAvailable, v.Status)
}

func TestCancelInsideWindowIsRejected(t *testing.T) {
	fx := newFixture(t)
	created := fx.createBooking(t, time.Now().UTC().Add(90*time.Minute))

	cancel := &CancelBookingHandler{
		UoWFactory: fx.factory,
		Policy:     domainbooking.DefaultPolicy(),
		Outbox:     memory.NewOutbox(),
	}
	_, err := cancel.Handle(context.Background(), CancelBookingCommand{
		CommandID: "cx-1", ActorID: string(fx.renter.ID),
		BookingID: created.BookingID, Reason: "too late",
	})
	assert.ErrorIs(t, err, domainbooking.ErrNotCancellable)
}

func TestCancelByStrangerIsForbidden(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	created := fx.createBooking(t, time.Now().UTC().Add(48*time.Hour))

	stranger, err := domainuser.NewUser(domainuser.CreateParams{
		ID: "u-other", Email: "other@example.com", Name: "Bao Nguyen",
		PasswordHash: "x", Roles: []domainuser.Role{domainuser.RoleRenter},
	})
	require.NoError(t, err)
	require.NoError(t, fx.factory.UserRepo.Save(ctx, stranger))

	cancel := &CancelBookingHandler{
		UoWFactory: fx.factory,
		Policy:     domainbooking.DefaultPolicy(),
		Outbox:     memory.NewOutbox(),
	}
	_, err = cancel.Handle(ctx, CancelBookingCommand{
		CommandID: "cx-1", ActorID: string(stranger.ID),
		BookingID: created.BookingID, Reason: "not mine",
	})
	assert.ErrorIs(t, err, domainuser.ErrForbidden)
}

func TestListBookingsReturnsNewestFirst(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(48 * time.Hour)
	first := fx.createBooking(t, start)
	second := fx.createBooking(t, start.Add(10*24*time.Hour))

	list := &ListBookingsHandler{UoWFactory: fx.factory}
	res, err := list.Handle(ctx, ListBookingsQuery{UserID: string(fx.renter.ID)})
	require.NoError(t, err)
	require.Len(t, res.Bookings, 2)
	ids := []string{res.Bookings[0].ID, res.Bookings[1].ID}
	assert.Contains(t, ids, first.BookingID)
	assert.Contains(t, ids, second.BookingID)
}

func TestCreateBookingAllowsDisjointWindowsOnSameVehicle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(48 * time.Hour)

	first := fx.createBooking(t, start)
	second := fx.createBooking(t, start.Add(7*24*time.Hour))
	assert.Equal(t, first.VehicleID, second.VehicleID)

	// A third window cutting into the first one must not double book.
	_, err := fx.createHandler().Handle(ctx, CreateBookingCommand{
		CommandID: "bk-overlap", UserID: string(fx.renter.ID),
		Model: "Klara S", Color: "red", StationID: "st-1",
		StartDate: start.Add(24 * time.Hour), EndDate: start.Add(2 * 24 * time.Hour),
		PickupTime: "09:00", ReturnTime: "18:00",
	})
	assert.ErrorIs(t, err, domainbooking.ErrNoAvailableVehicle)
}

func TestCreateBookingIgnoresFinishedBookingsInActiveCount(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// A confirmed booking whose window already ended is history, not an
	// occupied slot.
	dr, err := daterange.New(
		time.Now().UTC().Add(-10*24*time.Hour), time.Now().UTC().Add(-7*24*time.Hour))
	require.NoError(t, err)
	old, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID: "bk-history", UserID: fx.renter.ID, VehicleID: fx.vehicle.ID,
		StationID: "st-1", Range: dr, PricePerDay: fx.vehicle.PricePerDay,
		Policy: domainbooking.DefaultPolicy(),
	})
	require.NoError(t, err)
	old.Status = domainbooking.StatusConfirmed
	old.ClearEvents()
	require.NoError(t, fx.factory.BookingRepo.Save(ctx, old))

	h := fx.createHandler()
	h.Policy.MaxActiveBookings = 1
	start := time.Now().UTC().Add(48 * time.Hour)
	_, err = h.Handle(ctx, CreateBookingCommand{
		CommandID: "bk-next", UserID: string(fx.renter.ID),
		Model: "Klara S", Color: "red", StationID: "st-1",
		StartDate: start, EndDate: start.Add(24 * time.Hour),
		PickupTime: "09:00", ReturnTime: "18:00",
	})
	require.NoError(t, err)
}

type recordingNotifier struct{ sent []string }

func (n *recordingNotifier) Send(_ context.Context, to, subject, _ string) error {
	n.sent = append(n.sent, to+": "+subject)
	return nil
}

func TestCreateBookingNotifiesAfterTransactionCommits(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	notifier := &recordingNotifier{}
	h := fx.createHandler()
	h.Notifier = notifier

	unit, err := fx.factory.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)
	ctx = uow.ContextWithUnitOfWork(ctx, unit)

	start := time.Now().UTC().Add(48 * time.Hour)
	_, err = h.Handle(ctx, CreateBookingCommand{
		CommandID: "bk-tx", UserID: string(fx.renter.ID),
		Model: "Klara S", Color: "red", StationID: "st-1",
		StartDate: start, EndDate: start.Add(24 * time.Hour),
		PickupTime: "09:00", ReturnTime: "18:00",
	})
	require.NoError(t, err)
	assert.Empty(t, notifier.sent, "email must wait for the transaction")

	require.NoError(t, unit.Commit(ctx))
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0], fx.renter.Email)
}
