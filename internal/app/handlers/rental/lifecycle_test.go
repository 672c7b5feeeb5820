package rental

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motorent/internal/app/allocation"
	bookingapp "motorent/internal/app/handlers/booking"
	domainbooking "motorent/internal/domain/booking"
	domainpayment "motorent/internal/domain/payment"
	domainrental "motorent/internal/domain/rental"
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

func report(ext, intr domainrental.Condition, mileage int) domainrental.ConditionReport {
	return domainrental.ConditionReport{
		Mileage:      mileage,
		BatteryLevel: 80,
		Exterior:     ext,
		Interior:     intr,
	}
}

// Walks the full desk flow: reserve, scan, confirm, return, checkout.
func TestRentalLifecycle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(2 * time.Hour)

	create := &bookingapp.CreateBookingHandler{
		UoWFactory: fx.factory,
		Allocator:  allocation.Allocator{},
		Policy:     domainbooking.DefaultPolicy(),
		Fees:       domainrental.DefaultFeePolicy(),
		Outbox:     memory.NewOutbox(),
	}
	created, err := create.Handle(ctx, bookingapp.CreateBookingCommand{
		CommandID: "bk-1", UserID: string(fx.renter.ID),
		Model: "Klara S", Color: "red", StationID: "st-1",
		StartDate: start, EndDate: start.Add(4 * 24 * time.Hour),
		PickupTime: "09:00", ReturnTime: "18:00",
	})
	require.NoError(t, err)

	scan := &bookingapp.ScanCheckInHandler{UoWFactory: fx.factory, Outbox: memory.NewOutbox()}
	_, err = scan.Handle(ctx, bookingapp.ScanCheckInCommand{
		CommandID: "scan-1", StaffID: string(fx.staff.ID), Token: created.Code,
	})
	require.NoError(t, err)

	confirm := &bookingapp.ConfirmBookingHandler{UoWFactory: fx.factory, Outbox: memory.NewOutbox()}
	confirmed, err := confirm.Handle(ctx, bookingapp.ConfirmBookingCommand{
		CommandID: "cf-1", StaffID: string(fx.staff.ID),
		BookingID: created.BookingID,
		Before:    report(domainrental.ConditionGood, domainrental.ConditionGood, 1_000),
	})
	require.NoError(t, err)

	checkout := &CheckoutHandler{
		UoWFactory: fx.factory,
		Fees:       domainrental.DefaultFeePolicy(),
		Outbox:     memory.NewOutbox(),
	}
	res, err := checkout.Handle(ctx, CheckoutCommand{
		CommandID: "co-1", StaffID: string(fx.staff.ID),
		RentalID: confirmed.RentalID,
		After:    report(domainrental.ConditionGood, domainrental.ConditionGood, 1_150),
	})
	require.NoError(t, err)

	// Returned early and clean: nothing to charge.
	assert.Zero(t, res.LateFee)
	assert.Zero(t, res.DamageFee)
	assert.Zero(t, res.TotalDue)
	assert.Empty(t, res.PaymentID)
	assert.Equal(t, created.BookingID, res.BookingID)

	rent, err := fx.factory.RentalRepo.ByID(ctx, domainrental.ID(confirmed.RentalID))
	require.NoError(t, err)
	assert.Equal(t, domainrental.StatusCompleted, rent.Status)
	assert.Equal(t, 1_150, rent.After.Mileage)

	v, err := fx.factory.VehicleRepo.ByID(ctx, fx.vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, domainvehicle.StatusAvailable, v.Status)
	assert.Equal(t, 1_150, v.Mileage)
	assert.Equal(t, 80, v.BatteryLevel)
}

func seedActiveRental(t *testing.T, fx fixture, plannedEnd time.Time) *domainrental.Rental {
	t.Helper()
	ctx := context.Background()
	rent, err := domainrental.NewRental(domainrental.CreateParams{
		ID:            "rt-1",
		BookingID:     "bk-1",
		UserID:        fx.renter.ID,
		VehicleID:     fx.vehicle.ID,
		StationID:     "st-1",
		PickupStaffID: fx.staff.ID,
		PlannedEnd:    plannedEnd,
		Before:        report(domainrental.ConditionGood, domainrental.ConditionGood, 1_000),
	})
	require.NoError(t, err)
	rent.ClearEvents()
	require.NoError(t, fx.factory.RentalRepo.Save(ctx, rent))
	require.NoError(t, fx.factory.VehicleRepo.CompareAndSetStatus(ctx, fx.vehicle.ID,
		domainvehicle.StatusAvailable, domainvehicle.StatusReserved))
	require.NoError(t, fx.factory.VehicleRepo.CompareAndSetStatus(ctx, fx.vehicle.ID,
		domainvehicle.StatusReserved, domainvehicle.StatusRented))
	return rent
}

func TestCheckoutChargesLateAndDamageFees(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	// Two and a half hours overdue: three started hours at the hourly rate.
	rent := seedActiveRental(t, fx, time.Now().UTC().Add(-150*time.Minute))

	after := report(domainrental.ConditionFair, domainrental.ConditionGood, 1_300)
	after.Notes = "scratch on the left fender"

	checkout := &CheckoutHandler{
		UoWFactory: fx.factory,
		Fees:       domainrental.DefaultFeePolicy(),
		Outbox:     memory.NewOutbox(),
	}
	res, err := checkout.Handle(ctx, CheckoutCommand{
		CommandID: "co-1", StaffID: string(fx.staff.ID),
		RentalID: string(rent.ID), After: after, OtherFees: 20_000,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(30_000), res.LateFee)
	// Fair exterior surcharge plus the scratch keyword.
	assert.Equal(t, int64(150_000), res.DamageFee)
	assert.Equal(t, int64(20_000), res.OtherFee)
	assert.Equal(t, int64(200_000), res.TotalDue)
	require.NotEmpty(t, res.PaymentID)

	pay, err := fx.factory.PaymentRepo.ByID(ctx, domainpayment.ID(res.PaymentID))
	require.NoError(t, err)
	assert.Equal(t, domainpayment.TypeAdditionalFee, pay.Type)
	assert.Equal(t, domainpayment.StatusPending, pay.Status)
	assert.Equal(t, int64(200_000), pay.Amount.Amount)
}

func TestCheckoutRejectsForeignStaff(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	rent := seedActiveRental(t, fx, time.Now().UTC().Add(24*time.Hour))

	other, err := domainuser.NewUser(domainuser.CreateParams{
		ID: "u-staff2", Email: "staff2@example.com", Name: "Quan Vo",
		PasswordHash: "x", Roles: []domainuser.Role{domainuser.RoleStaff},
		StationID: "st-2",
	})
	require.NoError(t, err)
	require.NoError(t, fx.factory.UserRepo.Save(ctx, other))

	checkout := &CheckoutHandler{UoWFactory: fx.factory, Fees: domainrental.DefaultFeePolicy(), Outbox: memory.NewOutbox()}
	_, err = checkout.Handle(ctx, CheckoutCommand{
		CommandID: "co-1", StaffID: string(other.ID),
		RentalID: string(rent.ID),
		After:    report(domainrental.ConditionGood, domainrental.ConditionGood, 1_100),
	})
	assert.ErrorIs(t, err, domainuser.ErrForbidden)
}

func TestCheckoutTwiceFails(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	rent := seedActiveRental(t, fx, time.Now().UTC().Add(24*time.Hour))

	checkout := &CheckoutHandler{UoWFactory: fx.factory, Fees: domainrental.DefaultFeePolicy(), Outbox: memory.NewOutbox()}
	cmd := CheckoutCommand{
		CommandID: "co-1", StaffID: string(fx.staff.ID),
		RentalID: string(rent.ID),
		After:    report(domainrental.ConditionGood, domainrental.ConditionGood, 1_100),
	}
	_, err := checkout.Handle(ctx, cmd)
	require.NoError(t, err)

	_, err = checkout.Handle(ctx, cmd)
	assert.ErrorIs(t, err, domainrental.ErrNotActive)
}

func TestGetRentalProjectsFullRecord(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	rent := seedActiveRental(t, fx, time.Now().UTC().Add(24*time.Hour))

	get := &GetRentalHandler{UoWFactory: fx.factory}
	view, err := get.Handle(ctx, GetRentalQuery{RentalID: string(rent.ID)})
	require.NoError(t, err)
	assert.Equal(t, string(rent.ID), view.ID)
	assert.Equal(t, string(fx.renter.ID), view.UserID)
	assert.Equal(t, string(domainrental.StatusActive), view.Status)
	assert.Equal(t, 1_000, view.Before.Mileage)

	_, err = get.Handle(ctx, GetRentalQuery{RentalID: "missing"})
	assert.ErrorIs(t, err, domainrental.ErrNotFound)
}
