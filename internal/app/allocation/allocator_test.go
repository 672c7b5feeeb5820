package allocation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motorent/internal/app/uow"
	domainbooking "motorent/internal/domain/booking"
	"motorent/internal/domain/shared/daterange"
	"motorent/internal/domain/shared/money"
	domainstation "motorent/internal/domain/station"
	domainvehicle "motorent/internal/domain/vehicle"
	"motorent/internal/infra/storage/memory"
)

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func seedVehicle(t *testing.T, f memory.Factory, id string) *domainvehicle.Vehicle {
	t.Helper()
	v, err := domainvehicle.NewVehicle(domainvehicle.CreateParams{
		ID:          domainvehicle.ID(id),
		Model:       "Klara S",
		Color:       "red",
		PricePerDay: money.VND(180_000),
		CreatedAt:   testNow,
	})
	require.NoError(t, err)
	require.NoError(t, v.Activate(domainstation.ID("st-1"), "59X1-12345", testNow))
	v.ClearEvents()
	require.NoError(t, f.VehicleRepo.Save(context.Background(), v))
	return v
}

func testKey() domainvehicle.SelectionKey {
	return domainvehicle.SelectionKey{Model: "Klara S", Color: "red", StationID: "st-1"}
}

func testRange(t *testing.T) daterange.DateRange {
	t.Helper()
	dr, err := daterange.New(testNow.Add(48*time.Hour), testNow.Add(96*time.Hour))
	require.NoError(t, err)
	return dr
}

func TestAllocateClaimsFreeUnit(t *testing.T) {
	ctx := context.Background()
	f := memory.NewFactory()
	v := seedVehicle(t, f, "v-1")

	unit, err := f.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)

	id, err := Allocator{}.Allocate(ctx, unit, testKey(), testRange(t))
	require.NoError(t, err)
	assert.Equal(t, v.ID, id)

	stored, err := f.VehicleRepo.ByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domainvehicle.StatusReserved, stored.Status)
}

func TestAllocateSingleWinnerUnderContention(t *testing.T) {
	ctx := context.Background()
	f := memory.NewFactory()
	seedVehicle(t, f, "v-1")

	const goroutines = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		losses  []error
	)
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unit, err := f.Begin(ctx, uow.TxOptions{})
			if err != nil {
				t.Error(err)
				return
			}
			<-start
			_, err = Allocator{}.Allocate(ctx, unit, testKey(), testRange(t))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
			} else {
				losses = append(losses, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one claim must win")
	require.Len(t, losses, goroutines-1)
	for _, err := range losses {
		assert.Contains(t,
			[]error{ErrConcurrentReservation, ErrNoAvailableVehicle}, err,
			"losers must see a claim race or an empty pool")
	}
}

func TestAllocateSkipsOverlappingBookings(t *testing.T) {
	ctx := context.Background()
	f := memory.NewFactory()
	v := seedVehicle(t, f, "v-1")
	dr := testRange(t)

	held, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:          "bk-held",
		UserID:      "u-other",
		VehicleID:   v.ID,
		StationID:   "st-1",
		Range:       dr,
		PricePerDay: money.VND(180_000),
		Policy:      domainbooking.DefaultPolicy(),
		CreatedAt:   testNow,
	})
	require.NoError(t, err)
	held.ClearEvents()
	require.NoError(t, f.BookingRepo.Save(ctx, held))

	unit, err := f.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)

	_, err = Allocator{}.Allocate(ctx, unit, testKey(), dr)
	assert.ErrorIs(t, err, ErrNoAvailableVehicle)

	// A disjoint window on the same unit is fine.
	later, err := daterange.New(dr.End.Add(24*time.Hour), dr.End.Add(72*time.Hour))
	require.NoError(t, err)
	id, err := Allocator{}.Allocate(ctx, unit, testKey(), later)
	require.NoError(t, err)
	assert.Equal(t, v.ID, id)
}

func TestReleaseReturnsUnitToPool(t *testing.T) {
	ctx := context.Background()
	f := memory.NewFactory()
	v := seedVehicle(t, f, "v-1")

	unit, err := f.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)

	id, err := Allocator{}.Allocate(ctx, unit, testKey(), testRange(t))
	require.NoError(t, err)

	Allocator{}.Release(ctx, unit, id)

	stored, err := f.VehicleRepo.ByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domainvehicle.StatusAvailable, stored.Status)
}

func TestReleaseIgnoresUnclaimedUnit(t *testing.T) {
	ctx := context.Background()
	f := memory.NewFactory()
	v := seedVehicle(t, f, "v-1")

	unit, err := f.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)

	// Pending bookings do not hold their unit, so a cancel or sweep may
	// release a vehicle that is already back in the pool.
	Allocator{}.Release(ctx, unit, v.ID)

	stored, err := f.VehicleRepo.ByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domainvehicle.StatusAvailable, stored.Status)
}
