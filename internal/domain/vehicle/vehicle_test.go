package vehicle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motorent/internal/domain/shared/money"
)

func TestStatusTransitionGraph(t *testing.T) {
	allowed := [][2]Status{
		{StatusDraft, StatusAvailable},
		{StatusAvailable, StatusReserved},
		{StatusAvailable, StatusRented},
		{StatusAvailable, StatusMaintenance},
		{StatusReserved, StatusRented},
		{StatusReserved, StatusAvailable},
		{StatusRented, StatusAvailable},
		{StatusRented, StatusMaintenance},
		{StatusMaintenance, StatusAvailable},
	}
	for _, pair := range allowed {
		assert.True(t, CanTransition(pair[0], pair[1]), "%s -> %s should be legal", pair[0], pair[1])
	}

	forbidden := [][2]Status{
		{StatusDraft, StatusRented},
		{StatusRented, StatusReserved},
		{StatusMaintenance, StatusRented},
		{StatusReserved, StatusDraft},
		{StatusAvailable, StatusAvailable},
	}
	for _, pair := range forbidden {
		assert.False(t, CanTransition(pair[0], pair[1]), "%s -> %s should be rejected", pair[0], pair[1])
	}
}

func TestActivateRequiresPlateAndStation(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	v, err := NewVehicle(CreateParams{ID: "v-1", Model: "Klara S", Color: "white", Type: "scooter", PricePerDay: money.VND(200_000), CreatedAt: now})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, v.Status)

	assert.ErrorIs(t, v.Activate("st-1", "  ", now), ErrPlateRequired)
	assert.ErrorIs(t, v.Activate("", "59X1-123.45", now), ErrStationRequired)

	require.NoError(t, v.Activate("st-1", "59x1-123.45", now))
	assert.Equal(t, StatusAvailable, v.Status)
	assert.Equal(t, "59X1-123.45", v.Plate)

	assert.ErrorIs(t, v.Activate("st-1", "59X1-123.45", now), ErrInvalidState)
}

func TestRecordReturnGuards(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	v := &Vehicle{ID: "v-1", Mileage: 1000, BatteryLevel: 80, Status: StatusRented}

	assert.ErrorIs(t, v.RecordReturn(900, 50, now), ErrMileageDecreasing)
	assert.ErrorIs(t, v.RecordReturn(1100, 101, now), ErrInvalidBattery)

	require.NoError(t, v.RecordReturn(1100, 42, now))
	assert.Equal(t, 1100, v.Mileage)
	assert.Equal(t, 42, v.BatteryLevel)
}

func TestMatchesKey(t *testing.T) {
	v := &Vehicle{Model: "Klara S", Color: "white", StationID: "st-1"}
	assert.True(t, v.MatchesKey(SelectionKey{Model: "klara s", Color: "White", StationID: "st-1"}))
	assert.False(t, v.MatchesKey(SelectionKey{Model: "Klara S", Color: "black", StationID: "st-1"}))
	assert.False(t, v.MatchesKey(SelectionKey{Model: "Klara S", Color: "white", StationID: "st-2"}))
}
