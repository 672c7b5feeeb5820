package rental

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motorent/internal/domain/shared/money"
)

func TestDepositThreshold(t *testing.T) {
	policy := DefaultFeePolicy()
	perDay := money.VND(300_000)

	tests := []struct {
		name string
		days int
		want int64
	}{
		{"one day has no deposit", 1, 0},
		{"two days have no deposit", 2, 0},
		{"three days hit the threshold", 3, 450_000},
		{"five days", 5, 750_000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := policy.Deposit(perDay, tc.days)
			assert.Equal(t, tc.want, got.Amount)
			assert.Equal(t, money.DefaultCurrency, got.Currency)
		})
	}
}

func TestLateFeeRoundsHoursUp(t *testing.T) {
	policy := DefaultFeePolicy()
	planned := time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC)

	assert.Zero(t, policy.LateFee(planned, planned).Amount)
	assert.Zero(t, policy.LateFee(planned, planned.Add(-time.Hour)).Amount)
	assert.Equal(t, int64(10_000), policy.LateFee(planned, planned.Add(30*time.Minute)).Amount)
	assert.Equal(t, int64(10_000), policy.LateFee(planned, planned.Add(time.Hour)).Amount)
	assert.Equal(t, int64(30_000), policy.LateFee(planned, planned.Add(3*time.Hour)).Amount)
	assert.Equal(t, int64(40_000), policy.LateFee(planned, planned.Add(3*time.Hour+time.Minute)).Amount)
}

func TestDamageFeeGradesAndKeywords(t *testing.T) {
	policy := DefaultFeePolicy()

	report := func(ext, intr Condition, notes string) ConditionReport {
		return ConditionReport{Mileage: 100, BatteryLevel: 50, Exterior: ext, Interior: intr, Notes: notes}
	}

	tests := []struct {
		name string
		rep  ConditionReport
		want int64
	}{
		{"all good", report(ConditionGood, ConditionGood, ""), 0},
		{"exterior fair", report(ConditionFair, ConditionGood, ""), 100_000},
		{"exterior poor", report(ConditionPoor, ConditionGood, ""), 200_000},
		{"interior fair", report(ConditionGood, ConditionFair, ""), 75_000},
		{"interior poor", report(ConditionGood, ConditionPoor, ""), 150_000},
		{"scratch keyword", report(ConditionGood, ConditionGood, "light scratches on the left panel"), 50_000},
		{"broken keyword", report(ConditionGood, ConditionGood, "mirror is broken"), 100_000},
		{"severe keyword", report(ConditionGood, ConditionGood, "severely damaged fairing"), 150_000},
		{"missing keyword", report(ConditionGood, ConditionGood, "missing helmet hook"), 200_000},
		{
			// surcharges stack
			"grades plus keywords",
			report(ConditionPoor, ConditionFair, "cracked light and missing mirror"),
			200_000 + 75_000 + 100_000 + 200_000,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, policy.DamageFee(tc.rep).Amount)
		})
	}
}

func TestAssessWorkedExample(t *testing.T) {
	// Returned 3 hours late with exterior fair and no damage keywords.
	policy := DefaultFeePolicy()
	planned := time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC)
	after := ConditionReport{Mileage: 1200, BatteryLevel: 40, Exterior: ConditionFair, Interior: ConditionGood}

	fees, err := policy.Assess(planned, planned.Add(3*time.Hour), after, money.Money{})
	require.NoError(t, err)
	assert.Equal(t, int64(30_000), fees.Late.Amount)
	assert.Equal(t, int64(100_000), fees.Damage.Amount)
	assert.Equal(t, int64(0), fees.Other.Amount)
	assert.Equal(t, int64(130_000), fees.Total.Amount)
}

func TestConditionReportValidate(t *testing.T) {
	base := ConditionReport{Mileage: 10, BatteryLevel: 90, Exterior: ConditionGood, Interior: ConditionGood}
	assert.NoError(t, base.Validate())

	missingExt := base
	missingExt.Exterior = ""
	assert.ErrorIs(t, missingExt.Validate(), ErrMissingCondition)

	badGrade := base
	badGrade.Interior = "mint"
	assert.ErrorIs(t, badGrade.Validate(), ErrInvalidCondition)

	badBattery := base
	badBattery.BatteryLevel = 101
	assert.ErrorIs(t, badBattery.Validate(), ErrInvalidBattery)

	badMileage := base
	badMileage.Mileage = -1
	assert.ErrorIs(t, badMileage.Validate(), ErrInvalidMileage)
}

func TestRentalCloseLifecycle(t *testing.T) {
	now := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	before := ConditionReport{Mileage: 1000, BatteryLevel: 100, Exterior: ConditionGood, Interior: ConditionGood}
	r, err := NewRental(CreateParams{
		ID: "rt-1", BookingID: "bk-1", UserID: "u-1", VehicleID: "v-1", StationID: "st-1",
		PickupStaffID: "staff-1", PlannedEnd: now.Add(48 * time.Hour), Before: before, StartedAt: now,
	})
	require.NoError(t, err)
	require.Equal(t, StatusActive, r.Status)

	after := ConditionReport{Mileage: 1100, BatteryLevel: 35, Exterior: ConditionGood, Interior: ConditionGood}
	fees := FeeBreakdown{Late: money.VND(0), Damage: money.VND(0), Other: money.VND(0)}
	require.NoError(t, r.Close("staff-2", after, fees, now.Add(47*time.Hour)))
	assert.Equal(t, StatusCompleted, r.Status)
	require.NotNil(t, r.EndedAt)

	// closed exactly once
	assert.ErrorIs(t, r.Close("staff-2", after, fees, now.Add(48*time.Hour)), ErrNotActive)
	assert.ErrorIs(t, r.Void("late void", now), ErrNotActive)
}
