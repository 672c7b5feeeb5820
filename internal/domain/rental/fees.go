package rental

import (
	"strings"
	"time"

	"motorent/internal/domain/shared/money"
)

// FeePolicy computes the deposit and the return-time fees. All functions
// are pure; amounts are VND.
type FeePolicy struct {
	// DepositThresholdDays is the rental length below which no deposit is
	// collected.
	DepositThresholdDays int
	// DepositPercent of the total price, charged at or above the threshold.
	DepositPercent int64
	// HourlyLateRate applies per started hour past the planned end.
	HourlyLateRate money.Money

	ExteriorPoorFee money.Money
	ExteriorFairFee money.Money
	InteriorPoorFee money.Money
	InteriorFairFee money.Money
}

// DefaultFeePolicy mirrors the production fee schedule.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		DepositThresholdDays: 3,
		DepositPercent:       50,
		HourlyLateRate:       money.VND(10_000),
		ExteriorPoorFee:      money.VND(200_000),
		ExteriorFairFee:      money.VND(100_000),
		InteriorPoorFee:      money.VND(150_000),
		InteriorFairFee:      money.VND(75_000),
	}
}

// damageLexicon maps free-text damage phrases to fixed surcharges. Matches
// are additive. TODO: replace with structured damage categories selected by
// staff and keep the free text as an audit note only.
var damageLexicon = []struct {
	keyword string
	amount  int64
}{
	{"scratch", 50_000},
	{"cracked", 100_000},
	{"broken", 100_000},
	{"severely damaged", 150_000},
	{"missing", 200_000},
}

// Deposit is zero for short rentals and a fixed share of the total price
// otherwise.
func (p FeePolicy) Deposit(pricePerDay money.Money, days int) money.Money {
	if days < p.DepositThresholdDays {
		return money.Money{Amount: 0, Currency: pricePerDay.Currency}
	}
	return pricePerDay.Multiply(int64(days)).Percent(p.DepositPercent)
}

// LateFee charges the hourly rate per started hour past the planned end.
func (p FeePolicy) LateFee(plannedEnd, returnedAt time.Time) money.Money {
	if !returnedAt.After(plannedEnd) {
		return money.Money{Amount: 0, Currency: p.HourlyLateRate.Currency}
	}
	overdue := returnedAt.Sub(plannedEnd)
	hours := int64(overdue / time.Hour)
	if overdue%time.Hour != 0 {
		hours++
	}
	return p.HourlyLateRate.Multiply(hours)
}

// DamageFee sums condition-grade surcharges with keyword surcharges from
// the free-text damage description.
func (p FeePolicy) DamageFee(after ConditionReport) money.Money {
	total := int64(0)
	switch after.Exterior {
	case ConditionPoor:
		total += p.ExteriorPoorFee.Amount
	case ConditionFair:
		total += p.ExteriorFairFee.Amount
	}
	switch after.Interior {
	case ConditionPoor:
		total += p.InteriorPoorFee.Amount
	case ConditionFair:
		total += p.InteriorFairFee.Amount
	}
	notes := strings.ToLower(after.Notes)
	for _, entry := range damageLexicon {
		if strings.Contains(notes, entry.keyword) {
			total += entry.amount
		}
	}
	return money.VND(total)
}

// Assess builds the full checkout fee breakdown. Other is the staff-entered
// extra charge, zero when absent.
func (p FeePolicy) Assess(plannedEnd, returnedAt time.Time, after ConditionReport, other money.Money) (FeeBreakdown, error) {
	if other.Currency == "" {
		other.Currency = p.HourlyLateRate.Currency
	}
	fees := FeeBreakdown{
		Late:   p.LateFee(plannedEnd, returnedAt),
		Damage: p.DamageFee(after),
		Other:  other,
	}
	if err := fees.Recalculate(); err != nil {
		return FeeBreakdown{}, err
	}
	return fees, nil
}
