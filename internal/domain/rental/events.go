package rental

import (
	"motorent/internal/domain/booking"
	"motorent/internal/domain/shared/events"
	"motorent/internal/domain/user"
	"motorent/internal/domain/vehicle"
)

type Opened struct {
	events.BaseEvent
	BookingID booking.ID
	VehicleID vehicle.ID
	StaffID   user.ID
}

type Closed struct {
	events.BaseEvent
	BookingID booking.ID
	VehicleID vehicle.ID
	StaffID   user.ID
	Fees      FeeBreakdown
}

type Voided struct {
	events.BaseEvent
	BookingID booking.ID
	Reason    string
}
