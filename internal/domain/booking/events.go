package booking

import (
	"time"

	"motorent/internal/domain/shared/events"
	"motorent/internal/domain/shared/money"
	"motorent/internal/domain/station"
	"motorent/internal/domain/user"
	"motorent/internal/domain/vehicle"
)

type Created struct {
	events.BaseEvent
	Code      string
	UserID    user.ID
	VehicleID vehicle.ID
	StationID station.ID
	Start     time.Time
	End       time.Time
	Total     money.Money
	Deposit   money.Money
}

type CheckedIn struct {
	events.BaseEvent
	Code    string
	StaffID user.ID
}

type Confirmed struct {
	events.BaseEvent
	Code      string
	StaffID   user.ID
	VehicleID vehicle.ID
}

type Cancelled struct {
	events.BaseEvent
	Code      string
	ActorID   user.ID
	Reason    string
	VehicleID vehicle.ID
}
