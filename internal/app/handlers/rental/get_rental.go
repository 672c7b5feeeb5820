package rental

import (
	"context"
	"time"

	"motorent/internal/app/queries"
	"motorent/internal/app/uow"
	domainrental "motorent/internal/domain/rental"
)

const getRentalKey = "rental.get"

type GetRentalQuery struct {
	RentalID string
}

func (q GetRentalQuery) Key() string { return getRentalKey }

type RentalView struct {
	ID         string                       `json:"id"`
	BookingID  string                       `json:"booking_id"`
	UserID     string                       `json:"user_id"`
	VehicleID  string                       `json:"vehicle_id"`
	StationID  string                       `json:"station_id"`
	Status     string                       `json:"status"`
	StartedAt  time.Time                    `json:"started_at"`
	PlannedEnd time.Time                    `json:"planned_end"`
	EndedAt    *time.Time                   `json:"ended_at,omitempty"`
	Before     domainrental.ConditionReport `json:"before"`
	After      domainrental.ConditionReport `json:"after"`
	Fees       domainrental.FeeBreakdown    `json:"fees"`
}

type GetRentalHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetRentalHandler) Handle(ctx context.Context, q GetRentalQuery) (*RentalView, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		if h.UoWFactory == nil {
			return nil, ErrUnitOfWorkRequired
		}
		var err error
		unit, err = h.UoWFactory.Begin(ctx, uow.TxOptions{ReadOnly: true})
		if err != nil {
			return nil, err
		}
		defer func() { _ = unit.Rollback(ctx) }()
	}

	rent, err := unit.Rentals().ByID(ctx, domainrental.ID(q.RentalID))
	if err != nil {
		return nil, err
	}
	view := RentalView{
		ID:         string(rent.ID),
		BookingID:  string(rent.BookingID),
		UserID:     string(rent.UserID),
		VehicleID:  string(rent.VehicleID),
		StationID:  string(rent.StationID),
		Status:     string(rent.Status),
		StartedAt:  rent.StartedAt,
		PlannedEnd: rent.PlannedEnd,
		EndedAt:    rent.EndedAt,
		Before:     rent.Before,
		After:      rent.After,
		Fees:       rent.Fees,
	}
	return &view, nil
}

var _ queries.Handler[GetRentalQuery, *RentalView] = (*GetRentalHandler)(nil)
