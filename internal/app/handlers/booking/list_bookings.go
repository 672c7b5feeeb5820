package booking

import (
	"context"
	"time"

	"motorent/internal/app/queries"
	"motorent/internal/app/uow"
	domainbooking "motorent/internal/domain/booking"
	domainuser "motorent/internal/domain/user"
)

const listBookingsKey = "booking.list"

type ListBookingsQuery struct {
	UserID string
}

func (q ListBookingsQuery) Key() string { return listBookingsKey }

type BookingView struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	VehicleID   string     `json:"vehicle_id"`
	StationID   string     `json:"station_id"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	PickupTime  string     `json:"pickup_time"`
	ReturnTime  string     `json:"return_time"`
	Status      string     `json:"status"`
	TotalPrice  int64      `json:"total_price"`
	Currency    string     `json:"currency"`
	Deposit     int64      `json:"deposit"`
	CheckedIn   bool       `json:"checked_in"`
	QRExpiresAt time.Time  `json:"qr_expires_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

type ListBookingsResult struct {
	Bookings []BookingView `json:"bookings"`
}

type ListBookingsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListBookingsHandler) Handle(ctx context.Context, q ListBookingsQuery) (*ListBookingsResult, error) {
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

	list, err := unit.Bookings().FindByUser(ctx, domainuser.ID(q.UserID))
	if err != nil {
		return nil, err
	}

	out := make([]BookingView, 0, len(list))
	for _, bk := range list {
		out = append(out, toBookingView(bk))
	}
	return &ListBookingsResult{Bookings: out}, nil
}

func toBookingView(bk *domainbooking.Booking) BookingView {
	return BookingView{
		ID:          string(bk.ID),
		Code:        bk.Code,
		VehicleID:   string(bk.VehicleID),
		StationID:   string(bk.StationID),
		Start:       bk.Range.Start,
		End:         bk.Range.End,
		PickupTime:  bk.PickupTime.String(),
		ReturnTime:  bk.ReturnTime.String(),
		Status:      string(bk.Status),
		TotalPrice:  bk.TotalPrice.Amount,
		Currency:    bk.TotalPrice.Currency,
		Deposit:     bk.Deposit.Amount,
		CheckedIn:   bk.IsCheckedIn(),
		QRExpiresAt: bk.QRExpiresAt,
		CancelledAt: bk.CancelledAt,
	}
}

var _ queries.Handler[ListBookingsQuery, *ListBookingsResult] = (*ListBookingsHandler)(nil)
