package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"motorent/internal/app/allocation"
	"motorent/internal/app/commands"
	"motorent/internal/app/middleware"
	"motorent/internal/app/outbox"
	"motorent/internal/app/policies"
	"motorent/internal/app/uow"
	domainbooking "motorent/internal/domain/booking"
	domainrental "motorent/internal/domain/rental"
	"motorent/internal/domain/shared/daterange"
	domainstation "motorent/internal/domain/station"
	domainuser "motorent/internal/domain/user"
	domainvehicle "motorent/internal/domain/vehicle"
)

const createBookingKey = "booking.create"

var ErrUnitOfWorkRequired = errors.New("booking: unit of work required")

type CreateBookingCommand struct {
	CommandID       string
	UserID          string
	Model           string
	Color           string
	StationID       string
	StartDate       time.Time
	EndDate         time.Time
	PickupTime      string
	ReturnTime      string
	IdempotencyKeyV string
}

func (c CreateBookingCommand) Key() string { return createBookingKey }

func (c CreateBookingCommand) Validate() error {
	switch {
	case c.UserID == "":
		return errors.New("booking: user id required")
	case c.Model == "":
		return errors.New("booking: model required")
	case c.StationID == "":
		return errors.New("booking: station id required")
	case c.EndDate.Before(c.StartDate):
		return errors.New("booking: end date before start date")
	}
	return nil
}

func (c CreateBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CreateBookingCommand) ResultPrototype() any { return &CreateBookingResult{} }

type CreateBookingResult struct {
	BookingID string `json:"booking_id"`
	Code      string `json:"code"`
	VehicleID string `json:"vehicle_id"`
	TotalDays int    `json:"total_days"`
	Total     int64  `json:"total_price"`
	Deposit   int64  `json:"deposit"`
}

// CreateBookingHandler reserves a vehicle and opens a pending booking.
type CreateBookingHandler struct {
	UoWFactory uow.UoWFactory
	Allocator  allocation.Allocator
	Policy     domainbooking.Policy
	Fees       domainrental.FeePolicy
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Notifier   policies.Notifier
	Logger     *slog.Logger
	// Conflicts counts allocation claim races lost; Created counts bookings
	// opened. Prometheus counters satisfy the interface.
	Conflicts interface{ Inc() }
	Created   interface{ Inc() }
}

func (h *CreateBookingHandler) Handle(ctx context.Context, cmd CreateBookingCommand) (*CreateBookingResult, error) {
	unit, ok := uow.FromContext(ctx)
	managed := false
	committed := false
	if !ok {
		if h.UoWFactory == nil {
			return nil, ErrUnitOfWorkRequired
		}
		var err error
		unit, err = h.UoWFactory.Begin(ctx, uow.TxOptions{})
		if err != nil {
			return nil, err
		}
		ctx = uow.ContextWithUnitOfWork(ctx, unit)
		managed = true
	}
	if managed {
		defer func() {
			if !committed {
				_ = unit.Rollback(ctx)
			}
		}()
	}

	now := time.Now().UTC()

	renter, err := unit.Users().ByID(ctx, domainuser.ID(cmd.UserID))
	if err != nil {
		return nil, err
	}
	if !renter.Active {
		return nil, domainuser.ErrInactive
	}

	dr, err := daterange.New(cmd.StartDate, cmd.EndDate)
	if err != nil {
		return nil, err
	}
	if err := h.Policy.ValidateWindow(dr, now); err != nil {
		return nil, err
	}

	pickupAt, returnAt, err := h.stationTimes(ctx, unit, domainstation.ID(cmd.StationID), cmd.PickupTime, cmd.ReturnTime)
	if err != nil {
		return nil, err
	}

	active, err := unit.Bookings().CountActiveByUser(ctx, renter.ID, now)
	if err != nil {
		return nil, err
	}
	if active >= h.Policy.MaxActive() {
		return nil, domainbooking.ErrTooManyActive
	}

	key := domainvehicle.SelectionKey{Model: cmd.Model, Color: cmd.Color, StationID: domainstation.ID(cmd.StationID)}
	vehicleID, err := h.Allocator.Allocate(ctx, unit, key, dr)
	if err != nil {
		if errors.Is(err, allocation.ErrConcurrentReservation) && h.Conflicts != nil {
			h.Conflicts.Inc()
		}
		return nil, err
	}

	claimed, err := unit.Vehicles().ByID(ctx, vehicleID)
	if err != nil {
		h.Allocator.Release(ctx, unit, vehicleID)
		return nil, err
	}

	bk, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:          domainbooking.ID(cmd.CommandID),
		UserID:      renter.ID,
		VehicleID:   vehicleID,
		StationID:   domainstation.ID(cmd.StationID),
		Range:       dr,
		PickupTime:  pickupAt,
		ReturnTime:  returnAt,
		PricePerDay: claimed.PricePerDay,
		Deposit:     h.Fees.Deposit(claimed.PricePerDay, dr.Days()),
		Policy:      h.Policy,
		CreatedAt:   now,
	})
	if err != nil {
		h.Allocator.Release(ctx, unit, vehicleID)
		return nil, err
	}

	if err := unit.Bookings().Save(ctx, bk); err != nil {
		h.Allocator.Release(ctx, unit, vehicleID)
		return nil, err
	}

	evs := bk.PendingEvents()
	bk.ClearEvents()
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.encoder(), evs); err != nil {
		return nil, err
	}

	// The claim only had to win the allocation race. Now that the booking
	// row exists, overlap detection is the conflict authority, so the unit
	// goes straight back to the pool for disjoint windows.
	h.Allocator.Release(ctx, unit, vehicleID)

	confirmCreated := func() {
		if h.Created != nil {
			h.Created.Inc()
		}
		h.notifyCreated(ctx, renter, bk)
	}
	if managed {
		if err := unit.Commit(ctx); err != nil {
			return nil, err
		}
		committed = true
		confirmCreated()
	} else {
		// The surrounding middleware owns the commit. Deferring the
		// counter and the email keeps them off rolled-back bookings.
		uow.AfterCommit(unit, confirmCreated)
	}

	return &CreateBookingResult{
		BookingID: string(bk.ID),
		Code:      bk.Code,
		VehicleID: string(bk.VehicleID),
		TotalDays: bk.TotalDays,
		Total:     bk.TotalPrice.Amount,
		Deposit:   bk.Deposit.Amount,
	}, nil
}

func (h *CreateBookingHandler) stationTimes(ctx context.Context, unit uow.UnitOfWork, stationID domainstation.ID, pickup, ret string) (domainstation.TimeOfDay, domainstation.TimeOfDay, error) {
	st, err := unit.Stations().ByID(ctx, stationID)
	if err != nil {
		return 0, 0, err
	}
	pickupAt, err := domainstation.ParseTimeOfDay(pickup)
	if err != nil {
		return 0, 0, err
	}
	returnAt, err := domainstation.ParseTimeOfDay(ret)
	if err != nil {
		return 0, 0, err
	}
	if err := st.WithinHours(pickupAt); err != nil {
		return 0, 0, err
	}
	if err := st.WithinHours(returnAt); err != nil {
		return 0, 0, err
	}
	return pickupAt, returnAt, nil
}

// notifyCreated is best-effort: a failed send never fails the booking.
func (h *CreateBookingHandler) notifyCreated(ctx context.Context, renter *domainuser.User, bk *domainbooking.Booking) {
	if h.Notifier == nil {
		return
	}
	subject := fmt.Sprintf("Booking %s received", bk.Code)
	body := fmt.Sprintf("<p>Your booking <b>%s</b> from %s to %s is awaiting confirmation. Total %d %s, deposit %d %s.</p>",
		bk.Code,
		bk.Range.Start.Format("2006-01-02"), bk.Range.End.Format("2006-01-02"),
		bk.TotalPrice.Amount, bk.TotalPrice.Currency,
		bk.Deposit.Amount, bk.Deposit.Currency,
	)
	if err := h.Notifier.Send(ctx, renter.Email, subject, body); err != nil && h.Logger != nil {
		h.Logger.Warn("booking confirmation notification failed", "booking_id", bk.ID, "error", err)
	}
}

func (h *CreateBookingHandler) encoder() outbox.EventEncoder {
	if h.Encoder != nil {
		return h.Encoder
	}
	return outbox.JSONEventEncoder{}
}

// NewCommandID mints the id reused as the booking id.
func NewCommandID() string { return uuid.NewString() }

var _ commands.Handler[CreateBookingCommand, *CreateBookingResult] = (*CreateBookingHandler)(nil)
var _ middleware.IdempotentCommand = (*CreateBookingCommand)(nil)
