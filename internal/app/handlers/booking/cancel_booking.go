package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"motorent/internal/app/allocation"
	"motorent/internal/app/commands"
	"motorent/internal/app/middleware"
	"motorent/internal/app/outbox"
	"motorent/internal/app/policies"
	"motorent/internal/app/uow"
	domainbooking "motorent/internal/domain/booking"
	domainuser "motorent/internal/domain/user"
)

const cancelBookingKey = "booking.cancel"

type CancelBookingCommand struct {
	CommandID       string
	ActorID         string
	BookingID       string
	Reason          string
	IdempotencyKeyV string
}

func (c CancelBookingCommand) Key() string { return cancelBookingKey }

func (c CancelBookingCommand) Validate() error {
	switch {
	case c.ActorID == "":
		return errors.New("booking: actor id required")
	case c.BookingID == "":
		return errors.New("booking: booking id required")
	}
	return nil
}

func (c CancelBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CancelBookingCommand) ResultPrototype() any { return &CancelBookingResult{} }

type CancelBookingResult struct {
	BookingID   string    `json:"booking_id"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// CancelBookingHandler applies the renter/staff cancellation path with the
// two-hour guard.
type CancelBookingHandler struct {
	UoWFactory uow.UoWFactory
	Policy     domainbooking.Policy
	Allocator  allocation.Allocator
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Notifier   policies.Notifier
	Logger     *slog.Logger
}

func (h *CancelBookingHandler) Handle(ctx context.Context, cmd CancelBookingCommand) (*CancelBookingResult, error) {
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

	bk, err := unit.Bookings().ByID(ctx, domainbooking.ID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	actor, err := unit.Users().ByID(ctx, domainuser.ID(cmd.ActorID))
	if err != nil {
		return nil, err
	}
	if actor.ID != bk.UserID && !actor.IsStaffOf(bk.StationID) && !actor.HasRole(domainuser.RoleAdmin) {
		return nil, domainuser.ErrForbidden
	}

	if err := bk.Cancel(actor.ID, cmd.Reason, h.Policy, now); err != nil {
		return nil, err
	}
	if err := unit.Bookings().Save(ctx, bk); err != nil {
		return nil, err
	}
	// Pending bookings do not hold their unit, so this only matters when a
	// crash left the vehicle parked in reserved mid-creation.
	h.Allocator.Release(ctx, unit, bk.VehicleID)

	evs := bk.PendingEvents()
	bk.ClearEvents()
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.encoder(), evs); err != nil {
		return nil, err
	}

	if managed {
		if err := unit.Commit(ctx); err != nil {
			return nil, err
		}
		committed = true
	}

	h.notifyCancelled(ctx, unit, bk)

	return &CancelBookingResult{BookingID: string(bk.ID), CancelledAt: *bk.CancelledAt}, nil
}

func (h *CancelBookingHandler) notifyCancelled(ctx context.Context, unit uow.UnitOfWork, bk *domainbooking.Booking) {
	if h.Notifier == nil {
		return
	}
	renter, err := unit.Users().ByID(ctx, bk.UserID)
	if err != nil {
		return
	}
	subject := fmt.Sprintf("Booking %s cancelled", bk.Code)
	body := fmt.Sprintf("<p>Your booking <b>%s</b> was cancelled: %s.</p>", bk.Code, bk.CancelReason)
	if err := h.Notifier.Send(ctx, renter.Email, subject, body); err != nil && h.Logger != nil {
		h.Logger.Warn("cancellation notification failed", "booking_id", bk.ID, "error", err)
	}
}

func (h *CancelBookingHandler) encoder() outbox.EventEncoder {
	if h.Encoder != nil {
		return h.Encoder
	}
	return outbox.JSONEventEncoder{}
}

var _ commands.Handler[CancelBookingCommand, *CancelBookingResult] = (*CancelBookingHandler)(nil)
var _ middleware.IdempotentCommand = (*CancelBookingCommand)(nil)
