package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"motorent/internal/app/commands"
	"motorent/internal/app/middleware"
	"motorent/internal/app/outbox"
	"motorent/internal/app/policies"
	"motorent/internal/app/saga"
	"motorent/internal/app/uow"
	domainbooking "motorent/internal/domain/booking"
	domaincontract "motorent/internal/domain/contract"
	domainpayment "motorent/internal/domain/payment"
	domainrental "motorent/internal/domain/rental"
	domainuser "motorent/internal/domain/user"
	domainvehicle "motorent/internal/domain/vehicle"
)

const confirmBookingKey = "booking.confirm"

var (
	// ErrKycNotApproved blocks confirmation until identity verification
	// (handled by an external pipeline) has approved the renter.
	ErrKycNotApproved = errors.New("booking: renter identity verification not approved")
)

type ConfirmBookingCommand struct {
	CommandID       string
	StaffID         string
	BookingID       string
	Before          domainrental.ConditionReport
	ContractTplID   string
	IdempotencyKeyV string
}

func (c ConfirmBookingCommand) Key() string { return confirmBookingKey }

func (c ConfirmBookingCommand) Validate() error {
	switch {
	case c.StaffID == "":
		return errors.New("booking: staff id required")
	case c.BookingID == "":
		return errors.New("booking: booking id required")
	}
	return nil
}

func (c ConfirmBookingCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c ConfirmBookingCommand) ResultPrototype() any { return &ConfirmBookingResult{} }

type ConfirmBookingResult struct {
	BookingID  string `json:"booking_id"`
	RentalID   string `json:"rental_id"`
	PaymentID  string `json:"payment_id"`
	ContractID string `json:"contract_id"`
	Deposit    int64  `json:"deposit"`
}

// ConfirmBookingHandler turns a checked-in pending booking into an active
// rental with its deposit payment and contract, and flips the vehicle to
// rented. The four creations run as a saga: if a step fails after the
// rental exists, the rental is voided and the error is fatal for operator
// remediation, because the store gives no multi-document transaction.
type ConfirmBookingHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Notifier   policies.Notifier
	Logger     *slog.Logger
}

func (h *ConfirmBookingHandler) Handle(ctx context.Context, cmd ConfirmBookingCommand) (*ConfirmBookingResult, error) {
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
	staff, err := unit.Users().ByID(ctx, domainuser.ID(cmd.StaffID))
	if err != nil {
		return nil, err
	}
	renter, err := unit.Users().ByID(ctx, bk.UserID)
	if err != nil {
		return nil, err
	}
	if renter.KYC != domainuser.KYCApproved {
		return nil, ErrKycNotApproved
	}

	if err := bk.Confirm(staff.ID, now); err != nil {
		return nil, err
	}

	rent, err := domainrental.NewRental(domainrental.CreateParams{
		ID:            domainrental.ID(uuid.NewString()),
		BookingID:     bk.ID,
		UserID:        bk.UserID,
		VehicleID:     bk.VehicleID,
		StationID:     bk.StationID,
		PickupStaffID: staff.ID,
		PlannedEnd:    bk.ReturnTime.OnDate(bk.Range.End),
		Before:        cmd.Before,
		StartedAt:     now,
	})
	if err != nil {
		return nil, err
	}
	pay, err := domainpayment.NewPayment(domainpayment.CreateParams{
		ID:        domainpayment.ID(uuid.NewString()),
		BookingID: bk.ID,
		RentalID:  rent.ID,
		UserID:    bk.UserID,
		Amount:    bk.Deposit,
		Type:      domainpayment.TypeDeposit,
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	doc, err := domaincontract.NewContract(domaincontract.CreateParams{
		ID:         domaincontract.ID(uuid.NewString()),
		BookingID:  bk.ID,
		RentalID:   rent.ID,
		UserID:     bk.UserID,
		TemplateID: cmd.ContractTplID,
		CreatedAt:  now,
	})
	if err != nil {
		return nil, err
	}

	steps := []saga.Step{
		{
			Name:    "create rental",
			Execute: func(ctx context.Context) error { return unit.Rentals().Save(ctx, rent) },
			Compensate: func(ctx context.Context) error {
				if err := rent.Void("confirmation aborted", now); err != nil {
					return err
				}
				return unit.Rentals().Save(ctx, rent)
			},
		},
		{
			Name:    "create deposit payment",
			Execute: func(ctx context.Context) error { return unit.Payments().Save(ctx, pay) },
		},
		{
			Name:    "create contract",
			Execute: func(ctx context.Context) error { return unit.Contracts().Save(ctx, doc) },
		},
		{
			// Pending bookings leave their unit available; losing this
			// flip means another rental took the vehicle first.
			Name: "claim vehicle for rental",
			Execute: func(ctx context.Context) error {
				return unit.Vehicles().CompareAndSetStatus(ctx, bk.VehicleID, domainvehicle.StatusAvailable, domainvehicle.StatusRented)
			},
		},
	}
	if err := saga.Run(ctx, steps); err != nil {
		if errors.Is(err, saga.ErrFatal) && h.Logger != nil {
			h.Logger.Error("confirmation left inconsistent records, operator intervention required",
				"booking_id", bk.ID, "rental_id", rent.ID, "error", err)
		}
		return nil, err
	}

	if err := unit.Bookings().Save(ctx, bk); err != nil {
		return nil, fmt.Errorf("%w: booking flip after rental creation: %v", saga.ErrFatal, err)
	}

	evs := append(bk.PendingEvents(), rent.PendingEvents()...)
	bk.ClearEvents()
	rent.ClearEvents()
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.encoder(), evs); err != nil {
		return nil, err
	}

	if managed {
		if err := unit.Commit(ctx); err != nil {
			return nil, err
		}
		committed = true
	}

	h.notifyConfirmed(ctx, renter, bk)

	return &ConfirmBookingResult{
		BookingID:  string(bk.ID),
		RentalID:   string(rent.ID),
		PaymentID:  string(pay.ID),
		ContractID: string(doc.ID),
		Deposit:    pay.Amount.Amount,
	}, nil
}

func (h *ConfirmBookingHandler) notifyConfirmed(ctx context.Context, renter *domainuser.User, bk *domainbooking.Booking) {
	if h.Notifier == nil {
		return
	}
	subject := fmt.Sprintf("Booking %s confirmed", bk.Code)
	body := fmt.Sprintf("<p>Your booking <b>%s</b> is confirmed. Enjoy the ride.</p>", bk.Code)
	if err := h.Notifier.Send(ctx, renter.Email, subject, body); err != nil && h.Logger != nil {
		h.Logger.Warn("confirmation notification failed", "booking_id", bk.ID, "error", err)
	}
}

func (h *ConfirmBookingHandler) encoder() outbox.EventEncoder {
	if h.Encoder != nil {
		return h.Encoder
	}
	return outbox.JSONEventEncoder{}
}

var _ commands.Handler[ConfirmBookingCommand, *ConfirmBookingResult] = (*ConfirmBookingHandler)(nil)
var _ middleware.IdempotentCommand = (*ConfirmBookingCommand)(nil)
