package rental

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
	"motorent/internal/app/uow"
	domainpayment "motorent/internal/domain/payment"
	domainrental "motorent/internal/domain/rental"
	"motorent/internal/domain/shared/money"
	domainuser "motorent/internal/domain/user"
	domainvehicle "motorent/internal/domain/vehicle"
)

const checkoutKey = "rental.checkout"

var ErrUnitOfWorkRequired = errors.New("rental: unit of work required")

type CheckoutCommand struct {
	CommandID       string
	StaffID         string
	RentalID        string
	After           domainrental.ConditionReport
	OtherFees       int64
	Notes           string
	IdempotencyKeyV string
}

func (c CheckoutCommand) Key() string { return checkoutKey }

func (c CheckoutCommand) Validate() error {
	switch {
	case c.StaffID == "":
		return errors.New("rental: staff id required")
	case c.RentalID == "":
		return errors.New("rental: rental id required")
	case c.OtherFees < 0:
		return errors.New("rental: other fees must not be negative")
	}
	return nil
}

func (c CheckoutCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CheckoutCommand) ResultPrototype() any { return &CheckoutResult{} }

type CheckoutResult struct {
	RentalID  string    `json:"rental_id"`
	BookingID string    `json:"booking_id"`
	PaymentID string    `json:"payment_id,omitempty"`
	LateFee   int64     `json:"late_fee"`
	DamageFee int64     `json:"damage_fee"`
	OtherFee  int64     `json:"other_fee"`
	TotalDue  int64     `json:"total_due"`
	EndedAt   time.Time `json:"ended_at"`
}

// CheckoutHandler closes an active rental at the station desk: staff inspect
// the vehicle, fees are assessed against the return-time report, the vehicle
// returns to the available pool and any balance becomes a pending payment.
type CheckoutHandler struct {
	UoWFactory uow.UoWFactory
	Fees       domainrental.FeePolicy
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Notifier   policies.Notifier
	Logger     *slog.Logger

	// Completed is bumped once per successful checkout.
	Completed interface{ Inc() }
}

func (h *CheckoutHandler) Handle(ctx context.Context, cmd CheckoutCommand) (*CheckoutResult, error) {
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

	rent, err := unit.Rentals().ByID(ctx, domainrental.ID(cmd.RentalID))
	if err != nil {
		return nil, err
	}
	staff, err := unit.Users().ByID(ctx, domainuser.ID(cmd.StaffID))
	if err != nil {
		return nil, err
	}
	if !staff.IsStaffOf(rent.StationID) && !staff.HasRole(domainuser.RoleAdmin) {
		return nil, domainuser.ErrForbidden
	}

	after := cmd.After
	if cmd.Notes != "" && after.Notes == "" {
		after.Notes = cmd.Notes
	}

	fees, err := h.Fees.Assess(rent.PlannedEnd, now, after, money.VND(cmd.OtherFees))
	if err != nil {
		return nil, err
	}
	if err := rent.Close(staff.ID, after, fees, now); err != nil {
		return nil, err
	}

	veh, err := unit.Vehicles().ByID(ctx, rent.VehicleID)
	if err != nil {
		return nil, err
	}
	if err := veh.RecordReturn(after.Mileage, after.BatteryLevel, now); err != nil {
		return nil, err
	}
	if err := unit.Vehicles().Save(ctx, veh); err != nil {
		return nil, err
	}
	if err := unit.Vehicles().CompareAndSetStatus(ctx, rent.VehicleID, domainvehicle.StatusRented, domainvehicle.StatusAvailable); err != nil {
		return nil, err
	}

	if err := unit.Rentals().Save(ctx, rent); err != nil {
		return nil, err
	}

	var payID string
	if fees.Total.IsPositive() {
		pay, err := domainpayment.NewPayment(domainpayment.CreateParams{
			ID:        domainpayment.ID(uuid.NewString()),
			BookingID: rent.BookingID,
			RentalID:  rent.ID,
			UserID:    rent.UserID,
			Amount:    fees.Total,
			Type:      domainpayment.TypeAdditionalFee,
			CreatedAt: now,
		})
		if err != nil {
			return nil, err
		}
		if err := unit.Payments().Save(ctx, pay); err != nil {
			return nil, err
		}
		payID = string(pay.ID)
	}

	evs := rent.PendingEvents()
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

	if h.Completed != nil {
		h.Completed.Inc()
	}
	h.notifyReceipt(ctx, unit, rent)

	return &CheckoutResult{
		RentalID:  string(rent.ID),
		BookingID: string(rent.BookingID),
		PaymentID: payID,
		LateFee:   fees.Late.Amount,
		DamageFee: fees.Damage.Amount,
		OtherFee:  fees.Other.Amount,
		TotalDue:  fees.Total.Amount,
		EndedAt:   *rent.EndedAt,
	}, nil
}

func (h *CheckoutHandler) notifyReceipt(ctx context.Context, unit uow.UnitOfWork, rent *domainrental.Rental) {
	if h.Notifier == nil {
		return
	}
	renter, err := unit.Users().ByID(ctx, rent.UserID)
	if err != nil {
		return
	}
	subject := "Your rental receipt"
	body := fmt.Sprintf(
		"<p>Rental closed. Late fee: %d, damage fee: %d, other: %d. Total due: <b>%d %s</b>.</p>",
		rent.Fees.Late.Amount, rent.Fees.Damage.Amount, rent.Fees.Other.Amount,
		rent.Fees.Total.Amount, rent.Fees.Total.Currency,
	)
	if err := h.Notifier.Send(ctx, renter.Email, subject, body); err != nil && h.Logger != nil {
		h.Logger.Warn("receipt notification failed", "rental_id", rent.ID, "error", err)
	}
}

func (h *CheckoutHandler) encoder() outbox.EventEncoder {
	if h.Encoder != nil {
		return h.Encoder
	}
	return outbox.JSONEventEncoder{}
}

var _ commands.Handler[CheckoutCommand, *CheckoutResult] = (*CheckoutHandler)(nil)
var _ middleware.IdempotentCommand = (*CheckoutCommand)(nil)
