package payment

import (
	"context"
	"errors"
	"time"

	"motorent/internal/domain/booking"
	"motorent/internal/domain/rental"
	"motorent/internal/domain/shared/money"
	"motorent/internal/domain/user"
)

var (
	ErrNotFound       = errors.New("payment: not found")
	ErrInvalidType    = errors.New("payment: invalid type")
	ErrInvalidState   = errors.New("payment: invalid status transition")
	ErrNegativeAmount = errors.New("payment: amount must not be negative")
)

type ID string

type Type string

const (
	TypeDeposit       Type = "deposit"
	TypeRentalFee     Type = "rental_fee"
	TypeAdditionalFee Type = "additional_fee"
	TypeRefund        Type = "refund"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Payment is a monetary obligation tied to a booking and, once one exists,
// its rental.
type Payment struct {
	ID        ID
	BookingID booking.ID
	RentalID  rental.ID
	UserID    user.ID
	Amount    money.Money
	Method    string
	Type      Type
	Status    Status
	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CreateParams struct {
	ID        ID
	BookingID booking.ID
	RentalID  rental.ID
	UserID    user.ID
	Amount    money.Money
	Method    string
	Type      Type
	CreatedAt time.Time
}

// NewPayment records an obligation. A zero amount needs no transfer and is
// completed on the spot.
func NewPayment(params CreateParams) (*Payment, error) {
	switch params.Type {
	case TypeDeposit, TypeRentalFee, TypeAdditionalFee, TypeRefund:
	default:
		return nil, ErrInvalidType
	}
	if params.Amount.Amount < 0 {
		return nil, ErrNegativeAmount
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	p := &Payment{
		ID:        params.ID,
		BookingID: params.BookingID,
		RentalID:  params.RentalID,
		UserID:    params.UserID,
		Amount:    params.Amount,
		Method:    params.Method,
		Type:      params.Type,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.Amount.IsZero() {
		p.Status = StatusCompleted
		p.PaidAt = &now
	}
	return p, nil
}

// Complete marks the obligation settled.
func (p *Payment) Complete(now time.Time) error {
	if p.Status != StatusPending {
		return ErrInvalidState
	}
	now = now.UTC()
	p.Status = StatusCompleted
	p.PaidAt = &now
	p.UpdatedAt = now
	return nil
}

// Cancel voids a pending obligation.
func (p *Payment) Cancel(now time.Time) error {
	if p.Status != StatusPending {
		return ErrInvalidState
	}
	p.Status = StatusCancelled
	p.UpdatedAt = now.UTC()
	return nil
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Payment, error)
	ByBookingID(ctx context.Context, id booking.ID) ([]*Payment, error)
	Save(ctx context.Context, p *Payment) error
}
