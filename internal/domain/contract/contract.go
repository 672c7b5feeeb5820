package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"motorent/internal/domain/booking"
	"motorent/internal/domain/rental"
	"motorent/internal/domain/user"
)

var ErrNotFound = errors.New("contract: not found")

type ID string

// Contract references the paperwork generated from the active template at
// confirmation time. Template rendering itself happens outside this engine;
// only the reference and snapshot live here.
type Contract struct {
	ID         ID
	Number     string
	BookingID  booking.ID
	RentalID   rental.ID
	UserID     user.ID
	TemplateID string
	CreatedAt  time.Time
}

type CreateParams struct {
	ID         ID
	BookingID  booking.ID
	RentalID   rental.ID
	UserID     user.ID
	TemplateID string
	CreatedAt  time.Time
}

func NewContract(params CreateParams) (*Contract, error) {
	if params.BookingID == "" || params.RentalID == "" {
		return nil, errors.New("contract: booking and rental references required")
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Contract{
		ID:         params.ID,
		Number:     fmt.Sprintf("CT-%s", now.Format("20060102-150405")),
		BookingID:  params.BookingID,
		RentalID:   params.RentalID,
		UserID:     params.UserID,
		TemplateID: params.TemplateID,
		CreatedAt:  now,
	}, nil
}

type Repository interface {
	ByRentalID(ctx context.Context, id rental.ID) (*Contract, error)
	Save(ctx context.Context, c *Contract) error
}
