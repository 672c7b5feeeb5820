package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"motorent/internal/app/commands"
	"motorent/internal/app/outbox"
	"motorent/internal/app/uow"
	domainuser "motorent/internal/domain/user"
)

const scanCheckInKey = "booking.scan_checkin"

type ScanCheckInCommand struct {
	CommandID string
	StaffID   string
	Token     string
}

func (c ScanCheckInCommand) Key() string { return scanCheckInKey }

func (c ScanCheckInCommand) Validate() error {
	switch {
	case c.StaffID == "":
		return errors.New("booking: staff id required")
	case c.Token == "":
		return errors.New("booking: qr token required")
	}
	return nil
}

type ScanCheckInResult struct {
	BookingID        string    `json:"booking_id"`
	Code             string    `json:"code"`
	CheckedInAt      time.Time `json:"checked_in_at"`
	AlreadyCheckedIn bool      `json:"already_checked_in"`
}

// ScanCheckInHandler resolves a QR token scanned at the station desk and
// marks the booking checked in. Repeated scans of the same token report the
// original check-in instead of failing.
type ScanCheckInHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
}

func (h *ScanCheckInHandler) Handle(ctx context.Context, cmd ScanCheckInCommand) (*ScanCheckInResult, error) {
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

	staff, err := unit.Users().ByID(ctx, domainuser.ID(cmd.StaffID))
	if err != nil {
		return nil, err
	}
	bk, err := unit.Bookings().ByCode(ctx, cmd.Token)
	if err != nil {
		return nil, err
	}

	already, err := bk.ScanCheckIn(staff, now)
	if err != nil {
		return nil, err
	}
	if !already {
		if err := unit.Bookings().Save(ctx, bk); err != nil {
			return nil, err
		}
		evs := bk.PendingEvents()
		bk.ClearEvents()
		if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.encoder(), evs); err != nil {
			return nil, err
		}
	}

	if managed {
		if err := unit.Commit(ctx); err != nil {
			return nil, err
		}
		committed = true
	}

	if h.Logger != nil {
		h.Logger.Info("booking scanned", "booking_id", bk.ID, "staff_id", staff.ID, "already_checked_in", already)
	}

	return &ScanCheckInResult{
		BookingID:        string(bk.ID),
		Code:             bk.Code,
		CheckedInAt:      *bk.QRUsedAt,
		AlreadyCheckedIn: already,
	}, nil
}

func (h *ScanCheckInHandler) encoder() outbox.EventEncoder {
	if h.Encoder != nil {
		return h.Encoder
	}
	return outbox.JSONEventEncoder{}
}

var _ commands.Handler[ScanCheckInCommand, *ScanCheckInResult] = (*ScanCheckInHandler)(nil)
