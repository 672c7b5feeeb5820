package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"motorent/internal/app/allocation"
	"motorent/internal/app/outbox"
	"motorent/internal/app/policies"
	"motorent/internal/app/uow"
	domainbooking "motorent/internal/domain/booking"
)

var ErrFactoryRequired = errors.New("sweep: unit of work factory required")

// Sweeper periodically cancels pending bookings that sat past their grace
// window with nobody showing up, returning any still-claimed vehicle to the
// pool. Each booking is expired in its own unit of work so one poisoned
// record cannot stall the whole pass.
type Sweeper struct {
	UoWFactory uow.UoWFactory
	Policy     domainbooking.Policy
	Allocator  allocation.Allocator
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Notifier   policies.Notifier
	Logger     *slog.Logger

	// Reclaimed is bumped once per booking expired by the sweep.
	Reclaimed interface{ Inc() }
}

// Run blocks, sweeping on the policy interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.UoWFactory == nil {
		return ErrFactoryRequired
	}
	ticker := time.NewTicker(s.Policy.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := s.RunOnce(ctx, time.Now()); err != nil {
				s.log().Error("sweep pass failed", "error", err)
			} else if n > 0 {
				s.log().Info("sweep pass reclaimed bookings", "count", n)
			}
		}
	}
}

// RunOnce performs a single sweep pass and reports how many bookings it
// expired. Partial progress counts: an error on one booking does not undo
// earlier expirations in the same pass.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (int, error) {
	if s.UoWFactory == nil {
		return 0, ErrFactoryRequired
	}
	now = now.UTC()

	unit, err := s.UoWFactory.Begin(ctx, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return 0, err
	}
	stale, err := unit.Bookings().FindExpiredPending(ctx, now, s.Policy.Grace())
	_ = unit.Rollback(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	var firstErr error
	for _, bk := range stale {
		if err := s.expireOne(ctx, bk.ID, now); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("expire booking %s: %w", bk.ID, err)
			}
			s.log().Error("failed to expire stale booking", "booking_id", bk.ID, "error", err)
			continue
		}
		expired++
		if s.Reclaimed != nil {
			s.Reclaimed.Inc()
		}
	}
	return expired, firstErr
}

func (s *Sweeper) expireOne(ctx context.Context, id domainbooking.ID, now time.Time) error {
	unit, err := s.UoWFactory.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = unit.Rollback(ctx)
		}
	}()

	// Re-read under the write unit: a scan or cancellation may have raced
	// the listing.
	bk, err := unit.Bookings().ByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bk.ForceExpire(now); err != nil {
		if errors.Is(err, domainbooking.ErrNotPending) {
			return nil
		}
		return err
	}
	if err := unit.Bookings().Save(ctx, bk); err != nil {
		return err
	}
	s.Allocator.Release(ctx, unit, bk.VehicleID)

	evs := bk.PendingEvents()
	bk.ClearEvents()
	if err := outbox.RecordDomainEvents(ctx, s.Outbox, s.encoder(), evs); err != nil {
		return err
	}

	if err := unit.Commit(ctx); err != nil {
		return err
	}
	committed = true

	s.notifyExpired(ctx, unit, bk)
	return nil
}

func (s *Sweeper) notifyExpired(ctx context.Context, unit uow.UnitOfWork, bk *domainbooking.Booking) {
	if s.Notifier == nil {
		return
	}
	renter, err := unit.Users().ByID(ctx, bk.UserID)
	if err != nil {
		return
	}
	subject := fmt.Sprintf("Booking %s expired", bk.Code)
	body := fmt.Sprintf("<p>Your booking <b>%s</b> expired because it was not picked up in time.</p>", bk.Code)
	if err := s.Notifier.Send(ctx, renter.Email, subject, body); err != nil {
		s.log().Warn("expiry notification failed", "booking_id", bk.ID, "error", err)
	}
}

func (s *Sweeper) encoder() outbox.EventEncoder {
	if s.Encoder != nil {
		return s.Encoder
	}
	return outbox.JSONEventEncoder{}
}

func (s *Sweeper) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
