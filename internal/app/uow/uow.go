package uow

import (
	"context"

	domainbooking "motorent/internal/domain/booking"
	domaincontract "motorent/internal/domain/contract"
	domainpayment "motorent/internal/domain/payment"
	domainrental "motorent/internal/domain/rental"
	domainstation "motorent/internal/domain/station"
	domainuser "motorent/internal/domain/user"
	domainvehicle "motorent/internal/domain/vehicle"
)

// UnitOfWork coordinates the lifecycle repositories inside one logical
// transaction boundary.
type UnitOfWork interface {
	Vehicles() domainvehicle.Repository
	Bookings() domainbooking.Repository
	Rentals() domainrental.Repository
	Payments() domainpayment.Repository
	Contracts() domaincontract.Repository
	Users() domainuser.Repository
	Stations() domainstation.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// CommitHooker is implemented by units that can defer work until the
// transaction commits. Handlers use it for side effects that must not
// fire when the surrounding commit fails.
type CommitHooker interface {
	OnCommit(fn func())
}

// AfterCommit schedules fn to run once unit commits. Units without hook
// support run fn immediately.
func AfterCommit(unit UnitOfWork, fn func()) {
	if h, ok := unit.(CommitHooker); ok {
		h.OnCommit(fn)
		return
	}
	fn()
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries.
type TxOptions struct {
	ReadOnly bool
}
