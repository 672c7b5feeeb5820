package memory

import (
	"context"
	"errors"

	"motorent/internal/app/uow"
	domainbooking "motorent/internal/domain/booking"
	domaincontract "motorent/internal/domain/contract"
	domainpayment "motorent/internal/domain/payment"
	domainrental "motorent/internal/domain/rental"
	domainstation "motorent/internal/domain/station"
	domainuser "motorent/internal/domain/user"
	domainvehicle "motorent/internal/domain/vehicle"
)

// ErrFactoryMisconfigured indicates missing repositories.
var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// Factory wires in-memory repositories into a unit-of-work boundary.
type Factory struct {
	VehicleRepo  domainvehicle.Repository
	BookingRepo  domainbooking.Repository
	RentalRepo   domainrental.Repository
	PaymentRepo  domainpayment.Repository
	ContractRepo domaincontract.Repository
	UserRepo     domainuser.Repository
	StationRepo  domainstation.Repository
}

// NewFactory builds a factory over fresh in-memory repositories.
func NewFactory() Factory {
	return Factory{
		VehicleRepo:  NewVehicleRepository(),
		BookingRepo:  NewBookingRepository(),
		RentalRepo:   NewRentalRepository(),
		PaymentRepo:  NewPaymentRepository(),
		ContractRepo: NewContractRepository(),
		UserRepo:     NewUserRepository(),
		StationRepo:  NewStationRepository(),
	}
}

// Begin starts a lightweight transaction boundary. No isolation is provided
// but the abstraction matches the application ports.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.VehicleRepo == nil || f.BookingRepo == nil || f.RentalRepo == nil ||
		f.PaymentRepo == nil || f.ContractRepo == nil || f.UserRepo == nil || f.StationRepo == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{
		vehicles:  f.VehicleRepo,
		bookings:  f.BookingRepo,
		rentals:   f.RentalRepo,
		payments:  f.PaymentRepo,
		contracts: f.ContractRepo,
		users:     f.UserRepo,
		stations:  f.StationRepo,
	}, nil
}

// Unit is a lightweight uow.UnitOfWork backed by in-memory stores.
type Unit struct {
	vehicles  domainvehicle.Repository
	bookings  domainbooking.Repository
	rentals   domainrental.Repository
	payments  domainpayment.Repository
	contracts domaincontract.Repository
	users     domainuser.Repository
	stations  domainstation.Repository

	hooks []func()
}

func (u *Unit) Vehicles() domainvehicle.Repository { return u.vehicles }

func (u *Unit) Bookings() domainbooking.Repository { return u.bookings }

func (u *Unit) Rentals() domainrental.Repository { return u.rentals }

func (u *Unit) Payments() domainpayment.Repository { return u.payments }

func (u *Unit) Contracts() domaincontract.Repository { return u.contracts }

func (u *Unit) Users() domainuser.Repository { return u.users }

func (u *Unit) Stations() domainstation.Repository { return u.stations }

// OnCommit defers fn until Commit. A rolled-back unit drops its hooks.
func (u *Unit) OnCommit(fn func()) { u.hooks = append(u.hooks, fn) }

func (u *Unit) Commit(ctx context.Context) error {
	for _, fn := range u.hooks {
		fn()
	}
	u.hooks = nil
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.hooks = nil
	return nil
}
