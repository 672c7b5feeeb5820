package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"motorent/internal/app/uow"
	domainbooking "motorent/internal/domain/booking"
	domaincontract "motorent/internal/domain/contract"
	domainpayment "motorent/internal/domain/payment"
	domainrental "motorent/internal/domain/rental"
	domainstation "motorent/internal/domain/station"
	domainuser "motorent/internal/domain/user"
	domainvehicle "motorent/internal/domain/vehicle"
)

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

// Factory wires Mongo sessions into the generic UnitOfWork interface.
type Factory struct {
	DB *mongo.Database

	VehicleRepo  domainvehicle.Repository
	BookingRepo  domainbooking.Repository
	RentalRepo   domainrental.Repository
	PaymentRepo  domainpayment.Repository
	ContractRepo domaincontract.Repository
	UserRepo     domainuser.Repository
	StationRepo  domainstation.Repository
}

// NewFactory builds a factory over the default collection-backed repositories.
func NewFactory(db *mongo.Database) Factory {
	return Factory{
		DB:           db,
		VehicleRepo:  NewVehicleRepository(db),
		BookingRepo:  NewBookingRepository(db),
		RentalRepo:   NewRentalRepository(db),
		PaymentRepo:  NewPaymentRepository(db),
		ContractRepo: NewContractRepository(db),
		UserRepo:     NewUserRepository(db),
		StationRepo:  NewStationRepository(db),
	}
}

// Begin starts a MongoDB session/transaction.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().SetReadConcern(f.DB.ReadConcern()).SetWriteConcern(f.DB.WriteConcern())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &Unit{
		db:        f.DB,
		session:   session,
		vehicles:  f.VehicleRepo,
		bookings:  f.BookingRepo,
		rentals:   f.RentalRepo,
		payments:  f.PaymentRepo,
		contracts: f.ContractRepo,
		users:     f.UserRepo,
		stations:  f.StationRepo,
	}, nil
}

type Unit struct {
	db      *mongo.Database
	session mongo.Session

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

// OnCommit defers fn until the transaction commits. An aborted
// transaction drops its hooks.
func (u *Unit) OnCommit(fn func()) { u.hooks = append(u.hooks, fn) }

func (u *Unit) Commit(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	if err := u.session.CommitTransaction(ctx); err != nil {
		return err
	}
	for _, fn := range u.hooks {
		fn()
	}
	u.hooks = nil
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	u.hooks = nil
	return u.session.AbortTransaction(ctx)
}

// InjectContext ensures the Mongo session is available in context for
// downstream repositories.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}
