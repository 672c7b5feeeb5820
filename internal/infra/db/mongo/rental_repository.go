package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "motorent/internal/domain/booking"
	domainrental "motorent/internal/domain/rental"
	"motorent/internal/domain/shared/money"
	domainstation "motorent/internal/domain/station"
	domainuser "motorent/internal/domain/user"
	domainvehicle "motorent/internal/domain/vehicle"
)

type RentalRepository struct {
	col *mongo.Collection
}

func NewRentalRepository(db *mongo.Database) *RentalRepository {
	return &RentalRepository{col: db.Collection("agg_rental")}
}

func (r *RentalRepository) ByID(ctx context.Context, id domainrental.ID) (*domainrental.Rental, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *RentalRepository) ByBookingID(ctx context.Context, id domainbooking.ID) (*domainrental.Rental, error) {
	return r.findOne(ctx, bson.M{"booking_id": string(id)})
}

func (r *RentalRepository) findOne(ctx context.Context, filter bson.M) (*domainrental.Rental, error) {
	var doc rentalDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainrental.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *RentalRepository) Save(ctx context.Context, rent *domainrental.Rental) error {
	doc := newRentalDocument(rent)
	filter := bson.M{"_id": doc.ID, "version": rent.Version}
	doc.Version = rent.Version + 1
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)
	res, err := r.col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConcurrentUpdate
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return ErrConcurrentUpdate
	}
	rent.Version = doc.Version
	return nil
}

type rentalDocument struct {
	ID            string                  `bson:"_id"`
	BookingID     string                  `bson:"booking_id"`
	UserID        string                  `bson:"user_id"`
	VehicleID     string                  `bson:"vehicle_id"`
	StationID     string                  `bson:"station_id"`
	StartedAt     int64                   `bson:"started_at"`
	PlannedEnd    int64                   `bson:"planned_end"`
	EndedAt       *int64                  `bson:"ended_at,omitempty"`
	PickupStaffID string                  `bson:"pickup_staff_id"`
	ReturnStaffID string                  `bson:"return_staff_id,omitempty"`
	Before        conditionDocument       `bson:"before"`
	After         conditionDocument       `bson:"after"`
	Fees          feeBreakdownDocument    `bson:"fees"`
	VoidReason    string                  `bson:"void_reason,omitempty"`
	Status        string                  `bson:"status"`
	CreatedAt     int64                   `bson:"created_at"`
	UpdatedAt     int64                   `bson:"updated_at"`
	Version       int64                   `bson:"version"`
}

type conditionDocument struct {
	Mileage      int      `bson:"mileage"`
	BatteryLevel int      `bson:"battery_level"`
	Exterior     string   `bson:"exterior"`
	Interior     string   `bson:"interior"`
	Notes        string   `bson:"notes,omitempty"`
	PhotoURLs    []string `bson:"photo_urls,omitempty"`
}

type feeBreakdownDocument struct {
	Late     int64  `bson:"late"`
	Damage   int64  `bson:"damage"`
	Other    int64  `bson:"other"`
	Total    int64  `bson:"total"`
	Currency string `bson:"currency"`
}

func newRentalDocument(rent *domainrental.Rental) rentalDocument {
	return rentalDocument{
		ID:            string(rent.ID),
		BookingID:     string(rent.BookingID),
		UserID:        string(rent.UserID),
		VehicleID:     string(rent.VehicleID),
		StationID:     string(rent.StationID),
		StartedAt:     rent.StartedAt.UnixMilli(),
		PlannedEnd:    rent.PlannedEnd.UnixMilli(),
		EndedAt:       optionalTimestamp(rent.EndedAt),
		PickupStaffID: string(rent.PickupStaffID),
		ReturnStaffID: string(rent.ReturnStaffID),
		Before:        newConditionDocument(rent.Before),
		After:         newConditionDocument(rent.After),
		Fees:          newFeeBreakdownDocument(rent.Fees),
		VoidReason:    rent.VoidReason,
		Status:        string(rent.Status),
		CreatedAt:     rent.CreatedAt.UnixMilli(),
		UpdatedAt:     rent.UpdatedAt.UnixMilli(),
		Version:       rent.Version,
	}
}

func (d rentalDocument) toAggregate() *domainrental.Rental {
	return &domainrental.Rental{
		ID:            domainrental.ID(d.ID),
		BookingID:     domainbooking.ID(d.BookingID),
		UserID:        domainuser.ID(d.UserID),
		VehicleID:     domainvehicle.ID(d.VehicleID),
		StationID:     domainstation.ID(d.StationID),
		StartedAt:     timestampToTime(d.StartedAt),
		PlannedEnd:    timestampToTime(d.PlannedEnd),
		EndedAt:       optionalTime(d.EndedAt),
		PickupStaffID: domainuser.ID(d.PickupStaffID),
		ReturnStaffID: domainuser.ID(d.ReturnStaffID),
		Before:        d.Before.toReport(),
		After:         d.After.toReport(),
		Fees:          d.Fees.toBreakdown(),
		VoidReason:    d.VoidReason,
		Status:        domainrental.Status(d.Status),
		CreatedAt:     timestampToTime(d.CreatedAt),
		UpdatedAt:     timestampToTime(d.UpdatedAt),
		Version:       d.Version,
	}
}

func newConditionDocument(rep domainrental.ConditionReport) conditionDocument {
	return conditionDocument{
		Mileage:      rep.Mileage,
		BatteryLevel: rep.BatteryLevel,
		Exterior:     string(rep.Exterior),
		Interior:     string(rep.Interior),
		Notes:        rep.Notes,
		PhotoURLs:    rep.PhotoURLs,
	}
}

func (d conditionDocument) toReport() domainrental.ConditionReport {
	return domainrental.ConditionReport{
		Mileage:      d.Mileage,
		BatteryLevel: d.BatteryLevel,
		Exterior:     domainrental.Condition(d.Exterior),
		Interior:     domainrental.Condition(d.Interior),
		Notes:        d.Notes,
		PhotoURLs:    d.PhotoURLs,
	}
}

func newFeeBreakdownDocument(f domainrental.FeeBreakdown) feeBreakdownDocument {
	currency := f.Total.Currency
	if currency == "" {
		currency = money.DefaultCurrency
	}
	return feeBreakdownDocument{
		Late:     f.Late.Amount,
		Damage:   f.Damage.Amount,
		Other:    f.Other.Amount,
		Total:    f.Total.Amount,
		Currency: currency,
	}
}

func (d feeBreakdownDocument) toBreakdown() domainrental.FeeBreakdown {
	return domainrental.FeeBreakdown{
		Late:   money.Money{Amount: d.Late, Currency: d.Currency},
		Damage: money.Money{Amount: d.Damage, Currency: d.Currency},
		Other:  money.Money{Amount: d.Other, Currency: d.Currency},
		Total:  money.Money{Amount: d.Total, Currency: d.Currency},
	}
}
