package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "motorent/internal/domain/booking"
	"motorent/internal/domain/shared/daterange"
	"motorent/internal/domain/shared/money"
	domainstation "motorent/internal/domain/station"
	domainuser "motorent/internal/domain/user"
	domainvehicle "motorent/internal/domain/vehicle"
)

var ErrConcurrentUpdate = errors.New("mongo: concurrent update detected")

type BookingRepository struct {
	col *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{col: db.Collection("agg_booking")}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.ID) (*domainbooking.Booking, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *BookingRepository) ByCode(ctx context.Context, code string) (*domainbooking.Booking, error) {
	return r.findOne(ctx, bson.M{"code": code})
}

func (r *BookingRepository) findOne(ctx context.Context, filter bson.M) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbooking.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	doc := newBookingDocument(b)
	filter := bson.M{"_id": doc.ID, "version": b.Version}
	doc.Version = b.Version + 1
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
	b.Version = doc.Version
	return nil
}

func (r *BookingRepository) CountActiveByUser(ctx context.Context, userID domainuser.ID, now time.Time) (int, error) {
	filter := bson.M{
		"user_id": string(userID),
		"status": bson.M{"$in": []string{
			string(domainbooking.StatusPending),
			string(domainbooking.StatusConfirmed),
		}},
		"range.end": bson.M{"$gt": now.UnixMilli()},
	}
	n, err := r.col.CountDocuments(ctx, filter)
	return int(n), err
}

func (r *BookingRepository) FindByUser(ctx context.Context, userID domainuser.ID) ([]*domainbooking.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.findAll(ctx, bson.M{"user_id": string(userID)}, opts)
}

// FindOverlapping matches half-open windows: [a, b) and [c, d) intersect
// exactly when a < d and c < b, so touching windows stay independent.
func (r *BookingRepository) FindOverlapping(ctx context.Context, vehicleIDs []domainvehicle.ID, dr daterange.DateRange) ([]*domainbooking.Booking, error) {
	if len(vehicleIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(vehicleIDs))
	for _, id := range vehicleIDs {
		ids = append(ids, string(id))
	}
	filter := bson.M{
		"vehicle_id":  bson.M{"$in": ids},
		"status":      bson.M{"$ne": string(domainbooking.StatusCancelled)},
		"range.start": bson.M{"$lt": dr.End.UnixMilli()},
		"range.end":   bson.M{"$gt": dr.Start.UnixMilli()},
	}
	return r.findAll(ctx, filter, nil)
}

func (r *BookingRepository) FindExpiredPending(ctx context.Context, now time.Time, grace time.Duration) ([]*domainbooking.Booking, error) {
	now = now.UTC()
	filter := bson.M{
		"status": string(domainbooking.StatusPending),
		"$or": []bson.M{
			{"range.start": bson.M{"$lte": now.Add(-grace).UnixMilli()}},
			{"range.end": bson.M{"$lte": now.UnixMilli()}},
		},
	}
	return r.findAll(ctx, filter, nil)
}

func (r *BookingRepository) findAll(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domainbooking.Booking, error) {
	var cur *mongo.Cursor
	var err error
	if opts != nil {
		cur, err = r.col.Find(ctx, filter, opts)
	} else {
		cur, err = r.col.Find(ctx, filter)
	}
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domainbooking.Booking
	for cur.Next(ctx) {
		var doc bookingDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cur.Err()
}

type bookingDocument struct {
	ID           string        `bson:"_id"`
	Code         string        `bson:"code"`
	UserID       string        `bson:"user_id"`
	VehicleID    string        `bson:"vehicle_id"`
	StationID    string        `bson:"station_id"`
	Range        rangeDocument `bson:"range"`
	PickupTime   int           `bson:"pickup_time"`
	ReturnTime   int           `bson:"return_time"`
	PricePerDay  int64         `bson:"price_per_day"`
	TotalDays    int           `bson:"total_days"`
	TotalPrice   int64         `bson:"total_price"`
	Deposit      int64         `bson:"deposit"`
	Currency     string        `bson:"currency"`
	Status       string        `bson:"status"`
	QRToken      string        `bson:"qr_token"`
	QRExpiresAt  int64         `bson:"qr_expires_at"`
	QRUsedAt     *int64        `bson:"qr_used_at,omitempty"`
	CancelReason string        `bson:"cancel_reason,omitempty"`
	CancelledBy  string        `bson:"cancelled_by,omitempty"`
	CancelledAt  *int64        `bson:"cancelled_at,omitempty"`
	ConfirmedBy  string        `bson:"confirmed_by,omitempty"`
	ConfirmedAt  *int64        `bson:"confirmed_at,omitempty"`
	CreatedAt    int64         `bson:"created_at"`
	UpdatedAt    int64         `bson:"updated_at"`
	Version      int64         `bson:"version"`
}

type rangeDocument struct {
	Start int64 `bson:"start"`
	End   int64 `bson:"end"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	return bookingDocument{
		ID:           string(b.ID),
		Code:         b.Code,
		UserID:       string(b.UserID),
		VehicleID:    string(b.VehicleID),
		StationID:    string(b.StationID),
		Range:        rangeDocument{Start: b.Range.Start.UnixMilli(), End: b.Range.End.UnixMilli()},
		PickupTime:   int(b.PickupTime),
		ReturnTime:   int(b.ReturnTime),
		PricePerDay:  b.PricePerDay.Amount,
		TotalDays:    b.TotalDays,
		TotalPrice:   b.TotalPrice.Amount,
		Deposit:      b.Deposit.Amount,
		Currency:     b.TotalPrice.Currency,
		Status:       string(b.Status),
		QRToken:      b.QRToken,
		QRExpiresAt:  b.QRExpiresAt.UnixMilli(),
		QRUsedAt:     optionalTimestamp(b.QRUsedAt),
		CancelReason: b.CancelReason,
		CancelledBy:  string(b.CancelledBy),
		CancelledAt:  optionalTimestamp(b.CancelledAt),
		ConfirmedBy:  string(b.ConfirmedBy),
		ConfirmedAt:  optionalTimestamp(b.ConfirmedAt),
		CreatedAt:    b.CreatedAt.UnixMilli(),
		UpdatedAt:    b.UpdatedAt.UnixMilli(),
		Version:      b.Version,
	}
}

func (d bookingDocument) toAggregate() *domainbooking.Booking {
	return &domainbooking.Booking{
		ID:           domainbooking.ID(d.ID),
		Code:         d.Code,
		UserID:       domainuser.ID(d.UserID),
		VehicleID:    domainvehicle.ID(d.VehicleID),
		StationID:    domainstation.ID(d.StationID),
		Range:        daterange.DateRange{Start: timestampToTime(d.Range.Start), End: timestampToTime(d.Range.End)},
		PickupTime:   domainstation.TimeOfDay(d.PickupTime),
		ReturnTime:   domainstation.TimeOfDay(d.ReturnTime),
		PricePerDay:  money.Money{Amount: d.PricePerDay, Currency: d.Currency},
		TotalDays:    d.TotalDays,
		TotalPrice:   money.Money{Amount: d.TotalPrice, Currency: d.Currency},
		Deposit:      money.Money{Amount: d.Deposit, Currency: d.Currency},
		Status:       domainbooking.Status(d.Status),
		QRToken:      d.QRToken,
		QRExpiresAt:  timestampToTime(d.QRExpiresAt),
		QRUsedAt:     optionalTime(d.QRUsedAt),
		CancelReason: d.CancelReason,
		CancelledBy:  domainuser.ID(d.CancelledBy),
		CancelledAt:  optionalTime(d.CancelledAt),
		ConfirmedBy:  domainuser.ID(d.ConfirmedBy),
		ConfirmedAt:  optionalTime(d.ConfirmedAt),
		CreatedAt:    timestampToTime(d.CreatedAt),
		UpdatedAt:    timestampToTime(d.UpdatedAt),
		Version:      d.Version,
	}
}

func optionalTimestamp(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func optionalTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := timestampToTime(*ms)
	return &t
}
