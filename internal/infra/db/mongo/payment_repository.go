package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "motorent/internal/domain/booking"
	domainpayment "motorent/internal/domain/payment"
	domainrental "motorent/internal/domain/rental"
	"motorent/internal/domain/shared/money"
	domainuser "motorent/internal/domain/user"
)

type PaymentRepository struct {
	col *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) *PaymentRepository {
	return &PaymentRepository{col: db.Collection("agg_payment")}
}

func (r *PaymentRepository) ByID(ctx context.Context, id domainpayment.ID) (*domainpayment.Payment, error) {
	var doc paymentDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainpayment.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *PaymentRepository) ByBookingID(ctx context.Context, id domainbooking.ID) ([]*domainpayment.Payment, error) {
	cur, err := r.col.Find(ctx, bson.M{"booking_id": string(id)})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domainpayment.Payment
	for cur.Next(ctx) {
		var doc paymentDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cur.Err()
}

func (r *PaymentRepository) Save(ctx context.Context, p *domainpayment.Payment) error {
	doc := newPaymentDocument(p)
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, update, opts)
	return err
}

type paymentDocument struct {
	ID        string `bson:"_id"`
	BookingID string `bson:"booking_id"`
	RentalID  string `bson:"rental_id,omitempty"`
	UserID    string `bson:"user_id"`
	Amount    int64  `bson:"amount"`
	Currency  string `bson:"currency"`
	Method    string `bson:"method,omitempty"`
	Type      string `bson:"type"`
	Status    string `bson:"status"`
	PaidAt    *int64 `bson:"paid_at,omitempty"`
	CreatedAt int64  `bson:"created_at"`
	UpdatedAt int64  `bson:"updated_at"`
}

func newPaymentDocument(p *domainpayment.Payment) paymentDocument {
	return paymentDocument{
		ID:        string(p.ID),
		BookingID: string(p.BookingID),
		RentalID:  string(p.RentalID),
		UserID:    string(p.UserID),
		Amount:    p.Amount.Amount,
		Currency:  p.Amount.Currency,
		Method:    p.Method,
		Type:      string(p.Type),
		Status:    string(p.Status),
		PaidAt:    optionalTimestamp(p.PaidAt),
		CreatedAt: p.CreatedAt.UnixMilli(),
		UpdatedAt: p.UpdatedAt.UnixMilli(),
	}
}

func (d paymentDocument) toAggregate() *domainpayment.Payment {
	return &domainpayment.Payment{
		ID:        domainpayment.ID(d.ID),
		BookingID: domainbooking.ID(d.BookingID),
		RentalID:  domainrental.ID(d.RentalID),
		UserID:    domainuser.ID(d.UserID),
		Amount:    money.Money{Amount: d.Amount, Currency: d.Currency},
		Method:    d.Method,
		Type:      domainpayment.Type(d.Type),
		Status:    domainpayment.Status(d.Status),
		PaidAt:    optionalTime(d.PaidAt),
		CreatedAt: timestampToTime(d.CreatedAt),
		UpdatedAt: timestampToTime(d.UpdatedAt),
	}
}
