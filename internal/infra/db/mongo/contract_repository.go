package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "motorent/internal/domain/booking"
	domaincontract "motorent/internal/domain/contract"
	domainrental "motorent/internal/domain/rental"
	domainuser "motorent/internal/domain/user"
)

type ContractRepository struct {
	col *mongo.Collection
}

func NewContractRepository(db *mongo.Database) *ContractRepository {
	return &ContractRepository{col: db.Collection("agg_contract")}
}

func (r *ContractRepository) ByRentalID(ctx context.Context, id domainrental.ID) (*domaincontract.Contract, error) {
	var doc contractDocument
	if err := r.col.FindOne(ctx, bson.M{"rental_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domaincontract.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ContractRepository) Save(ctx context.Context, c *domaincontract.Contract) error {
	doc := newContractDocument(c)
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, update, opts)
	return err
}

type contractDocument struct {
	ID         string `bson:"_id"`
	Number     string `bson:"number"`
	BookingID  string `bson:"booking_id"`
	RentalID   string `bson:"rental_id"`
	UserID     string `bson:"user_id"`
	TemplateID string `bson:"template_id,omitempty"`
	CreatedAt  int64  `bson:"created_at"`
}

func newContractDocument(c *domaincontract.Contract) contractDocument {
	return contractDocument{
		ID:         string(c.ID),
		Number:     c.Number,
		BookingID:  string(c.BookingID),
		RentalID:   string(c.RentalID),
		UserID:     string(c.UserID),
		TemplateID: c.TemplateID,
		CreatedAt:  c.CreatedAt.UnixMilli(),
	}
}

func (d contractDocument) toAggregate() *domaincontract.Contract {
	return &domaincontract.Contract{
		ID:         domaincontract.ID(d.ID),
		Number:     d.Number,
		BookingID:  domainbooking.ID(d.BookingID),
		RentalID:   domainrental.ID(d.RentalID),
		UserID:     domainuser.ID(d.UserID),
		TemplateID: d.TemplateID,
		CreatedAt:  timestampToTime(d.CreatedAt),
	}
}
