package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainstation "motorent/internal/domain/station"
)

type StationRepository struct {
	col *mongo.Collection
}

func NewStationRepository(db *mongo.Database) *StationRepository {
	return &StationRepository{col: db.Collection("agg_station")}
}

func (r *StationRepository) ByID(ctx context.Context, id domainstation.ID) (*domainstation.Station, error) {
	var doc stationDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainstation.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *StationRepository) Save(ctx context.Context, s *domainstation.Station) error {
	doc := newStationDocument(s)
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, update, opts)
	return err
}

type stationDocument struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	Address   string `bson:"address,omitempty"`
	OpensAt   int    `bson:"opens_at"`
	ClosesAt  int    `bson:"closes_at"`
	Active    bool   `bson:"active"`
	CreatedAt int64  `bson:"created_at"`
	UpdatedAt int64  `bson:"updated_at"`
}

func newStationDocument(s *domainstation.Station) stationDocument {
	return stationDocument{
		ID:        string(s.ID),
		Name:      s.Name,
		Address:   s.Address,
		OpensAt:   int(s.OpensAt),
		ClosesAt:  int(s.ClosesAt),
		Active:    s.Active,
		CreatedAt: s.CreatedAt.UnixMilli(),
		UpdatedAt: s.UpdatedAt.UnixMilli(),
	}
}

func (d stationDocument) toAggregate() *domainstation.Station {
	return &domainstation.Station{
		ID:        domainstation.ID(d.ID),
		Name:      d.Name,
		Address:   d.Address,
		OpensAt:   domainstation.TimeOfDay(d.OpensAt),
		ClosesAt:  domainstation.TimeOfDay(d.ClosesAt),
		Active:    d.Active,
		CreatedAt: timestampToTime(d.CreatedAt),
		UpdatedAt: timestampToTime(d.UpdatedAt),
	}
}
