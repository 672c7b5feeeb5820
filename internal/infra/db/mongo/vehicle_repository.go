package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"motorent/internal/domain/shared/money"
	domainstation "motorent/internal/domain/station"
	domainvehicle "motorent/internal/domain/vehicle"
)

type VehicleRepository struct {
	col *mongo.Collection
}

func NewVehicleRepository(db *mongo.Database) *VehicleRepository {
	return &VehicleRepository{col: db.Collection("agg_vehicle")}
}

func (r *VehicleRepository) ByID(ctx context.Context, id domainvehicle.ID) (*domainvehicle.Vehicle, error) {
	var doc vehicleDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainvehicle.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *VehicleRepository) Save(ctx context.Context, v *domainvehicle.Vehicle) error {
	doc := newVehicleDocument(v)
	filter := bson.M{"_id": doc.ID, "version": v.Version}
	doc.Version = v.Version + 1
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)
	res, err := r.col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainvehicle.ErrConcurrentUpdate
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return domainvehicle.ErrConcurrentUpdate
	}
	v.Version = doc.Version
	return nil
}

func (r *VehicleRepository) FindSelectable(ctx context.Context, key domainvehicle.SelectionKey) ([]*domainvehicle.Vehicle, error) {
	filter := bson.M{
		"status":     string(domainvehicle.StatusAvailable),
		"model":      key.Model,
		"color":      key.Color,
		"station_id": string(key.StationID),
	}
	cur, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domainvehicle.Vehicle
	for cur.Next(ctx) {
		var doc vehicleDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toAggregate())
	}
	return out, cur.Err()
}

// CompareAndSetStatus flips the status with a conditional update: the filter
// matches only while the stored status still equals from, so losing a race
// surfaces as a zero match count instead of a lost write.
func (r *VehicleRepository) CompareAndSetStatus(ctx context.Context, id domainvehicle.ID, from, to domainvehicle.Status) error {
	if err := domainvehicle.MustTransition(from, to); err != nil {
		return err
	}
	filter := bson.M{"_id": string(id), "status": string(from)}
	update := bson.M{
		"$set": bson.M{"status": string(to), "updated_at": time.Now().UnixMilli()},
		"$inc": bson.M{"version": int64(1)},
	}
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainvehicle.ErrStatusConflict
	}
	return nil
}

type vehicleDocument struct {
	ID           string `bson:"_id"`
	Model        string `bson:"model"`
	Color        string `bson:"color"`
	Type         string `bson:"type"`
	Plate        string `bson:"plate"`
	StationID    string `bson:"station_id"`
	PricePerDay  int64  `bson:"price_per_day"`
	Currency     string `bson:"currency"`
	Mileage      int    `bson:"mileage"`
	BatteryLevel int    `bson:"battery_level"`
	Status       string `bson:"status"`
	CreatedAt    int64  `bson:"created_at"`
	UpdatedAt    int64  `bson:"updated_at"`
	Version      int64  `bson:"version"`
}

func newVehicleDocument(v *domainvehicle.Vehicle) vehicleDocument {
	return vehicleDocument{
		ID:           string(v.ID),
		Model:        v.Model,
		Color:        v.Color,
		Type:         v.Type,
		Plate:        v.Plate,
		StationID:    string(v.StationID),
		PricePerDay:  v.PricePerDay.Amount,
		Currency:     v.PricePerDay.Currency,
		Mileage:      v.Mileage,
		BatteryLevel: v.BatteryLevel,
		Status:       string(v.Status),
		CreatedAt:    v.CreatedAt.UnixMilli(),
		UpdatedAt:    v.UpdatedAt.UnixMilli(),
		Version:      v.Version,
	}
}

func (d vehicleDocument) toAggregate() *domainvehicle.Vehicle {
	return &domainvehicle.Vehicle{
		ID:           domainvehicle.ID(d.ID),
		Model:        d.Model,
		Color:        d.Color,
		Type:         d.Type,
		Plate:        d.Plate,
		StationID:    domainstation.ID(d.StationID),
		PricePerDay:  money.Money{Amount: d.PricePerDay, Currency: d.Currency},
		Mileage:      d.Mileage,
		BatteryLevel: d.BatteryLevel,
		Status:       domainvehicle.Status(d.Status),
		CreatedAt:    timestampToTime(d.CreatedAt),
		UpdatedAt:    timestampToTime(d.UpdatedAt),
		Version:      d.Version,
	}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
