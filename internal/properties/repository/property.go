package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	propertieserrors "staybook/internal/properties/errors"
	"staybook/pkg/config"
	"staybook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName         = "Properties"
	bookingsCollectionName = "Bookings"
)

type PropertyRepository interface {
	FindByID(ctx context.Context, id string) (*model.Property, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Property, error)
	Count(ctx context.Context) (int64, error)
	RevenueByProperty(ctx context.Context, propertyIDs []string) (map[string]float64, error)
	SetApproval(ctx context.Context, id string, isApproved bool) (*model.Property, error)
}

type mongoPropertyRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	bookings   *mongo.Collection
}

func NewMongoPropertyRepository(cfg *config.Config) PropertyRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoPropertyRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		bookings:   db.Collection(bookingsCollectionName),
	}
}

func (r *mongoPropertyRepository) FindByID(ctx context.Context, id string) (*model.Property, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", propertieserrors.ErrInvalidID, id)
	}

	var property model.Property
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&property)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, propertieserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find property: %w", err)
	}

	return &property, nil
}

func (r *mongoPropertyRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Property, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find properties: %w", err)
	}
	defer cursor.Close(ctx)

	properties := make([]*model.Property, 0)
	if err = cursor.All(ctx, &properties); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}

	return properties, nil
}

func (r *mongoPropertyRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count properties: %w", err)
	}
	return count, nil
}

type revenueRow struct {
	PropertyID string  `bson:"_id"`
	Total      float64 `bson:"total"`
}

// RevenueByProperty sums total_amount of confirmed and completed bookings,
// grouped by property. Properties without such bookings are absent from the map.
func (r *mongoPropertyRepository) RevenueByProperty(ctx context.Context, propertyIDs []string) (map[string]float64, error) {
	revenue := make(map[string]float64, len(propertyIDs))
	if len(propertyIDs) == 0 {
		return revenue, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.bookings.Aggregate(ctx, revenuePipeline(propertyIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate property revenue: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []revenueRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode property revenue: %w", err)
	}

	for _, row := range rows {
		revenue[row.PropertyID] = row.Total
	}
	return revenue, nil
}

func revenuePipeline(propertyIDs []string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"property_id": bson.M{"$in": propertyIDs},
			"status":      bson.M{"$in": model.RevenueBookingStatuses()},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$property_id",
			"total": bson.M{"$sum": "$total_amount"},
		}}},
	}
}

func (r *mongoPropertyRepository) SetApproval(ctx context.Context, id string, isApproved bool) (*model.Property, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", propertieserrors.ErrInvalidID, id)
	}

	update := bson.M{
		"$set": bson.M{
			"is_approved": isApproved,
			"updated_at":  time.Now().UTC().Truncate(time.Millisecond),
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var property model.Property
	err = r.collection.FindOneAndUpdate(ctx, bson.M{"_id": objectID}, update, opts).Decode(&property)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, propertieserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update property approval: %w", err)
	}

	return &property, nil
}
