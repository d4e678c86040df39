package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"staybook/internal/migrations/mongo/validators"
	"staybook/pkg/logger"
)

const (
	BookingsCollection      = "Bookings"
	PropertiesCollection    = "Properties"
	UsersCollection         = "Users"
	BookingLocksCollection  = "Booking_locks"
	BookingGuardsCollection = "Booking_guards"
	OutboxCollection        = "Booking_outbox"
)

var (
	BookingsIndexes = []mongo.IndexModel{
		{
			// Overlap check during admission.
			Keys: bson.D{
				{Key: "customer_id", Value: 1},
				{Key: "property_id", Value: 1},
				{Key: "status", Value: 1},
				{Key: "check_in", Value: 1},
				{Key: "check_out", Value: 1},
			},
			Options: options.Index().SetName("booking_overlap"),
		},
		{
			// Revenue aggregation.
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "property_id", Value: 1},
			},
			Options: options.Index().SetName("booking_revenue"),
		},
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "check_in", Value: 1},
			},
		},
		{
			// Completion sweeper.
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "check_out", Value: 1},
			},
		},
	}

	PropertiesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "host_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
	}

	UsersIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	BookingLocksIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("booking_lock_ttl"),
		},
	}

	// Idle guards are dropped after 30 days and recreated on the next admission.
	BookingGuardsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "fenced_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(30 * 24 * 60 * 60).SetName("booking_guard_ttl"),
		},
	}

	OutboxIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "next_attempt_at", Value: 1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName("outbox_due"),
		},
		{Keys: bson.D{{Key: "aggregate_id", Value: 1}}},
	}
)

type CollectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

func Collections() map[string]CollectionDef {
	return map[string]CollectionDef{
		BookingsCollection: {
			Indexes:   BookingsIndexes,
			Validator: validators.BookingValidator,
		},
		PropertiesCollection: {
			Indexes:   PropertiesIndexes,
			Validator: validators.PropertyValidator,
		},
		UsersCollection: {
			Indexes:   UsersIndexes,
			Validator: validators.UserValidator,
		},
		BookingLocksCollection: {
			Indexes:   BookingLocksIndexes,
			Validator: validators.BookingLockValidator,
		},
		BookingGuardsCollection: {
			Indexes:   BookingGuardsIndexes,
			Validator: validators.BookingGuardValidator,
		},
		OutboxCollection: {
			Indexes:   OutboxIndexes,
			Validator: validators.OutboxValidator,
		},
	}
}

func RunMigration(ctx context.Context, db *mongo.Database, log *logger.Logger) error {
	log.Info("Running Mongo migrations", "database", db.Name())

	for name, def := range Collections() {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection already exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	coll := db.Collection(name)
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
