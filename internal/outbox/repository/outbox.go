package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"staybook/pkg/config"
	mongotx "staybook/pkg/db/mongo"
	"staybook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Booking_outbox"

type OutboxRepository interface {
	Insert(ctx context.Context, event *model.OutboxEvent) error
	// Claim leases the oldest due pending event until now+lease, or returns nil.
	Claim(ctx context.Context, now time.Time, lease time.Duration) (*model.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, lastErr string, nextAttemptAt time.Time, dead bool) error
}

type mongoOutboxRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoOutboxRepository(cfg *config.Config) OutboxRepository {
	return &mongoOutboxRepository{
		cfg:        cfg,
		collection: cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Collection(CollectionName),
	}
}

func (r *mongoOutboxRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if mongotx.InTransaction(ctx) {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoOutboxRepository) Insert(ctx context.Context, event *model.OutboxEvent) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

func (r *mongoOutboxRepository) Claim(ctx context.Context, now time.Time, lease time.Duration) (*model.OutboxEvent, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"status":          model.OutboxStatusPending,
		"next_attempt_at": bson.M{"$lte": now},
	}
	update := bson.M{"$set": bson.M{"next_attempt_at": now.Add(lease)}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "next_attempt_at", Value: 1}, {Key: "created_at", Value: 1}}).
		SetReturnDocument(options.Before)

	var event model.OutboxEvent
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&event)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim outbox event: %w", err)
	}
	return &event, nil
}

func (r *mongoOutboxRepository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{
		"$set":   bson.M{"status": model.OutboxStatusPublished, "published_at": at},
		"$inc":   bson.M{"attempts": 1},
		"$unset": bson.M{"last_error": ""},
	}
	if _, err := r.collection.UpdateByID(ctx, id, update); err != nil {
		return fmt.Errorf("failed to mark outbox event published: %w", err)
	}
	return nil
}

func (r *mongoOutboxRepository) MarkFailed(ctx context.Context, id string, attempts int, lastErr string, nextAttemptAt time.Time, dead bool) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	status := model.OutboxStatusPending
	if dead {
		status = model.OutboxStatusDead
	}

	update := bson.M{
		"$set": bson.M{
			"status":          status,
			"attempts":        attempts,
			"last_error":      lastErr,
			"next_attempt_at": nextAttemptAt,
		},
	}
	if _, err := r.collection.UpdateByID(ctx, id, update); err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}
	return nil
}
