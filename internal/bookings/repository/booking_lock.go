package repository

import (
	"context"
	"fmt"
	"time"

	bookingserrors "staybook/internal/bookings/errors"
	"staybook/pkg/config"
	"staybook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	LockCollectionName  = "Booking_locks"
	GuardCollectionName = "Booking_guards"
)

// BookingLockRepository provides operations for advisory locks and the
// admission guards behind them.
type BookingLockRepository interface {
	Create(ctx context.Context, lock *model.BookingLock) (*model.BookingLock, error)
	Delete(ctx context.Context, lockID, token string) error
	DeleteExpired(ctx context.Context, lockID string, now time.Time) (bool, error)
	EnsureGuard(ctx context.Context, lockID string, now time.Time) error
	Fence(ctx context.Context, lockID string, now time.Time) error
}

type mongoBookingLockRepository struct {
	collection *mongo.Collection
	guards     *mongo.Collection
}

func NewBookingLockRepository(cfg *config.Config) BookingLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingLockRepository{
		collection: db.Collection(LockCollectionName),
		guards:     db.Collection(GuardCollectionName),
	}
}

// Create returns ErrLockHeld if the lock document already exists.
func (r *mongoBookingLockRepository) Create(ctx context.Context, lock *model.BookingLock) (*model.BookingLock, error) {
	lock.CreatedAt = time.Now().UTC()

	_, err := r.collection.InsertOne(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, bookingserrors.ErrLockHeld
		}
		return nil, fmt.Errorf("failed to create booking lock: %w", err)
	}

	return lock, nil
}

// Delete removes the lock only while token still owns it.
func (r *mongoBookingLockRepository) Delete(ctx context.Context, lockID, token string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID, "token": token})
	if err != nil {
		return fmt.Errorf("failed to delete booking lock: %w", err)
	}
	return nil
}

// DeleteExpired removes the lock only if it expired before now. The TTL
// monitor runs once a minute, so stale locks are reclaimed here first.
func (r *mongoBookingLockRepository) DeleteExpired(ctx context.Context, lockID string, now time.Time) (bool, error) {
	result, err := r.collection.DeleteOne(ctx, bson.M{
		"_id":        lockID,
		"expires_at": bson.M{"$lte": now},
	})
	if err != nil {
		return false, fmt.Errorf("failed to reclaim booking lock: %w", err)
	}
	return result.DeletedCount > 0, nil
}

// EnsureGuard creates the guard document outside any transaction so that
// concurrent fences update an existing document instead of racing an insert.
func (r *mongoBookingLockRepository) EnsureGuard(ctx context.Context, lockID string, now time.Time) error {
	_, err := r.guards.UpdateOne(ctx,
		bson.M{"_id": lockID},
		bson.M{"$setOnInsert": bson.M{"seq": int64(0), "fenced_at": now}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to ensure booking guard: %w", err)
	}
	return nil
}

// Fence must run inside the admission transaction. A concurrent fence on the
// same guard fails with a transient WriteConflict, which the transaction
// retries once the other admission commits or aborts.
func (r *mongoBookingLockRepository) Fence(ctx context.Context, lockID string, now time.Time) error {
	_, err := r.guards.UpdateOne(ctx,
		bson.M{"_id": lockID},
		bson.M{
			"$inc": bson.M{"seq": int64(1)},
			"$set": bson.M{"fenced_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to fence booking guard: %w", err)
	}
	return nil
}
