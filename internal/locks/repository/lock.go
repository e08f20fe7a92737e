package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	lockserrors "saubio/internal/locks/errors"
	"saubio/pkg/config"
	mongotx "saubio/pkg/db/mongo"
	"saubio/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Locks"

type LockRepository interface {
	Create(ctx context.Context, lock *model.Lock) error
	FindByID(ctx context.Context, id string) (*model.Lock, error)
	FindByBooking(ctx context.Context, bookingID string) ([]*model.Lock, error)
	// FindActiveByTarget returns HELD/CONFIRMED locks for the target whose
	// effective window overlaps the given window.
	FindActiveByTarget(ctx context.Context, target model.LockTarget, window model.TimeWindow) ([]*model.Lock, error)
	FindActiveByBooking(ctx context.Context, bookingID string) ([]*model.Lock, error)
	CountActiveByTarget(ctx context.Context, target model.LockTarget) (int64, error)
	// UpdateStatus transitions the lock only when its current status is one
	// of from; returns ErrStatusConflict otherwise.
	UpdateStatus(ctx context.Context, id string, from []model.LockStatus, to model.LockStatus, releasedAt *time.Time) (*model.Lock, error)
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.Lock, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoLockRepository(cfg *config.Config) LockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLockRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps ctx with a timeout unless already inside a transaction,
// since a SessionContext cannot be wrapped without breaking transaction
// semantics.
func (r *mongoLockRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoLockRepository) Create(ctx context.Context, lock *model.Lock) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	lock.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if _, err := r.collection.InsertOne(ctx, lock); err != nil {
		return fmt.Errorf("failed to create lock: %w", err)
	}
	return nil
}

func (r *mongoLockRepository) FindByID(ctx context.Context, id string) (*model.Lock, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var lock model.Lock
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&lock)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, lockserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find lock: %w", err)
	}
	return &lock, nil
}

func (r *mongoLockRepository) FindByBooking(ctx context.Context, bookingID string) ([]*model.Lock, error) {
	return r.findAll(ctx, bson.M{"booking_id": bookingID})
}

func (r *mongoLockRepository) FindActiveByBooking(ctx context.Context, bookingID string) ([]*model.Lock, error) {
	return r.findAll(ctx, bson.M{
		"booking_id": bookingID,
		"status":     bson.M{"$in": []model.LockStatus{model.LockHeld, model.LockConfirmed}},
	})
}

func (r *mongoLockRepository) FindActiveByTarget(ctx context.Context, target model.LockTarget, window model.TimeWindow) ([]*model.Lock, error) {
	return r.findAll(ctx, bson.M{
		"target.kind":  target.Kind,
		"target.id":    target.ID,
		"status":       bson.M{"$in": []model.LockStatus{model.LockHeld, model.LockConfirmed}},
		"window.start": bson.M{"$lt": window.End},
		"window.end":   bson.M{"$gt": window.Start},
	})
}

func (r *mongoLockRepository) CountActiveByTarget(ctx context.Context, target model.LockTarget) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{
		"target.kind": target.Kind,
		"target.id":   target.ID,
		"status":      bson.M{"$in": []model.LockStatus{model.LockHeld, model.LockConfirmed}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count active locks: %w", err)
	}
	return count, nil
}

func (r *mongoLockRepository) UpdateStatus(ctx context.Context, id string, from []model.LockStatus, to model.LockStatus, releasedAt *time.Time) (*model.Lock, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	set := bson.M{"status": to}
	if releasedAt != nil {
		set["released_at"] = *releasedAt
	}

	var updated model.Lock
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, lockserrors.ErrStatusConflict
		}
		return nil, fmt.Errorf("failed to update lock status: %w", err)
	}
	return &updated, nil
}

func (r *mongoLockRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*model.Lock, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "expires_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{
		"status":     model.LockHeld,
		"expires_at": bson.M{"$lt": now},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired locks: %w", err)
	}
	defer cursor.Close(ctx)

	var locks []*model.Lock
	if err = cursor.All(ctx, &locks); err != nil {
		return nil, fmt.Errorf("failed to decode expired locks: %w", err)
	}
	return locks, nil
}

func (r *mongoLockRepository) findAll(ctx context.Context, filter bson.M) ([]*model.Lock, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find locks: %w", err)
	}
	defer cursor.Close(ctx)

	var locks []*model.Lock
	if err = cursor.All(ctx, &locks); err != nil {
		return nil, fmt.Errorf("failed to decode locks: %w", err)
	}
	return locks, nil
}

func (r *mongoLockRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
