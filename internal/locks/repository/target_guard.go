package repository

import (
	"context"
	"fmt"
	"time"

	lockserrors "saubio/internal/locks/errors"
	"saubio/pkg/config"
	"saubio/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// TargetGuard is a short-lived advisory document serializing hold attempts
// for one lock target across service instances. The unique _id insert is
// the compare-and-swap; a TTL index reaps guards leaked by crashed holders.
type TargetGuard struct {
	ID        string    `bson:"_id"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}

type TargetGuardRepository interface {
	Acquire(ctx context.Context, target model.LockTarget, ttl time.Duration) (string, error)
	Release(ctx context.Context, guardID string) error
}

type mongoTargetGuardRepository struct {
	collection *mongo.Collection
}

func NewTargetGuardRepository(cfg *config.Config) TargetGuardRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoTargetGuardRepository{
		collection: db.Collection("Lock_guards"),
	}
}

func (r *mongoTargetGuardRepository) Acquire(ctx context.Context, target model.LockTarget, ttl time.Duration) (string, error) {
	guardID := "guard_" + target.Key()
	guard := &TargetGuard{
		ID:        guardID,
		ExpiresAt: time.Now().Add(ttl),
		CreatedAt: time.Now(),
	}

	if _, err := r.collection.InsertOne(ctx, guard); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", lockserrors.ErrGuardHeld
		}
		return "", fmt.Errorf("failed to acquire target guard: %w", err)
	}
	return guardID, nil
}

func (r *mongoTargetGuardRepository) Release(ctx context.Context, guardID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": guardID})
	return err
}
