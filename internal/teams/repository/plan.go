package repository

import (
	"context"
	"fmt"
	"time"

	teamerrors "saubio/internal/teams/errors"
	"saubio/pkg/config"
	"saubio/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const PlanCollectionName = "Team_plan_slots"

type PlanRepository interface {
	FindRange(ctx context.Context, teamID string, startDay, endDay string) ([]*model.TeamPlanSlot, error)
	// ReserveSlot increments capacity_booked for the team/day, creating the
	// slot with the default capacity when missing. Fails with
	// ErrCapacityFull when the slot is already at capacity.
	ReserveSlot(ctx context.Context, teamID, day string, defaultCapacity int) (*model.TeamPlanSlot, error)
	// ReleaseSlot decrements capacity_booked, never below zero.
	ReleaseSlot(ctx context.Context, teamID, day string) error
}

type mongoPlanRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoPlanRepository(cfg *config.Config) PlanRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoPlanRepository{
		cfg:        cfg,
		collection: db.Collection(PlanCollectionName),
	}
}

func (r *mongoPlanRepository) FindRange(ctx context.Context, teamID string, startDay, endDay string) ([]*model.TeamPlanSlot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	query := bson.M{
		"team_id": teamID,
		"day":     bson.M{"$gte": startDay, "$lte": endDay},
	}
	opts := options.Find().SetSort(bson.D{{Key: "day", Value: 1}})

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan slots: %w", err)
	}
	defer cursor.Close(ctx)

	slots := make([]*model.TeamPlanSlot, 0)
	if err := cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode plan slots: %w", err)
	}
	return slots, nil
}

func (r *mongoPlanRepository) ReserveSlot(ctx context.Context, teamID, day string, defaultCapacity int) (*model.TeamPlanSlot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC()

	// Seed the slot if it does not exist yet. A duplicate-key race here is
	// benign: the guarded increment below is the real capacity check.
	seed := model.TeamPlanSlot{
		ID:             planSlotID(teamID, day),
		TeamID:         teamID,
		Day:            day,
		CapacitySlots:  defaultCapacity,
		CapacityBooked: 0,
		UpdatedAt:      now,
	}
	if _, err := r.collection.InsertOne(ctx, seed); err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("failed to seed plan slot: %w", err)
	}

	var slot model.TeamPlanSlot
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{
			"_id":   planSlotID(teamID, day),
			"$expr": bson.M{"$lt": bson.A{"$capacity_booked", "$capacity_slots"}},
		},
		bson.M{
			"$inc": bson.M{"capacity_booked": 1},
			"$set": bson.M{"updated_at": now},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&slot)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, teamerrors.ErrCapacityFull
		}
		return nil, fmt.Errorf("failed to reserve plan slot: %w", err)
	}
	return &slot, nil
}

func (r *mongoPlanRepository) ReleaseSlot(ctx context.Context, teamID, day string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.UpdateOne(ctx,
		bson.M{
			"_id":             planSlotID(teamID, day),
			"capacity_booked": bson.M{"$gt": 0},
		},
		bson.M{
			"$inc": bson.M{"capacity_booked": -1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to release plan slot: %w", err)
	}
	return nil
}

func planSlotID(teamID, day string) string {
	return teamID + ":" + day
}
