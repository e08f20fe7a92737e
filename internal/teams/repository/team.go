package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	teamerrors "saubio/internal/teams/errors"
	"saubio/pkg/config"
	"saubio/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Provider_teams"

type TeamRepository interface {
	Create(ctx context.Context, team *model.ProviderTeam) error
	FindByID(ctx context.Context, id string) (*model.ProviderTeam, error)
	// FindEligible returns teams serving the category whose preferred size
	// is within tolerance of requiredProviders and whose member count can
	// cover it.
	FindEligible(ctx context.Context, category string, requiredProviders, sizeTolerance, limit int) ([]*model.ProviderTeam, error)
	// EnqueueFallback appends the entry to the team's queue unless the
	// booking is already queued there; reports whether it was added.
	EnqueueFallback(ctx context.Context, teamID string, entry model.FallbackEntry) (bool, error)
	// RemoveFromAllQueues pulls the booking from every team's fallback
	// queue and returns the number of teams modified. Idempotent.
	RemoveFromAllQueues(ctx context.Context, bookingID string) (int64, error)
	FindQueuedTeams(ctx context.Context, bookingID string) ([]*model.ProviderTeam, error)
}

type mongoTeamRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoTeamRepository(cfg *config.Config) TeamRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoTeamRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoTeamRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoTeamRepository) Create(ctx context.Context, team *model.ProviderTeam) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	team.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if team.FallbackQueue == nil {
		team.FallbackQueue = []model.FallbackEntry{}
	}
	if _, err := r.collection.InsertOne(ctx, team); err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

func (r *mongoTeamRepository) FindByID(ctx context.Context, id string) (*model.ProviderTeam, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var team model.ProviderTeam
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&team)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, teamerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find team: %w", err)
	}
	return &team, nil
}

func (r *mongoTeamRepository) FindEligible(ctx context.Context, category string, requiredProviders, sizeTolerance, limit int) ([]*model.ProviderTeam, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	query := bson.M{
		"service_categories": category,
		"preferred_size": bson.M{
			"$gte": requiredProviders - sizeTolerance,
			"$lte": requiredProviders + sizeTolerance,
		},
	}
	// Member count must cover the requirement; members is an array so the
	// check is an $expr over its size.
	query["$expr"] = bson.M{"$gte": bson.A{bson.M{"$size": "$members"}, requiredProviders}}

	opts := options.Find().
		SetSort(bson.D{{Key: "preferred_size", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find eligible teams: %w", err)
	}
	defer cursor.Close(ctx)

	teams := make([]*model.ProviderTeam, 0)
	if err := cursor.All(ctx, &teams); err != nil {
		return nil, fmt.Errorf("failed to decode teams: %w", err)
	}
	return teams, nil
}

func (r *mongoTeamRepository) EnqueueFallback(ctx context.Context, teamID string, entry model.FallbackEntry) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	// The filter excludes teams already holding the booking, making the
	// enqueue at-most-once per team.
	res, err := r.collection.UpdateOne(ctx,
		bson.M{
			"_id":                       teamID,
			"fallback_queue.booking_id": bson.M{"$ne": entry.BookingID},
		},
		bson.M{"$push": bson.M{"fallback_queue": entry}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue fallback entry: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (r *mongoTeamRepository) RemoveFromAllQueues(ctx context.Context, bookingID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	res, err := r.collection.UpdateMany(ctx,
		bson.M{"fallback_queue.booking_id": bookingID},
		bson.M{"$pull": bson.M{"fallback_queue": bson.M{"booking_id": bookingID}}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge fallback queues: %w", err)
	}
	return res.ModifiedCount, nil
}

func (r *mongoTeamRepository) FindQueuedTeams(ctx context.Context, bookingID string) ([]*model.ProviderTeam, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"fallback_queue.booking_id": bookingID})
	if err != nil {
		return nil, fmt.Errorf("failed to find queued teams: %w", err)
	}
	defer cursor.Close(ctx)

	teams := make([]*model.ProviderTeam, 0)
	if err := cursor.All(ctx, &teams); err != nil {
		return nil, fmt.Errorf("failed to decode teams: %w", err)
	}
	return teams, nil
}
