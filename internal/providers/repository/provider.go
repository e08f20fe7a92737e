package repository

import (
	"context"
	"errors"
	"fmt"

	"saubio/pkg/config"
	"saubio/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Providers"

var ErrNotFound = errors.New("provider not found")

type ProviderRepository interface {
	FindByID(ctx context.Context, id string) (*model.Provider, error)
	// FindActiveByCategory returns active providers serving the category,
	// best-rated first, optionally restricted to eco-friendly ones.
	FindActiveByCategory(ctx context.Context, category string, ecoOnly bool, limit int) ([]*model.Provider, error)
}

type mongoProviderRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoProviderRepository(cfg *config.Config) ProviderRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoProviderRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoProviderRepository) FindByID(ctx context.Context, id string) (*model.Provider, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var provider model.Provider
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&provider)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find provider: %w", err)
	}
	return &provider, nil
}

func (r *mongoProviderRepository) FindActiveByCategory(ctx context.Context, category string, ecoOnly bool, limit int) ([]*model.Provider, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	query := bson.M{
		"active":             true,
		"service_categories": category,
	}
	if ecoOnly {
		query["eco_friendly"] = true
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "rating", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer cursor.Close(ctx)

	providers := make([]*model.Provider, 0)
	if err := cursor.All(ctx, &providers); err != nil {
		return nil, fmt.Errorf("failed to decode providers: %w", err)
	}
	return providers, nil
}
