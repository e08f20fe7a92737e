package mongo

import (
	"context"
	"fmt"
	"os"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"saubio/internal/migrations/mongo/validators"
)

const DefaultDBName = "saubio"

var (
	BookingsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "mode", Value: 1},
			{Key: "matching_retry_count", Value: 1},
		}},
		{Keys: bson.D{{Key: "fallback_requested_at", Value: 1}}},
		{Keys: bson.D{{Key: "fallback_escalated_at", Value: 1}}},
	}

	LocksIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "target.kind", Value: 1},
			{Key: "target.id", Value: 1},
			{Key: "status", Value: 1},
			{Key: "window.start", Value: 1},
		}},
		{Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
	}

	// The guard TTL index reaps advisory documents leaked by crashed
	// holders; normal operation deletes them explicitly.
	LockGuardsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	ProviderTeamsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "service_categories", Value: 1}, {Key: "preferred_size", Value: 1}}},
		{Keys: bson.D{{Key: "fallback_queue.booking_id", Value: 1}}},
	}

	TeamPlanSlotsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "team_id", Value: 1}, {Key: "day", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	ProvidersIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "active", Value: 1},
			{Key: "service_categories", Value: 1},
			{Key: "rating", Value: -1},
		}},
	}

	BookingAuditIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "timestamp", Value: 1}}},
	}
)

func RunMigration(ctx context.Context, client *mongo.Client) error {
	dbName := os.Getenv("MONGO_DB_NAME")
	if dbName == "" {
		dbName = DefaultDBName
	}
	db := client.Database(dbName)
	fmt.Printf("Running Mongo migrations on database: %s\n", dbName)

	collections := map[string]struct {
		Indexes   []mongo.IndexModel
		Validator bson.M
	}{
		"Bookings": {
			Indexes:   BookingsIndexes,
			Validator: validators.BookingValidator,
		},
		"Locks": {
			Indexes:   LocksIndexes,
			Validator: validators.LockValidator,
		},
		"Lock_guards": {
			Indexes:   LockGuardsIndexes,
			Validator: validators.TargetGuardValidator,
		},
		"Provider_teams": {
			Indexes:   ProviderTeamsIndexes,
			Validator: validators.ProviderTeamValidator,
		},
		"Team_plan_slots": {
			Indexes:   TeamPlanSlotsIndexes,
			Validator: validators.TeamPlanSlotValidator,
		},
		"Providers": {
			Indexes: ProvidersIndexes,
		},
		"Booking_audit": {
			Indexes: BookingAuditIndexes,
		},
	}

	for name, def := range collections {
		if err := ensureCollection(ctx, db, name, def.Validator); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	fmt.Println("All migrations applied successfully.")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		fmt.Printf("Creating collection: %s\n", name)
		opts := options.CreateCollection()
		if validator != nil {
			opts = opts.SetValidator(validator)
		}
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	if validator != nil {
		fmt.Printf("Collection %s already exists, updating validator\n", name)
		command := bson.D{
			{Key: "collMod", Value: name},
			{Key: "validator", Value: validator},
		}
		if err := db.RunCommand(ctx, command).Err(); err != nil {
			fmt.Printf("Warning: failed updating validator for %s: %v\n", name, err)
		}
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel) error {
	if len(models) == 0 {
		return nil
	}
	coll := db.Collection(name)
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	fmt.Printf("Ensured indexes for %s\n", name)
	return nil
}
