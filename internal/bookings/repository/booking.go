package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingerrors "saubio/internal/bookings/errors"
	"saubio/pkg/config"
	mongotx "saubio/pkg/db/mongo"
	"saubio/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Bookings"

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindByClient(ctx context.Context, clientID string, limit int, offset int64) ([]*model.Booking, int64, error)
	List(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, int64, error)
	Update(ctx context.Context, id string, update *model.BookingUpdate) (*model.Booking, error)
	// CompareAndSetStatus transitions the booking only when its current
	// status equals from; reports whether the document changed.
	CompareAndSetStatus(ctx context.Context, id string, from, to model.BookingStatus) (bool, error)
	// UpdateStatusGuarded transitions from any of the given statuses and
	// returns the updated booking, or ErrStatusConflict.
	UpdateStatusGuarded(ctx context.Context, id string, from []model.BookingStatus, to model.BookingStatus) (*model.Booking, error)
	IncrementRetryCount(ctx context.Context, id string) (int, error)
	SetFallbackRequested(ctx context.Context, id string, at time.Time) (bool, error)
	SetFallbackAssigned(ctx context.Context, id string, at time.Time, candidate *model.FallbackTeamCandidate, teamID string) error
	SetAssignedProviders(ctx context.Context, id string, providerIDs []string) error
	Archive(ctx context.Context, id string, at time.Time) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	booking.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return &booking, nil
}

func (r *mongoBookingRepository) FindByClient(ctx context.Context, clientID string, limit int, offset int64) ([]*model.Booking, int64, error) {
	return r.paginatedFind(ctx, bson.M{"client_id": clientID, "archived_at": nil}, limit, offset)
}

func (r *mongoBookingRepository) List(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Mode != "" {
		query["mode"] = filter.Mode
	}
	if filter.FallbackRequested != nil {
		if *filter.FallbackRequested {
			query["fallback_requested_at"] = bson.M{"$ne": nil}
		} else {
			query["fallback_requested_at"] = nil
		}
	}
	if filter.FallbackEscalated != nil {
		if *filter.FallbackEscalated {
			query["fallback_escalated_at"] = bson.M{"$ne": nil}
		} else {
			query["fallback_escalated_at"] = nil
		}
	}
	if filter.MinRetryCount > 0 {
		query["matching_retry_count"] = bson.M{"$gte": filter.MinRetryCount}
	}
	if !filter.IncludeArchived {
		query["archived_at"] = nil
	}
	return r.paginatedFind(ctx, query, limit, offset)
}

func (r *mongoBookingRepository) paginatedFind(ctx context.Context, query bson.M, limit int, offset int64) ([]*model.Booking, int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := make([]*model.Booking, 0)
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, 0, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, total, nil
}

func (r *mongoBookingRepository) Update(ctx context.Context, id string, update *model.BookingUpdate) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	set := bson.M{}
	if update.Address != "" {
		set["address"] = update.Address
	}
	if update.ServiceCategory != "" {
		set["service_category"] = update.ServiceCategory
	}
	if update.Window != nil {
		set["window"] = update.Window
	}
	if update.RequiredProviders != nil {
		set["required_providers"] = *update.RequiredProviders
	}
	if update.Mode != "" {
		set["mode"] = update.Mode
	}
	if update.EcoPreference != nil {
		set["eco_preference"] = *update.EcoPreference
	}
	if len(set) == 0 {
		return r.FindByID(ctx, id)
	}

	var booking model.Booking
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}
	return &booking, nil
}

func (r *mongoBookingRepository) CompareAndSetStatus(ctx context.Context, id string, from, to model.BookingStatus) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (r *mongoBookingRepository) UpdateStatusGuarded(ctx context.Context, id string, from []model.BookingStatus, to model.BookingStatus) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	var booking model.Booking
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": bson.M{"status": to}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Distinguish a missing booking from a lost status race.
			if _, findErr := r.FindByID(ctx, id); errors.Is(findErr, bookingerrors.ErrNotFound) {
				return nil, bookingerrors.ErrNotFound
			}
			return nil, bookingerrors.ErrStatusConflict
		}
		return nil, fmt.Errorf("failed to transition booking status: %w", err)
	}
	return &booking, nil
}

func (r *mongoBookingRepository) IncrementRetryCount(ctx context.Context, id string) (int, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	var booking model.Booking
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"matching_retry_count": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, bookingerrors.ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment retry count: %w", err)
	}
	return booking.MatchingRetryCount, nil
}

// SetFallbackRequested stamps fallback_requested_at once; repeated calls
// report false without touching the stored timestamp.
func (r *mongoBookingRepository) SetFallbackRequested(ctx context.Context, id string, at time.Time) (bool, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "fallback_requested_at": nil},
		bson.M{"$set": bson.M{"fallback_requested_at": at}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark fallback requested: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// SetFallbackAssigned stamps the assignment only while no other caller
// has; a booking that already carries fallback_escalated_at reports
// ErrAlreadyAssigned so racing instances lose deterministically.
func (r *mongoBookingRepository) SetFallbackAssigned(ctx context.Context, id string, at time.Time, candidate *model.FallbackTeamCandidate, teamID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "fallback_escalated_at": nil},
		bson.M{"$set": bson.M{
			"fallback_escalated_at":   at,
			"fallback_team_candidate": candidate,
			"assigned_team_id":        teamID,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to record fallback assignment: %w", err)
	}
	if res.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("failed to record fallback assignment: %w", err)
		}
		if count == 0 {
			return bookingerrors.ErrNotFound
		}
		return bookingerrors.ErrAlreadyAssigned
	}
	return nil
}

func (r *mongoBookingRepository) SetAssignedProviders(ctx context.Context, id string, providerIDs []string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"assigned_provider_ids": providerIDs}},
	)
	if err != nil {
		return fmt.Errorf("failed to record assigned providers: %w", err)
	}
	if res.MatchedCount == 0 {
		return bookingerrors.ErrNotFound
	}
	return nil
}

func (r *mongoBookingRepository) Archive(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"archived_at": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to archive booking: %w", err)
	}
	if res.MatchedCount == 0 {
		return bookingerrors.ErrNotFound
	}
	return nil
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
