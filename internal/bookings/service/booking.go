package service

import (
	"context"
	"errors"
	"time"

	bookingerrors "saubio/internal/bookings/errors"
	"saubio/internal/bookings/repository"
	"saubio/internal/bookings/validator"
	"saubio/pkg/config"
	apperrors "saubio/pkg/errors"
	"saubio/pkg/events"
	"saubio/pkg/middleware"
	"saubio/pkg/model"
	"saubio/pkg/sanitizer"

	"github.com/google/uuid"
)

// transitions is the full lifecycle map. Terminal states have no outgoing
// edges; cancelled and disputed are additionally reachable from every
// non-terminal state (handled in allowedTransition, not listed here).
var transitions = map[model.BookingStatus][]model.BookingStatus{
	model.StatusDraft:           {model.StatusPendingProvider, model.StatusPendingClient},
	model.StatusPendingProvider: {model.StatusPendingClient, model.StatusConfirmed},
	model.StatusPendingClient:   {model.StatusConfirmed, model.StatusPendingProvider},
	model.StatusConfirmed:       {model.StatusInProgress, model.StatusPendingProvider},
	model.StatusInProgress:      {model.StatusCompleted},
	model.StatusDisputed:        {model.StatusCompleted, model.StatusCancelled},
}

func allowedTransition(from, to model.BookingStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == model.StatusCancelled || to == model.StatusDisputed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LockManager is the slice of lock operations the state machine drives:
// coverage reads before confirming and bulk release on cancellation.
type LockManager interface {
	ListForBooking(ctx context.Context, bookingID string) ([]*model.Lock, error)
	ReleaseForBooking(ctx context.Context, actorID, bookingID string) ([]*model.Lock, error)
}

// FallbackQueuePurger removes a booking from every team fallback queue;
// implemented by the teams repository. Must be idempotent so cancellation
// cleanup can be retried until all references are gone.
type FallbackQueuePurger interface {
	RemoveFromAllQueues(ctx context.Context, bookingID string) (int64, error)
}

// TeamSizer resolves team member counts for coverage computation.
type TeamSizer interface {
	MemberCount(ctx context.Context, teamID string) (int, error)
}

type BookingService interface {
	Create(ctx context.Context, actorID string, booking *model.Booking) (*model.Booking, error)
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	FindByClient(ctx context.Context, clientID string, limit int, offset int64) ([]*model.Booking, int64, error)
	List(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, int64, error)
	Update(ctx context.Context, actorID, id string, update *model.BookingUpdate) (*model.Booking, error)
	Transition(ctx context.Context, actorID, id string, to model.BookingStatus) (*model.Booking, error)
	Cancel(ctx context.Context, actorID, id string) (*model.Booking, error)
	RequestMatch(ctx context.Context, actorID, id string) error
	AuditTrail(ctx context.Context, id string) ([]*model.AuditEntry, error)
}

type bookingService struct {
	repo      repository.BookingRepository
	audit     repository.AuditRepository
	validator *validator.BookingValidator
	locks     LockManager
	queues    FallbackQueuePurger
	teams     TeamSizer
	publisher events.Publisher
	cfg       *config.Config
}

func NewBookingService(
	repo repository.BookingRepository,
	audit repository.AuditRepository,
	v *validator.BookingValidator,
	locks LockManager,
	queues FallbackQueuePurger,
	teams TeamSizer,
	publisher events.Publisher,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:      repo,
		audit:     audit,
		validator: v,
		locks:     locks,
		queues:    queues,
		teams:     teams,
		publisher: publisher,
		cfg:       cfg,
	}
}

func (s *bookingService) Create(ctx context.Context, actorID string, booking *model.Booking) (*model.Booking, error) {
	booking.ID = uuid.New().String()
	booking.Address = sanitizer.NormalizeAddress(booking.Address)
	booking.ServiceCategory = sanitizer.SanitizeCategoryLabel(booking.ServiceCategory)
	if booking.Status == "" {
		booking.Status = model.StatusDraft
	}
	if booking.Status != model.StatusDraft {
		return nil, apperrors.InvalidInput("New bookings must start in draft status")
	}
	booking.MatchingRetryCount = 0
	booking.FallbackRequestedAt = nil
	booking.FallbackEscalatedAt = nil

	if err := s.validator.ValidateCreate(booking); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, booking); err != nil {
		return nil, apperrors.Internal("Failed to create booking", err)
	}

	s.recordAudit(ctx, booking.ID, actorID, model.AuditStatusChanged, map[string]any{
		"from": "",
		"to":   string(model.StatusDraft),
	})

	// Smart-match bookings enter the orchestrator as soon as they exist.
	if booking.Mode == model.ModeSmartMatch {
		if err := s.publisher.PublishMatchRequest(ctx, events.MatchRequest{
			BookingID:   booking.ID,
			Reason:      events.ReasonBookingCreated,
			RequestedAt: time.Now().UTC(),
		}); err != nil {
			s.cfg.Log.Error("Failed to publish match request for new booking",
				"booking_id", booking.ID, "error", err)
		}
	}

	s.cfg.Log.Info("Booking created",
		"booking_id", booking.ID,
		"client_id", booking.ClientID,
		"mode", booking.Mode,
	)
	return booking, nil
}

func (s *bookingService) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	return s.findBooking(ctx, id)
}

func (s *bookingService) FindByClient(ctx context.Context, clientID string, limit int, offset int64) ([]*model.Booking, int64, error) {
	if clientID == "" {
		return nil, 0, apperrors.InvalidInput("Client ID cannot be empty")
	}
	bookings, total, err := s.repo.FindByClient(ctx, clientID, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to list bookings", err)
	}
	return bookings, total, nil
}

func (s *bookingService) List(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, int64, error) {
	bookings, total, err := s.repo.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to list bookings", err)
	}
	return bookings, total, nil
}

func (s *bookingService) Update(ctx context.Context, actorID, id string, update *model.BookingUpdate) (*model.Booking, error) {
	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != model.StatusDraft && booking.Status != model.StatusPendingProvider {
		return nil, apperrors.Conflict("Booking can only be edited before providers are engaged")
	}

	if update.Address != "" {
		update.Address = sanitizer.NormalizeAddress(update.Address)
	}
	if update.ServiceCategory != "" {
		update.ServiceCategory = sanitizer.SanitizeCategoryLabel(update.ServiceCategory)
	}
	if err := s.validator.ValidateUpdate(update); err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, id, update)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		return nil, apperrors.Internal("Failed to update booking", err)
	}
	return updated, nil
}

func (s *bookingService) Transition(ctx context.Context, actorID, id string, to model.BookingStatus) (*model.Booking, error) {
	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	if booking.Status == to {
		return booking, nil
	}
	if !allowedTransition(booking.Status, to) {
		return nil, apperrors.Conflict(
			"Transition from " + string(booking.Status) + " to " + string(to) + " is not allowed")
	}

	if to == model.StatusCancelled {
		return s.Cancel(ctx, actorID, id)
	}

	if to == model.StatusConfirmed {
		if err := s.checkConfirmedCoverage(ctx, booking); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.UpdateStatusGuarded(ctx, id, []model.BookingStatus{booking.Status}, to)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrStatusConflict) {
			return nil, apperrors.Conflict("Booking status changed concurrently")
		}
		if errors.Is(err, bookingerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		return nil, apperrors.Internal("Failed to transition booking", err)
	}

	s.recordAudit(ctx, id, actorID, model.AuditStatusChanged, map[string]any{
		"from": string(booking.Status),
		"to":   string(to),
	})

	if err := s.publisher.PublishBookingEvent(ctx, events.TypeBookingStatusChanged, events.BookingEvent{
		BookingID:  id,
		Status:     string(to),
		OccurredAt: time.Now().UTC(),
		Metadata:   map[string]any{"from": string(booking.Status)},
	}); err != nil {
		s.cfg.Log.Error("Failed to publish booking event", "booking_id", id, "error", err)
	}

	s.cfg.Log.Info("Booking transitioned",
		"booking_id", id,
		"from", booking.Status,
		"to", to,
		"actor_id", actorID,
	)
	return updated, nil
}

// Cancel releases every active lock, purges all fallback queue entries and
// marks the booking cancelled. Each step is idempotent so the whole cleanup
// can be re-run after a partial failure until no references remain.
func (s *bookingService) Cancel(ctx context.Context, actorID, id string) (*model.Booking, error) {
	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == model.StatusCancelled {
		return booking, nil
	}
	if booking.Status.Terminal() {
		return nil, apperrors.Conflict("Completed bookings cannot be cancelled")
	}

	if _, err := s.locks.ReleaseForBooking(ctx, actorID, id); err != nil {
		return nil, apperrors.Internal("Failed to release booking locks during cancellation", err)
	}

	removed, err := s.queues.RemoveFromAllQueues(ctx, id)
	if err != nil {
		return nil, apperrors.Internal("Failed to purge fallback queues during cancellation", err)
	}

	updated, err := s.repo.UpdateStatusGuarded(ctx, id,
		[]model.BookingStatus{
			model.StatusDraft, model.StatusPendingProvider, model.StatusPendingClient,
			model.StatusConfirmed, model.StatusInProgress, model.StatusDisputed,
		},
		model.StatusCancelled)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrStatusConflict) {
			// Someone else finished the cancellation; locks and queues are
			// already clean, so report the current state.
			return s.findBooking(ctx, id)
		}
		return nil, apperrors.Internal("Failed to cancel booking", err)
	}

	s.recordAudit(ctx, id, actorID, model.AuditBookingCancelled, map[string]any{
		"from":          string(booking.Status),
		"queues_purged": removed,
	})

	if err := s.publisher.PublishBookingEvent(ctx, events.TypeBookingCancelled, events.BookingEvent{
		BookingID:  id,
		Status:     string(model.StatusCancelled),
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		s.cfg.Log.Error("Failed to publish cancellation event", "booking_id", id, "error", err)
	}

	s.cfg.Log.Info("Booking cancelled", "booking_id", id, "actor_id", actorID)
	return updated, nil
}

// RequestMatch queues a manual matching retry for a smart-match booking.
// The retry counter is not reset; the orchestrator continues from where it
// left off.
func (s *bookingService) RequestMatch(ctx context.Context, actorID, id string) error {
	booking, err := s.findBooking(ctx, id)
	if err != nil {
		return err
	}
	if booking.Mode != model.ModeSmartMatch {
		return apperrors.InvalidInput("Only smart-match bookings can be queued for matching")
	}
	if booking.Status != model.StatusDraft && booking.Status != model.StatusPendingProvider {
		return apperrors.Conflict("Booking is not awaiting provider matching")
	}

	if err := s.publisher.PublishMatchRequest(ctx, events.MatchRequest{
		BookingID:   id,
		Reason:      events.ReasonManualRetry,
		RequestedAt: time.Now().UTC(),
	}); err != nil {
		return apperrors.Internal("Failed to queue match request", err)
	}
	s.cfg.Log.Info("Match retry requested", "booking_id", id, "actor_id", actorID)
	return nil
}

func (s *bookingService) AuditTrail(ctx context.Context, id string) ([]*model.AuditEntry, error) {
	if _, err := s.findBooking(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.audit.FindByBooking(ctx, id)
	if err != nil {
		return nil, apperrors.Internal("Failed to load audit trail", err)
	}
	return entries, nil
}

// checkConfirmedCoverage enforces the confirm guard: at least one CONFIRMED
// lock set covering the full booking window with provider count meeting the
// requirement.
func (s *bookingService) checkConfirmedCoverage(ctx context.Context, booking *model.Booking) error {
	locks, err := s.locks.ListForBooking(ctx, booking.ID)
	if err != nil {
		return apperrors.Internal("Failed to load booking locks", err)
	}

	teamSizes := make(map[string]int)
	for _, l := range locks {
		if l.Target.Kind != model.TargetTeam || l.Status != model.LockConfirmed {
			continue
		}
		if _, seen := teamSizes[l.Target.ID]; seen {
			continue
		}
		size, err := s.teams.MemberCount(ctx, l.Target.ID)
		if err != nil {
			return apperrors.Internal("Failed to resolve team size", err)
		}
		teamSizes[l.Target.ID] = size
	}

	if !model.CoverageSatisfied(booking, locks, teamSizes) {
		return apperrors.Conflict("Booking window is not fully covered by confirmed locks")
	}
	return nil
}

func (s *bookingService) findBooking(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}
	return booking, nil
}

func (s *bookingService) recordAudit(ctx context.Context, bookingID, actorID, action string, metadata map[string]any) {
	if rid := middleware.RequestID(ctx); rid != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["request_id"] = rid
	}
	entry := &model.AuditEntry{
		ID:        uuid.New().String(),
		BookingID: bookingID,
		Timestamp: time.Now().UTC(),
		ActorID:   actorID,
		Action:    action,
		Metadata:  metadata,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.cfg.Log.Error("Failed to append audit entry",
			"booking_id", bookingID,
			"action", action,
			"error", err,
		)
	}
}
