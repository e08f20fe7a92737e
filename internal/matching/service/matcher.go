package service

import (
	"context"
	"errors"
	"time"

	availability "saubio/internal/availability/service"
	bookingerrors "saubio/internal/bookings/errors"
	bookingrepo "saubio/internal/bookings/repository"
	fallback "saubio/internal/fallback/service"
	lockservice "saubio/internal/locks/service"
	"saubio/pkg/config"
	apperrors "saubio/pkg/errors"
	"saubio/pkg/events"
	"saubio/pkg/keymutex"
	"saubio/pkg/middleware"
	"saubio/pkg/model"

	"github.com/google/uuid"
)

const matcherActor = "system:matcher"

// MatchingService runs one matching pass per invocation. Passes for the
// same booking are serialized; different bookings run fully in parallel.
type MatchingService interface {
	Match(ctx context.Context, bookingID, reason string) error
}

type matchingService struct {
	bookings  bookingrepo.BookingRepository
	audit     bookingrepo.AuditRepository
	index     availability.AvailabilityService
	locks     lockservice.LockService
	escalator fallback.EscalatorService
	publisher events.Publisher
	bookingMu *keymutex.KeyMutex
	cfg       *config.Config
}

func NewMatchingService(
	bookings bookingrepo.BookingRepository,
	audit bookingrepo.AuditRepository,
	index availability.AvailabilityService,
	locks lockservice.LockService,
	escalator fallback.EscalatorService,
	publisher events.Publisher,
	bookingMu *keymutex.KeyMutex,
	cfg *config.Config,
) MatchingService {
	return &matchingService{
		bookings:  bookings,
		audit:     audit,
		index:     index,
		locks:     locks,
		escalator: escalator,
		publisher: publisher,
		bookingMu: bookingMu,
		cfg:       cfg,
	}
}

func (s *matchingService) Match(ctx context.Context, bookingID, reason string) error {
	if bookingID == "" {
		return apperrors.InvalidInput("Booking ID cannot be empty")
	}

	key := "booking:" + bookingID
	s.bookingMu.Lock(key)
	defer s.bookingMu.Unlock(key)

	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Booking", bookingID)
		}
		return apperrors.Internal("Failed to retrieve booking", err)
	}

	if booking.Mode != model.ModeSmartMatch {
		s.cfg.Log.Debug("Skipping matching for manual booking", "booking_id", bookingID)
		return nil
	}
	switch booking.Status {
	case model.StatusDraft, model.StatusPendingProvider:
	default:
		s.cfg.Log.Debug("Skipping matching pass, booking not matchable",
			"booking_id", bookingID, "status", booking.Status)
		return nil
	}

	// Draft bookings enter the pipeline on their first pass.
	if booking.Status == model.StatusDraft {
		updated, err := s.bookings.UpdateStatusGuarded(ctx, bookingID,
			[]model.BookingStatus{model.StatusDraft}, model.StatusPendingProvider)
		if err != nil {
			if errors.Is(err, bookingerrors.ErrStatusConflict) {
				return nil
			}
			return apperrors.Internal("Failed to start matching", err)
		}
		booking = updated
		s.recordAudit(ctx, bookingID, model.AuditStatusChanged, map[string]any{
			"from": string(model.StatusDraft),
			"to":   string(model.StatusPendingProvider),
		})
	}

	candidates, err := s.index.FindCandidates(ctx, availability.CandidateQuery{
		ServiceCategory:   booking.ServiceCategory,
		Window:            booking.Window,
		EcoPreference:     booking.EcoPreference,
		RequiredProviders: booking.RequiredProviders,
		Limit:             s.cfg.MatchingCandidateLimit,
	})
	if err != nil {
		return err
	}

	held, target, err := s.tryCandidates(ctx, booking, candidates)
	if err != nil {
		return err
	}
	if held != nil {
		return s.onMatched(ctx, booking, held, target, reason)
	}
	return s.onExhausted(ctx, booking, len(candidates))
}

// tryCandidates attempts a hold per candidate in order, stopping at the
// first success. CONFLICT moves to the next candidate and is never retried
// against the same target.
func (s *matchingService) tryCandidates(ctx context.Context, booking *model.Booking, candidates []availability.Candidate) (*model.Lock, *availability.Candidate, error) {
	for i := range candidates {
		candidate := &candidates[i]
		lock, err := s.locks.Hold(ctx, matcherActor, booking.ID, candidate.Target, booking.Window, nil)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeConflict) {
				s.cfg.Log.Debug("Candidate conflicted, trying next",
					"booking_id", booking.ID, "target", candidate.Target.Key())
				continue
			}
			return nil, nil, err
		}
		return lock, candidate, nil
	}
	return nil, nil, nil
}

func (s *matchingService) onMatched(ctx context.Context, booking *model.Booking, lock *model.Lock, candidate *availability.Candidate, reason string) error {
	if candidate.Target.Kind == model.TargetProvider {
		if err := s.bookings.SetAssignedProviders(ctx, booking.ID, []string{candidate.Target.ID}); err != nil {
			s.cfg.Log.Error("Failed to record assigned provider",
				"booking_id", booking.ID, "error", err)
		}
	}

	next := model.StatusPendingClient
	if s.cfg.MatchingAutoConfirm {
		if _, err := s.locks.Confirm(ctx, matcherActor, lock.ID); err != nil {
			return err
		}
		next = model.StatusConfirmed
	}

	if _, err := s.bookings.UpdateStatusGuarded(ctx, booking.ID,
		[]model.BookingStatus{model.StatusPendingProvider}, next); err != nil {
		if !errors.Is(err, bookingerrors.ErrStatusConflict) {
			return apperrors.Internal("Failed to advance matched booking", err)
		}
	}

	s.recordAudit(ctx, booking.ID, model.AuditStatusChanged, map[string]any{
		"from":        string(model.StatusPendingProvider),
		"to":          string(next),
		"target_kind": string(candidate.Target.Kind),
		"target_id":   candidate.Target.ID,
		"reason":      reason,
	})

	if err := s.publisher.PublishBookingEvent(ctx, events.TypeBookingMatched, events.BookingEvent{
		BookingID:  booking.ID,
		Status:     string(next),
		OccurredAt: time.Now().UTC(),
		Metadata: map[string]any{
			"target_kind": string(candidate.Target.Kind),
			"target_id":   candidate.Target.ID,
			"lock_id":     lock.ID,
		},
	}); err != nil {
		s.cfg.Log.Error("Failed to publish match event", "booking_id", booking.ID, "error", err)
	}

	s.cfg.Log.Info("Booking matched",
		"booking_id", booking.ID,
		"target", candidate.Target.Key(),
		"status", next,
	)
	return nil
}

// onExhausted increments the retry counter exactly once per failed pass and
// hands the booking to the escalator when the threshold is crossed.
func (s *matchingService) onExhausted(ctx context.Context, booking *model.Booking, candidateCount int) error {
	retryCount, err := s.bookings.IncrementRetryCount(ctx, booking.ID)
	if err != nil {
		return apperrors.Internal("Failed to record failed matching pass", err)
	}

	s.recordAudit(ctx, booking.ID, model.AuditMatchingFailed, map[string]any{
		"retry_count":      retryCount,
		"candidates_tried": candidateCount,
	})
	s.cfg.Log.Info("Matching pass exhausted",
		"booking_id", booking.ID,
		"retry_count", retryCount,
		"candidates", candidateCount,
	)

	if retryCount < s.cfg.MatchingRetryThreshold {
		return nil
	}

	requested, err := s.bookings.SetFallbackRequested(ctx, booking.ID, time.Now().UTC())
	if err != nil {
		return apperrors.Internal("Failed to request fallback", err)
	}
	if !requested {
		// A previous pass already handed this booking off.
		return nil
	}

	s.recordAudit(ctx, booking.ID, model.AuditFallbackRequested, map[string]any{
		"retry_count": retryCount,
	})

	fresh, err := s.bookings.FindByID(ctx, booking.ID)
	if err != nil {
		return apperrors.Internal("Failed to reload booking for escalation", err)
	}
	enqueued, err := s.escalator.Escalate(ctx, fresh)
	if err != nil {
		return err
	}

	if err := s.publisher.PublishBookingEvent(ctx, events.TypeBookingEscalated, events.BookingEvent{
		BookingID:  booking.ID,
		Status:     string(fresh.Status),
		OccurredAt: time.Now().UTC(),
		Metadata: map[string]any{
			"retry_count":    retryCount,
			"teams_enqueued": enqueued,
		},
	}); err != nil {
		s.cfg.Log.Error("Failed to publish escalation event", "booking_id", booking.ID, "error", err)
	}
	return nil
}

func (s *matchingService) recordAudit(ctx context.Context, bookingID, action string, metadata map[string]any) {
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
		ActorID:   matcherActor,
		Action:    action,
		Metadata:  metadata,
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.cfg.Log.Error("Failed to append audit entry",
			"booking_id", bookingID, "action", action, "error", err)
	}
}
