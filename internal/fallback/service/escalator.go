package service

import (
	"context"
	"errors"
	"time"

	bookingerrors "saubio/internal/bookings/errors"
	bookingrepo "saubio/internal/bookings/repository"
	lockservice "saubio/internal/locks/service"
	teamrepo "saubio/internal/teams/repository"
	teamservice "saubio/internal/teams/service"
	"saubio/pkg/config"
	apperrors "saubio/pkg/errors"
	"saubio/pkg/events"
	"saubio/pkg/keymutex"
	"saubio/pkg/middleware"
	"saubio/pkg/model"

	"github.com/google/uuid"
)

// EscalatorService handles bookings the orchestrator gave up on. Escalate
// fans the booking out to eligible team queues; AssignTeam is the only
// externally triggerable state change and is effectively exactly-once.
type EscalatorService interface {
	Escalate(ctx context.Context, booking *model.Booking) (int, error)
	AssignTeam(ctx context.Context, actorID, bookingID, teamID string) (*model.Booking, error)
}

type escalatorService struct {
	bookings  bookingrepo.BookingRepository
	audit     bookingrepo.AuditRepository
	teams     teamrepo.TeamRepository
	teamSvc   teamservice.TeamService
	locks     lockservice.LockService
	publisher events.Publisher
	bookingMu *keymutex.KeyMutex
	cfg       *config.Config
}

func NewEscalatorService(
	bookings bookingrepo.BookingRepository,
	audit bookingrepo.AuditRepository,
	teams teamrepo.TeamRepository,
	teamSvc teamservice.TeamService,
	locks lockservice.LockService,
	publisher events.Publisher,
	bookingMu *keymutex.KeyMutex,
	cfg *config.Config,
) EscalatorService {
	return &escalatorService{
		bookings:  bookings,
		audit:     audit,
		teams:     teams,
		teamSvc:   teamSvc,
		locks:     locks,
		publisher: publisher,
		bookingMu: bookingMu,
		cfg:       cfg,
	}
}

// Escalate enqueues the booking on every eligible team's fallback queue,
// capped by the fan-out limit. The queue filter makes each enqueue
// at-most-once per team, so re-escalation never duplicates entries.
func (s *escalatorService) Escalate(ctx context.Context, booking *model.Booking) (int, error) {
	if booking.FallbackRequestedAt == nil {
		return 0, apperrors.Conflict("Booking has not requested fallback")
	}

	eligible, err := s.teams.FindEligible(ctx,
		booking.ServiceCategory,
		booking.RequiredProviders,
		s.cfg.FallbackSizeTolerance,
		s.cfg.FallbackFanOutLimit,
	)
	if err != nil {
		return 0, apperrors.Internal("Failed to find eligible teams", err)
	}

	entry := model.FallbackEntry{
		BookingID:         booking.ID,
		ServiceCategory:   booking.ServiceCategory,
		Window:            booking.Window,
		RequiredProviders: booking.RequiredProviders,
		EnqueuedAt:        time.Now().UTC(),
	}

	enqueued := 0
	for _, team := range eligible {
		if team.MemberCount() < booking.RequiredProviders {
			continue
		}
		added, err := s.teams.EnqueueFallback(ctx, team.ID, entry)
		if err != nil {
			s.cfg.Log.Error("Failed to enqueue fallback entry",
				"booking_id", booking.ID, "team_id", team.ID, "error", err)
			continue
		}
		if added {
			enqueued++
		}
	}

	s.cfg.Log.Info("Booking escalated to fallback queues",
		"booking_id", booking.ID,
		"eligible_teams", len(eligible),
		"enqueued", enqueued,
	)
	return enqueued, nil
}

func (s *escalatorService) AssignTeam(ctx context.Context, actorID, bookingID, teamID string) (*model.Booking, error) {
	if bookingID == "" || teamID == "" {
		return nil, apperrors.InvalidInput("Booking ID and team ID are required")
	}

	// Serialized per booking: a concurrent second caller waits here and
	// then observes the assignment as a no-op or a lock conflict.
	key := "booking:" + bookingID
	s.bookingMu.Lock(key)
	defer s.bookingMu.Unlock(key)

	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", bookingID)
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}

	if booking.FallbackEscalatedAt != nil {
		if booking.AssignedTeamID == teamID {
			return booking, nil
		}
		return nil, apperrors.Conflict("Booking has already been assigned to a fallback team")
	}
	if booking.FallbackRequestedAt == nil {
		return nil, apperrors.Conflict("Booking has not requested fallback")
	}
	if booking.Status.Terminal() {
		return nil, apperrors.Conflict("Booking is no longer assignable")
	}

	team, err := s.teamSvc.FindByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.QueuePosition(bookingID) < 0 {
		return nil, apperrors.TeamIneligible("Team is not in the booking's fallback candidate set", map[string]any{
			"team_id":    teamID,
			"booking_id": bookingID,
		})
	}
	if !team.ServesCategory(booking.ServiceCategory) {
		return nil, apperrors.TeamIneligible("Team does not serve the booking's category", map[string]any{
			"team_id":  teamID,
			"category": booking.ServiceCategory,
		})
	}
	if team.MemberCount() < booking.RequiredProviders {
		return nil, apperrors.TeamIneligible("Team is too small for the booking", map[string]any{
			"team_id":            teamID,
			"member_count":       team.MemberCount(),
			"required_providers": booking.RequiredProviders,
		})
	}

	lock, err := s.locks.Hold(ctx, actorID, bookingID, model.TeamTarget(teamID), booking.Window, nil)
	if err != nil {
		// CONFLICT leaves the queue entry intact so another team or an
		// operator can retry.
		return nil, err
	}

	if err := s.teamSvc.ReserveWindow(ctx, teamID, booking.Window); err != nil {
		if _, releaseErr := s.locks.Release(ctx, actorID, lock.ID); releaseErr != nil {
			s.cfg.Log.Error("Failed to release lock after capacity refusal",
				"lock_id", lock.ID, "error", releaseErr)
		}
		return nil, err
	}

	if _, err := s.locks.Confirm(ctx, actorID, lock.ID); err != nil {
		s.rollbackAssignment(ctx, actorID, teamID, booking, lock.ID)
		return nil, err
	}

	now := time.Now().UTC()
	candidate := &model.FallbackTeamCandidate{
		TeamID:        team.ID,
		Name:          team.Name,
		PreferredSize: team.PreferredSize,
		MemberCount:   team.MemberCount(),
	}
	if err := s.bookings.SetFallbackAssigned(ctx, bookingID, now, candidate, teamID); err != nil {
		s.rollbackAssignment(ctx, actorID, teamID, booking, lock.ID)
		// Another instance stamped the assignment between our read and the
		// write; the stored stamp wins and our hold is undone.
		if errors.Is(err, bookingerrors.ErrAlreadyAssigned) {
			return nil, apperrors.Conflict("Booking has already been assigned to a fallback team")
		}
		return nil, apperrors.Internal("Failed to record fallback assignment", err)
	}

	// Every queue entry goes, including teams that did not win. Retried on
	// failure via cancellation-style cleanup; a leftover entry is caught by
	// the queue filter on any later enqueue.
	if _, err := s.teams.RemoveFromAllQueues(ctx, bookingID); err != nil {
		s.cfg.Log.Error("Failed to purge fallback queues after assignment",
			"booking_id", bookingID, "error", err)
	}

	updated, err := s.bookings.UpdateStatusGuarded(ctx, bookingID,
		[]model.BookingStatus{model.StatusDraft, model.StatusPendingProvider, model.StatusPendingClient},
		model.StatusConfirmed)
	if err != nil {
		if !errors.Is(err, bookingerrors.ErrStatusConflict) {
			return nil, apperrors.Internal("Failed to confirm booking after assignment", err)
		}
		updated, err = s.bookings.FindByID(ctx, bookingID)
		if err != nil {
			return nil, apperrors.Internal("Failed to retrieve booking", err)
		}
	}

	s.recordAudit(ctx, bookingID, actorID, model.AuditFallbackAssigned, map[string]any{
		"team_id":      teamID,
		"lock_id":      lock.ID,
		"member_count": team.MemberCount(),
	})

	if err := s.publisher.PublishBookingEvent(ctx, events.TypeFallbackAssigned, events.BookingEvent{
		BookingID:  bookingID,
		Status:     string(updated.Status),
		OccurredAt: now,
		Metadata:   map[string]any{"team_id": teamID},
	}); err != nil {
		s.cfg.Log.Error("Failed to publish fallback assignment event",
			"booking_id", bookingID, "error", err)
	}

	s.cfg.Log.Info("Fallback team assigned",
		"booking_id", bookingID,
		"team_id", teamID,
		"actor_id", actorID,
	)
	return updated, nil
}

func (s *escalatorService) rollbackAssignment(ctx context.Context, actorID, teamID string, booking *model.Booking, lockID string) {
	if _, err := s.locks.Release(ctx, actorID, lockID); err != nil {
		s.cfg.Log.Error("Failed to release lock during assignment rollback",
			"lock_id", lockID, "error", err)
	}
	if err := s.teamSvc.ReleaseWindow(ctx, teamID, booking.Window); err != nil {
		s.cfg.Log.Error("Failed to release team capacity during assignment rollback",
			"team_id", teamID, "error", err)
	}
}

func (s *escalatorService) recordAudit(ctx context.Context, bookingID, actorID, action string, metadata map[string]any) {
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
			"booking_id", bookingID, "action", action, "error", err)
	}
}
