package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	lockserrors "saubio/internal/locks/errors"
	"saubio/internal/locks/repository"
	"saubio/pkg/config"
	apperrors "saubio/pkg/errors"
	"saubio/pkg/events"
	"saubio/pkg/keymutex"
	"saubio/pkg/middleware"
	"saubio/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
)

// LockService owns every mutation of lock records. Hold is linearizable per
// target: concurrent holds on overlapping windows for the same provider or
// team cannot both succeed.
type LockService interface {
	Hold(ctx context.Context, actorID, bookingID string, target model.LockTarget, window model.TimeWindow, slot *model.TimeWindow) (*model.Lock, error)
	Confirm(ctx context.Context, actorID, lockID string) (*model.Lock, error)
	Release(ctx context.Context, actorID, lockID string) (*model.Lock, error)
	ReleaseForBooking(ctx context.Context, actorID, bookingID string) ([]*model.Lock, error)
	ListForBooking(ctx context.Context, bookingID string) ([]*model.Lock, error)
	SweepExpired(ctx context.Context) (int, error)
	RunSweeper(ctx context.Context)
}

// AuditRecorder appends one audit entry; implemented by the bookings audit
// repository.
type AuditRecorder interface {
	Append(ctx context.Context, entry *model.AuditEntry) error
}

// BookingStateStore is the narrow view of booking storage the lock manager
// needs to demote a booking whose confirmed coverage disappeared.
type BookingStateStore interface {
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	CompareAndSetStatus(ctx context.Context, id string, from, to model.BookingStatus) (bool, error)
}

// TeamSizer resolves the member count of a team target.
type TeamSizer interface {
	MemberCount(ctx context.Context, teamID string) (int, error)
}

type lockService struct {
	repo      repository.LockRepository
	guards    repository.TargetGuardRepository
	bookings  BookingStateStore
	teams     TeamSizer
	audit     AuditRecorder
	publisher events.Publisher
	targetMu  *keymutex.KeyMutex
	cfg       *config.Config
}

func NewLockService(
	repo repository.LockRepository,
	guards repository.TargetGuardRepository,
	bookings BookingStateStore,
	teams TeamSizer,
	audit AuditRecorder,
	publisher events.Publisher,
	cfg *config.Config,
) LockService {
	return &lockService{
		repo:      repo,
		guards:    guards,
		bookings:  bookings,
		teams:     teams,
		audit:     audit,
		publisher: publisher,
		targetMu:  keymutex.New(),
		cfg:       cfg,
	}
}

func (s *lockService) Hold(ctx context.Context, actorID, bookingID string, target model.LockTarget, window model.TimeWindow, slot *model.TimeWindow) (*model.Lock, error) {
	if bookingID == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	if target.ID == "" {
		return nil, apperrors.InvalidInput("Lock target cannot be empty")
	}
	if !window.End.After(window.Start) {
		return nil, apperrors.InvalidInput("Lock window end must be after start")
	}
	if slot != nil && !window.Covers(*slot) {
		return nil, apperrors.InvalidInput("Slot window must lie within the booking window")
	}

	// Per-target exclusive section: in-process mutex for goroutines sharing
	// this instance, advisory guard document for other instances.
	key := target.Key()
	s.targetMu.Lock(key)
	defer s.targetMu.Unlock(key)

	guardID, err := s.guards.Acquire(ctx, target, s.cfg.HoldTTL)
	if err != nil {
		if errors.Is(err, lockserrors.ErrGuardHeld) {
			return nil, apperrors.Conflict("Target is currently being held by another request")
		}
		return nil, apperrors.Internal("Failed to acquire target guard", err)
	}
	defer func() {
		// Released even when the request ctx is already cancelled; a guard
		// left behind blocks the target until its TTL runs out.
		releaseCtx := context.WithoutCancel(ctx)
		if releaseErr := s.guards.Release(releaseCtx, guardID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release target guard", "guard_id", guardID, "error", releaseErr)
		}
	}()

	now := time.Now().UTC()
	lock := &model.Lock{
		ID:        uuid.New().String(),
		BookingID: bookingID,
		Target:    target,
		Status:    model.LockHeld,
		Window:    window,
		ExpiresAt: now.Add(s.cfg.HoldTTL),
	}
	if slot != nil {
		lock.SlotStart = &slot.Start
		lock.SlotEnd = &slot.End
	}

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		effective := lock.EffectiveWindow()
		existing, err := s.repo.FindActiveByTarget(sessCtx, target, effective)
		if err != nil {
			return apperrors.Internal("Failed to check existing locks", err)
		}
		for _, l := range existing {
			if l.Expired(now) {
				// Past-TTL HELD locks no longer block; the sweeper will
				// release them.
				continue
			}
			if l.EffectiveWindow().Overlaps(effective) {
				return apperrors.Conflict(fmt.Sprintf(
					"Target already locked for an overlapping window (%s - %s)",
					l.EffectiveWindow().Start.Format(time.RFC3339),
					l.EffectiveWindow().End.Format(time.RFC3339),
				))
			}
		}
		if err := s.repo.Create(sessCtx, lock); err != nil {
			return apperrors.Internal("Failed to create lock", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, bookingID, actorID, model.AuditLockHeld, map[string]any{
		"lock_id":     lock.ID,
		"target_kind": string(target.Kind),
		"target_id":   target.ID,
		"expires_at":  lock.ExpiresAt.Format(time.RFC3339),
	})

	s.cfg.Log.Info("Lock held",
		"lock_id", lock.ID,
		"booking_id", bookingID,
		"target", key,
		"expires_at", lock.ExpiresAt,
	)
	return lock, nil
}

func (s *lockService) Confirm(ctx context.Context, actorID, lockID string) (*model.Lock, error) {
	lock, err := s.findLock(ctx, lockID)
	if err != nil {
		return nil, err
	}

	key := lock.Target.Key()
	s.targetMu.Lock(key)
	defer s.targetMu.Unlock(key)

	// Re-read under the target mutex; status may have moved.
	lock, err = s.findLock(ctx, lockID)
	if err != nil {
		return nil, err
	}

	switch lock.Status {
	case model.LockConfirmed:
		return lock, nil
	case model.LockReleased:
		return nil, apperrors.Expired("Lock has already been released")
	}

	if time.Now().After(lock.ExpiresAt) {
		return nil, apperrors.Expired("Lock TTL has elapsed")
	}

	updated, err := s.repo.UpdateStatus(ctx, lockID, []model.LockStatus{model.LockHeld}, model.LockConfirmed, nil)
	if err != nil {
		if errors.Is(err, lockserrors.ErrStatusConflict) {
			return nil, apperrors.Expired("Lock state changed before confirmation")
		}
		return nil, apperrors.Internal("Failed to confirm lock", err)
	}

	s.recordAudit(ctx, updated.BookingID, actorID, model.AuditLockConfirmed, map[string]any{
		"lock_id": updated.ID,
	})

	s.cfg.Log.Info("Lock confirmed", "lock_id", updated.ID, "booking_id", updated.BookingID)
	return updated, nil
}

func (s *lockService) Release(ctx context.Context, actorID, lockID string) (*model.Lock, error) {
	lock, err := s.findLock(ctx, lockID)
	if err != nil {
		return nil, err
	}

	key := lock.Target.Key()
	s.targetMu.Lock(key)
	defer s.targetMu.Unlock(key)

	lock, err = s.findLock(ctx, lockID)
	if err != nil {
		return nil, err
	}

	if lock.Status == model.LockReleased {
		return lock, nil
	}

	wasConfirmed := lock.Status == model.LockConfirmed

	now := time.Now().UTC()
	updated, err := s.repo.UpdateStatus(ctx, lockID,
		[]model.LockStatus{model.LockHeld, model.LockConfirmed},
		model.LockReleased, &now)
	if err != nil {
		if errors.Is(err, lockserrors.ErrStatusConflict) {
			// Lost the race to another release; fetch the terminal state.
			return s.findLock(ctx, lockID)
		}
		return nil, apperrors.Internal("Failed to release lock", err)
	}

	s.recordAudit(ctx, updated.BookingID, actorID, model.AuditLockReleased, map[string]any{
		"lock_id":       updated.ID,
		"was_confirmed": wasConfirmed,
	})

	if wasConfirmed {
		if err := s.demoteIfUncovered(ctx, actorID, updated.BookingID); err != nil {
			s.cfg.Log.Error("Failed to demote booking after confirmed lock release",
				"booking_id", updated.BookingID,
				"error", err,
			)
		}
	}

	s.cfg.Log.Info("Lock released", "lock_id", updated.ID, "booking_id", updated.BookingID)
	return updated, nil
}

func (s *lockService) ReleaseForBooking(ctx context.Context, actorID, bookingID string) ([]*model.Lock, error) {
	active, err := s.repo.FindActiveByBooking(ctx, bookingID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list active locks", err)
	}

	released := make([]*model.Lock, 0, len(active))
	for _, lock := range active {
		updated, err := s.Release(ctx, actorID, lock.ID)
		if err != nil {
			return released, err
		}
		released = append(released, updated)
	}
	return released, nil
}

func (s *lockService) ListForBooking(ctx context.Context, bookingID string) ([]*model.Lock, error) {
	if bookingID == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	locks, err := s.repo.FindByBooking(ctx, bookingID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list locks", err)
	}
	return locks, nil
}

// sweepBatchSize bounds one sweep pass; leftovers surface next interval.
const sweepBatchSize = 100

func (s *lockService) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	expired, err := s.repo.FindExpired(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, lock := range expired {
		updated, err := s.repo.UpdateStatus(ctx, lock.ID, []model.LockStatus{model.LockHeld}, model.LockReleased, &now)
		if err != nil {
			if errors.Is(err, lockserrors.ErrStatusConflict) {
				// Confirmed or released while we were sweeping.
				continue
			}
			s.cfg.Log.Error("Failed to sweep expired lock", "lock_id", lock.ID, "error", err)
			continue
		}
		swept++

		s.recordAudit(ctx, updated.BookingID, "system:sweeper", model.AuditLockExpired, map[string]any{
			"lock_id": updated.ID,
		})

		if err := s.publisher.PublishLockExpired(ctx, events.LockExpiredEvent{
			LockID:     updated.ID,
			BookingID:  updated.BookingID,
			TargetKind: string(updated.Target.Kind),
			TargetID:   updated.Target.ID,
			ExpiredAt:  now,
		}); err != nil {
			s.cfg.Log.Error("Failed to publish lock expiry", "lock_id", updated.ID, "error", err)
		}

		// Ask the orchestrator to retry with a different candidate.
		if err := s.publisher.PublishMatchRequest(ctx, events.MatchRequest{
			BookingID:   updated.BookingID,
			Reason:      events.ReasonLockExpired,
			RequestedAt: now,
		}); err != nil {
			s.cfg.Log.Error("Failed to request rematch after expiry", "booking_id", updated.BookingID, "error", err)
		}
	}

	return swept, nil
}

// RunSweeper runs SweepExpired on a fixed interval until ctx is cancelled.
// Sweep failures are logged and retried next tick, never propagated.
func (s *lockService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.LockSweepInterval)
	defer ticker.Stop()

	s.cfg.Log.Info("Lock sweeper started", "interval", s.cfg.LockSweepInterval)
	for {
		select {
		case <-ctx.Done():
			s.cfg.Log.Info("Lock sweeper stopped")
			return
		case <-ticker.C:
			swept, err := s.SweepExpired(ctx)
			if err != nil {
				s.cfg.Log.Error("Lock sweep failed", "error", err)
				continue
			}
			if swept > 0 {
				s.cfg.Log.Info("Expired locks swept", "count", swept)
			}
		}
	}
}

func (s *lockService) findLock(ctx context.Context, lockID string) (*model.Lock, error) {
	if lockID == "" {
		return nil, apperrors.InvalidInput("Lock ID cannot be empty")
	}
	lock, err := s.repo.FindByID(ctx, lockID)
	if err != nil {
		if errors.Is(err, lockserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Lock", lockID)
		}
		return nil, apperrors.Internal("Failed to retrieve lock", err)
	}
	return lock, nil
}

// demoteIfUncovered moves a confirmed booking back to pending_provider when
// its remaining confirmed locks no longer satisfy the required coverage.
func (s *lockService) demoteIfUncovered(ctx context.Context, actorID, bookingID string) error {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status != model.StatusConfirmed {
		return nil
	}

	remaining, err := s.repo.FindActiveByBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	teamSizes := make(map[string]int)
	for _, l := range remaining {
		if l.Target.Kind == model.TargetTeam {
			if _, seen := teamSizes[l.Target.ID]; seen {
				continue
			}
			size, err := s.teams.MemberCount(ctx, l.Target.ID)
			if err != nil {
				return err
			}
			teamSizes[l.Target.ID] = size
		}
	}

	if model.CoverageSatisfied(booking, remaining, teamSizes) {
		return nil
	}

	changed, err := s.bookings.CompareAndSetStatus(ctx, bookingID, model.StatusConfirmed, model.StatusPendingProvider)
	if err != nil {
		return err
	}
	if changed {
		s.recordAudit(ctx, bookingID, actorID, model.AuditStatusChanged, map[string]any{
			"from":   string(model.StatusConfirmed),
			"to":     string(model.StatusPendingProvider),
			"reason": "confirmed coverage lost",
		})
		s.cfg.Log.Info("Booking demoted after losing confirmed coverage", "booking_id", bookingID)
	}
	return nil
}

func (s *lockService) recordAudit(ctx context.Context, bookingID, actorID, action string, metadata map[string]any) {
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
