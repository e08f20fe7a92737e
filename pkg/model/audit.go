package model

import "time"

// AuditEntry records one booking state change. Entries are append-only and
// ordered by timestamp; they are the sole source of truth for why a booking
// changed.
type AuditEntry struct {
	ID        string         `json:"id" bson:"_id"`
	BookingID string         `json:"booking_id" bson:"booking_id" validate:"required"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
	ActorID   string         `json:"actor_id" bson:"actor_id" validate:"required"`
	Action    string         `json:"action" bson:"action" validate:"required"`
	Metadata  map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Audit actions recorded by the state machine and orchestrator.
const (
	AuditStatusChanged     = "status_changed"
	AuditLockHeld          = "lock_held"
	AuditLockConfirmed     = "lock_confirmed"
	AuditLockReleased      = "lock_released"
	AuditLockExpired       = "lock_expired"
	AuditMatchingFailed    = "matching_failed"
	AuditFallbackRequested = "fallback_requested"
	AuditFallbackAssigned  = "fallback_assigned"
	AuditBookingCancelled  = "booking_cancelled"
)
