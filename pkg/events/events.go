// Package events defines the payloads exchanged over Kafka between the
// matching core and its downstream consumers.
package events

import "time"

// Event types carried in the event-type header.
const (
	TypeMatchRequested       = "matching.requested"
	TypeBookingStatusChanged = "booking.status_changed"
	TypeBookingMatched       = "booking.matched"
	TypeBookingEscalated     = "booking.escalated"
	TypeFallbackAssigned     = "booking.fallback_assigned"
	TypeBookingCancelled     = "booking.cancelled"
	TypeLockExpired          = "lock.expired"
)

// Reasons a matching pass was requested.
const (
	ReasonBookingCreated = "booking_created"
	ReasonLockExpired    = "lock_expired"
	ReasonManualRetry    = "manual_retry"
)

// MatchRequest asks the orchestrator to run one matching pass for a booking.
type MatchRequest struct {
	BookingID   string    `json:"booking_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// BookingEvent is the generic lifecycle notification for downstream
// services (notifications, analytics).
type BookingEvent struct {
	BookingID  string         `json:"booking_id"`
	Status     string         `json:"status"`
	OccurredAt time.Time      `json:"occurred_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// LockExpiredEvent reports a HELD lock swept past its TTL.
type LockExpiredEvent struct {
	LockID     string    `json:"lock_id"`
	BookingID  string    `json:"booking_id"`
	TargetKind string    `json:"target_kind"`
	TargetID   string    `json:"target_id"`
	ExpiredAt  time.Time `json:"expired_at"`
}
