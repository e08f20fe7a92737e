package model

import (
	"fmt"
	"time"
)

type LockStatus string

const (
	LockHeld      LockStatus = "HELD"
	LockConfirmed LockStatus = "CONFIRMED"
	LockReleased  LockStatus = "RELEASED"
)

// Active reports whether the lock still blocks other holds on its target.
func (s LockStatus) Active() bool {
	return s == LockHeld || s == LockConfirmed
}

type TargetKind string

const (
	TargetProvider TargetKind = "provider"
	TargetTeam     TargetKind = "team"
)

// LockTarget is a tagged variant: a lock references either an individual
// provider or a pre-formed team, never both.
type LockTarget struct {
	Kind TargetKind `json:"kind" bson:"kind" validate:"required,oneof=provider team"`
	ID   string     `json:"id" bson:"id" validate:"required"`
}

func ProviderTarget(providerID string) LockTarget {
	return LockTarget{Kind: TargetProvider, ID: providerID}
}

func TeamTarget(teamID string) LockTarget {
	return LockTarget{Kind: TargetTeam, ID: teamID}
}

// Key returns a stable identifier for the target, used to derive advisory
// guard document ids and to stripe in-process mutexes.
func (t LockTarget) Key() string {
	return fmt.Sprintf("%s:%s", t.Kind, t.ID)
}

// Lock is a time-boxed reservation of a provider or team for one booking.
// A HELD lock auto-expires at ExpiresAt; CONFIRMED locks live until released.
type Lock struct {
	ID        string     `json:"id" bson:"_id"`
	BookingID string     `json:"booking_id" bson:"booking_id" validate:"required"`
	Target    LockTarget `json:"target" bson:"target" validate:"required"`
	Status    LockStatus `json:"status" bson:"status" validate:"required,oneof=HELD CONFIRMED RELEASED"`
	Window    TimeWindow `json:"window" bson:"window" validate:"required"`
	// SlotStart/SlotEnd optionally narrow the reservation within the booking
	// window. Zero values mean the lock spans the full window.
	SlotStart  *time.Time `json:"slot_start_at,omitempty" bson:"slot_start_at,omitempty"`
	SlotEnd    *time.Time `json:"slot_end_at,omitempty" bson:"slot_end_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at" bson:"expires_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty" bson:"released_at,omitempty"`
}

// EffectiveWindow returns the slot window when set, the booking window
// otherwise.
func (l *Lock) EffectiveWindow() TimeWindow {
	if l.SlotStart != nil && l.SlotEnd != nil {
		return TimeWindow{Start: *l.SlotStart, End: *l.SlotEnd}
	}
	return l.Window
}

func (l *Lock) Expired(now time.Time) bool {
	return l.Status == LockHeld && now.After(l.ExpiresAt)
}
