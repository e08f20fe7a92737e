package model

import (
	"time"
)

type BookingStatus string

const (
	StatusDraft           BookingStatus = "draft"
	StatusPendingProvider BookingStatus = "pending_provider"
	StatusPendingClient   BookingStatus = "pending_client"
	StatusConfirmed       BookingStatus = "confirmed"
	StatusInProgress      BookingStatus = "in_progress"
	StatusCompleted       BookingStatus = "completed"
	StatusCancelled       BookingStatus = "cancelled"
	StatusDisputed        BookingStatus = "disputed"
)

// Terminal reports whether no further transitions are allowed.
func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type BookingMode string

const (
	ModeManual     BookingMode = "manual"
	ModeSmartMatch BookingMode = "smart_match"
)

type Booking struct {
	ID                string        `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,uuid4"`
	ClientID          string        `json:"client_id" bson:"client_id" validate:"required"`
	Address           string        `json:"address" bson:"address" validate:"required,min=5,max=300"`
	ServiceCategory   string        `json:"service_category" bson:"service_category" validate:"required,min=2,max=100"`
	Window            TimeWindow    `json:"window" bson:"window" validate:"required"`
	RequiredProviders int           `json:"required_providers" bson:"required_providers" validate:"required,min=1,max=20"`
	Mode              BookingMode   `json:"mode" bson:"mode" validate:"required,oneof=manual smart_match"`
	EcoPreference     bool          `json:"eco_preference" bson:"eco_preference"`
	Status            BookingStatus `json:"status" bson:"status" validate:"required,booking_status"`

	// MatchingRetryCount is monotonically non-decreasing: one increment per
	// failed matching pass, never reset.
	MatchingRetryCount  int        `json:"matching_retry_count" bson:"matching_retry_count" validate:"min=0"`
	FallbackRequestedAt *time.Time `json:"fallback_requested_at,omitempty" bson:"fallback_requested_at,omitempty"`
	// FallbackEscalatedAt is never set while FallbackRequestedAt is nil.
	FallbackEscalatedAt   *time.Time             `json:"fallback_escalated_at,omitempty" bson:"fallback_escalated_at,omitempty"`
	FallbackTeamCandidate *FallbackTeamCandidate `json:"fallback_team_candidate,omitempty" bson:"fallback_team_candidate,omitempty"`

	AssignedProviderIDs []string `json:"assigned_provider_ids,omitempty" bson:"assigned_provider_ids,omitempty"`
	AssignedTeamID      string   `json:"assigned_team_id,omitempty" bson:"assigned_team_id,omitempty"`

	CreatedAt  time.Time  `json:"created_at" bson:"created_at" validate:"omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty" bson:"archived_at,omitempty"`
}

// FallbackTeamCandidate is the snapshot recorded on the booking when a team
// wins the fallback assignment, and the shape validated before acceptance.
type FallbackTeamCandidate struct {
	TeamID        string `json:"team_id" bson:"team_id" validate:"required"`
	Name          string `json:"name" bson:"name"`
	PreferredSize int    `json:"preferred_size" bson:"preferred_size"`
	MemberCount   int    `json:"member_count" bson:"member_count" validate:"min=0"`
}

type BookingUpdate struct {
	Address           string      `json:"address,omitempty" validate:"omitempty,min=5,max=300"`
	ServiceCategory   string      `json:"service_category,omitempty" validate:"omitempty,min=2,max=100"`
	Window            *TimeWindow `json:"window,omitempty" validate:"omitempty"`
	RequiredProviders *int        `json:"required_providers,omitempty" validate:"omitempty,min=1,max=20"`
	Mode              BookingMode `json:"mode,omitempty" validate:"omitempty,oneof=manual smart_match"`
	EcoPreference     *bool       `json:"eco_preference,omitempty"`
}

// BookingFilter narrows operator listing queries (stuck-booking tooling).
type BookingFilter struct {
	Status            BookingStatus
	Mode              BookingMode
	FallbackRequested *bool
	FallbackEscalated *bool
	MinRetryCount     int
	IncludeArchived   bool
}
