package model

import "time"

type TeamMember struct {
	ProviderID string `json:"provider_id" bson:"provider_id" validate:"required"`
	Role       string `json:"role" bson:"role" validate:"omitempty,max=50"`
	Lead       bool   `json:"lead" bson:"lead"`
}

// FallbackEntry is a pending mission sitting in a team's fallback queue,
// awaiting team acceptance or operator assignment.
type FallbackEntry struct {
	BookingID         string     `json:"booking_id" bson:"booking_id" validate:"required"`
	ServiceCategory   string     `json:"service_category" bson:"service_category"`
	Window            TimeWindow `json:"window" bson:"window"`
	RequiredProviders int        `json:"required_providers" bson:"required_providers"`
	EnqueuedAt        time.Time  `json:"enqueued_at" bson:"enqueued_at"`
}

type ProviderTeam struct {
	ID                   string       `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,uuid4"`
	Name                 string       `json:"name" bson:"name" validate:"required,min=2,max=100"`
	OwnerID              string       `json:"owner_id" bson:"owner_id" validate:"required"`
	Members              []TeamMember `json:"members" bson:"members" validate:"required,min=1,dive"`
	PreferredSize        int          `json:"preferred_size" bson:"preferred_size" validate:"required,min=1,max=50"`
	DefaultDailyCapacity int          `json:"default_daily_capacity" bson:"default_daily_capacity" validate:"min=0"`
	ServiceCategories    []string     `json:"service_categories" bson:"service_categories" validate:"required,min=1"`
	// FallbackQueue is ordered by enqueue time; a booking appears at most
	// once per team.
	FallbackQueue []FallbackEntry `json:"fallback_queue" bson:"fallback_queue"`
	CreatedAt     time.Time       `json:"created_at" bson:"created_at"`
}

func (t *ProviderTeam) MemberCount() int {
	return len(t.Members)
}

// ServesCategory reports whether the team covers the given service category.
func (t *ProviderTeam) ServesCategory(category string) bool {
	for _, c := range t.ServiceCategories {
		if c == category {
			return true
		}
	}
	return false
}

// QueuePosition returns the index of the booking in the fallback queue, or
// -1 when absent.
func (t *ProviderTeam) QueuePosition(bookingID string) int {
	for i, e := range t.FallbackQueue {
		if e.BookingID == bookingID {
			return i
		}
	}
	return -1
}
