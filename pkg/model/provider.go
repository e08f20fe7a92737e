package model

import "time"

type Provider struct {
	ID                string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,uuid4"`
	DisplayName       string    `json:"display_name" bson:"display_name" validate:"required,min=2,max=100"`
	ServiceCategories []string  `json:"service_categories" bson:"service_categories" validate:"required,min=1"`
	Rating            float64   `json:"rating" bson:"rating" validate:"min=0,max=5"`
	EcoFriendly       bool      `json:"eco_friendly" bson:"eco_friendly"`
	Active            bool      `json:"active" bson:"active"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
}

// TimeOff is an interval during which a provider is unavailable regardless
// of schedule.
type TimeOff struct {
	ID         string     `json:"id,omitempty" bson:"_id,omitempty"`
	ProviderID string     `json:"provider_id" bson:"provider_id" validate:"required"`
	Window     TimeWindow `json:"window" bson:"window" validate:"required"`
	Reason     string     `json:"reason,omitempty" bson:"reason,omitempty"`
}
