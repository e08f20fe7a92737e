package model

import "time"

// TeamPlanSlot is a day-level capacity counter for a provider team.
// Invariant: CapacityBooked never exceeds CapacitySlots.
type TeamPlanSlot struct {
	ID             string    `json:"id,omitempty" bson:"_id,omitempty"`
	TeamID         string    `json:"team_id" bson:"team_id" validate:"required"`
	Day            string    `json:"day" bson:"day" validate:"required,datetime=2006-01-02"`
	CapacitySlots  int       `json:"capacity_slots" bson:"capacity_slots" validate:"min=0"`
	CapacityBooked int       `json:"capacity_booked" bson:"capacity_booked" validate:"min=0"`
	UpdatedAt      time.Time `json:"updated_at" bson:"updated_at"`
}

func (s *TeamPlanSlot) Remaining() int {
	return s.CapacitySlots - s.CapacityBooked
}

// TeamPlanDay is the per-day view returned by the admin plan endpoint.
type TeamPlanDay struct {
	Day            string `json:"day"`
	CapacitySlots  int    `json:"capacity_slots"`
	CapacityBooked int    `json:"capacity_booked"`
}

// PlanDayKey formats the plan slot day for t in UTC.
func PlanDayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
