package service

import (
	"context"
	"errors"
	"time"

	teamerrors "saubio/internal/teams/errors"
	"saubio/internal/teams/repository"
	"saubio/pkg/config"
	apperrors "saubio/pkg/errors"
	"saubio/pkg/model"
)

type TeamService interface {
	FindByID(ctx context.Context, id string) (*model.ProviderTeam, error)
	MemberCount(ctx context.Context, teamID string) (int, error)
	// Plan returns one entry per day in [start, end], including days with
	// no stored slot (reported at the team's default capacity, zero booked).
	Plan(ctx context.Context, teamID string, start, end time.Time) ([]model.TeamPlanDay, error)
	// ReserveWindow books one capacity slot for every day the window
	// touches; on failure already-reserved days are released.
	ReserveWindow(ctx context.Context, teamID string, window model.TimeWindow) error
	ReleaseWindow(ctx context.Context, teamID string, window model.TimeWindow) error
}

type teamService struct {
	teams repository.TeamRepository
	plans repository.PlanRepository
	cfg   *config.Config
}

func NewTeamService(teams repository.TeamRepository, plans repository.PlanRepository, cfg *config.Config) TeamService {
	return &teamService{teams: teams, plans: plans, cfg: cfg}
}

func (s *teamService) FindByID(ctx context.Context, id string) (*model.ProviderTeam, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Team ID cannot be empty")
	}
	team, err := s.teams.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, teamerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Team", id)
		}
		return nil, apperrors.Internal("Failed to retrieve team", err)
	}
	return team, nil
}

func (s *teamService) MemberCount(ctx context.Context, teamID string) (int, error) {
	team, err := s.FindByID(ctx, teamID)
	if err != nil {
		return 0, err
	}
	return team.MemberCount(), nil
}

const maxPlanRangeDays = 92

func (s *teamService) Plan(ctx context.Context, teamID string, start, end time.Time) ([]model.TeamPlanDay, error) {
	team, err := s.FindByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, apperrors.InvalidInput("Plan range end must not be before start")
	}
	if int(end.Sub(start).Hours()/24) > maxPlanRangeDays {
		return nil, apperrors.InvalidInput("Plan range exceeds the maximum of 92 days")
	}

	startDay := model.PlanDayKey(start)
	endDay := model.PlanDayKey(end)
	slots, err := s.plans.FindRange(ctx, teamID, startDay, endDay)
	if err != nil {
		return nil, apperrors.Internal("Failed to load team plan", err)
	}

	byDay := make(map[string]*model.TeamPlanSlot, len(slots))
	for _, slot := range slots {
		byDay[slot.Day] = slot
	}

	days := make([]model.TeamPlanDay, 0)
	for d := start.UTC().Truncate(24 * time.Hour); !d.After(end.UTC()); d = d.Add(24 * time.Hour) {
		key := model.PlanDayKey(d)
		if slot, ok := byDay[key]; ok {
			days = append(days, model.TeamPlanDay{
				Day:            slot.Day,
				CapacitySlots:  slot.CapacitySlots,
				CapacityBooked: slot.CapacityBooked,
			})
			continue
		}
		days = append(days, model.TeamPlanDay{
			Day:            key,
			CapacitySlots:  team.DefaultDailyCapacity,
			CapacityBooked: 0,
		})
	}
	return days, nil
}

func (s *teamService) ReserveWindow(ctx context.Context, teamID string, window model.TimeWindow) error {
	team, err := s.FindByID(ctx, teamID)
	if err != nil {
		return err
	}

	reserved := make([]string, 0)
	for _, day := range windowDays(window) {
		if _, err := s.plans.ReserveSlot(ctx, teamID, day, team.DefaultDailyCapacity); err != nil {
			for _, r := range reserved {
				if releaseErr := s.plans.ReleaseSlot(ctx, teamID, r); releaseErr != nil {
					s.cfg.Log.Error("Failed to roll back plan reservation",
						"team_id", teamID, "day", r, "error", releaseErr)
				}
			}
			if errors.Is(err, teamerrors.ErrCapacityFull) {
				return apperrors.Conflict("Team has no remaining capacity on " + day)
			}
			return apperrors.Internal("Failed to reserve team capacity", err)
		}
		reserved = append(reserved, day)
	}
	return nil
}

func (s *teamService) ReleaseWindow(ctx context.Context, teamID string, window model.TimeWindow) error {
	for _, day := range windowDays(window) {
		if err := s.plans.ReleaseSlot(ctx, teamID, day); err != nil {
			return apperrors.Internal("Failed to release team capacity", err)
		}
	}
	return nil
}

// windowDays lists the plan-day keys a window touches, in order.
func windowDays(window model.TimeWindow) []string {
	days := make([]string, 0, 1)
	for d := window.Start.UTC().Truncate(24 * time.Hour); d.Before(window.End.UTC()); d = d.Add(24 * time.Hour) {
		days = append(days, model.PlanDayKey(d))
	}
	if len(days) == 0 {
		days = append(days, model.PlanDayKey(window.Start))
	}
	return days
}
