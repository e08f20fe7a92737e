package service

import (
	"context"
	"sort"

	lockrepo "saubio/internal/locks/repository"
	providerrepo "saubio/internal/providers/repository"
	teamrepo "saubio/internal/teams/repository"
	"saubio/pkg/client"
	"saubio/pkg/config"
	apperrors "saubio/pkg/errors"
	"saubio/pkg/model"
)

// Candidate is one assignable target, ranked by the index's ordering
// policy.
type Candidate struct {
	Target        model.LockTarget `json:"target"`
	Rating        float64          `json:"rating,omitempty"`
	MemberCount   int              `json:"member_count,omitempty"`
	PreferredSize int              `json:"preferred_size,omitempty"`
	ActiveLocks   int64            `json:"active_locks"`
}

// CandidateQuery describes what the orchestrator is looking for. Limit is
// mandatory: the index never produces unbounded scans.
type CandidateQuery struct {
	ServiceCategory   string
	Window            model.TimeWindow
	EcoPreference     bool
	RequiredProviders int
	Limit             int
}

// AvailabilityService is a read-only composition over provider schedules,
// time-off, team rosters and current lock state. It never writes.
type AvailabilityService interface {
	FindCandidates(ctx context.Context, query CandidateQuery) ([]Candidate, error)
}

type availabilityService struct {
	providers providerrepo.ProviderRepository
	teams     teamrepo.TeamRepository
	locks     lockrepo.LockRepository
	schedules client.ScheduleReader
	cfg       *config.Config
}

func NewAvailabilityService(
	providers providerrepo.ProviderRepository,
	teams teamrepo.TeamRepository,
	locks lockrepo.LockRepository,
	schedules client.ScheduleReader,
	cfg *config.Config,
) AvailabilityService {
	return &availabilityService{
		providers: providers,
		teams:     teams,
		locks:     locks,
		schedules: schedules,
		cfg:       cfg,
	}
}

// candidateScanFactor bounds how many raw records are inspected per
// requested candidate before filtering.
const candidateScanFactor = 4

func (s *availabilityService) FindCandidates(ctx context.Context, query CandidateQuery) ([]Candidate, error) {
	if query.Limit <= 0 {
		return nil, apperrors.InvalidInput("Candidate limit must be positive")
	}
	if query.RequiredProviders <= 0 {
		return nil, apperrors.InvalidInput("Required provider count must be positive")
	}
	if !query.Window.End.After(query.Window.Start) {
		return nil, apperrors.InvalidInput("Candidate window end must be after start")
	}

	candidates := make([]Candidate, 0, query.Limit)

	// Single providers come first, but only when one provider suffices.
	if query.RequiredProviders == 1 {
		singles, err := s.singleProviderCandidates(ctx, query)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, singles...)
	}

	if len(candidates) < query.Limit {
		teams, err := s.teamCandidates(ctx, query, query.Limit-len(candidates))
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, teams...)
	}

	if len(candidates) > query.Limit {
		candidates = candidates[:query.Limit]
	}
	return candidates, nil
}

func (s *availabilityService) singleProviderCandidates(ctx context.Context, query CandidateQuery) ([]Candidate, error) {
	scanLimit := query.Limit * candidateScanFactor
	providers, err := s.providers.FindActiveByCategory(ctx, query.ServiceCategory, query.EcoPreference, scanLimit)
	if err != nil {
		return nil, apperrors.Internal("Failed to list providers", err)
	}

	candidates := make([]Candidate, 0, query.Limit)
	for _, p := range providers {
		if len(candidates) == query.Limit {
			break
		}

		free, err := s.providerFree(ctx, p.ID, query.Window)
		if err != nil {
			return nil, err
		}
		if !free {
			continue
		}

		target := model.ProviderTarget(p.ID)
		overlapping, err := s.locks.FindActiveByTarget(ctx, target, query.Window)
		if err != nil {
			return nil, apperrors.Internal("Failed to check provider locks", err)
		}
		if len(overlapping) > 0 {
			continue
		}

		load, err := s.locks.CountActiveByTarget(ctx, target)
		if err != nil {
			return nil, apperrors.Internal("Failed to count provider load", err)
		}

		candidates = append(candidates, Candidate{
			Target:      target,
			Rating:      p.Rating,
			ActiveLocks: load,
		})
	}

	// Repository ordering is rating-descending; break rating ties by lower
	// current load.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Rating != candidates[j].Rating {
			return candidates[i].Rating > candidates[j].Rating
		}
		return candidates[i].ActiveLocks < candidates[j].ActiveLocks
	})
	return candidates, nil
}

func (s *availabilityService) providerFree(ctx context.Context, providerID string, window model.TimeWindow) (bool, error) {
	available, err := s.schedules.ProviderAvailable(ctx, providerID, window)
	if err != nil {
		return false, apperrors.Internal("Failed to read provider schedule", err)
	}
	if !available {
		return false, nil
	}

	timeOff, err := s.schedules.ActiveTimeOff(ctx, providerID, window)
	if err != nil {
		return false, apperrors.Internal("Failed to read provider time off", err)
	}
	return len(timeOff) == 0, nil
}

func (s *availabilityService) teamCandidates(ctx context.Context, query CandidateQuery, limit int) ([]Candidate, error) {
	// The index is deliberately wider than the fallback escalator: any team
	// whose roster can cover the requirement is considered, so the size
	// tolerance spans the full requirement.
	teams, err := s.teams.FindEligible(ctx, query.ServiceCategory,
		query.RequiredProviders, query.RequiredProviders, limit*candidateScanFactor)
	if err != nil {
		return nil, apperrors.Internal("Failed to list eligible teams", err)
	}

	candidates := make([]Candidate, 0, limit)
	for _, t := range teams {
		if t.MemberCount() < query.RequiredProviders {
			continue
		}

		target := model.TeamTarget(t.ID)
		overlapping, err := s.locks.FindActiveByTarget(ctx, target, query.Window)
		if err != nil {
			return nil, apperrors.Internal("Failed to check team locks", err)
		}
		if len(overlapping) > 0 {
			continue
		}

		load, err := s.locks.CountActiveByTarget(ctx, target)
		if err != nil {
			return nil, apperrors.Internal("Failed to count team load", err)
		}

		candidates = append(candidates, Candidate{
			Target:        target,
			MemberCount:   t.MemberCount(),
			PreferredSize: t.PreferredSize,
			ActiveLocks:   load,
		})
	}

	// Teams running closest to their preferred size rank first; ties go to
	// the less loaded team.
	sort.SliceStable(candidates, func(i, j int) bool {
		di := sizeDistance(candidates[i])
		dj := sizeDistance(candidates[j])
		if di != dj {
			return di < dj
		}
		return candidates[i].ActiveLocks < candidates[j].ActiveLocks
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func sizeDistance(c Candidate) int {
	d := c.MemberCount - c.PreferredSize
	if d < 0 {
		return -d
	}
	return d
}
