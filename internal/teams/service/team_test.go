package service

import (
	"context"
	"sync"
	"testing"
	"time"

	teamerrors "saubio/internal/teams/errors"
	"saubio/pkg/config"
	apperrors "saubio/pkg/errors"
	"saubio/pkg/logger"
	"saubio/pkg/model"
)

type fakeTeamRepo struct {
	teams map[string]*model.ProviderTeam
}

func (r *fakeTeamRepo) Create(_ context.Context, team *model.ProviderTeam) error {
	r.teams[team.ID] = team
	return nil
}

func (r *fakeTeamRepo) FindByID(_ context.Context, id string) (*model.ProviderTeam, error) {
	team, ok := r.teams[id]
	if !ok {
		return nil, teamerrors.ErrNotFound
	}
	return team, nil
}

func (r *fakeTeamRepo) FindEligible(_ context.Context, _ string, _, _, _ int) ([]*model.ProviderTeam, error) {
	return nil, nil
}

func (r *fakeTeamRepo) EnqueueFallback(_ context.Context, _ string, _ model.FallbackEntry) (bool, error) {
	return false, nil
}

func (r *fakeTeamRepo) RemoveFromAllQueues(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (r *fakeTeamRepo) FindQueuedTeams(_ context.Context, _ string) ([]*model.ProviderTeam, error) {
	return nil, nil
}

// fakePlanRepo mirrors the capacity semantics of the mongo implementation:
// slots are seeded lazily at the default capacity and booked counts never
// pass the slot count.
type fakePlanRepo struct {
	mu    sync.Mutex
	slots map[string]*model.TeamPlanSlot
	// fullDays forces ErrCapacityFull for specific days.
	fullDays map[string]bool
}

func newFakePlanRepo() *fakePlanRepo {
	return &fakePlanRepo{
		slots:    make(map[string]*model.TeamPlanSlot),
		fullDays: make(map[string]bool),
	}
}

func planKey(teamID, day string) string { return teamID + ":" + day }

func (r *fakePlanRepo) FindRange(_ context.Context, teamID string, startDay, endDay string) ([]*model.TeamPlanSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.TeamPlanSlot, 0)
	for _, slot := range r.slots {
		if slot.TeamID == teamID && slot.Day >= startDay && slot.Day <= endDay {
			out = append(out, slot)
		}
	}
	return out, nil
}

func (r *fakePlanRepo) ReserveSlot(_ context.Context, teamID, day string, defaultCapacity int) (*model.TeamPlanSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fullDays[day] {
		return nil, teamerrors.ErrCapacityFull
	}
	key := planKey(teamID, day)
	slot, ok := r.slots[key]
	if !ok {
		slot = &model.TeamPlanSlot{
			ID:            key,
			TeamID:        teamID,
			Day:           day,
			CapacitySlots: defaultCapacity,
		}
		r.slots[key] = slot
	}
	if slot.CapacityBooked >= slot.CapacitySlots {
		return nil, teamerrors.ErrCapacityFull
	}
	slot.CapacityBooked++
	return slot, nil
}

func (r *fakePlanRepo) ReleaseSlot(_ context.Context, teamID, day string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[planKey(teamID, day)]
	if ok && slot.CapacityBooked > 0 {
		slot.CapacityBooked--
	}
	return nil
}

type teamFixture struct {
	teams   *fakeTeamRepo
	plans   *fakePlanRepo
	service TeamService
}

func newTeamFixture(t *testing.T) *teamFixture {
	t.Helper()
	f := &teamFixture{
		teams: &fakeTeamRepo{teams: make(map[string]*model.ProviderTeam)},
		plans: newFakePlanRepo(),
	}
	cfg := &config.Config{
		Log: logger.New(logger.Config{Level: logger.ERROR, Service: "test"}),
	}
	f.service = NewTeamService(f.teams, f.plans, cfg)
	return f
}

func (f *teamFixture) seedTeam(t *testing.T, id string, memberCount, dailyCapacity int) *model.ProviderTeam {
	t.Helper()
	members := make([]model.TeamMember, memberCount)
	for i := range members {
		members[i] = model.TeamMember{ProviderID: "p"}
	}
	team := &model.ProviderTeam{
		ID:                   id,
		Name:                 "Team " + id,
		Members:              members,
		PreferredSize:        memberCount,
		DefaultDailyCapacity: dailyCapacity,
		ServiceCategories:    []string{"home_cleaning"},
	}
	if err := f.teams.Create(context.Background(), team); err != nil {
		t.Fatalf("seed team failed: %v", err)
	}
	return team
}

func day(yearDay int) time.Time {
	return time.Date(2026, 9, yearDay, 0, 0, 0, 0, time.UTC)
}

func TestPlan_FillsDaysWithoutStoredSlots(t *testing.T) {
	f := newTeamFixture(t)
	f.seedTeam(t, "t1", 3, 2)
	f.plans.slots[planKey("t1", "2026-09-02")] = &model.TeamPlanSlot{
		TeamID: "t1", Day: "2026-09-02", CapacitySlots: 4, CapacityBooked: 1,
	}

	days, err := f.service.Plan(context.Background(), "t1", day(1), day(3))
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(days))
	}
	if days[0].Day != "2026-09-01" || days[0].CapacitySlots != 2 || days[0].CapacityBooked != 0 {
		t.Errorf("expected default capacity for 09-01, got %+v", days[0])
	}
	if days[1].CapacitySlots != 4 || days[1].CapacityBooked != 1 {
		t.Errorf("expected stored slot for 09-02, got %+v", days[1])
	}
}

func TestPlan_RejectsExcessiveRange(t *testing.T) {
	f := newTeamFixture(t)
	f.seedTeam(t, "t1", 3, 2)

	_, err := f.service.Plan(context.Background(), "t1", day(1), day(1).Add(120*24*time.Hour))
	if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
}

func TestPlan_UnknownTeamNotFound(t *testing.T) {
	f := newTeamFixture(t)

	_, err := f.service.Plan(context.Background(), "missing", day(1), day(2))
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestReserveWindow_BooksEveryTouchedDay(t *testing.T) {
	f := newTeamFixture(t)
	f.seedTeam(t, "t1", 3, 2)
	window := model.NewTimeWindow(
		time.Date(2026, 9, 1, 22, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 3, 2, 0, 0, 0, time.UTC),
	)

	if err := f.service.ReserveWindow(context.Background(), "t1", window); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	for _, d := range []string{"2026-09-01", "2026-09-02", "2026-09-03"} {
		slot, ok := f.plans.slots[planKey("t1", d)]
		if !ok || slot.CapacityBooked != 1 {
			t.Errorf("expected one booked slot on %s, got %+v", d, slot)
		}
	}
}

func TestReserveWindow_FullDayRollsBack(t *testing.T) {
	f := newTeamFixture(t)
	f.seedTeam(t, "t1", 3, 2)
	f.plans.fullDays["2026-09-02"] = true
	window := model.NewTimeWindow(
		time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 2, 12, 0, 0, 0, time.UTC),
	)

	err := f.service.ReserveWindow(context.Background(), "t1", window)
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}

	slot := f.plans.slots[planKey("t1", "2026-09-01")]
	if slot == nil || slot.CapacityBooked != 0 {
		t.Errorf("expected the first day to be rolled back, got %+v", slot)
	}
}

func TestReserveWindow_CapacityExhaustion(t *testing.T) {
	f := newTeamFixture(t)
	f.seedTeam(t, "t1", 3, 1)
	window := model.NewTimeWindow(
		time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	)

	if err := f.service.ReserveWindow(context.Background(), "t1", window); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}
	err := f.service.ReserveWindow(context.Background(), "t1", window)
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Errorf("expected CONFLICT when the day is full, got %v", err)
	}
}

func TestReleaseWindow_FreesCapacity(t *testing.T) {
	f := newTeamFixture(t)
	f.seedTeam(t, "t1", 3, 1)
	window := model.NewTimeWindow(
		time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	)

	if err := f.service.ReserveWindow(context.Background(), "t1", window); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}
	if err := f.service.ReleaseWindow(context.Background(), "t1", window); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := f.service.ReserveWindow(context.Background(), "t1", window); err != nil {
		t.Errorf("expected capacity to be free again, got %v", err)
	}
}

func TestMemberCount(t *testing.T) {
	f := newTeamFixture(t)
	f.seedTeam(t, "t1", 4, 2)

	n, err := f.service.MemberCount(context.Background(), "t1")
	if err != nil {
		t.Fatalf("member count failed: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 members, got %d", n)
	}
}
