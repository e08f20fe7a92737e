package service

import (
	"context"
	"sync"
	"testing"
	"time"

	lockserrors "saubio/internal/locks/errors"
	"saubio/pkg/config"
	mongotx "saubio/pkg/db/mongo"
	apperrors "saubio/pkg/errors"
	"saubio/pkg/events"
	"saubio/pkg/logger"
	"saubio/pkg/model"
)

// fakeLockRepo is an in-memory LockRepository safe for concurrent use.
type fakeLockRepo struct {
	mu    sync.Mutex
	locks map[string]*model.Lock
}

func newFakeLockRepo() *fakeLockRepo {
	return &fakeLockRepo{locks: make(map[string]*model.Lock)}
}

func (r *fakeLockRepo) Create(_ context.Context, lock *model.Lock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *lock
	r.locks[lock.ID] = &cp
	return nil
}

func (r *fakeLockRepo) FindByID(_ context.Context, id string) (*model.Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[id]
	if !ok {
		return nil, lockserrors.ErrNotFound
	}
	cp := *lock
	return &cp, nil
}

func (r *fakeLockRepo) FindByBooking(_ context.Context, bookingID string) ([]*model.Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Lock, 0)
	for _, l := range r.locks {
		if l.BookingID == bookingID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeLockRepo) FindActiveByTarget(_ context.Context, target model.LockTarget, w model.TimeWindow) ([]*model.Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Lock, 0)
	for _, l := range r.locks {
		if l.Target == target && l.Status.Active() && l.EffectiveWindow().Overlaps(w) {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeLockRepo) FindActiveByBooking(_ context.Context, bookingID string) ([]*model.Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Lock, 0)
	for _, l := range r.locks {
		if l.BookingID == bookingID && l.Status.Active() {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeLockRepo) CountActiveByTarget(_ context.Context, target model.LockTarget) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, l := range r.locks {
		if l.Target == target && l.Status.Active() {
			count++
		}
	}
	return count, nil
}

func (r *fakeLockRepo) UpdateStatus(_ context.Context, id string, from []model.LockStatus, to model.LockStatus, releasedAt *time.Time) (*model.Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[id]
	if !ok {
		return nil, lockserrors.ErrNotFound
	}
	matched := false
	for _, s := range from {
		if lock.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return nil, lockserrors.ErrStatusConflict
	}
	lock.Status = to
	lock.ReleasedAt = releasedAt
	cp := *lock
	return &cp, nil
}

func (r *fakeLockRepo) FindExpired(_ context.Context, now time.Time, limit int) ([]*model.Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Lock, 0)
	for _, l := range r.locks {
		if l.Expired(now) {
			cp := *l
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeLockRepo) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(nil)
}

type fakeGuardRepo struct {
	mu             sync.Mutex
	held           map[string]bool
	releaseCtxErrs []error
}

func newFakeGuardRepo() *fakeGuardRepo {
	return &fakeGuardRepo{held: make(map[string]bool)}
}

func (r *fakeGuardRepo) Acquire(_ context.Context, target model.LockTarget, _ time.Duration) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := "guard_" + target.Key()
	if r.held[id] {
		return "", lockserrors.ErrGuardHeld
	}
	r.held[id] = true
	return id, nil
}

func (r *fakeGuardRepo) Release(ctx context.Context, guardID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseCtxErrs = append(r.releaseCtxErrs, ctx.Err())
	delete(r.held, guardID)
	return nil
}

type fakeBookingStore struct {
	mu       sync.Mutex
	bookings map[string]*model.Booking
	casCalls []string
}

func (s *fakeBookingStore) FindByID(_ context.Context, id string) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, lockserrors.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *fakeBookingStore) CompareAndSetStatus(_ context.Context, id string, from, to model.BookingStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.casCalls = append(s.casCalls, id)
	b, ok := s.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	return true, nil
}

type fakeTeamSizer struct {
	sizes map[string]int
}

func (t *fakeTeamSizer) MemberCount(_ context.Context, teamID string) (int, error) {
	return t.sizes[teamID], nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*model.AuditEntry
}

func (a *fakeAudit) Append(_ context.Context, entry *model.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *fakeAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakePublisher struct {
	mu            sync.Mutex
	matchRequests []events.MatchRequest
	bookingEvents []string
	lockExpiries  []events.LockExpiredEvent
}

func (p *fakePublisher) PublishMatchRequest(_ context.Context, req events.MatchRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.matchRequests = append(p.matchRequests, req)
	return nil
}

func (p *fakePublisher) PublishBookingEvent(_ context.Context, eventType string, _ events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bookingEvents = append(p.bookingEvents, eventType)
	return nil
}

func (p *fakePublisher) PublishLockExpired(_ context.Context, evt events.LockExpiredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lockExpiries = append(p.lockExpiries, evt)
	return nil
}

type lockFixture struct {
	repo      *fakeLockRepo
	guards    *fakeGuardRepo
	bookings  *fakeBookingStore
	teams     *fakeTeamSizer
	audit     *fakeAudit
	publisher *fakePublisher
	service   LockService
}

func newLockFixture() *lockFixture {
	cfg := &config.Config{
		HoldTTL:           10 * time.Minute,
		LockSweepInterval: 30 * time.Second,
		Log:               logger.New(logger.Config{Level: logger.ERROR, Service: "test"}),
	}
	f := &lockFixture{
		repo:      newFakeLockRepo(),
		guards:    newFakeGuardRepo(),
		bookings:  &fakeBookingStore{bookings: make(map[string]*model.Booking)},
		teams:     &fakeTeamSizer{sizes: make(map[string]int)},
		audit:     &fakeAudit{},
		publisher: &fakePublisher{},
	}
	f.service = NewLockService(f.repo, f.guards, f.bookings, f.teams, f.audit, f.publisher, cfg)
	return f
}

func testWindow() model.TimeWindow {
	start := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	return model.NewTimeWindow(start, start.Add(4*time.Hour))
}

func TestHold_Success(t *testing.T) {
	f := newLockFixture()

	lock, err := f.service.Hold(context.Background(), "client:c1", "b1", model.ProviderTarget("p1"), testWindow(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lock.Status != model.LockHeld {
		t.Errorf("expected HELD, got %s", lock.Status)
	}
	if lock.ExpiresAt.IsZero() {
		t.Error("expected expiry to be set")
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].Action != model.AuditLockHeld {
		t.Errorf("expected one lock_held audit entry, got %v", f.audit.actions())
	}
}

func TestHold_GuardReleasedDespiteCancelledContext(t *testing.T) {
	f := newLockFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.service.Hold(ctx, "client:c1", "b1", model.ProviderTarget("p1"), testWindow(), nil)

	f.guards.mu.Lock()
	heldCount := len(f.guards.held)
	ctxErrs := append([]error(nil), f.guards.releaseCtxErrs...)
	f.guards.mu.Unlock()

	if heldCount != 0 {
		t.Fatal("guard must be released after the hold attempt")
	}
	if len(ctxErrs) != 1 || ctxErrs[0] != nil {
		t.Errorf("guard release must run on a non-cancelled context, got %v", ctxErrs)
	}
}

func TestHold_OverlappingWindowConflicts(t *testing.T) {
	f := newLockFixture()
	ctx := context.Background()
	target := model.ProviderTarget("p1")

	if _, err := f.service.Hold(ctx, "a1", "b1", target, testWindow(), nil); err != nil {
		t.Fatalf("first hold failed: %v", err)
	}

	shifted := testWindow()
	shifted.Start = shifted.Start.Add(time.Hour)
	shifted.End = shifted.End.Add(time.Hour)
	_, err := f.service.Hold(ctx, "a1", "b2", target, shifted, nil)
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestHold_DisjointWindowsBothSucceed(t *testing.T) {
	f := newLockFixture()
	ctx := context.Background()
	target := model.ProviderTarget("p1")

	if _, err := f.service.Hold(ctx, "a1", "b1", target, testWindow(), nil); err != nil {
		t.Fatalf("first hold failed: %v", err)
	}

	later := testWindow()
	later.Start = later.End
	later.End = later.End.Add(2 * time.Hour)
	if _, err := f.service.Hold(ctx, "a1", "b2", target, later, nil); err != nil {
		t.Fatalf("disjoint hold failed: %v", err)
	}
}

// Two concurrent holds on the same provider and window must not both
// succeed.
func TestHold_ConcurrentSameTarget(t *testing.T) {
	f := newLockFixture()
	target := model.ProviderTarget("p1")

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(n int) {
			defer wg.Done()
			_, err := f.service.Hold(context.Background(), "a1", "b1", target, testWindow(), nil)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case apperrors.HasCode(err, apperrors.CodeConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if successes != 1 {
		t.Errorf("expected exactly one successful hold, got %d", successes)
	}
	if conflicts != attempts-1 {
		t.Errorf("expected %d conflicts, got %d", attempts-1, conflicts)
	}
}

func TestHold_GuardHeldByAnotherInstance(t *testing.T) {
	f := newLockFixture()
	target := model.ProviderTarget("p1")
	f.guards.held["guard_"+target.Key()] = true

	_, err := f.service.Hold(context.Background(), "a1", "b1", target, testWindow(), nil)
	if !apperrors.HasCode(err, apperrors.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestHold_SlotOutsideWindowRejected(t *testing.T) {
	f := newLockFixture()

	w := testWindow()
	slot := model.NewTimeWindow(w.Start.Add(-time.Hour), w.Start.Add(time.Hour))
	_, err := f.service.Hold(context.Background(), "a1", "b1", model.ProviderTarget("p1"), w, &slot)
	if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestConfirm_Idempotent(t *testing.T) {
	f := newLockFixture()
	ctx := context.Background()

	lock, err := f.service.Hold(ctx, "a1", "b1", model.ProviderTarget("p1"), testWindow(), nil)
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	first, err := f.service.Confirm(ctx, "a1", lock.ID)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	second, err := f.service.Confirm(ctx, "a1", lock.ID)
	if err != nil {
		t.Fatalf("second confirm failed: %v", err)
	}

	if first.Status != model.LockConfirmed || second.Status != model.LockConfirmed {
		t.Errorf("expected CONFIRMED twice, got %s then %s", first.Status, second.Status)
	}
}

func TestConfirm_ExpiredLockFails(t *testing.T) {
	f := newLockFixture()
	ctx := context.Background()

	expired := &model.Lock{
		ID:        "l1",
		BookingID: "b1",
		Target:    model.ProviderTarget("p1"),
		Status:    model.LockHeld,
		Window:    testWindow(),
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := f.repo.Create(ctx, expired); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	_, err := f.service.Confirm(ctx, "a1", "l1")
	if !apperrors.HasCode(err, apperrors.CodeExpired) {
		t.Fatalf("expected EXPIRED, got %v", err)
	}

	// The lock is swept to RELEASED on the next cycle.
	swept, err := f.service.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if swept != 1 {
		t.Errorf("expected 1 swept lock, got %d", swept)
	}
	after, _ := f.repo.FindByID(ctx, "l1")
	if after.Status != model.LockReleased {
		t.Errorf("expected RELEASED after sweep, got %s", after.Status)
	}
}

func TestConfirm_ReleasedLockFails(t *testing.T) {
	f := newLockFixture()
	ctx := context.Background()

	lock, _ := f.service.Hold(ctx, "a1", "b1", model.ProviderTarget("p1"), testWindow(), nil)
	if _, err := f.service.Release(ctx, "a1", lock.ID); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	_, err := f.service.Confirm(ctx, "a1", lock.ID)
	if !apperrors.HasCode(err, apperrors.CodeExpired) {
		t.Fatalf("expected EXPIRED, got %v", err)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	f := newLockFixture()
	ctx := context.Background()

	lock, _ := f.service.Hold(ctx, "a1", "b1", model.ProviderTarget("p1"), testWindow(), nil)

	first, err := f.service.Release(ctx, "a1", lock.ID)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	second, err := f.service.Release(ctx, "a1", lock.ID)
	if err != nil {
		t.Fatalf("second release failed: %v", err)
	}

	if first.Status != model.LockReleased || second.Status != model.LockReleased {
		t.Errorf("expected RELEASED twice, got %s then %s", first.Status, second.Status)
	}
}

func TestRelease_ConfirmedLockDemotesUncoveredBooking(t *testing.T) {
	f := newLockFixture()
	ctx := context.Background()

	f.bookings.bookings["b1"] = &model.Booking{
		ID:                "b1",
		Status:            model.StatusConfirmed,
		Window:            testWindow(),
		RequiredProviders: 1,
	}

	lock, _ := f.service.Hold(ctx, "a1", "b1", model.ProviderTarget("p1"), testWindow(), nil)
	if _, err := f.service.Confirm(ctx, "a1", lock.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	if _, err := f.service.Release(ctx, "a1", lock.ID); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	if got := f.bookings.bookings["b1"].Status; got != model.StatusPendingProvider {
		t.Errorf("expected booking demoted to pending_provider, got %s", got)
	}
}

func TestRelease_ConfirmedLockKeepsCoveredBooking(t *testing.T) {
	f := newLockFixture()
	ctx := context.Background()

	f.bookings.bookings["b1"] = &model.Booking{
		ID:                "b1",
		Status:            model.StatusConfirmed,
		Window:            testWindow(),
		RequiredProviders: 1,
	}

	l1, _ := f.service.Hold(ctx, "a1", "b1", model.ProviderTarget("p1"), testWindow(), nil)
	l2, _ := f.service.Hold(ctx, "a1", "b1", model.ProviderTarget("p2"), testWindow(), nil)
	if _, err := f.service.Confirm(ctx, "a1", l1.ID); err != nil {
		t.Fatalf("confirm l1 failed: %v", err)
	}
	if _, err := f.service.Confirm(ctx, "a1", l2.ID); err != nil {
		t.Fatalf("confirm l2 failed: %v", err)
	}

	if _, err := f.service.Release(ctx, "a1", l1.ID); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	if got := f.bookings.bookings["b1"].Status; got != model.StatusConfirmed {
		t.Errorf("expected booking to stay confirmed, got %s", got)
	}
}

func TestSweepExpired_NotifiesOrchestrator(t *testing.T) {
	f := newLockFixture()
	ctx := context.Background()

	expired := &model.Lock{
		ID:        "l1",
		BookingID: "b1",
		Target:    model.ProviderTarget("p1"),
		Status:    model.LockHeld,
		Window:    testWindow(),
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := f.repo.Create(ctx, expired); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	swept, err := f.service.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept lock, got %d", swept)
	}

	if len(f.publisher.lockExpiries) != 1 {
		t.Errorf("expected one lock expiry event, got %d", len(f.publisher.lockExpiries))
	}
	if len(f.publisher.matchRequests) != 1 || f.publisher.matchRequests[0].Reason != events.ReasonLockExpired {
		t.Errorf("expected a rematch request with lock_expired reason, got %+v", f.publisher.matchRequests)
	}
}

func TestSweepExpired_SkipsConfirmedLocks(t *testing.T) {
	f := newLockFixture()
	ctx := context.Background()

	confirmed := &model.Lock{
		ID:        "l1",
		BookingID: "b1",
		Target:    model.ProviderTarget("p1"),
		Status:    model.LockConfirmed,
		Window:    testWindow(),
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := f.repo.Create(ctx, confirmed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	swept, err := f.service.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if swept != 0 {
		t.Errorf("expected no swept locks, got %d", swept)
	}
}

func TestReleaseForBooking_ReleasesAllActive(t *testing.T) {
	f := newLockFixture()
	ctx := context.Background()

	l1, _ := f.service.Hold(ctx, "a1", "b1", model.ProviderTarget("p1"), testWindow(), nil)
	l2, _ := f.service.Hold(ctx, "a1", "b1", model.ProviderTarget("p2"), testWindow(), nil)

	released, err := f.service.ReleaseForBooking(ctx, "a1", "b1")
	if err != nil {
		t.Fatalf("release for booking failed: %v", err)
	}
	if len(released) != 2 {
		t.Fatalf("expected 2 released locks, got %d", len(released))
	}
	for _, id := range []string{l1.ID, l2.ID} {
		lock, _ := f.repo.FindByID(ctx, id)
		if lock.Status != model.LockReleased {
			t.Errorf("expected %s RELEASED, got %s", id, lock.Status)
		}
	}
}
