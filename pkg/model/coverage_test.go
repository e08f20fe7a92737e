package model

import "testing"

func coverageBooking(required int) *Booking {
	return &Booking{
		ID:                "b1",
		Window:            window(9, 17),
		RequiredProviders: required,
	}
}

func confirmedLock(bookingID string, target LockTarget, w TimeWindow) *Lock {
	return &Lock{
		ID:        "l-" + target.Key(),
		BookingID: bookingID,
		Target:    target,
		Status:    LockConfirmed,
		Window:    w,
	}
}

func TestConfirmedCoverage_IndividualProviders(t *testing.T) {
	booking := coverageBooking(2)
	locks := []*Lock{
		confirmedLock("b1", ProviderTarget("p1"), window(9, 17)),
		confirmedLock("b1", ProviderTarget("p2"), window(8, 18)),
	}

	if got := ConfirmedCoverage(booking, locks, nil); got != 2 {
		t.Errorf("expected coverage 2, got %d", got)
	}
	if !CoverageSatisfied(booking, locks, nil) {
		t.Error("expected coverage to be satisfied")
	}
}

func TestConfirmedCoverage_TeamContributesMemberCount(t *testing.T) {
	booking := coverageBooking(3)
	locks := []*Lock{
		confirmedLock("b1", TeamTarget("t1"), window(9, 17)),
	}
	teamSizes := map[string]int{"t1": 4}

	if got := ConfirmedCoverage(booking, locks, teamSizes); got != 4 {
		t.Errorf("expected coverage 4, got %d", got)
	}
}

func TestConfirmedCoverage_IgnoresPartialAndHeldLocks(t *testing.T) {
	booking := coverageBooking(1)

	held := confirmedLock("b1", ProviderTarget("p1"), window(9, 17))
	held.Status = LockHeld
	partial := confirmedLock("b1", ProviderTarget("p2"), window(9, 12))
	otherBooking := confirmedLock("b2", ProviderTarget("p3"), window(9, 17))

	locks := []*Lock{held, partial, otherBooking}
	if got := ConfirmedCoverage(booking, locks, nil); got != 0 {
		t.Errorf("expected coverage 0, got %d", got)
	}
	if CoverageSatisfied(booking, locks, nil) {
		t.Error("expected coverage not to be satisfied")
	}
}

func TestConfirmedCoverage_SlotNarrowedLockMustStillCover(t *testing.T) {
	booking := coverageBooking(1)

	lock := confirmedLock("b1", ProviderTarget("p1"), window(9, 17))
	slot := window(10, 12)
	lock.SlotStart = &slot.Start
	lock.SlotEnd = &slot.End

	if got := ConfirmedCoverage(booking, []*Lock{lock}, nil); got != 0 {
		t.Errorf("expected slot-narrowed lock not to cover, got %d", got)
	}
}

func TestConfirmedCoverage_UnknownTeamContributesZero(t *testing.T) {
	booking := coverageBooking(1)
	locks := []*Lock{
		confirmedLock("b1", TeamTarget("t-unknown"), window(9, 17)),
	}

	if CoverageSatisfied(booking, locks, map[string]int{}) {
		t.Error("expected unknown team to contribute no coverage")
	}
}
