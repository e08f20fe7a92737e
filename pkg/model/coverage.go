package model

// ConfirmedCoverage sums the provider capacity of CONFIRMED locks that
// cover the booking's full window. Individual provider locks contribute one
// provider each; team locks contribute the team's member count, looked up
// in teamSizes (unknown teams contribute zero).
func ConfirmedCoverage(b *Booking, locks []*Lock, teamSizes map[string]int) int {
	covered := 0
	for _, l := range locks {
		if l.Status != LockConfirmed {
			continue
		}
		if l.BookingID != b.ID {
			continue
		}
		if !l.EffectiveWindow().Covers(b.Window) {
			continue
		}
		switch l.Target.Kind {
		case TargetProvider:
			covered++
		case TargetTeam:
			covered += teamSizes[l.Target.ID]
		}
	}
	return covered
}

// CoverageSatisfied reports whether the booking's required provider count
// is met by confirmed, fully covering locks.
func CoverageSatisfied(b *Booking, locks []*Lock, teamSizes map[string]int) bool {
	return ConfirmedCoverage(b, locks, teamSizes) >= b.RequiredProviders
}
