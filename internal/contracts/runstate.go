package contracts

import "time"

// DailyRunState is the scheduler's explicit per-day state: when the
// entry cycle last ran and how many trades it entered today. It is a
// value owned by the scheduler and passed around rather than read from
// globals, so tests can inject a fixed state and clock.
type DailyRunState struct {
	LastRunDate   time.Time `json:"last_run_date"` // date only, venue-local
	TradesEntered int       `json:"trades_entered"`
}

// SameDay reports whether two times fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// RanToday reports whether the entry cycle already ran on the given
// venue-local day. This is the guard that keeps the gate to one scan
// and entry cycle per trading day.
func (s DailyRunState) RanToday(now time.Time) bool {
	return !s.LastRunDate.IsZero() && SameDay(s.LastRunDate, now)
}

// Advance returns the state for a completed run on the given day. The
// trade counter resets only because the date advanced; it never resets
// mid-day.
func (s DailyRunState) Advance(now time.Time, tradesEntered int) DailyRunState {
	return DailyRunState{
		LastRunDate:   time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
		TradesEntered: tradesEntered,
	}
}
