package tracker

import "time"

// DefaultUpdateMonths is the recheck interval used when an entry has no override
const DefaultUpdateMonths = 3.0

const secondsPerMonth = 60 * 60 * 24 * 31

// EffectiveMonths returns the entry's interval, falling back to defaultMonths
func (s TrackedState) EffectiveMonths(defaultMonths float64) float64 {
	if s.UpdateMonths != 0 {
		return s.UpdateMonths
	}
	return defaultMonths
}

// Stale reports whether the entry is due for a fresh check at now. An unknown
// update time is always stale. Months are whole 31-day blocks.
func (s TrackedState) Stale(now time.Time, defaultMonths float64) bool {
	if s.LastUpdatedSeconds <= 0 {
		return true
	}
	months := MonthsSince(s.LastUpdatedSeconds, now)
	return float64(months) >= s.EffectiveMonths(defaultMonths)
}

// MonthsSince returns the whole 31-day months elapsed between unix seconds and now
func MonthsSince(unixSeconds int64, now time.Time) int64 {
	return (now.Unix() - unixSeconds) / secondsPerMonth
}

// Stale applies the default three month interval
func Stale(state TrackedState, now time.Time) bool {
	return state.Stale(now, DefaultUpdateMonths)
}
