package timeutil

import "time"

// DayKey returns the UTC calendar date identifying one ledger accumulation
// window.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// DayOpen returns UTC midnight for the day containing t.
func DayOpen(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextDayOpen returns the next UTC midnight after t.
func NextDayOpen(t time.Time) time.Time {
	return DayOpen(t).Add(24 * time.Hour)
}

// SameUTCDay checks whether a and b fall on the same UTC calendar day.
func SameUTCDay(a, b time.Time) bool {
	return DayOpen(a).Equal(DayOpen(b))
}
