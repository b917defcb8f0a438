package gateway

import "time"

const (
	referenceLifetimeDays = 7
	referenceCutoffHour   = 20
)

// PayBefore returns the deadline for deferred payments started at now: the
// next full hour plus seven days, pinned to 20:00 of that day in now's
// location.
func PayBefore(now time.Time) time.Time {
	hour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	t := hour.Add(time.Hour).AddDate(0, 0, referenceLifetimeDays)
	return time.Date(t.Year(), t.Month(), t.Day(), referenceCutoffHour, 0, 0, 0, t.Location())
}
