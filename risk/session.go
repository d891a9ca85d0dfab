package risk

import "time"

// InSession reports whether now falls in [startHour, endHour) in loc.
func InSession(now time.Time, startHour, endHour int, loc *time.Location) bool {
	h := now.In(loc).Hour()
	return h >= startHour && h < endHour
}

// NextSessionOpen returns startHour:00 on the calendar day after now in loc.
func NextSessionOpen(now time.Time, startHour int, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d+1, startHour, 0, 0, 0, loc)
}
