package timeutil

import (
	"time"
)

// IST is the deployment's reference timezone (UTC+5:30). Ticket sequences
// are scoped to the calendar date in this zone, so the daily rollover
// happens at IST midnight no matter where a request originates.
var IST *time.Location

func init() {
	var err error
	IST, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback: fixed zone if tzdata is unavailable
		IST = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// Now returns the current time in IST.
func Now() time.Time {
	return time.Now().In(IST)
}

// ServiceDay truncates a time to its calendar date in IST. Two requests
// draw from the same ticket sequence iff ServiceDay returns equal values.
func ServiceDay(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST)
}

// StartOfDay returns 00:00:00 IST for the given time.
func StartOfDay(t time.Time) time.Time {
	return ServiceDay(t)
}

// EndOfDay returns the last instant of the IST day for the given time.
func EndOfDay(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), 23, 59, 59, 999999999, IST)
}

// Common layouts.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"
)
