package timeutil_test

import (
	"testing"
	"time"

	"medisync-backend/internal/timeutil"
)

func TestServiceDayGroupsByISTDate(t *testing.T) {
	morning := time.Date(2025, 3, 10, 9, 0, 0, 0, timeutil.IST)
	evening := time.Date(2025, 3, 10, 23, 59, 0, 0, timeutil.IST)
	nextDay := time.Date(2025, 3, 11, 0, 1, 0, 0, timeutil.IST)

	if !timeutil.ServiceDay(morning).Equal(timeutil.ServiceDay(evening)) {
		t.Fatal("same IST date must map to the same service day")
	}
	if timeutil.ServiceDay(evening).Equal(timeutil.ServiceDay(nextDay)) {
		t.Fatal("crossing IST midnight must start a new service day")
	}
}

func TestServiceDayConvertsFromUTC(t *testing.T) {
	// 20:00 UTC on March 10 is 01:30 IST on March 11.
	utc := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	want := time.Date(2025, 3, 11, 0, 0, 0, 0, timeutil.IST)

	if got := timeutil.ServiceDay(utc); !got.Equal(want) {
		t.Fatalf("ServiceDay(%v) = %v, want %v", utc, got, want)
	}
}

func TestDayBounds(t *testing.T) {
	at := time.Date(2025, 3, 10, 14, 30, 0, 0, timeutil.IST)

	start := timeutil.StartOfDay(at)
	end := timeutil.EndOfDay(at)

	if start.Hour() != 0 || start.Minute() != 0 {
		t.Fatalf("StartOfDay = %v, want midnight", start)
	}
	if !end.After(at) || end.Day() != at.Day() {
		t.Fatalf("EndOfDay = %v, want last instant of the same day", end)
	}
}
