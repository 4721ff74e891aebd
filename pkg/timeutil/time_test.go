package timeutil

import (
	"testing"
	"time"
)

func TestNow_AlwaysUTC(t *testing.T) {
	now := Now()

	if now.Location() != time.UTC {
		t.Errorf("Now() returned non-UTC timezone: %v", now.Location())
	}
}

func TestStartOfDay(t *testing.T) {
	in := time.Date(2024, 3, 15, 17, 42, 9, 123, time.FixedZone("X", 3600))
	got := StartOfDay(in)

	if got.Hour() != 0 || got.Minute() != 0 || got.Second() != 0 || got.Nanosecond() != 0 {
		t.Errorf("StartOfDay() = %v, want midnight", got)
	}
	if got.Location() != time.UTC {
		t.Errorf("StartOfDay() location = %v, want UTC", got.Location())
	}
}

func TestSameDay(t *testing.T) {
	a := Date(2024, time.January, 31)
	b := a.Add(23*time.Hour + 59*time.Minute)
	c := a.Add(24 * time.Hour)

	if !SameDay(a, b) {
		t.Error("expected a and b to share a day")
	}
	if SameDay(a, c) {
		t.Error("did not expect a and c to share a day")
	}
}
