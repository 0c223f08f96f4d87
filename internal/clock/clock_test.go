package clock

import (
	"testing"
	"time"
)

func TestPeriodMapping(t *testing.T) {
	epoch := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	wall := epoch
	c := New(epoch, 24*time.Hour, func() time.Time { return wall })

	cases := []struct {
		at   time.Time
		want int64
	}{
		{epoch, 0},
		{epoch.Add(23 * time.Hour), 0},
		{epoch.Add(24 * time.Hour), 1},
		{epoch.Add(49 * time.Hour), 2},
		{epoch.Add(-5 * time.Hour), 0},
	}
	for _, tc := range cases {
		if got := c.Period(tc.at); got != tc.want {
			t.Fatalf("Period(%v) = %d, want %d", tc.at, got, tc.want)
		}
	}
}

func TestAdvanceShiftsPeriods(t *testing.T) {
	epoch := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	wall := epoch.Add(time.Hour)
	c := New(epoch, 24*time.Hour, func() time.Time { return wall })

	if got := c.CurrentPeriod(); got != 0 {
		t.Fatalf("CurrentPeriod = %d, want 0", got)
	}
	c.Advance(48 * time.Hour)
	if got := c.CurrentPeriod(); got != 2 {
		t.Fatalf("CurrentPeriod after +48h = %d, want 2", got)
	}
	if got := c.Offset(); got != 48*time.Hour {
		t.Fatalf("Offset = %v, want 48h", got)
	}
}

func TestAdvanceRejectsNegative(t *testing.T) {
	c := New(DefaultEpoch, 24*time.Hour, nil)
	c.Advance(-time.Hour)
	if got := c.Offset(); got != 0 {
		t.Fatalf("Offset = %v, want 0 after negative advance", got)
	}
}

func TestCalendar(t *testing.T) {
	c := New(DefaultEpoch, 24*time.Hour, nil)
	cases := []struct {
		period  int64
		year    int64
		quarter int
	}{
		{0, 1, 1},
		{3, 1, 4},
		{4, 2, 1},
		{10, 3, 3},
		{-1, 1, 1},
	}
	for _, tc := range cases {
		y, q := c.Calendar(tc.period)
		if y != tc.year || q != tc.quarter {
			t.Fatalf("Calendar(%d) = (%d, %d), want (%d, %d)", tc.period, y, q, tc.year, tc.quarter)
		}
	}
}

func TestAdvanceTo(t *testing.T) {
	epoch := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	wall := epoch.Add(time.Hour) // period 0, year 1 quarter 1
	c := New(epoch, 24*time.Hour, func() time.Time { return wall })

	// Year 2 quarter 1 is period 4.
	if _, err := c.AdvanceTo(2, 1); err != nil {
		t.Fatalf("AdvanceTo(2, 1): %v", err)
	}
	if got := c.CurrentPeriod(); got != 4 {
		t.Fatalf("CurrentPeriod = %d, want 4", got)
	}
	if got := c.Offset(); got != 95*time.Hour {
		t.Fatalf("Offset = %v, want 95h", got)
	}

	// Targets at or behind the current game time are rejected.
	if _, err := c.AdvanceTo(2, 1); err == nil {
		t.Fatal("AdvanceTo to the current quarter start should fail")
	}
	if _, err := c.AdvanceTo(1, 3); err == nil {
		t.Fatal("AdvanceTo backwards should fail")
	}
	if got := c.Offset(); got != 95*time.Hour {
		t.Fatalf("rejected AdvanceTo changed the offset to %v", got)
	}

	for _, bad := range [][2]int64{{0, 1}, {1, 0}, {1, 5}, {-1, 2}} {
		if _, err := c.AdvanceTo(bad[0], int(bad[1])); err == nil {
			t.Fatalf("AdvanceTo(%d, %d) should fail", bad[0], bad[1])
		}
	}
}

func TestPeriodStart(t *testing.T) {
	epoch := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := New(epoch, 24*time.Hour, nil)
	if got := c.PeriodStart(3); !got.Equal(epoch.Add(72 * time.Hour)) {
		t.Fatalf("PeriodStart(3) = %v", got)
	}
}
