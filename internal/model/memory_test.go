package model

import (
	"strings"
	"testing"
	"time"
)

func TestForesight_IsValidAt(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(7 * 24 * time.Hour)

	bounded := Foresight{Content: "on antibiotics", TStart: start, TEnd: &end}
	open := Foresight{Content: "learning Go", TStart: start}

	cases := []struct {
		name string
		f    Foresight
		at   time.Time
		want bool
	}{
		{"before start", bounded, start.Add(-time.Second), false},
		{"at start", bounded, start, true},
		{"inside window", bounded, start.Add(3 * 24 * time.Hour), true},
		{"at end", bounded, end, true},
		{"just past end", bounded, end.Add(time.Nanosecond), false},
		{"open-ended far future", open, start.Add(10 * 365 * 24 * time.Hour), true},
		{"open-ended before start", open, start.Add(-time.Hour), false},
	}

	for _, tc := range cases {
		if got := tc.f.IsValidAt(tc.at); got != tc.want {
			t.Errorf("%s: IsValidAt = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestForesight_DayWindow(t *testing.T) {
	// A foresight spanning day 1 through day 8 is visible on day 7 and
	// gone on day 9.
	day1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	day8 := day1.AddDate(0, 0, 7)
	f := Foresight{Content: "two-week sprint", TStart: day1, TEnd: &day8}

	if !f.IsValidAt(day1.AddDate(0, 0, 6)) {
		t.Error("expected valid on day 7")
	}
	if f.IsValidAt(day1.AddDate(0, 0, 8)) {
		t.Error("expected invalid on day 9")
	}
}

func TestMemoryUnit_SearchableText(t *testing.T) {
	u := &MemoryUnit{
		Narrative:   "The user discussed a diet change.",
		AtomicFacts: []string{"The user is vegetarian."},
		Foresights:  []Foresight{{Content: "The user plans a two-week cleanse."}},
	}
	got := u.SearchableText()
	for _, want := range []string{"diet change", "vegetarian", "cleanse"} {
		if !strings.Contains(got, want) {
			t.Errorf("searchable text missing %q: %s", want, got)
		}
	}
}
