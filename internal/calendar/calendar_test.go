package calendar

import (
	"errors"
	"testing"
	"time"

	"goalpace/internal/domain"
)

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := LoadZone(name)
	if err != nil {
		t.Fatalf("load zone %s: %v", name, err)
	}
	return loc
}

func TestResolveWeekMidweek(t *testing.T) {
	loc := mustZone(t, "America/New_York")
	w, err := ResolveWeek(time.Date(2024, 1, 3, 15, 0, 0, 0, loc), "America/New_York")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if w.Start.String() != "2024-01-01" || w.End.String() != "2024-01-07" {
		t.Fatalf("unexpected window %s..%s", w.Start, w.End)
	}
	if w.RemainingDays != 5 || w.PaceDays != 5 {
		t.Fatalf("expected 5 remaining days, got %d/%d", w.RemainingDays, w.PaceDays)
	}
}

func TestResolveUsesFixedZoneNotInstantZone(t *testing.T) {
	// 03:00 UTC on Monday is still Sunday evening in New York.
	instant := time.Date(2024, 1, 8, 3, 0, 0, 0, time.UTC)
	w, err := ResolveWeek(instant, "America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	if w.Today.String() != "2024-01-07" || w.Start.String() != "2024-01-01" {
		t.Fatalf("expected Sunday 2024-01-07 in week of 2024-01-01, got today=%s start=%s", w.Today, w.Start)
	}
}

func TestResolveAcrossDaylightSavingTransition(t *testing.T) {
	r, err := NewResolver("Europe/Paris", true)
	if err != nil {
		t.Fatal(err)
	}
	loc := r.Zone
	// Clocks jump forward on Sunday 2024-03-31.
	cases := []struct {
		at        time.Time
		today     string
		remaining int
	}{
		{time.Date(2024, 3, 25, 0, 0, 0, 0, loc), "2024-03-25", 7},
		{time.Date(2024, 3, 30, 23, 59, 0, 0, loc), "2024-03-30", 2},
		{time.Date(2024, 3, 31, 0, 30, 0, 0, loc), "2024-03-31", 1},
		{time.Date(2024, 3, 31, 23, 30, 0, 0, loc), "2024-03-31", 1},
	}
	for _, tc := range cases {
		w := r.Resolve(tc.at)
		if w.Start.String() != "2024-03-25" || w.End.String() != "2024-03-31" {
			t.Fatalf("%s: unexpected window %s..%s", tc.at, w.Start, w.End)
		}
		if w.Today.String() != tc.today || w.RemainingDays != tc.remaining {
			t.Fatalf("%s: got today=%s remaining=%d", tc.at, w.Today, w.RemainingDays)
		}
	}
}

func TestSundayConventions(t *testing.T) {
	sunday := domain.MustParseDate("2024-01-07")

	closed := Resolver{Zone: time.UTC, CloseOnEndDay: true}.ForDate(sunday)
	if closed.RemainingDays != 1 {
		t.Fatalf("aggregation convention should count Sunday itself, got %d", closed.RemainingDays)
	}
	if closed.PaceDays != 0 {
		t.Fatalf("closed week should leave no pace days on Sunday, got %d", closed.PaceDays)
	}
	if !closed.Contains(sunday) {
		t.Fatal("Sunday must still belong to its week for aggregation")
	}

	open := Resolver{Zone: time.UTC}.ForDate(sunday)
	if open.PaceDays != 1 {
		t.Fatalf("open week should keep Sunday for pacing, got %d", open.PaceDays)
	}
}

func TestMondayStartsFullWeek(t *testing.T) {
	w := Resolver{Zone: time.UTC, CloseOnEndDay: true}.ForDate(domain.MustParseDate("2024-01-01"))
	if w.Start != w.Today || w.RemainingDays != domain.WindowLength || w.PaceDays != domain.WindowLength {
		t.Fatalf("unexpected monday window %+v", w)
	}
}

func TestPreviousWeekAndPeriodKey(t *testing.T) {
	w := Resolver{Zone: time.UTC}.ForDate(domain.MustParseDate("2024-01-31"))
	if got := w.PeriodKey(); got != "2024-W05" {
		t.Fatalf("unexpected period key %s", got)
	}
	prev := PreviousWeek(w)
	if prev.Start.String() != "2024-01-22" || prev.End.String() != "2024-01-28" {
		t.Fatalf("unexpected previous week %s..%s", prev.Start, prev.End)
	}
	if prev.RemainingDays != 0 || prev.PaceDays != 0 {
		t.Fatalf("previous week must be closed: %+v", prev)
	}
}

func TestInvalidZoneIsConfigurationError(t *testing.T) {
	for _, name := range []string{"", "Mars/Olympus_Mons"} {
		_, err := ResolveWeek(time.Now(), name)
		var cfgErr domain.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("zone %q: expected ConfigurationError, got %v", name, err)
		}
	}
}
