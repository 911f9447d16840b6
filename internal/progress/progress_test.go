package progress_test

import (
	"errors"
	"math/rand"
	"testing"
	"testing/quick"
	"time"

	"goalpace/internal/calendar"
	"goalpace/internal/domain"
	"goalpace/internal/goals"
	"goalpace/internal/progress"
)

func week(t *testing.T, today string) domain.WeekWindow {
	t.Helper()
	return calendar.Resolver{Zone: time.UTC, CloseOnEndDay: true}.ForDate(domain.MustParseDate(today))
}

func registry(t *testing.T) *goals.Registry {
	t.Helper()
	r, err := goals.New(goals.Default())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

func rec(date, category string, outcome domain.Outcome) domain.ActivityRecord {
	return domain.ActivityRecord{Date: domain.MustParseDate(date), Category: category, Outcome: outcome}
}

func TestAggregateCountsOnlyCompletedInWindow(t *testing.T) {
	agg := progress.Aggregator{Registry: registry(t)}
	w := week(t, "2024-01-03")
	records := []domain.ActivityRecord{
		rec("2023-12-31", "reading", domain.OutcomeCompleted), // previous week
		rec("2024-01-01", "reading", domain.OutcomeCompleted),
		rec("2024-01-02", "reading", domain.OutcomePassed),
		rec("2024-01-03", "reading", domain.OutcomeNotDone),
		rec("2024-01-04", "reading", domain.OutcomeCompleted),
		rec("2024-01-07", "reading", domain.OutcomeCompleted), // sunday still in window
		rec("2024-01-08", "reading", domain.OutcomeCompleted), // next week
		rec("2024-01-05", "journaling", domain.OutcomeCompleted),
	}
	got, err := agg.Aggregate(records, w, "reading")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected 3 completed reading days, got %d", got)
	}
}

func TestAggregateCompositeCountsOncePerDate(t *testing.T) {
	agg := progress.Aggregator{Registry: registry(t)}
	w := week(t, "2024-01-03")
	records := []domain.ActivityRecord{
		rec("2024-01-01", "run", domain.OutcomeCompleted),
		rec("2024-01-01", "lift", domain.OutcomeCompleted),
		rec("2024-01-01", "run", domain.OutcomeCompleted),
		rec("2024-01-02", "lift", domain.OutcomeCompleted),
		rec("2024-01-03", "exercise", domain.OutcomeCompleted),
	}
	got, err := agg.Aggregate(records, w, "exercise")
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Fatalf("expected one unit per date (3), got %d", got)
	}
}

func TestAggregateUnknownCategory(t *testing.T) {
	agg := progress.Aggregator{Registry: registry(t)}
	_, err := agg.Aggregate(nil, week(t, "2024-01-03"), "knitting")
	if !errors.Is(err, domain.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestAggregateNeverCountsPassesOrMisses(t *testing.T) {
	agg := progress.Aggregator{Registry: registry(t)}
	w := week(t, "2024-01-03")
	outcomes := []domain.Outcome{domain.OutcomePassed, domain.OutcomeNotDone}
	prop := func(seed int64, n uint8) bool {
		rng := rand.New(rand.NewSource(seed))
		var records []domain.ActivityRecord
		for i := 0; i < int(n); i++ {
			records = append(records, domain.ActivityRecord{
				Date:     w.Start.AddDays(rng.Intn(7)),
				Category: "reading",
				Outcome:  outcomes[rng.Intn(len(outcomes))],
			})
		}
		got, err := agg.Aggregate(records, w, "reading")
		return err == nil && got == 0
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Fatal(err)
	}
}

func TestAddressedIncludesPasses(t *testing.T) {
	r := registry(t)
	goal, _ := r.Lookup("reading")
	w := week(t, "2024-01-03")
	records := []domain.ActivityRecord{
		rec("2024-01-01", "reading", domain.OutcomeCompleted),
		rec("2024-01-02", "reading", domain.OutcomePassed),
		rec("2024-01-03", "reading", domain.OutcomeNotDone),
	}
	if got := progress.Addressed(records, w, goal); len(got) != 2 {
		t.Fatalf("expected 2 addressed days, got %v", got)
	}
	if got := progress.Count(records, w, goal); got != 1 {
		t.Fatalf("pass must not count toward progress, got %d", got)
	}
}

func TestParseCollectsDiagnostics(t *testing.T) {
	distance := 5.25
	raw := []domain.RawRecord{
		{Date: "2024-01-01", Category: "run", Outcome: "completed", MetricValue: &distance},
		{Date: "01/02/2024", Category: "run", Outcome: "completed"},
		{Date: "2024-01-03", Category: "run", Outcome: "maybe"},
		{Date: "2024-01-04", Category: "", Outcome: "passed"},
		{Date: "2024-01-05", Category: "reading", Outcome: "Passed"},
	}
	records, diags := progress.Parse(raw)
	if len(records) != 2 {
		t.Fatalf("expected 2 valid records, got %d", len(records))
	}
	if records[1].Outcome != domain.OutcomePassed {
		t.Fatalf("unexpected outcome %q", records[1].Outcome)
	}
	if len(diags) != 3 || diags[0].Index != 1 || diags[1].Index != 2 || diags[2].Index != 3 {
		t.Fatalf("unexpected diagnostics %+v", diags)
	}
}

func TestMetricTotalAndTrend(t *testing.T) {
	r := registry(t)
	goal, _ := r.Lookup("exercise")
	w := week(t, "2024-01-10")
	km := func(v float64) *float64 { return &v }
	records := []domain.ActivityRecord{
		{Date: domain.MustParseDate("2024-01-02"), Category: "run", Outcome: domain.OutcomeCompleted, MetricValue: km(3)},
		{Date: domain.MustParseDate("2024-01-08"), Category: "run", Outcome: domain.OutcomeCompleted, MetricValue: km(5.5)},
		{Date: domain.MustParseDate("2024-01-09"), Category: "run", Outcome: domain.OutcomeCompleted, MetricValue: km(4.25)},
		{Date: domain.MustParseDate("2024-01-10"), Category: "run", Outcome: domain.OutcomePassed, MetricValue: km(10)},
	}
	if got := progress.MetricTotal(records, w, goal); got != 9.75 {
		t.Fatalf("unexpected metric total %v", got)
	}
	trend := progress.Trend(records, w, goal)
	if trend.Previous != 1 || trend.Current != 2 || trend.Delta != 1 {
		t.Fatalf("unexpected trend %+v", trend)
	}
}
