package pace

import (
	"testing"
	"testing/quick"
	"time"

	"goalpace/internal/calendar"
	"goalpace/internal/domain"
)

func TestEvaluateProperty(t *testing.T) {
	prop := func(c, tg, r uint8) bool {
		current, target, remaining := int(c), int(tg), int(r)
		got := Evaluate(current, target, remaining)
		switch {
		case current >= target:
			return got == domain.StatusComplete
		case current+remaining >= target:
			return got == domain.StatusOnPace
		default:
			return got == domain.StatusFailed
		}
	}
	if err := quick.Check(prop, &quick.Config{MaxCount: 2000}); err != nil {
		t.Fatal(err)
	}
}

func TestEvaluateScenarios(t *testing.T) {
	if got := Evaluate(2, 5, 3); got != domain.StatusOnPace {
		t.Fatalf("2+3>=5 should be on pace, got %s", got)
	}
	if got := Evaluate(2, 5, 2); got != domain.StatusFailed {
		t.Fatalf("2+2<5 should fail, got %s", got)
	}
	if got := Evaluate(5, 5, 0); got != domain.StatusComplete {
		t.Fatalf("reached target should be complete, got %s", got)
	}
	for target := 1; target <= domain.WindowLength; target++ {
		if got := Evaluate(0, target, domain.WindowLength); got != domain.StatusOnPace {
			t.Fatalf("start of week with target %d should be on pace, got %s", target, got)
		}
	}
}

func TestSeverity(t *testing.T) {
	on, failed, done := domain.StatusOnPace, domain.StatusFailed, domain.StatusComplete
	cases := []struct {
		in   []domain.Status
		want domain.GroupSeverity
	}{
		{nil, domain.SeverityClear},
		{[]domain.Status{on, done}, domain.SeverityClear},
		{[]domain.Status{on, failed, done}, domain.SeverityWarning},
		{[]domain.Status{failed, on}, domain.SeverityWarning},
		{[]domain.Status{failed, failed, on}, domain.SeverityCritical},
		{[]domain.Status{failed}, domain.SeverityCritical},
	}
	for _, tc := range cases {
		if got := Severity(tc.in); got != tc.want {
			t.Fatalf("Severity(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestCanPassNeverForDailyGoals(t *testing.T) {
	prop := func(target, c, r uint8) bool {
		goal := domain.GoalDefinition{
			Category:     "daily",
			WeeklyTarget: domain.WindowLength + int(target%4),
		}
		goal.Passable = goal.WeeklyTarget < domain.WindowLength
		return !CanPass(goal, int(c), int(r))
	}
	if err := quick.Check(prop, nil); err != nil {
		t.Fatal(err)
	}
}

func TestCanPassNeedsSlack(t *testing.T) {
	goal := domain.GoalDefinition{Category: "reading", WeeklyTarget: 5, Passable: true}
	if !CanPass(goal, 2, 4) {
		t.Fatal("4 days left for 3 needed leaves slack")
	}
	if CanPass(goal, 2, 3) {
		t.Fatal("3 days left for 3 needed leaves no slack")
	}
	if !CanPass(goal, 5, 1) {
		t.Fatal("completed goal can always pass while passable")
	}
}

func TestSnapshotUsesPaceDays(t *testing.T) {
	goal := domain.GoalDefinition{Category: "reading", WeeklyTarget: 5, Passable: true}
	sunday := calendar.Resolver{Zone: time.UTC, CloseOnEndDay: true}.ForDate(domain.MustParseDate("2024-01-07"))
	snap := Snapshot(goal, 4, sunday)
	if snap.Status != domain.StatusFailed || snap.RemainingDays != 0 || snap.CanPass {
		t.Fatalf("closed sunday should fail an incomplete goal: %+v", snap)
	}
	open := calendar.Resolver{Zone: time.UTC}.ForDate(domain.MustParseDate("2024-01-07"))
	snap = Snapshot(goal, 4, open)
	if snap.Status != domain.StatusOnPace || snap.RemainingDays != 1 {
		t.Fatalf("open sunday should leave one day: %+v", snap)
	}
	if got := Statuses([]domain.ProgressSnapshot{snap}); len(got) != 1 || got[0] != domain.StatusOnPace {
		t.Fatalf("unexpected statuses %v", got)
	}
}
