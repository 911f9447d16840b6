package progress

import (
	"fmt"
	"strings"

	"goalpace/internal/calendar"
	"goalpace/internal/domain"
	"goalpace/internal/goals"
)

// Parse validates raw records one by one. Bad records are reported as
// diagnostics and dropped; the rest are returned in input order.
func Parse(raw []domain.RawRecord) ([]domain.ActivityRecord, []domain.Diagnostic) {
	records := make([]domain.ActivityRecord, 0, len(raw))
	var diags []domain.Diagnostic
	for i, r := range raw {
		rec, err := parseOne(r)
		if err != nil {
			diags = append(diags, domain.Diagnostic{Index: i, Reason: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, diags
}

func parseOne(r domain.RawRecord) (domain.ActivityRecord, error) {
	category := strings.TrimSpace(r.Category)
	if category == "" {
		return domain.ActivityRecord{}, fmt.Errorf("%w: category is required", domain.ErrInvalidRecord)
	}
	date, err := domain.ParseDate(r.Date)
	if err != nil {
		return domain.ActivityRecord{}, err
	}
	outcome, err := domain.ParseOutcome(r.Outcome)
	if err != nil {
		return domain.ActivityRecord{}, err
	}
	return domain.ActivityRecord{
		Date:        date,
		Category:    category,
		Outcome:     outcome,
		MetricValue: r.MetricValue,
	}, nil
}

type Aggregator struct {
	Registry *goals.Registry
}

// Aggregate counts completed days for category inside window.
func (a Aggregator) Aggregate(records []domain.ActivityRecord, window domain.WeekWindow, category string) (int, error) {
	goal, err := a.Registry.Lookup(category)
	if err != nil {
		return 0, err
	}
	return Count(records, window, goal), nil
}

// Count returns the number of distinct dates in window with a completed
// record qualifying for goal. Passed and not-done records never count, and
// several qualifying sessions on one date count once.
func Count(records []domain.ActivityRecord, window domain.WeekWindow, goal domain.GoalDefinition) int {
	seen := make(map[domain.Date]struct{})
	for _, rec := range records {
		if rec.Outcome != domain.OutcomeCompleted {
			continue
		}
		if !window.Contains(rec.Date) || !goals.Qualifies(goal, rec.Category) {
			continue
		}
		seen[rec.Date] = struct{}{}
	}
	return len(seen)
}

// Addressed returns the dates in window that have either a completion or a pass.
func Addressed(records []domain.ActivityRecord, window domain.WeekWindow, goal domain.GoalDefinition) []domain.Date {
	seen := make(map[domain.Date]struct{})
	var out []domain.Date
	for _, rec := range records {
		if rec.Outcome == domain.OutcomeNotDone || !window.Contains(rec.Date) || !goals.Qualifies(goal, rec.Category) {
			continue
		}
		if _, ok := seen[rec.Date]; ok {
			continue
		}
		seen[rec.Date] = struct{}{}
		out = append(out, rec.Date)
	}
	return out
}

// MetricTotal sums metric values of completed qualifying records in window.
func MetricTotal(records []domain.ActivityRecord, window domain.WeekWindow, goal domain.GoalDefinition) float64 {
	var total float64
	for _, rec := range records {
		if rec.Outcome != domain.OutcomeCompleted || rec.MetricValue == nil {
			continue
		}
		if window.Contains(rec.Date) && goals.Qualifies(goal, rec.Category) {
			total += *rec.MetricValue
		}
	}
	return total
}

type TrendResult struct {
	Category string `json:"category"`
	Previous int    `json:"previous"`
	Current  int    `json:"current"`
	Delta    int    `json:"delta"`
}

// Trend compares the count in window against the week before it.
func Trend(records []domain.ActivityRecord, window domain.WeekWindow, goal domain.GoalDefinition) TrendResult {
	cur := Count(records, window, goal)
	prev := Count(records, calendar.PreviousWeek(window), goal)
	return TrendResult{Category: goal.Category, Previous: prev, Current: cur, Delta: cur - prev}
}
