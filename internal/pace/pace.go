package pace

import "goalpace/internal/domain"

// criticalFraction is the share of failed goals above which a group is critical.
const criticalFraction = 0.5

// Evaluate classifies one goal by feasibility, not by rate: a goal stays on
// pace while using every remaining day would still reach the target.
func Evaluate(current, target, remainingDays int) domain.Status {
	switch {
	case current >= target:
		return domain.StatusComplete
	case current+remainingDays >= target:
		return domain.StatusOnPace
	default:
		return domain.StatusFailed
	}
}

// Severity is computed once over a whole goal group.
func Severity(statuses []domain.Status) domain.GroupSeverity {
	if len(statuses) == 0 {
		return domain.SeverityClear
	}
	failed := 0
	for _, s := range statuses {
		if s == domain.StatusFailed {
			failed++
		}
	}
	fraction := float64(failed) / float64(len(statuses))
	switch {
	case fraction > criticalFraction:
		return domain.SeverityCritical
	case failed > 0:
		return domain.SeverityWarning
	default:
		return domain.SeverityClear
	}
}

// CanPass reports whether a pass may be offered today: the goal must be
// passable and keep at least one day of slack beyond what is still needed.
// Recorded passes are honored regardless of this check.
func CanPass(goal domain.GoalDefinition, current, remainingDays int) bool {
	return goal.Passable && remainingDays > goal.WeeklyTarget-current
}

// Snapshot evaluates goal against window using the pacing day count.
func Snapshot(goal domain.GoalDefinition, current int, window domain.WeekWindow) domain.ProgressSnapshot {
	return domain.ProgressSnapshot{
		Category:      goal.Category,
		Current:       current,
		Target:        goal.WeeklyTarget,
		RemainingDays: window.PaceDays,
		Status:        Evaluate(current, goal.WeeklyTarget, window.PaceDays),
		CanPass:       CanPass(goal, current, window.PaceDays),
	}
}

// Statuses extracts the status column of snapshots.
func Statuses(snaps []domain.ProgressSnapshot) []domain.Status {
	out := make([]domain.Status, len(snaps))
	for i, s := range snaps {
		out[i] = s.Status
	}
	return out
}
