// Package report renders goal progress as plain text. It only formats and
// orders what callers hand it.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"goalpace/internal/domain"
)

// Extra is a trailing report section, rendered in the order given.
type Extra struct {
	Title string
	Lines []string
}

// Metric renders a continuous value with one decimal place.
func Metric(label string, value float64, unit string) Extra {
	line := strconv.FormatFloat(value, 'f', 1, 64)
	if unit != "" {
		line += " " + unit
	}
	return Extra{Title: label, Lines: []string{line}}
}

// Trend renders a week-over-week count change.
func Trend(label string, previous, current int) Extra {
	return Extra{Title: label, Lines: []string{fmt.Sprintf("%d -> %d (%+d)", previous, current, current-previous)}}
}

func Milestones(title string, items []string) Extra {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, "- "+it)
	}
	return Extra{Title: title, Lines: lines}
}

// Compose writes the severity banner, one line per snapshot in the given
// order, then each extra.
func Compose(snapshots []domain.ProgressSnapshot, severity domain.GroupSeverity, extras ...Extra) string {
	var b strings.Builder
	b.WriteString(banner(snapshots, severity))
	b.WriteString("\n")
	for _, s := range snapshots {
		fmt.Fprintf(&b, "%s %s: %d/%d (%s)\n", marker(s.Status), s.Category, s.Current, s.Target, describe(s))
	}
	for _, ex := range extras {
		if len(ex.Lines) == 0 {
			continue
		}
		if len(ex.Lines) == 1 && !strings.HasPrefix(ex.Lines[0], "- ") {
			fmt.Fprintf(&b, "\n%s: %s\n", ex.Title, ex.Lines[0])
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", ex.Title)
		for _, line := range ex.Lines {
			b.WriteString("  " + line + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Announcement is the notification text for a freshly claimed achievement.
func Announcement(pool string, level int) string {
	return fmt.Sprintf("Achievement unlocked in %s! You are now level %d.", pool, level)
}

func banner(snaps []domain.ProgressSnapshot, severity domain.GroupSeverity) string {
	failed := 0
	for _, s := range snaps {
		if s.Status == domain.StatusFailed {
			failed++
		}
	}
	switch severity {
	case domain.SeverityCritical:
		return fmt.Sprintf("CRITICAL: %d of %d goals can no longer be met this week", failed, len(snaps))
	case domain.SeverityWarning:
		return fmt.Sprintf("WARNING: %d of %d goals can no longer be met this week", failed, len(snaps))
	default:
		return "All goals are on track"
	}
}

func marker(s domain.Status) string {
	switch s {
	case domain.StatusComplete:
		return "[x]"
	case domain.StatusFailed:
		return "[!]"
	default:
		return "[ ]"
	}
}

func describe(s domain.ProgressSnapshot) string {
	switch s.Status {
	case domain.StatusComplete:
		return "complete"
	case domain.StatusFailed:
		return "missed"
	}
	need := s.Target - s.Current
	return fmt.Sprintf("%d more in %d %s", need, s.RemainingDays, plural(s.RemainingDays, "day"))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
