package domain

import (
	"fmt"
	"strings"
)

// WindowLength is the number of days in a tracking week.
const WindowLength = 7

type WeekWindow struct {
	Start         Date `json:"start"`
	End           Date `json:"end"`
	Today         Date `json:"today"`
	RemainingDays int  `json:"remaining_days"`
	PaceDays      int  `json:"pace_days"`
}

func (w WeekWindow) Length() int { return WindowLength }

// Contains reports whether d falls in [Start, End].
func (w WeekWindow) Contains(d Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// PeriodKey identifies the week as an ISO week, e.g. "2024-W05".
func (w WeekWindow) PeriodKey() string {
	y, wk := w.Start.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, wk)
}

type GoalDefinition struct {
	Category     string   `json:"category" yaml:"category"`
	WeeklyTarget int      `json:"weekly_target" yaml:"weekly_target"`
	Passable     bool     `json:"passable" yaml:"-"`
	Members      []string `json:"members,omitempty" yaml:"members,omitempty"`
}

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomePassed    Outcome = "passed"
	OutcomeNotDone   Outcome = "not_done"
)

func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case OutcomeCompleted, OutcomePassed, OutcomeNotDone:
		return o, nil
	case "done", "complete":
		return OutcomeCompleted, nil
	case "pass":
		return OutcomePassed, nil
	case "notdone", "not-done", "missed":
		return OutcomeNotDone, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
}

type ActivityRecord struct {
	Date        Date     `json:"date"`
	Category    string   `json:"category"`
	Outcome     Outcome  `json:"outcome"`
	MetricValue *float64 `json:"metric_value,omitempty"`
}

// RawRecord is an activity record as delivered by the activity source,
// before date and outcome have been validated.
type RawRecord struct {
	Date        string   `json:"date" yaml:"date"`
	Category    string   `json:"category" yaml:"category"`
	Outcome     string   `json:"outcome" yaml:"outcome"`
	MetricValue *float64 `json:"metric_value,omitempty" yaml:"metric_value,omitempty"`
}

type Status string

const (
	StatusOnPace   Status = "on_pace"
	StatusAtRisk   Status = "at_risk"
	StatusFailed   Status = "failed"
	StatusComplete Status = "complete"
)

type GroupSeverity string

const (
	SeverityClear    GroupSeverity = "clear"
	SeverityWarning  GroupSeverity = "warning"
	SeverityCritical GroupSeverity = "critical"
)

type ProgressSnapshot struct {
	Category      string `json:"category"`
	Current       int    `json:"current"`
	Target        int    `json:"target"`
	RemainingDays int    `json:"remaining_days"`
	Status        Status `json:"status" enum:"on_pace,at_risk,failed,complete"`
	CanPass       bool   `json:"can_pass"`
}

type Direction string

const (
	Maximize Direction = "maximize"
	Minimize Direction = "minimize"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Maximize, Minimize:
		return d, nil
	case "max", "higher":
		return Maximize, nil
	case "min", "lower":
		return Minimize, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

type BestRecord struct {
	MetricKey string    `json:"metric_key"`
	Direction Direction `json:"direction" enum:"maximize,minimize"`
	BestValue float64   `json:"best_value"`
}

type LedgerEntry struct {
	Pool      string `json:"pool"`
	PeriodKey string `json:"period_key"`
	Claimed   bool   `json:"claimed"`
	Level     int    `json:"level"`
	ClaimedAt string `json:"claimed_at,omitempty" format:"date-time"`
}

type ClaimResult struct {
	Claimed bool `json:"claimed"`
	Level   int  `json:"level"`
}

// Diagnostic describes one activity record skipped during parsing.
type Diagnostic struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
