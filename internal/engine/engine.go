package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"goalpace/internal/best"
	"goalpace/internal/calendar"
	"goalpace/internal/config"
	"goalpace/internal/domain"
	"goalpace/internal/goals"
	"goalpace/internal/ledger"
	"goalpace/internal/pace"
	"goalpace/internal/progress"
	"goalpace/internal/report"
)

type Engine struct {
	Config   *config.Config
	Registry *goals.Registry
	Resolver calendar.Resolver
	Ledger   ledger.Ledger
	Metrics  map[string]domain.Direction
	Now      func() time.Time
	Log      *log.Logger
}

// New validates cfg and wires an engine over store. A nil logger falls back
// to the default charmbracelet logger.
func New(cfg *config.Config, store ledger.Store, logger *log.Logger) (Engine, error) {
	if cfg == nil {
		return Engine{}, errors.New("config not loaded")
	}
	if logger == nil {
		logger = log.Default()
	}
	reg, err := goals.New(cfg.Goals)
	if err != nil {
		return Engine{}, err
	}
	resolver, err := calendar.NewResolver(cfg.Timezone, cfg.CloseOnEndDay())
	if err != nil {
		return Engine{}, err
	}
	metrics, err := cfg.Directions()
	if err != nil {
		return Engine{}, err
	}
	return Engine{
		Config:   cfg,
		Registry: reg,
		Resolver: resolver,
		Ledger:   ledger.New(store, logger),
		Metrics:  metrics,
		Now:      time.Now,
		Log:      logger,
	}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *log.Logger {
	if e.Log != nil {
		return e.Log
	}
	return log.Default()
}

// Week resolves the current tracking week in the configured zone.
func (e Engine) Week() domain.WeekWindow {
	return e.Resolver.Resolve(e.now())
}

type Summary struct {
	Window    domain.WeekWindow         `json:"window"`
	Snapshots []domain.ProgressSnapshot `json:"snapshots"`
	Severity  domain.GroupSeverity      `json:"severity"`
}

// Complete reports whether every goal reached its target.
func (s Summary) Complete() bool {
	if len(s.Snapshots) == 0 {
		return false
	}
	for _, snap := range s.Snapshots {
		if snap.Status != domain.StatusComplete {
			return false
		}
	}
	return true
}

// Progress evaluates every registered goal for the current week.
func (e Engine) Progress(records []domain.ActivityRecord) Summary {
	return e.progressIn(records, e.Week())
}

func (e Engine) progressIn(records []domain.ActivityRecord, window domain.WeekWindow) Summary {
	all := e.Registry.All()
	snaps := make([]domain.ProgressSnapshot, 0, len(all))
	for _, goal := range all {
		snaps = append(snaps, pace.Snapshot(goal, progress.Count(records, window, goal), window))
	}
	return Summary{
		Window:    window,
		Snapshots: snaps,
		Severity:  pace.Severity(pace.Statuses(snaps)),
	}
}

type Report struct {
	ID          string              `json:"id"`
	Window      domain.WeekWindow   `json:"window"`
	Summary     Summary             `json:"summary"`
	Text        string              `json:"text"`
	Diagnostics []domain.Diagnostic `json:"diagnostics,omitempty"`
}

// Report parses raw records, evaluates the week and renders the text report.
// Week-over-week trends and metric totals are appended before caller extras.
func (e Engine) Report(raw []domain.RawRecord, extras ...report.Extra) Report {
	records, diags := progress.Parse(raw)
	window := e.Week()
	summary := e.progressIn(records, window)

	var sections []report.Extra
	for _, goal := range e.Registry.All() {
		tr := progress.Trend(records, window, goal)
		if tr.Previous > 0 {
			sections = append(sections, report.Trend(goal.Category+" vs last week", tr.Previous, tr.Current))
		}
	}
	for _, goal := range e.Registry.All() {
		if total := progress.MetricTotal(records, window, goal); total != 0 {
			sections = append(sections, report.Metric(goal.Category+" total", total, ""))
		}
	}
	sections = append(sections, extras...)

	id := uuid.NewString()
	e.logger().Debug("report composed", "id", id, "period", window.PeriodKey(), "severity", summary.Severity, "skipped", len(diags))
	return Report{
		ID:          id,
		Window:      window,
		Summary:     summary,
		Text:        report.Compose(summary.Snapshots, summary.Severity, sections...),
		Diagnostics: diags,
	}
}

// CanPass reports whether a pass may be offered today for category.
func (e Engine) CanPass(category string, records []domain.ActivityRecord) (bool, error) {
	goal, err := e.Registry.Lookup(category)
	if err != nil {
		return false, err
	}
	window := e.Week()
	return pace.CanPass(goal, progress.Count(records, window, goal), window.PaceDays), nil
}

// CheckBest compares candidate with history using the configured direction
// for metricKey.
func (e Engine) CheckBest(metricKey string, history []float64, candidate float64) (best.Result, error) {
	dir, ok := e.Metrics[metricKey]
	if !ok {
		return best.Result{}, fmt.Errorf("%w: %q", domain.ErrUnknownMetric, metricKey)
	}
	return best.Evaluate(metricKey, history, candidate, dir), nil
}

func (e Engine) Claim(ctx context.Context, pool, periodKey string) (domain.ClaimResult, error) {
	return e.Ledger.Claim(ctx, pool, periodKey)
}

// ClaimWeek claims pool for the current ISO week.
func (e Engine) ClaimWeek(ctx context.Context, pool string) (domain.ClaimResult, string, error) {
	key := e.Week().PeriodKey()
	res, err := e.Ledger.Claim(ctx, pool, key)
	return res, key, err
}

type Completion struct {
	Summary   Summary            `json:"summary"`
	PeriodKey string             `json:"period_key"`
	Attempted bool               `json:"attempted"`
	Claim     domain.ClaimResult `json:"claim"`
	// Announcement is set only for the caller that won the claim.
	Announcement string `json:"announcement,omitempty"`
}

// CompleteWeek claims pool once every goal of the current week is complete.
func (e Engine) CompleteWeek(ctx context.Context, pool string, records []domain.ActivityRecord) (Completion, error) {
	window := e.Week()
	out := Completion{Summary: e.progressIn(records, window), PeriodKey: window.PeriodKey()}
	if !out.Summary.Complete() {
		return out, nil
	}
	out.Attempted = true
	res, err := e.Ledger.Claim(ctx, pool, out.PeriodKey)
	if err != nil {
		return out, err
	}
	out.Claim = res
	if res.Claimed {
		out.Announcement = report.Announcement(pool, res.Level)
	}
	return out, nil
}

// Entry returns the ledger state for (pool, periodKey).
func (e Engine) Entry(ctx context.Context, pool, periodKey string) (domain.LedgerEntry, error) {
	return e.Ledger.Entry(ctx, pool, periodKey)
}
