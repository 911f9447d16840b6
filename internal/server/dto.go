package server

import (
	"goalpace/internal/best"
	"goalpace/internal/domain"
	"goalpace/internal/engine"
)

// Request payloads

type RecordsRequest struct {
	Records []domain.RawRecord `json:"records,omitempty"`
}

type ReportRequest struct {
	Records    []domain.RawRecord `json:"records,omitempty"`
	Milestones []string           `json:"milestones,omitempty"`
}

type PassEligibilityRequest struct {
	Category string             `json:"category"`
	Records  []domain.RawRecord `json:"records,omitempty"`
}

type BestRequest struct {
	MetricKey string    `json:"metric_key"`
	History   []float64 `json:"history,omitempty"`
	Candidate float64   `json:"candidate"`
}

type ClaimRequest struct {
	Pool      string `json:"pool"`
	PeriodKey string `json:"period_key,omitempty" doc:"Defaults to the current ISO week"`
}

type CompletionRequest struct {
	Pool    string             `json:"pool"`
	Records []domain.RawRecord `json:"records,omitempty"`
}

// Response payloads

type WeekResponse struct {
	Start         string `json:"start" format:"date"`
	End           string `json:"end" format:"date"`
	Today         string `json:"today" format:"date"`
	RemainingDays int    `json:"remaining_days"`
	PaceDays      int    `json:"pace_days"`
	PeriodKey     string `json:"period_key" example:"2024-W05"`
}

type GoalResponse struct {
	Category     string   `json:"category"`
	WeeklyTarget int      `json:"weekly_target"`
	Passable     bool     `json:"passable"`
	Members      []string `json:"members,omitempty"`
}

type SummaryResponse struct {
	Week        WeekResponse              `json:"week"`
	Snapshots   []domain.ProgressSnapshot `json:"snapshots"`
	Severity    string                    `json:"severity" enum:"clear,warning,critical"`
	Complete    bool                      `json:"complete"`
	Diagnostics []domain.Diagnostic       `json:"diagnostics,omitempty"`
}

type ReportResponse struct {
	ID          string                    `json:"id" format:"uuid"`
	Week        WeekResponse              `json:"week"`
	Severity    string                    `json:"severity" enum:"clear,warning,critical"`
	Snapshots   []domain.ProgressSnapshot `json:"snapshots"`
	Text        string                    `json:"text"`
	Diagnostics []domain.Diagnostic       `json:"diagnostics,omitempty"`
}

type PassEligibilityResponse struct {
	Category string `json:"category"`
	CanPass  bool   `json:"can_pass"`
}

type BestResponse struct {
	MetricKey string             `json:"metric_key"`
	Candidate float64            `json:"candidate"`
	IsNewBest bool               `json:"is_new_best"`
	Previous  *domain.BestRecord `json:"previous,omitempty"`
}

type ClaimResponse struct {
	Pool         string `json:"pool"`
	PeriodKey    string `json:"period_key"`
	Claimed      bool   `json:"claimed"`
	Level        int    `json:"level"`
	Announcement string `json:"announcement,omitempty"`
}

type CompletionResponse struct {
	Summary      SummaryResponse `json:"summary"`
	Attempted    bool            `json:"attempted"`
	Claim        *ClaimResponse  `json:"claim,omitempty"`
	Announcement string          `json:"announcement,omitempty"`
}

type ClaimListResponse struct {
	Items []domain.LedgerEntry `json:"items"`
}

type EventListResponse struct {
	Items      []domain.Event `json:"items"`
	NextCursor int64          `json:"next_cursor"`
}

func mapWeek(w domain.WeekWindow) WeekResponse {
	return WeekResponse{
		Start:         w.Start.String(),
		End:           w.End.String(),
		Today:         w.Today.String(),
		RemainingDays: w.RemainingDays,
		PaceDays:      w.PaceDays,
		PeriodKey:     w.PeriodKey(),
	}
}

func mapGoals(items []domain.GoalDefinition) []GoalResponse {
	out := make([]GoalResponse, 0, len(items))
	for _, g := range items {
		out = append(out, GoalResponse{Category: g.Category, WeeklyTarget: g.WeeklyTarget, Passable: g.Passable, Members: g.Members})
	}
	return out
}

func mapSummary(s engine.Summary, diags []domain.Diagnostic) SummaryResponse {
	return SummaryResponse{
		Week:        mapWeek(s.Window),
		Snapshots:   s.Snapshots,
		Severity:    string(s.Severity),
		Complete:    s.Complete(),
		Diagnostics: diags,
	}
}

func mapReport(r engine.Report) ReportResponse {
	return ReportResponse{
		ID:          r.ID,
		Week:        mapWeek(r.Window),
		Severity:    string(r.Summary.Severity),
		Snapshots:   r.Summary.Snapshots,
		Text:        r.Text,
		Diagnostics: r.Diagnostics,
	}
}

func mapBest(r best.Result) BestResponse {
	return BestResponse{MetricKey: r.MetricKey, Candidate: r.Candidate, IsNewBest: r.IsNewBest, Previous: r.Previous}
}
