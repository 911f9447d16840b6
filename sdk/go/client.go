package goalpacesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Goalpace HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Record is one activity record as sent to the API.
type Record struct {
	Date        string   `json:"date"`
	Category    string   `json:"category"`
	Outcome     string   `json:"outcome"`
	MetricValue *float64 `json:"metric_value,omitempty"`
}

type Week struct {
	Start         string `json:"start"`
	End           string `json:"end"`
	Today         string `json:"today"`
	RemainingDays int    `json:"remaining_days"`
	PaceDays      int    `json:"pace_days"`
	PeriodKey     string `json:"period_key"`
}

type Goal struct {
	Category     string   `json:"category"`
	WeeklyTarget int      `json:"weekly_target"`
	Passable     bool     `json:"passable"`
	Members      []string `json:"members,omitempty"`
}

type Snapshot struct {
	Category      string `json:"category"`
	Current       int    `json:"current"`
	Target        int    `json:"target"`
	RemainingDays int    `json:"remaining_days"`
	Status        string `json:"status"`
	CanPass       bool   `json:"can_pass"`
}

type Diagnostic struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type Summary struct {
	Week        Week         `json:"week"`
	Snapshots   []Snapshot   `json:"snapshots"`
	Severity    string       `json:"severity"`
	Complete    bool         `json:"complete"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

type Report struct {
	ID          string       `json:"id"`
	Week        Week         `json:"week"`
	Severity    string       `json:"severity"`
	Snapshots   []Snapshot   `json:"snapshots"`
	Text        string       `json:"text"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

type BestRecord struct {
	MetricKey string  `json:"metric_key"`
	Direction string  `json:"direction"`
	BestValue float64 `json:"best_value"`
}

type BestResult struct {
	MetricKey string      `json:"metric_key"`
	Candidate float64     `json:"candidate"`
	IsNewBest bool        `json:"is_new_best"`
	Previous  *BestRecord `json:"previous,omitempty"`
}

type Claim struct {
	Pool         string `json:"pool"`
	PeriodKey    string `json:"period_key"`
	Claimed      bool   `json:"claimed"`
	Level        int    `json:"level"`
	Announcement string `json:"announcement,omitempty"`
}

type Completion struct {
	Summary      Summary `json:"summary"`
	Attempted    bool    `json:"attempted"`
	Claim        *Claim  `json:"claim,omitempty"`
	Announcement string  `json:"announcement,omitempty"`
}

type LedgerEntry struct {
	Pool      string `json:"pool"`
	PeriodKey string `json:"period_key"`
	Claimed   bool   `json:"claimed"`
	Level     int    `json:"level"`
	ClaimedAt string `json:"claimed_at,omitempty"`
}

// Event represents an outbound log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps event listings with a cursor.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor int64   `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

func (c *Client) Week(ctx context.Context) (Week, error) {
	var resp Week
	err := c.do(ctx, http.MethodGet, "week", nil, &resp)
	return resp, err
}

func (c *Client) Goals(ctx context.Context) ([]Goal, error) {
	var resp []Goal
	err := c.do(ctx, http.MethodGet, "goals", nil, &resp)
	return resp, err
}

// Progress evaluates every goal for the current week.
func (c *Client) Progress(ctx context.Context, records []Record) (Summary, error) {
	var resp Summary
	err := c.do(ctx, http.MethodPost, "progress", map[string]any{"records": nonNil(records)}, &resp)
	return resp, err
}

// Report composes the weekly text report with optional milestone lines.
func (c *Client) Report(ctx context.Context, records []Record, milestones ...string) (Report, error) {
	body := map[string]any{"records": nonNil(records)}
	if len(milestones) > 0 {
		body["milestones"] = milestones
	}
	var resp Report
	err := c.do(ctx, http.MethodPost, "report", body, &resp)
	return resp, err
}

func (c *Client) CanPass(ctx context.Context, category string, records []Record) (bool, error) {
	var resp struct {
		CanPass bool `json:"can_pass"`
	}
	err := c.do(ctx, http.MethodPost, "pass-eligibility", map[string]any{"category": category, "records": nonNil(records)}, &resp)
	return resp.CanPass, err
}

func (c *Client) CheckBest(ctx context.Context, metricKey string, history []float64, candidate float64) (BestResult, error) {
	body := map[string]any{"metric_key": metricKey, "candidate": candidate}
	if len(history) > 0 {
		body["history"] = history
	}
	var resp BestResult
	err := c.do(ctx, http.MethodPost, "bests", body, &resp)
	return resp, err
}

// Claim claims pool for periodKey, or for the current week when periodKey is empty.
func (c *Client) Claim(ctx context.Context, pool, periodKey string) (Claim, error) {
	body := map[string]any{"pool": pool}
	if periodKey != "" {
		body["period_key"] = periodKey
	}
	var resp Claim
	err := c.do(ctx, http.MethodPost, "claims", body, &resp)
	return resp, err
}

func (c *Client) CompleteWeek(ctx context.Context, pool string, records []Record) (Completion, error) {
	var resp Completion
	err := c.do(ctx, http.MethodPost, "completions", map[string]any{"pool": pool, "records": nonNil(records)}, &resp)
	return resp, err
}

func (c *Client) Entry(ctx context.Context, pool, periodKey string) (LedgerEntry, error) {
	var resp LedgerEntry
	endpoint := fmt.Sprintf("claims/%s/%s", url.PathEscape(pool), url.PathEscape(periodKey))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Claims(ctx context.Context, pool string, limit int) ([]LedgerEntry, error) {
	endpoint := "claims/" + url.PathEscape(pool)
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []LedgerEntry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// EventsPage returns events after cursor, optionally of one type.
func (c *Client) EventsPage(ctx context.Context, after int64, limit int, evtType string) (PaginatedEvents, error) {
	q := url.Values{}
	if after > 0 {
		q.Set("after", fmt.Sprint(after))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if evtType != "" {
		q.Set("type", evtType)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}

func nonNil(records []Record) []Record {
	if records == nil {
		return []Record{}
	}
	return records
}
