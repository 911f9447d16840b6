package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"goalpace/internal/config"
	"goalpace/internal/domain"
	"goalpace/internal/events"
	"goalpace/internal/report"
)

const (
	defaultInterval = 2 * time.Second
	defaultBatch    = 100
)

// EventSource is the outbound event log the dispatcher tails.
type EventSource interface {
	EventsAfter(ctx context.Context, limit int, cursor int64, evtType string) ([]domain.Event, error)
	LatestEventID(ctx context.Context, evtType string) (int64, error)
}

type target struct {
	name     string
	notifier Notifier
	filter   eventFilter
}

// Dispatcher forwards new events to every target, keeping one cursor per
// target. A failed delivery leaves the cursor on the failed event so the next
// tick tries it again; the Webhook itself never retries.
type Dispatcher struct {
	Source   EventSource
	Logger   *log.Logger
	Interval time.Duration

	mu      sync.Mutex
	targets []target
	cursors map[int]int64
}

// NewDispatcher builds a dispatcher with one webhook target per enabled hook.
func NewDispatcher(source EventSource, hooks []config.WebhookConfig, logger *log.Logger) *Dispatcher {
	d := &Dispatcher{Source: source, Logger: logger, Interval: defaultInterval, cursors: make(map[int]int64)}
	for _, hook := range hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.Add(hook.URL, NewWebhook(hook), hook.Events)
	}
	return d
}

// Add registers a target; an empty event list subscribes to every type.
func (d *Dispatcher) Add(name string, n Notifier, eventTypes []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursors == nil {
		d.cursors = make(map[int]int64)
	}
	d.targets = append(d.targets, target{name: name, notifier: n, filter: newEventFilter(eventTypes)})
}

func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.targets)
}

func (d *Dispatcher) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

// Run dispatches until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	if d.Len() == 0 {
		return
	}
	interval := d.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce delivers one batch of pending events to every target.
func (d *Dispatcher) DispatchOnce(ctx context.Context) {
	d.mu.Lock()
	targets := append([]target(nil), d.targets...)
	d.mu.Unlock()
	for i, t := range targets {
		d.dispatchTarget(ctx, i, t)
	}
}

func (d *Dispatcher) dispatchTarget(ctx context.Context, idx int, t target) {
	cursor, err := d.cursorFor(ctx, idx)
	if err != nil {
		d.logger().Error("notify: init cursor failed", "target", t.name, "err", err)
		return
	}
	evts, err := d.Source.EventsAfter(ctx, defaultBatch, cursor, "")
	if err != nil {
		d.logger().Error("notify: fetch events failed", "err", err)
		return
	}
	for _, evt := range evts {
		if !t.filter.match(evt.Type) {
			d.setCursor(idx, evt.ID)
			continue
		}
		msg, err := MessageFromEvent(evt)
		if err != nil {
			d.logger().Warn("notify: skipping malformed event", "id", evt.ID, "type", evt.Type, "err", err)
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := t.notifier.Send(ctx, msg); err != nil {
			d.logger().Error("notify: delivery failed", "target", t.name, "event", evt.ID, "err", err)
			return
		}
		d.logger().Debug("notify: delivered", "target", t.name, "event", evt.ID, "type", evt.Type)
		d.setCursor(idx, evt.ID)
	}
}

// cursorFor starts a new target at the latest event, so only events recorded
// after the dispatcher came up are delivered.
func (d *Dispatcher) cursorFor(ctx context.Context, idx int) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur, nil
	}
	cur, err := d.Source.LatestEventID(ctx, "")
	if err != nil {
		return 0, err
	}
	d.cursors[idx] = cur
	return cur, nil
}

func (d *Dispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

// Cursor returns the last event handled for the target at idx.
func (d *Dispatcher) Cursor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursors[idx]
}

// MessageFromEvent renders a logged event as a notification.
func MessageFromEvent(evt domain.Event) (Message, error) {
	msg := Message{Kind: evt.Type, EventID: evt.ID}
	switch evt.Type {
	case events.TypeAchievementClaimed:
		var p struct {
			Pool      string `json:"pool"`
			PeriodKey string `json:"period_key"`
			Level     int    `json:"level"`
		}
		if err := json.Unmarshal([]byte(evt.Payload), &p); err != nil {
			return Message{}, err
		}
		msg.Pool, msg.PeriodKey, msg.Level = p.Pool, p.PeriodKey, p.Level
		msg.Text = report.Announcement(p.Pool, p.Level)
	case events.TypeReportComposed:
		var p struct {
			PeriodKey string `json:"period_key"`
			Text      string `json:"text"`
		}
		if err := json.Unmarshal([]byte(evt.Payload), &p); err != nil {
			return Message{}, err
		}
		msg.PeriodKey, msg.Text = p.PeriodKey, p.Text
	default:
		return Message{}, fmt.Errorf("unsupported event type %q", evt.Type)
	}
	return msg, nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(types []string) eventFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
