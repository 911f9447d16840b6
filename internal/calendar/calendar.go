// Package calendar resolves reference instants into tracking weeks.
//
// Everything after the initial zone conversion works on civil dates, so a
// daylight-saving transition inside a week never shifts a day boundary.
package calendar

import (
	"strings"
	"time"

	"goalpace/internal/domain"
)

// LoadZone loads an IANA zone. Empty and unknown names are configuration errors.
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ConfigurationError{Field: "timezone", Reason: "is required"}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, domain.ConfigurationError{Field: "timezone", Reason: "unknown zone " + name, Err: err}
	}
	return loc, nil
}

type Resolver struct {
	Zone *time.Location
	// CloseOnEndDay makes PaceDays zero on the last day of the week.
	CloseOnEndDay bool
}

func NewResolver(zone string, closeOnEndDay bool) (Resolver, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return Resolver{}, err
	}
	return Resolver{Zone: loc, CloseOnEndDay: closeOnEndDay}, nil
}

// ResolveWeek resolves instant in zone with the default closed-Sunday pacing.
func ResolveWeek(instant time.Time, zone string) (domain.WeekWindow, error) {
	r, err := NewResolver(zone, true)
	if err != nil {
		return domain.WeekWindow{}, err
	}
	return r.Resolve(instant), nil
}

func (r Resolver) Resolve(instant time.Time) domain.WeekWindow {
	loc := r.Zone
	if loc == nil {
		loc = time.UTC
	}
	return r.ForDate(domain.DateOf(instant.In(loc)))
}

// ForDate builds the window whose Today is the given civil date.
func (r Resolver) ForDate(today domain.Date) domain.WeekWindow {
	start := today.AddDays(-mondayIndex(today.Weekday()))
	end := start.AddDays(domain.WindowLength - 1)
	remaining := today.DaysUntil(end) + 1
	pace := remaining
	if r.CloseOnEndDay && today == end {
		pace = 0
	}
	return domain.WeekWindow{
		Start:         start,
		End:           end,
		Today:         today,
		RemainingDays: remaining,
		PaceDays:      pace,
	}
}

// PreviousWeek returns the closed window seven days before w.
func PreviousWeek(w domain.WeekWindow) domain.WeekWindow {
	start := w.Start.AddDays(-domain.WindowLength)
	end := w.Start.AddDays(-1)
	return domain.WeekWindow{Start: start, End: end, Today: end}
}

// mondayIndex maps Monday..Sunday to 0..6.
func mondayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}
