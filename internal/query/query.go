// Package query answers read requests against the merged schedule and
// manual events (C11): a time window plus optional substring filters
// on subject, professor, room, building, and group.
package query

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/roomcal/roomcal/internal/model"
)

// ScheduleSource supplies the current merged schedule.
type ScheduleSource interface {
	EnsureSchedule(ctx context.Context) (model.MergedSchedule, model.CalendarMap, error)
}

// ManualEventSource supplies manual events overlapping a window.
type ManualEventSource interface {
	ListManualEvents(ctx context.Context, start, end time.Time) ([]model.ManualEvent, error)
}

// Params narrows a query to a time window and optional case-insensitive
// substring filters. A zero Start/End selects the default
// [today-7d, today+7d] window.
type Params struct {
	Start     time.Time
	End       time.Time
	Subject   string
	Professor string
	Room      string
	Building  string
	Group     string
}

const defaultWindow = 7 * 24 * time.Hour

func (p Params) resolveWindow(now time.Time) (time.Time, time.Time) {
	start, end := p.Start, p.End
	if start.IsZero() {
		start = now.Add(-defaultWindow)
	}
	if end.IsZero() {
		end = now.Add(defaultWindow)
	}
	return start, end
}

// Query combines the merged schedule's flat event list with the
// store's manual events, filters them, and returns a single sorted
// list in the API-facing shape.
type Query struct {
	Schedule ScheduleSource
	Manual   ManualEventSource
	Now      func() time.Time
}

// Run executes one query against the current schedule state.
func (q *Query) Run(ctx context.Context, p Params) ([]model.Event, error) {
	now := time.Now
	if q.Now != nil {
		now = q.Now
	}
	start, end := p.resolveWindow(now())

	sched, _, err := q.Schedule.EnsureSchedule(ctx)
	if err != nil {
		return nil, err
	}

	var events []model.Event
	for _, raw := range sched.Flat {
		if !overlaps(raw.Start, raw.End, start, end) {
			continue
		}
		if !matches(p, raw) {
			continue
		}
		events = append(events, model.FromRawEvent(raw))
	}

	manual, err := q.Manual.ListManualEvents(ctx, start, end)
	if err != nil {
		return nil, err
	}
	for _, m := range manual {
		if p.Subject != "" || p.Professor != "" || p.Room != "" || p.Building != "" || p.Group != "" {
			// Manual events carry no structured subject/professor/room
			// fields to filter on; they're excluded from a narrowed
			// search rather than matched blindly.
			continue
		}
		events = append(events, model.FromManualEvent(m))
	}

	sort.Slice(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].SourceHash < events[j].SourceHash
	})

	return events, nil
}

func overlaps(start, end, winStart, winEnd time.Time) bool {
	return start.Before(winEnd) && end.After(winStart)
}

func matches(p Params, e model.RawEvent) bool {
	return containsFold(e.Subject, p.Subject) &&
		containsFold(e.Professor, p.Professor) &&
		containsFold(e.Room, p.Room) &&
		containsFold(e.Building, p.Building) &&
		containsFold(e.GroupDisplay, p.Group)
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
