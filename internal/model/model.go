// Package model holds the shared data types that flow through the
// extraction, merge, cache, store, and query layers.
package model

import "time"

// CalendarSource is one configured room calendar.
type CalendarSource struct {
	ID            int64
	PrimaryURL    string
	ICSURL        string
	DisplayName   string
	Color         string
	Enabled       bool
	Building      string
	Room          string
	EmailAddress  string
	Notes         string
	CreatedAt     time.Time
	LastFetchedAt *time.Time
}

// Key returns the source's identity, PrimaryURL. Its stable 8-hex
// digest (hashutil.SourceHash) names this source's per-calendar
// artifact and ties events back to it.
func (s CalendarSource) Key() string { return s.PrimaryURL }

// RawEvent is one item as produced by the extractor, before merge.
type RawEvent struct {
	UID           string    `json:"uid"`
	SourceHash    string    `json:"source"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	RawTitle      string    `json:"title"`
	DisplayTitle  string    `json:"display_title"`
	Subject       string    `json:"subject"`
	Professor     string    `json:"professor"`
	Room          string    `json:"room"`
	Building      string    `json:"building"`
	GroupDisplay  string    `json:"group_display"`
	RawLocation   string    `json:"location"`
	Color         string    `json:"color"`
	CalendarName  string    `json:"calendar_name"`
}

// DedupeKey identifies an event for within-source duplicate
// suppression by its (start, end, raw title) identity, as the
// extractor applies it.
func (e RawEvent) DedupeKey() string {
	return e.Start.Format(time.RFC3339) + "|" + e.End.Format(time.RFC3339) + "|" + e.RawTitle
}

// ManualEvent is an admin-entered one-off, never written to a
// per-calendar artifact and never subject to the extractor's
// +/-60-day window.
type ManualEvent struct {
	ID       int64
	Start    time.Time
	End      time.Time
	Title    string
	Location string
	Raw      string
}

// CalendarMapEntry is the metadata the query layer needs to resolve
// an event's source hash without touching the event store.
type CalendarMapEntry struct {
	PrimaryURL  string `json:"url"`
	DisplayName string `json:"name"`
	Color       string `json:"color"`
	Building    string `json:"building"`
	Room        string `json:"room"`
}

// CalendarMap maps a source hash to its resolved metadata.
type CalendarMap map[string]CalendarMapEntry

// MergedSchedule is the derived, room-indexed artifact produced by
// the merger and read by every query.
type MergedSchedule struct {
	ByRoom map[string][]RawEvent `json:"by_room"`
	Flat   []RawEvent            `json:"flat"`
}

// Fingerprint is (max mtime across per-calendar artifacts, count of
// non-empty artifacts); the cache rebuild trigger.
type Fingerprint struct {
	MaxModTime    time.Time `json:"max_mtime"`
	NonEmptyCount int       `json:"non_empty_count"`
}

// Equal reports whether two fingerprints denote the same artifact
// directory state.
func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.MaxModTime.Equal(o.MaxModTime) && f.NonEmptyCount == o.NonEmptyCount
}

// Less orders fingerprints lexicographically on (mtime, count), the
// monotonicity relation invariant 4 in spec.md §8 relies on.
func (f Fingerprint) Less(o Fingerprint) bool {
	if !f.MaxModTime.Equal(o.MaxModTime) {
		return f.MaxModTime.Before(o.MaxModTime)
	}
	return f.NonEmptyCount < o.NonEmptyCount
}

// Phase is a step in a full extraction run.
type Phase string

const (
	PhaseIdle   Phase = "idle"
	PhaseICS    Phase = "ics"
	PhaseRender Phase = "render"
	PhaseMerge  Phase = "merge"
)

// ImportProgress is the single mutable document describing the state
// of the most recent (or in-flight) extraction run. C6 is its only
// writer; all other readers get a defensive copy.
type ImportProgress struct {
	RunID        string     `json:"run_id"`
	Total        int        `json:"total"`
	Queued       int        `json:"queued"`
	Succeeded    int        `json:"succeeded"`
	Failed       int        `json:"failed"`
	FilesWritten int        `json:"files_written"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Finished     bool       `json:"finished"`
	CurrentPhase Phase      `json:"current_phase"`
	LastError    string     `json:"last_error,omitempty"`
}

// Clone returns a defensive copy safe to hand to a reader.
func (p ImportProgress) Clone() ImportProgress {
	cp := p
	if p.FinishedAt != nil {
		t := *p.FinishedAt
		cp.FinishedAt = &t
	}
	return cp
}

// Event is the flattened, API-facing shape combining extractor output
// and manual events for the query layer and HTTP surface.
type Event struct {
	UID          string    `json:"uid,omitempty"`
	SourceHash   string    `json:"source"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	RawTitle     string    `json:"title"`
	DisplayTitle string    `json:"display_title"`
	Subject      string    `json:"subject"`
	Professor    string    `json:"professor"`
	Room         string    `json:"room"`
	Building     string    `json:"building"`
	GroupDisplay string    `json:"group_display"`
	RawLocation  string    `json:"location"`
	Color        string    `json:"color,omitempty"`
	CalendarName string    `json:"calendar_name,omitempty"`
	Manual       bool      `json:"manual,omitempty"`
}

// FromRawEvent converts a merged-schedule event into the API shape.
func FromRawEvent(e RawEvent) Event {
	return Event{
		UID:          e.UID,
		SourceHash:   e.SourceHash,
		Start:        e.Start,
		End:          e.End,
		RawTitle:     e.RawTitle,
		DisplayTitle: e.DisplayTitle,
		Subject:      e.Subject,
		Professor:    e.Professor,
		Room:         e.Room,
		Building:     e.Building,
		GroupDisplay: e.GroupDisplay,
		RawLocation:  e.RawLocation,
		Color:        e.Color,
		CalendarName: e.CalendarName,
	}
}

// FromManualEvent converts a manual event into the API shape.
func FromManualEvent(m ManualEvent) Event {
	return Event{
		Start:        m.Start,
		End:          m.End,
		RawTitle:     m.Title,
		DisplayTitle: m.Title,
		RawLocation:  m.Location,
		Manual:       true,
	}
}
