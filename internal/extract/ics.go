// Package extract implements the two-phase per-calendar extraction
// pipeline: a fast ICS feed fetch (C3) with a headless-browser render
// fallback (C4) for calendars that publish no usable feed, unified by
// a per-calendar extractor (C5).
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"
)

// ErrEmptyFeed signals that a feed was fetched and parsed
// successfully but produced zero events within the extraction window
// — a legal terminal outcome, not a failure.
var ErrEmptyFeed = errors.New("extract: feed contained no events in window")

// ErrNoICSURL signals the source has no ICS URL configured, so the
// caller should fall through to the render fallback (C4) directly.
var ErrNoICSURL = errors.New("extract: source has no ics url")

// statusError wraps a non-2xx HTTP response. Only 5xx responses are
// treated as transient and eligible for retry; 4xx means the feed
// itself is wrong (moved, gone, unauthorized) and retrying with
// backoff just delays the inevitable failure.
type statusError struct{ code int }

func (e statusError) Error() string { return fmt.Sprintf("unexpected status %d", e.code) }

func (e statusError) transient() bool { return e.code >= 500 }

// ICSFetcher fetches and parses an iCalendar feed into raw occurrence
// events, expanding RRULE/RDATE recurrence within a bounded window.
type ICSFetcher struct {
	Client     *http.Client
	Retries    int
	RetryWait  []time.Duration
	Logger     zerolog.Logger
}

// NewICSFetcher builds a fetcher with the timeout and retry policy
// described in spec.md §4.3: a short client timeout and two retries
// at increasing backoff, because a single slow feed shouldn't stall
// the whole orchestration phase.
func NewICSFetcher(timeout time.Duration, logger zerolog.Logger) *ICSFetcher {
	return &ICSFetcher{
		Client:    &http.Client{Timeout: timeout},
		Retries:   2,
		RetryWait: []time.Duration{time.Second, 3 * time.Second},
		Logger:    logger,
	}
}

// Window is the closed interval extraction is bounded to.
type Window struct {
	Start time.Time
	End   time.Time
}

// Fetch retrieves and parses an ICS feed, expanding recurrences
// within win, and returns raw (unnormalized) events. Returns
// ErrEmptyFeed if the feed parses but yields nothing in the window.
func (f *ICSFetcher) Fetch(ctx context.Context, icsURL string, win Window) ([]rawOccurrence, error) {
	if icsURL == "" {
		return nil, ErrNoICSURL
	}

	var body []byte
	var err error
	for attempt := 0; attempt <= f.Retries; attempt++ {
		body, err = f.fetchOnce(ctx, icsURL)
		if err == nil {
			break
		}
		var statusErr statusError
		if errors.As(err, &statusErr) && !statusErr.transient() {
			break
		}
		if attempt < len(f.RetryWait) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.RetryWait[attempt]):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch ics %s: %w", icsURL, err)
	}

	occurrences, err := parseAndExpand(body, win)
	if err != nil {
		return nil, fmt.Errorf("parse ics %s: %w", icsURL, err)
	}
	if len(occurrences) == 0 {
		return nil, ErrEmptyFeed
	}
	return occurrences, nil
}

func (f *ICSFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError{code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// rawOccurrence is a single calendar occurrence after recurrence
// expansion but before title/location normalization.
type rawOccurrence struct {
	Summary  string
	Location string
	Start    time.Time
	End      time.Time
}

func parseAndExpand(data []byte, win Window) ([]rawOccurrence, error) {
	cal, err := goical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, err
	}

	var out []rawOccurrence
	for _, comp := range cal.Children {
		if comp.Name != goical.CompEvent {
			continue
		}
		occ, err := expandVEvent(comp, win)
		if err != nil {
			continue // malformed VEVENT, skip rather than fail the whole feed
		}
		out = append(out, occ...)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func expandVEvent(comp *goical.Component, win Window) ([]rawOccurrence, error) {
	summary := propValue(comp, goical.PropSummary)
	location := propValue(comp, goical.PropLocation)

	dtstart := comp.Props.Get(goical.PropDateTimeStart)
	if dtstart == nil {
		return nil, fmt.Errorf("missing DTSTART")
	}
	start, allDay, err := parseDateTime(dtstart.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid DTSTART: %w", err)
	}

	var duration time.Duration
	if dtend := comp.Props.Get(goical.PropDateTimeEnd); dtend != nil {
		end, _, err := parseDateTime(dtend.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid DTEND: %w", err)
		}
		duration = end.Sub(start)
	} else if durProp := comp.Props.Get(goical.PropDuration); durProp != nil {
		duration, err = parseISODuration(durProp.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid DURATION: %w", err)
		}
	} else if allDay {
		duration = 24 * time.Hour
	}

	rruleVal := ""
	if rr := comp.Props.Get(goical.PropRecurrenceRule); rr != nil {
		rruleVal = rr.Value
	}

	var rdates, exdates []time.Time
	for _, p := range comp.Props.Values(goical.PropRecurrenceDates) {
		rdates = append(rdates, parseMultipleDates(p.Value)...)
	}
	for _, p := range comp.Props.Values(goical.PropExceptionDates) {
		exdates = append(exdates, parseMultipleDates(p.Value)...)
	}

	if rruleVal == "" && len(rdates) == 0 {
		if !inWindow(start, start.Add(duration), win) {
			return nil, nil
		}
		return []rawOccurrence{{Summary: summary, Location: location, Start: start, End: start.Add(duration)}}, nil
	}

	var instances []time.Time
	if rruleVal != "" {
		ruleStr := "DTSTART:" + start.UTC().Format("20060102T150405Z") + "\nRRULE:" + rruleVal
		rule, err := rrule.StrToRRule(ruleStr)
		if err != nil {
			return nil, fmt.Errorf("invalid RRULE: %w", err)
		}
		instances = append(instances, rule.Between(win.Start.Add(-duration), win.End.Add(duration), true)...)
	}
	instances = append(instances, rdates...)
	instances = excludeDates(instances, exdates)

	var occurrences []rawOccurrence
	for _, inst := range instances {
		end := inst.Add(duration)
		if !inWindow(inst, end, win) {
			continue
		}
		occurrences = append(occurrences, rawOccurrence{Summary: summary, Location: location, Start: inst, End: end})
	}
	return occurrences, nil
}

// inWindow reports whether [start, end] lies inside the closed window;
// an occurrence touching a window boundary is kept.
func inWindow(start, end time.Time, win Window) bool {
	return !start.Before(win.Start) && !end.After(win.End)
}

func propValue(comp *goical.Component, name string) string {
	if p := comp.Props.Get(name); p != nil {
		return p.Value
	}
	return ""
}

func parseDateTime(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) == 8:
		t, err := time.Parse("20060102", s)
		return t, true, err
	case len(s) == 15:
		t, err := time.ParseInLocation("20060102T150405", s, time.UTC)
		return t, false, err
	case len(s) == 16 && strings.HasSuffix(s, "Z"):
		t, err := time.Parse("20060102T150405Z", s)
		return t, false, err
	default:
		t, err := time.Parse(time.RFC3339, s)
		return t, false, err
	}
}

func parseMultipleDates(s string) []time.Time {
	var out []time.Time
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, _, err := parseDateTime(part)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

func excludeDates(instances, exdates []time.Time) []time.Time {
	if len(exdates) == 0 {
		return instances
	}
	excluded := make(map[string]bool, len(exdates))
	for _, d := range exdates {
		excluded[d.UTC().Format("20060102T150405Z")] = true
	}
	var out []time.Time
	for _, inst := range instances {
		if !excluded[inst.UTC().Format("20060102T150405Z")] {
			out = append(out, inst)
		}
	}
	return out
}

// parseISODuration parses an RFC 5545 DURATION value (e.g. "PT1H30M").
func parseISODuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	var days, hours, minutes, seconds int
	inTime := false
	var num strings.Builder
	for _, r := range s[1:] {
		switch r {
		case 'D':
			days = atoiOr(num.String(), 0)
			num.Reset()
		case 'T':
			inTime = true
			num.Reset()
		case 'H':
			if inTime {
				hours = atoiOr(num.String(), 0)
			}
			num.Reset()
		case 'M':
			if inTime {
				minutes = atoiOr(num.String(), 0)
			}
			num.Reset()
		case 'S':
			if inTime {
				seconds = atoiOr(num.String(), 0)
			}
			num.Reset()
		default:
			num.WriteRune(r)
		}
	}
	return time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second, nil
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
