package extract

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcal/roomcal/internal/hashutil"
	"github.com/roomcal/roomcal/internal/model"
	"github.com/roomcal/roomcal/internal/textparse"
)

// Extractor runs the per-calendar extraction pipeline (C5): try the
// ICS feed first, fall back to headless rendering, normalize every
// occurrence's title/location, dedupe, and hand the result to the
// caller for an atomic artifact write.
type Extractor struct {
	ICS          *ICSFetcher
	Renderer     *RendererPool
	DateLayout   string
	WindowPast   time.Duration
	WindowFuture time.Duration
	Logger       zerolog.Logger
}

// Result is one source's extraction outcome.
type Result struct {
	SourceHash string
	Events     []model.RawEvent
	UsedRender bool
	Err        error
}

// Extract runs the ICS-then-render pipeline for one source and
// returns normalized, windowed, deduped events. A feed or page that
// legitimately has no events in the window yields Err == nil with an
// empty Events slice — that is a successful extraction, not a
// failure.
func (e *Extractor) Extract(ctx context.Context, src model.CalendarSource, now time.Time) Result {
	hash := hashutil.SourceHash(src.Key())
	win := Window{Start: now.Add(-e.WindowPast), End: now.Add(e.WindowFuture)}

	occurrences, usedRender, err := e.fetch(ctx, src, win)
	if err != nil {
		return Result{SourceHash: hash, Err: err}
	}

	events := e.normalize(occurrences, src, hash)
	events = dedupe(events)
	sort.Slice(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })

	return Result{SourceHash: hash, Events: events, UsedRender: usedRender}
}

func (e *Extractor) fetch(ctx context.Context, src model.CalendarSource, win Window) ([]rawOccurrence, bool, error) {
	occs, err := e.ICS.Fetch(ctx, src.ICSURL, win)
	switch {
	case err == nil:
		return occs, false, nil
	case errors.Is(err, ErrEmptyFeed):
		return nil, false, nil
	case errors.Is(err, ErrNoICSURL):
		// fall through to render
	default:
		e.Logger.Warn().Err(err).Str("url", src.PrimaryURL).Msg("ics fetch failed, falling back to render")
	}

	if e.Renderer == nil {
		return nil, false, err
	}

	occs, rerr := e.Renderer.Render(ctx, src.PrimaryURL, e.DateLayout, win)
	if rerr != nil {
		return nil, true, rerr
	}
	return occs, true, nil
}

func renderedToOccurrences(rendered []RenderedOccurrence, win Window) []rawOccurrence {
	var out []rawOccurrence
	for _, r := range rendered {
		if r.Date.Before(win.Start) || r.Date.After(win.End) {
			continue
		}
		out = append(out, rawOccurrence{
			Summary:  r.CellRaw,
			Location: r.CellRaw,
			Start:    r.Date,
			End:      r.Date,
		})
	}
	return out
}

func (e *Extractor) normalize(occs []rawOccurrence, src model.CalendarSource, sourceHash string) []model.RawEvent {
	out := make([]model.RawEvent, 0, len(occs))
	for _, o := range occs {
		title := textparse.ParseTitle(o.Summary)
		loc := textparse.ParseLocation(o.Location)

		room, building := loc.Room, loc.Building
		if room == "" {
			room = src.Room
		}
		if building == "" {
			building = src.Building
		}

		ev := model.RawEvent{
			SourceHash:   sourceHash,
			RawTitle:     o.Summary,
			DisplayTitle: title.DisplayTitle,
			Subject:      title.Subject,
			Professor:    title.Professor,
			Room:         room,
			Building:     building,
			GroupDisplay: title.GroupDisplay,
			RawLocation:  o.Location,
			Color:        src.Color,
			CalendarName: src.DisplayName,
			Start:        o.Start,
			End:          o.End,
		}
		ev.UID = hashutil.EventUID(sourceHash, ev.Start.UTC().Format(time.RFC3339), ev.End.UTC().Format(time.RFC3339), ev.RawTitle)
		out = append(out, ev)
	}
	return out
}

func dedupe(events []model.RawEvent) []model.RawEvent {
	seen := make(map[string]bool, len(events))
	out := make([]model.RawEvent, 0, len(events))
	for _, e := range events {
		k := e.DedupeKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}
