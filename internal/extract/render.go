package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// networkIdleTimeout bounds how long Render waits for XHR traffic to
// settle before reading whatever it collected — institutions that
// poll in the background never truly go idle, so this is a ceiling,
// not a target.
const networkIdleTimeout = 20 * time.Second

// calendarListKeys are the JSON object keys a response body is likely
// nested under when the calendar widget returns a list of items
// rather than a bare array.
var calendarListKeys = []string{"events", "data", "items", "result", "results"}

// RenderedOccurrence is a raw table cell scraped from a rendered page,
// carrying the column header's resolved date plus the cell's own text.
// The extractor uses that text as both the raw title and the raw
// location; no time of day is parsed from it, so the occurrence starts
// and ends at the header date.
type RenderedOccurrence struct {
	Date    time.Time
	CellRaw string
}

// RendererPool renders calendars that publish no usable ICS feed and
// must be scraped from their client-rendered page. It launches one
// headless browser process on first use and shares it across calls;
// the pool size bounds how many pages are open at once. Each Render
// opens its own page and closes it when the call returns, including
// when the watchdog fires. The browser process itself is not
// relaunched: if it dies, later Render calls fail until Close and a
// new pool.
type RendererPool struct {
	browser  *rod.Browser
	sem      chan struct{}
	watchdog time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	started bool
}

// NewRendererPool creates a pool of the given size. The underlying
// browser process is launched lazily on first use.
func NewRendererPool(size int, watchdog time.Duration, logger zerolog.Logger) *RendererPool {
	if size < 1 {
		size = 1
	}
	return &RendererPool{
		sem:      make(chan struct{}, size),
		watchdog: watchdog,
		logger:   logger,
	}
}

func (p *RendererPool) ensureStarted() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	u, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	p.browser = rod.New().ControlURL(u)
	if err := p.browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	p.started = true
	return nil
}

// Close releases the underlying browser process.
func (p *RendererPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	p.started = false
	return p.browser.Close()
}

// Render navigates to url and extracts occurrences two ways: first by
// intercepting XHR responses the page issues while loading and
// picking out any whose JSON body looks like a calendar item, then —
// only if that yields nothing — by scraping whatever table the
// rendered DOM contains. It acquires a pool slot for the duration of
// the call and closes its page (not the whole browser) on return,
// whether or not the watchdog fired.
func (p *RendererPool) Render(ctx context.Context, url string, dateLayout string, win Window) ([]rawOccurrence, error) {
	if err := p.ensureStarted(); err != nil {
		return nil, err
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	page, err := p.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	watchCtx, cancel := context.WithTimeout(ctx, p.watchdog)
	defer cancel()
	page = page.Context(watchCtx)

	var mu sync.Mutex
	var bodies [][]byte
	go page.EachEvent(func(e *proto.NetworkResponseReceived) {
		if !strings.Contains(strings.ToLower(e.Response.MIMEType), "json") {
			return
		}
		body, berr := proto.NetworkGetResponseBody{RequestID: e.RequestID}.Call(page)
		if berr != nil {
			return
		}
		mu.Lock()
		bodies = append(bodies, []byte(body.Body))
		mu.Unlock()
	})()

	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	idle := networkIdleTimeout
	if p.watchdog > 0 && p.watchdog < idle {
		idle = p.watchdog
	}
	if err := page.WaitIdle(idle); err != nil {
		p.logger.Warn().Err(err).Str("url", url).Msg("page did not reach network idle before watchdog")
	}

	mu.Lock()
	collected := bodies
	mu.Unlock()

	if occs := parseXHRBodies(collected, win); len(occs) > 0 {
		return occs, nil
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("read rendered html: %w", err)
	}
	rendered, err := ScrapeTable(html, dateLayout)
	if err != nil {
		return nil, err
	}
	return renderedToOccurrences(rendered, win), nil
}

// ScrapeTable parses a rendered grid-schedule page into raw
// occurrences: a header row of dates mapped by column, and body cells
// carrying the event text for that column. Generalized from the
// colspan/rowspan occupancy-grid algorithm used for weekly HTML
// timetables, applied to any table found on the page rather than a
// single fixed layout.
func ScrapeTable(html string, dateLayout string) ([]RenderedOccurrence, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse rendered html: %w", err)
	}

	var out []RenderedOccurrence
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		out = append(out, scrapeWeekTable(table, dateLayout)...)
	})
	return out, nil
}

func scrapeWeekTable(table *goquery.Selection, dateLayout string) []RenderedOccurrence {
	rows := table.Find("tr")
	if rows.Length() < 2 {
		return nil
	}

	header := rows.First()
	dateByCol, totalCols := headerDates(header, dateLayout)
	if totalCols == 0 {
		return nil
	}

	occ := make([]int, totalCols)
	var out []RenderedOccurrence

	rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
		for i := range occ {
			if occ[i] > 0 {
				occ[i]--
			}
		}
		col := 0
		row.ChildrenFiltered("td").Each(func(_ int, cell *goquery.Selection) {
			cs := cellSpan(cell, "colspan")
			rs := cellSpan(cell, "rowspan")

			for col < totalCols && occ[col] > 0 {
				col++
			}
			if col >= totalCols {
				return
			}
			start, end := col, col+cs
			if end > totalCols {
				end = totalCols
			}
			if rs > 1 {
				for c := start; c < end; c++ {
					occ[c] = rs - 1
				}
			}

			text := strings.TrimSpace(cell.Text())
			if text != "" {
				if d, ok := dateByCol[start]; ok {
					out = append(out, RenderedOccurrence{Date: d, CellRaw: collapseSpace(text)})
				}
			}
			col = end
		})
	})

	return out
}

func headerDates(header *goquery.Selection, layout string) (map[int]time.Time, int) {
	dateByCol := make(map[int]time.Time)
	cells := header.ChildrenFiltered("td, th")
	total := 0
	cells.Each(func(_ int, c *goquery.Selection) { total += cellSpan(c, "colspan") })

	col := 0
	cells.Each(func(_ int, c *goquery.Selection) {
		cs := cellSpan(c, "colspan")
		text := strings.TrimSpace(c.Text())
		if d, err := time.Parse(layout, text); err == nil {
			for i := 0; i < cs; i++ {
				dateByCol[col+i] = d
			}
		}
		col += cs
	})
	return dateByCol, total
}

func cellSpan(s *goquery.Selection, attr string) int {
	v, ok := s.Attr(attr)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// parseXHRBodies decodes every collected response body and extracts
// whatever looks like a calendar occurrence, discarding bodies that
// aren't JSON or don't carry a recognizable item shape.
func parseXHRBodies(bodies [][]byte, win Window) []rawOccurrence {
	var out []rawOccurrence
	for _, b := range bodies {
		var raw any
		if err := json.Unmarshal(b, &raw); err != nil {
			continue
		}
		for _, item := range flattenCalendarItems(raw) {
			if occ, ok := itemToOccurrence(item, win); ok {
				out = append(out, occ)
			}
		}
	}
	return out
}

// flattenCalendarItems walks a decoded JSON body looking for an array
// of calendar-item-shaped objects, whether the body is that array
// directly or wraps it under a conventional key like "events".
func flattenCalendarItems(v any) []map[string]any {
	switch val := v.(type) {
	case []any:
		var out []map[string]any
		for _, e := range val {
			if m, ok := e.(map[string]any); ok && looksLikeCalendarItem(m) {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		for _, key := range calendarListKeys {
			if nested, ok := val[key]; ok {
				if out := flattenCalendarItems(nested); len(out) > 0 {
					return out
				}
			}
		}
		if looksLikeCalendarItem(val) {
			return []map[string]any{val}
		}
	}
	return nil
}

func looksLikeCalendarItem(m map[string]any) bool {
	for _, key := range []string{"start", "dtstart", "start_time", "startDate"} {
		if _, ok := m[key]; ok {
			return true
		}
	}
	return false
}

func itemToOccurrence(m map[string]any, win Window) (rawOccurrence, bool) {
	start, ok := parseJSONTime(firstPresent(m, "start", "dtstart", "start_time", "startDate"))
	if !ok {
		return rawOccurrence{}, false
	}
	end, ok := parseJSONTime(firstPresent(m, "end", "dtend", "end_time", "endDate"))
	if !ok {
		end = start
	}
	if !inWindow(start, end, win) {
		return rawOccurrence{}, false
	}
	return rawOccurrence{
		Summary:  stringField(m, "title", "summary", "subject", "name"),
		Location: stringField(m, "location", "room", "place"),
		Start:    start,
		End:      end,
	}, true
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func parseJSONTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "20060102T150405Z"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case float64:
		return time.UnixMilli(int64(val)).UTC(), true
	default:
		return time.Time{}, false
	}
}
