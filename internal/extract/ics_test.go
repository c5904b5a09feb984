package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const sampleICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:single@example.com
SUMMARY:Curs - Algoritmi
LOCATION:Sala 204, Corp Central
DTSTART:20260110T090000Z
DTEND:20260110T110000Z
END:VEVENT
BEGIN:VEVENT
UID:recurring@example.com
SUMMARY:Laborator - Retele
LOCATION:Sala 12, Corp A
DTSTART:20260105T100000Z
DTEND:20260105T120000Z
RRULE:FREQ=WEEKLY;COUNT=3
END:VEVENT
END:VCALENDAR
`

func TestParseAndExpandSingleAndRecurringEvents(t *testing.T) {
	win := Window{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	occs, err := parseAndExpand([]byte(sampleICS), win)
	if err != nil {
		t.Fatalf("parseAndExpand: %v", err)
	}
	// 1 single event + 3 recurring instances
	if len(occs) != 4 {
		t.Fatalf("expected 4 occurrences, got %d: %+v", len(occs), occs)
	}
}

func TestParseAndExpandWindowExcludesOutOfRange(t *testing.T) {
	win := Window{
		Start: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	occs, err := parseAndExpand([]byte(sampleICS), win)
	if err != nil {
		t.Fatalf("parseAndExpand: %v", err)
	}
	if len(occs) != 0 {
		t.Fatalf("expected 0 occurrences outside window, got %d", len(occs))
	}
}

func TestParseISODuration(t *testing.T) {
	d, err := parseISODuration("PT1H30M")
	if err != nil {
		t.Fatalf("parseISODuration: %v", err)
	}
	if d != 90*time.Minute {
		t.Errorf("duration = %v, want 90m", d)
	}
}

func TestFetchNoICSURLFallsThrough(t *testing.T) {
	f := NewICSFetcher(time.Second, zerolog.Nop())
	_, err := f.Fetch(context.Background(), "", Window{})
	if err != ErrNoICSURL {
		t.Errorf("expected ErrNoICSURL, got %v", err)
	}
}

func TestFetch4xxFailsWithoutRetry(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewICSFetcher(time.Second, zerolog.Nop())
	f.RetryWait = []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}

	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL, Window{})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if hits != 1 {
		t.Errorf("expected exactly 1 request for a terminal 4xx, got %d", hits)
	}
	if elapsed >= 10*time.Millisecond {
		t.Errorf("expected no retry backoff delay for 4xx, took %v", elapsed)
	}
}

func TestFetch5xxRetries(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewICSFetcher(time.Second, zerolog.Nop())
	f.RetryWait = []time.Duration{time.Millisecond, time.Millisecond}

	_, err := f.Fetch(context.Background(), srv.URL, Window{})
	if err == nil {
		t.Fatal("expected error for persistent 500 response")
	}
	if hits != f.Retries+1 {
		t.Errorf("expected %d requests (initial + retries) for transient 5xx, got %d", f.Retries+1, hits)
	}
}
