package extract

import (
	"testing"
	"time"
)

const sampleWeekTable = `
<table>
  <tr>
    <td>room</td>
    <td>2026-01-05</td>
    <td>2026-01-06</td>
  </tr>
  <tr>
    <td>9:00</td>
    <td class="v">Curs Algoritmi Sala 204</td>
    <td class="v">Laborator Retele Sala 12</td>
  </tr>
</table>
`

func TestScrapeTableMapsCellsToHeaderDates(t *testing.T) {
	out, err := ScrapeTable(sampleWeekTable, "2006-01-02")
	if err != nil {
		t.Fatalf("ScrapeTable: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 occurrences, got %d: %+v", len(out), out)
	}
	if out[0].Date.Format("2006-01-02") != "2026-01-05" {
		t.Errorf("first occurrence date = %v, want 2026-01-05", out[0].Date)
	}
}

func TestScrapeTableEmptyOnNoTables(t *testing.T) {
	out, err := ScrapeTable("<html><body>no tables here</body></html>", "2006-01-02")
	if err != nil {
		t.Fatalf("ScrapeTable: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no occurrences, got %+v", out)
	}
}

func TestParseXHRBodiesExtractsCalendarItemsFromArrayBody(t *testing.T) {
	win := Window{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	body := []byte(`[
		{"title": "Curs Algoritmi", "location": "Sala 204", "start": "2026-01-10T09:00:00Z", "end": "2026-01-10T11:00:00Z"},
		{"title": "Out of window", "start": "2025-01-10T09:00:00Z", "end": "2025-01-10T11:00:00Z"}
	]`)

	out := parseXHRBodies([][]byte{body}, win)
	if len(out) != 1 {
		t.Fatalf("expected 1 occurrence in window, got %d: %+v", len(out), out)
	}
	if out[0].Summary != "Curs Algoritmi" || out[0].Location != "Sala 204" {
		t.Errorf("unexpected occurrence: %+v", out[0])
	}
}

func TestParseXHRBodiesUnwrapsNestedEventsKey(t *testing.T) {
	win := Window{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	body := []byte(`{"events": [{"summary": "Laborator", "dtstart": "2026-01-12T10:00:00Z", "dtend": "2026-01-12T12:00:00Z"}]}`)

	out := parseXHRBodies([][]byte{body}, win)
	if len(out) != 1 {
		t.Fatalf("expected 1 occurrence, got %d: %+v", len(out), out)
	}
	if out[0].Summary != "Laborator" {
		t.Errorf("unexpected summary: %+v", out[0])
	}
}

func TestParseXHRBodiesIgnoresNonCalendarJSON(t *testing.T) {
	win := Window{Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	out := parseXHRBodies([][]byte{[]byte(`{"status": "ok"}`), []byte("not json")}, win)
	if len(out) != 0 {
		t.Errorf("expected no occurrences from non-calendar bodies, got %+v", out)
	}
}
