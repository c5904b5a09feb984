package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/roomcal/roomcal/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roomcal.db")
	s, err := New(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndListSources(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src := model.CalendarSource{PrimaryURL: "https://a.example.edu", DisplayName: "Room A", Enabled: true}
	if err := s.UpsertSourceByURL(ctx, src); err != nil {
		t.Fatalf("UpsertSourceByURL: %v", err)
	}

	sources, err := s.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if len(sources) != 1 || sources[0].DisplayName != "Room A" {
		t.Fatalf("unexpected sources: %+v", sources)
	}

	src.DisplayName = "Room A Renamed"
	if err := s.UpsertSourceByURL(ctx, src); err != nil {
		t.Fatalf("UpsertSourceByURL (update): %v", err)
	}
	sources, err = s.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if len(sources) != 1 || sources[0].DisplayName != "Room A Renamed" {
		t.Fatalf("expected upsert to update in place, got %+v", sources)
	}
}

func TestUpsertSourceByURLPreservesColorAndEnabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src := model.CalendarSource{PrimaryURL: "https://a.example.edu", DisplayName: "Room A", Color: "#ff0000", Enabled: true}
	if err := s.UpsertSourceByURL(ctx, src); err != nil {
		t.Fatalf("UpsertSourceByURL: %v", err)
	}

	sources, err := s.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if err := s.UpdateSourceFields(ctx, sources[0].ID, model.CalendarSource{
		ICSURL: sources[0].ICSURL, DisplayName: sources[0].DisplayName, Color: "#00ff00", Enabled: false,
		Building: sources[0].Building, Room: sources[0].Room, EmailAddress: sources[0].EmailAddress, Notes: sources[0].Notes,
	}); err != nil {
		t.Fatalf("UpdateSourceFields: %v", err)
	}

	// Simulate a second CSV import of the same row: display_name changes
	// (CSV authoritative), but a CSV without color/enabled columns makes
	// the importer submit its defaults (empty color, enabled=true) —
	// those must not overwrite the operator's choices.
	reimport := model.CalendarSource{PrimaryURL: "https://a.example.edu", DisplayName: "Room A Updated", Color: "", Enabled: true}
	if err := s.UpsertSourceByURL(ctx, reimport); err != nil {
		t.Fatalf("UpsertSourceByURL (reimport): %v", err)
	}

	sources, err = s.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %+v", sources)
	}
	if sources[0].DisplayName != "Room A Updated" {
		t.Errorf("expected display_name to be updated by reimport, got %q", sources[0].DisplayName)
	}
	if sources[0].Color != "#00ff00" {
		t.Errorf("expected color to be preserved across reimport, got %q", sources[0].Color)
	}
	if sources[0].Enabled {
		t.Errorf("expected enabled=false to be preserved across reimport, got enabled=true")
	}
}

func TestDeleteSource(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_ = s.UpsertSourceByURL(ctx, model.CalendarSource{PrimaryURL: "https://b"})
	sources, _ := s.ListSources(ctx)
	if err := s.DeleteSource(ctx, sources[0].ID); err != nil {
		t.Fatalf("DeleteSource: %v", err)
	}
	sources, _ = s.ListSources(ctx)
	if len(sources) != 0 {
		t.Errorf("expected no sources after delete, got %+v", sources)
	}
}

func TestManualEventLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	id, err := s.AddManualEvent(ctx, model.ManualEvent{Start: start, End: start.Add(time.Hour), Title: "Workshop"})
	if err != nil {
		t.Fatalf("AddManualEvent: %v", err)
	}

	events, err := s.ListManualEvents(ctx, start.Add(-time.Hour), start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ListManualEvents: %v", err)
	}
	if len(events) != 1 || events[0].Title != "Workshop" {
		t.Fatalf("unexpected events: %+v", events)
	}

	if err := s.DeleteManualEvent(ctx, id); err != nil {
		t.Fatalf("DeleteManualEvent: %v", err)
	}
	events, err = s.ListManualEvents(ctx, start.Add(-time.Hour), start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ListManualEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events after delete, got %+v", events)
	}
}

func TestDeleteManualEventsBeforeRetentionCutoff(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Now().UTC()
	_, _ = s.AddManualEvent(ctx, model.ManualEvent{Start: old, End: old.Add(time.Hour), Title: "Old"})
	_, _ = s.AddManualEvent(ctx, model.ManualEvent{Start: recent, End: recent.Add(time.Hour), Title: "Recent"})

	n, err := s.DeleteManualEventsBefore(ctx, time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("DeleteManualEventsBefore: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
}
