package artifact

import (
	"testing"
	"time"

	"github.com/roomcal/roomcal/internal/model"
)

func TestWriteReadEventsRoundTrip(t *testing.T) {
	d, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	events := []model.RawEvent{{UID: "u1", RawTitle: "Curs"}}
	if err := d.WriteEvents("abcd1234", events); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}
	got, err := d.ReadEvents("abcd1234")
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(got) != 1 || got[0].UID != "u1" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestReadEventsMissingReturnsNilNoError(t *testing.T) {
	d, _ := New(t.TempDir())
	got, err := d.ReadEvents("deadbeef")
	if err != nil {
		t.Fatalf("expected no error for missing artifact, got %v", err)
	}
	if got != nil {
		t.Errorf("expected nil events, got %+v", got)
	}
}

func TestWriteEventsEmptySliceIsDistinctFromMissing(t *testing.T) {
	d, _ := New(t.TempDir())
	if err := d.WriteEvents("feedface", []model.RawEvent{}); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}
	got, err := d.ReadEvents("feedface")
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected non-nil empty slice, got %+v", got)
	}
}

func TestListSourceHashes(t *testing.T) {
	d, _ := New(t.TempDir())
	_ = d.WriteEvents("11111111", nil)
	_ = d.WriteEvents("22222222", nil)
	hashes, err := d.ListSourceHashes()
	if err != nil {
		t.Fatalf("ListSourceHashes: %v", err)
	}
	if len(hashes) != 2 {
		t.Fatalf("expected 2 hashes, got %v", hashes)
	}
}

func TestWriteScheduleRoundTrip(t *testing.T) {
	d, _ := New(t.TempDir())
	sched := model.MergedSchedule{ByRoom: map[string][]model.RawEvent{"204": {{UID: "u1"}}}}
	cm := model.CalendarMap{"https://x": {DisplayName: "X"}}
	fp := model.Fingerprint{MaxModTime: time.Now().UTC().Truncate(time.Second), NonEmptyCount: 1}

	if err := d.WriteSchedule(sched, cm, fp); err != nil {
		t.Fatalf("WriteSchedule: %v", err)
	}
	gotSched, gotCM, gotFP, err := d.ReadSchedule()
	if err != nil {
		t.Fatalf("ReadSchedule: %v", err)
	}
	if len(gotSched.ByRoom["204"]) != 1 {
		t.Errorf("schedule mismatch: %+v", gotSched)
	}
	if gotCM["https://x"].DisplayName != "X" {
		t.Errorf("calendar map mismatch: %+v", gotCM)
	}
	if !gotFP.Equal(fp) {
		t.Errorf("fingerprint mismatch: got %+v want %+v", gotFP, fp)
	}
}

func TestProgressRoundTrip(t *testing.T) {
	d, _ := New(t.TempDir())
	p := model.ImportProgress{Total: 5, Succeeded: 3, CurrentPhase: model.PhaseICS}
	if err := d.WriteProgress(p); err != nil {
		t.Fatalf("WriteProgress: %v", err)
	}
	got, err := d.ReadProgress()
	if err != nil {
		t.Fatalf("ReadProgress: %v", err)
	}
	if got.Total != 5 || got.Succeeded != 3 || got.CurrentPhase != model.PhaseICS {
		t.Errorf("progress mismatch: %+v", got)
	}
}

func TestMarkComplete(t *testing.T) {
	d, _ := New(t.TempDir())
	if err := d.MarkComplete(); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
}
